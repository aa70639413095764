package message

import (
	"strconv"
	"strings"
)

// Print renders tree back to source text good enough for the
// round-trip property Parse(source) -> tree; Print(tree) -> source';
// Parse(source') -> tree: printing is an internal debug/test facility
// of the evaluator, not the external lexer/parser this package leaves
// out of scope.
func Print(t *Tree) string {
	var b strings.Builder
	printChain(&b, t)
	return b.String()
}

func printChain(b *strings.Builder, t *Tree) {
	for n := t; n != nil; n = n.Next {
		if n != t {
			b.WriteString(n.separator())
		}
		printNode(b, n)
	}
}

func (t *Tree) separator() string {
	if t.IsEndOfLine {
		return "\n"
	}
	return "; "
}

func printNode(b *strings.Builder, n *Tree) {
	if n.Literal.Valid {
		switch n.Literal.Kind {
		case LiteralNumber:
			b.WriteString(strconv.FormatFloat(n.Literal.Num, 'g', -1, 64))
			return
		case LiteralString:
			b.WriteString(strconv.Quote(n.Literal.Str))
			return
		case LiteralSymbol:
			b.WriteString(n.Literal.Str)
			return
		}
	}
	b.WriteString(n.Name.String())
	if len(n.Args) > 0 {
		b.WriteString("(")
		for i, a := range n.Args {
			if i > 0 {
				b.WriteString(", ")
			}
			printChain(b, a)
		}
		b.WriteString(")")
	}
}
