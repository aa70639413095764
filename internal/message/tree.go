// Package message implements the VM's MessageTree node and the
// operator-shuffle pass that runs once per parsed tree before first
// evaluation. The parser/lexer that produces the unshuffled tree is
// an external collaborator — this package starts from an
// already-tokenized tree.
package message

import (
	"github.com/synapticgarden/vm/internal/symbol"
)

// Literal is the cached result of a literal message (number, string,
// or symbol), computed once at parse time.
type Literal struct {
	Kind  LiteralKind
	Num   float64
	Str   string
	Valid bool
}

// LiteralKind discriminates the payload carried by a Literal.
type LiteralKind uint8

const (
	LiteralNone LiteralKind = iota
	LiteralNumber
	LiteralString
	LiteralSymbol
)

// Tree is an immutable-after-construction message node: a name
// symbol, ordered argument subtrees, an optional cached literal, a
// source label/line, and a sibling link forming a statement list.
type Tree struct {
	Name        *symbol.Symbol
	Args        []*Tree
	Literal     Literal
	Label       string
	Line        int
	Next        *Tree // sibling: forms ';'-separated statement lists
	IsEndOfLine bool
}

// New creates a bare message node for the given name.
func New(name *symbol.Symbol) *Tree {
	return &Tree{Name: name}
}

// WithArgs returns a copy of the receiver with Args set, used by
// builders that assemble a tree bottom-up without mutating shared
// nodes (trees are meant to be immutable once shared across
// activations).
func (t *Tree) WithArgs(args ...*Tree) *Tree {
	clone := *t
	clone.Args = args
	return &clone
}

// Last returns the final node of the statement list starting at t.
func (t *Tree) Last() *Tree {
	n := t
	for n.Next != nil {
		n = n.Next
	}
	return n
}

// Append chains next onto the end of t's statement list and returns
// t, for convenient builder-style construction.
func (t *Tree) Append(next *Tree) *Tree {
	t.Last().Next = next
	return t
}

// NumberLiteral builds a cached-literal message node for a number.
func NumberLiteral(name *symbol.Symbol, n float64) *Tree {
	return &Tree{Name: name, Literal: Literal{Kind: LiteralNumber, Num: n, Valid: true}}
}

// StringLiteral builds a cached-literal message node for a string.
func StringLiteral(name *symbol.Symbol, s string) *Tree {
	return &Tree{Name: name, Literal: Literal{Kind: LiteralString, Str: s, Valid: true}}
}
