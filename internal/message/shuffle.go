package message

import "github.com/synapticgarden/vm/internal/symbol"

// OperatorTable maps an operator symbol's textual name to its
// precedence (higher binds tighter), plus the assignment-operator
// renames. Shuffle applies only the renames; nothing in this package
// reads the precedence map except the Precedence accessor.
type OperatorTable struct {
	precedence map[string]int
	assignOps  map[string]string // e.g. ":=" -> "setSlotWithType"
}

// DefaultOperatorTable returns the conventional arithmetic/comparison
// precedence table and the standard assignment-operator rewrites.
func DefaultOperatorTable() *OperatorTable {
	return &OperatorTable{
		precedence: map[string]int{
			"**": 9,
			"*":  8, "/": 8, "%": 8,
			"+": 7, "-": 7,
			"<<": 6, ">>": 6,
			"<": 5, "<=": 5, ">": 5, ">=": 5,
			"==": 4, "!=": 4,
			"&": 3,
			"^": 2,
			"|": 1,
			"and": 0, "or": 0,
		},
		assignOps: map[string]string{
			":=":  "setSlotWithType",
			"=":   "updateSlot",
			"::=": "newSlot",
		},
	}
}

// Precedence reports op's binding power and whether it is a known
// infix operator at all.
func (t *OperatorTable) Precedence(op string) (int, bool) {
	p, ok := t.precedence[op]
	return p, ok
}

// RewriteAssign returns the message name an assignment operator
// shuffles to, e.g. ":=" -> "setSlotWithType".
func (t *OperatorTable) RewriteAssign(op string) (string, bool) {
	name, ok := t.assignOps[op]
	return name, ok
}

// Shuffle returns a copy of the tree rooted at root (its statement
// list and argument subtrees included) in which every assignment
// operator is renamed to its message form. It does not reorder infix
// operators by precedence: operator nodes keep the nesting the parser
// gave them. It is idempotent, since the renamed messages are not
// themselves assignment operators.
func Shuffle(symtab *symbol.Table, table *OperatorTable, root *Tree) *Tree {
	if root == nil {
		return nil
	}
	shuffled := shuffleOne(symtab, table, root)
	if root.Next != nil {
		shuffled.Next = Shuffle(symtab, table, root.Next)
	}
	return shuffled
}

func shuffleOne(symtab *symbol.Table, table *OperatorTable, node *Tree) *Tree {
	if name, ok := table.RewriteAssign(node.Name.String()); ok {
		renamed := *node
		renamed.Name = symtab.InternString(name)
		renamed.Args = shuffleArgs(symtab, table, node.Args)
		return &renamed
	}
	clone := *node
	clone.Args = shuffleArgs(symtab, table, node.Args)
	return &clone
}

func shuffleArgs(symtab *symbol.Table, table *OperatorTable, args []*Tree) []*Tree {
	if len(args) == 0 {
		return args
	}
	out := make([]*Tree, len(args))
	for i, a := range args {
		out[i] = Shuffle(symtab, table, a)
	}
	return out
}
