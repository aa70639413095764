// Package symbol implements the VM's interned-symbol table.
//
// A Symbol is an immutable byte sequence carrying two randomized hash
// words used by internal/slots for cuckoo probing. Symbols are
// interned once and compared for equality by pointer identity
// thereafter: symbol identity implies byte-string equality and vice
// versa.
package symbol

import (
	"crypto/rand"

	"golang.org/x/crypto/blake2b"
)

// Symbol is an interned, immutable byte string used as a slot key or
// message name. Two symbols are equal iff they are the same pointer.
type Symbol struct {
	bytes       string
	hash1, hash2 uint64
}

// Bytes returns the symbol's underlying byte content.
func (s *Symbol) Bytes() []byte { return []byte(s.bytes) }

// String returns the symbol's underlying content as a string.
func (s *Symbol) String() string { return s.bytes }

// Hashes returns the two randomized hash words used by the Slots
// cuckoo-hash probe sequence.
func (s *Symbol) Hashes() (uint64, uint64) { return s.hash1, s.hash2 }

// Table is the process-wide symbol table. It is touched only by the
// VM thread and therefore carries no lock.
type Table struct {
	key     [32]byte // process-random blake2b key, gives per-process hash randomization
	interned map[string]*Symbol
}

// NewTable creates an empty symbol table with a fresh random hash key.
func NewTable() *Table {
	t := &Table{interned: make(map[string]*Symbol, 1024)}
	if _, err := rand.Read(t.key[:]); err != nil {
		// crypto/rand failing is a fatal allocation-class condition; a
		// zero key still yields a valid (if non-randomized) table.
	}
	return t
}

// Intern returns the unique Symbol for the given byte content,
// allocating a new one on first sight.
func (t *Table) Intern(b []byte) *Symbol {
	s := string(b)
	if sym, ok := t.interned[s]; ok {
		return sym
	}
	h1, h2 := t.hashPair(s)
	sym := &Symbol{bytes: s, hash1: h1, hash2: h2}
	t.interned[s] = sym
	return sym
}

// InternString is a convenience wrapper around Intern for string
// literals (parser-produced message names are most often strings).
func (t *Table) InternString(s string) *Symbol {
	return t.Intern([]byte(s))
}

// Lookup returns the existing symbol for b, if any, without interning.
func (t *Table) Lookup(b []byte) (*Symbol, bool) {
	sym, ok := t.interned[string(b)]
	return sym, ok
}

// Remove evicts a symbol from the table. Permitted but rare per spec;
// callers must not continue to use the symbol's pointer afterward.
func (t *Table) Remove(sym *Symbol) {
	delete(t.interned, sym.bytes)
}

// Len reports the number of live interned symbols.
func (t *Table) Len() int { return len(t.interned) }

func (t *Table) hashPair(s string) (uint64, uint64) {
	h, err := blake2b.New(16, t.key[:])
	if err != nil {
		h, _ = blake2b.New(16, nil)
	}
	h.Write([]byte(s))
	sum := h.Sum(nil)
	hi1 := uint64(sum[0]) | uint64(sum[1])<<8 | uint64(sum[2])<<16 | uint64(sum[3])<<24 |
		uint64(sum[4])<<32 | uint64(sum[5])<<40 | uint64(sum[6])<<48 | uint64(sum[7])<<56
	hi2 := uint64(sum[8]) | uint64(sum[9])<<8 | uint64(sum[10])<<16 | uint64(sum[11])<<24 |
		uint64(sum[12])<<32 | uint64(sum[13])<<40 | uint64(sum[14])<<48 | uint64(sum[15])<<56
	return hi1, hi2
}
