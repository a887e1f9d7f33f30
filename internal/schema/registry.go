package schema

import (
	"fmt"

	"github.com/yanun0323/decimal"
)

// SymbolID is the numeric identifier stamped into IPC records. Zero is never
// a valid id.
type SymbolID = uint32

// Symbol describes one tradable option underlying known to the process.
type Symbol struct {
	ID       SymbolID
	Name     string
	TickSize decimal.Decimal
	LotSize  decimal.Decimal
}

// Registry stores the configured symbol universe in a compact form.
type Registry struct {
	symbols []Symbol
	byName  map[string]SymbolID
	nextID  SymbolID
}

// NewRegistry creates an empty registry. IDs are assigned from 1.
func NewRegistry() *Registry {
	return &Registry{
		byName: make(map[string]SymbolID),
		nextID: 1,
	}
}

// Add registers a new symbol and returns its ID.
func (r *Registry) Add(sym Symbol) (SymbolID, error) {
	if sym.Name == "" {
		return 0, fmt.Errorf("symbol name is empty")
	}
	if _, ok := r.byName[sym.Name]; ok {
		return 0, fmt.Errorf("symbol already exists: %s", sym.Name)
	}
	sym.ID = r.nextID
	r.nextID++
	r.symbols = append(r.symbols, sym)
	r.byName[sym.Name] = sym.ID
	return sym.ID, nil
}

// Lookup resolves a symbol name to its ID.
func (r *Registry) Lookup(name string) (SymbolID, bool) {
	id, ok := r.byName[name]
	return id, ok
}

// Symbol returns the definition for an ID.
func (r *Registry) Symbol(id SymbolID) (Symbol, bool) {
	for _, s := range r.symbols {
		if s.ID == id {
			return s, true
		}
	}
	return Symbol{}, false
}

// Symbols returns all registered symbols in insertion order.
func (r *Registry) Symbols() []Symbol {
	out := make([]Symbol, len(r.symbols))
	copy(out, r.symbols)
	return out
}

// Len returns the number of registered symbols.
func (r *Registry) Len() int {
	return len(r.symbols)
}
