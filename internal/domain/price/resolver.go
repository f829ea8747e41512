package price

import "strings"

// SymbolResolver picks a tradable symbol for events that carry none.
// The first entity that names a known base asset or pair wins.
type SymbolResolver struct {
	quote string
	known map[string]struct{}
}

// NewSymbolResolver creates a resolver over the feed's symbols. With no known
// symbols any entity becomes "<ENTITY><QUOTE>".
func NewSymbolResolver(quote string, knownSymbols []string) *SymbolResolver {
	known := make(map[string]struct{}, len(knownSymbols))
	for _, s := range knownSymbols {
		if n := NormalizeSymbol(s); n != "" {
			known[n] = struct{}{}
		}
	}
	return &SymbolResolver{quote: strings.ToUpper(quote), known: known}
}

// Resolve returns the symbol for the given entities, or "" when none matches
func (r *SymbolResolver) Resolve(entities []string) string {
	for _, e := range entities {
		n := NormalizeSymbol(e)
		if n == "" {
			continue
		}
		for _, candidate := range []string{n, n + r.quote} {
			if r.isKnown(candidate) {
				return candidate
			}
		}
	}
	return ""
}

func (r *SymbolResolver) isKnown(symbol string) bool {
	if len(r.known) == 0 {
		return strings.HasSuffix(symbol, r.quote) && len(symbol) > len(r.quote)
	}
	_, ok := r.known[symbol]
	return ok
}
