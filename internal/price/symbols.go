package price

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// SymbolEntry maps a ticker symbol to its price-feed identifier.
type SymbolEntry struct {
	ID      string   `yaml:"id"`
	Aliases []string `yaml:"aliases"`
}

type symbolFile struct {
	Symbols map[string]SymbolEntry `yaml:"symbols"`
}

type matcher struct {
	needle string
	symbol string
}

// SymbolTable resolves token display names to symbols and feed identifiers.
type SymbolTable struct {
	ids      map[string]string
	matchers []matcher
}

// LoadSymbolTable reads a YAML symbol table from disk.
func LoadSymbolTable(path string) (*SymbolTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read symbols file: %w", err)
	}
	var file symbolFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse symbols file: %w", err)
	}
	if len(file.Symbols) == 0 {
		return nil, fmt.Errorf("symbols file %s defines no symbols", path)
	}
	return NewSymbolTable(file.Symbols), nil
}

// NewSymbolTable builds a table from symbol entries.
func NewSymbolTable(entries map[string]SymbolEntry) *SymbolTable {
	t := &SymbolTable{ids: make(map[string]string, len(entries))}
	for symbol, entry := range entries {
		symbol = strings.ToUpper(strings.TrimSpace(symbol))
		if symbol == "" || entry.ID == "" {
			continue
		}
		t.ids[symbol] = entry.ID
		t.matchers = append(t.matchers, matcher{needle: symbol, symbol: symbol})
		for _, alias := range entry.Aliases {
			alias = strings.ToUpper(strings.TrimSpace(alias))
			if alias != "" {
				t.matchers = append(t.matchers, matcher{needle: alias, symbol: symbol})
			}
		}
	}
	// Longest needle wins so "USDC.E" is not claimed by "USDC".
	sort.SliceStable(t.matchers, func(i, j int) bool {
		if len(t.matchers[i].needle) != len(t.matchers[j].needle) {
			return len(t.matchers[i].needle) > len(t.matchers[j].needle)
		}
		return t.matchers[i].needle < t.matchers[j].needle
	})
	return t
}

// ResolveSymbol finds the known symbol contained in a token name.
func (t *SymbolTable) ResolveSymbol(name string) (string, bool) {
	if t == nil {
		return "", false
	}
	upper := strings.ToUpper(strings.TrimSpace(name))
	if upper == "" {
		return "", false
	}
	for _, m := range t.matchers {
		if strings.Contains(upper, m.needle) {
			return m.symbol, true
		}
	}
	return "", false
}

// FeedID returns the price-feed identifier for a symbol.
func (t *SymbolTable) FeedID(symbol string) (string, bool) {
	if t == nil {
		return "", false
	}
	id, ok := t.ids[strings.ToUpper(symbol)]
	return id, ok
}

// DefaultSymbols is used when no symbols file is configured.
func DefaultSymbols() *SymbolTable {
	return NewSymbolTable(map[string]SymbolEntry{
		"USDC": {ID: "usd-coin", Aliases: []string{"USD COIN"}},
		"USDT": {ID: "tether", Aliases: []string{"TETHER"}},
		"CNGN": {ID: "celo-nigerian-naira", Aliases: []string{"COMPLIANT NAIRA"}},
		"DAI":  {ID: "dai"},
		"BUSD": {ID: "binance-usd", Aliases: []string{"BINANCE USD"}},
	})
}
