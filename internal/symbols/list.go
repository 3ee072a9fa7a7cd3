package symbols

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Entry is one configured security and the quantity to buy at the ceiling.
type Entry struct {
	Symbol   string `yaml:"symbol"`
	Quantity int    `yaml:"quantity"`
}

// ParseList parses "SYMBOL:QTY" pairs from a single string.
//
// Supported separators: commas, semicolons and whitespace. Symbols are
// upper-cased. A symbol listed twice is an error since the two quantities
// cannot both be honored.
//
// Returns (nil, nil) if raw is empty/whitespace.
func ParseList(raw string) ([]Entry, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, nil
	}

	parts := strings.FieldsFunc(trimmed, func(r rune) bool {
		switch r {
		case ',', ';', ' ', '\n', '\r', '\t':
			return true
		default:
			return false
		}
	})

	out := make([]Entry, 0, len(parts))
	for _, part := range parts {
		sym, qtyRaw, ok := strings.Cut(part, ":")
		if !ok {
			return nil, fmt.Errorf("invalid entry %q in %q (want SYMBOL:QTY)", part, raw)
		}
		qty, err := strconv.Atoi(strings.TrimSpace(qtyRaw))
		if err != nil {
			return nil, fmt.Errorf("invalid quantity in %q: %w", part, err)
		}
		out = append(out, Entry{Symbol: sym, Quantity: qty})
	}
	return Normalize(out)
}

type fileConfig struct {
	Stocks []Entry `yaml:"stocks"`
}

// LoadFile reads entries from a YAML file, either a top-level "stocks" list
// or a bare list of {symbol, quantity} mappings.
func LoadFile(path string) ([]Entry, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg fileConfig
	if err := yaml.Unmarshal(b, &cfg); err == nil && len(cfg.Stocks) > 0 {
		return Normalize(cfg.Stocks)
	}
	var list []Entry
	if err := yaml.Unmarshal(b, &list); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if len(list) == 0 {
		return nil, fmt.Errorf("no stocks found in %s", path)
	}
	return Normalize(list)
}

// Normalize upper-cases and validates entries, preserving order.
func Normalize(entries []Entry) ([]Entry, error) {
	out := make([]Entry, 0, len(entries))
	seen := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		sym := strings.ToUpper(strings.TrimSpace(e.Symbol))
		if !validSymbol(sym) {
			return nil, fmt.Errorf("invalid symbol %q", e.Symbol)
		}
		if e.Quantity <= 0 {
			return nil, fmt.Errorf("%s: quantity must be > 0, got %d", sym, e.Quantity)
		}
		if _, dup := seen[sym]; dup {
			return nil, fmt.Errorf("symbol %s listed more than once", sym)
		}
		seen[sym] = struct{}{}
		out = append(out, Entry{Symbol: sym, Quantity: e.Quantity})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no stocks configured")
	}
	return out, nil
}

func validSymbol(s string) bool {
	if s == "" || len(s) > 20 {
		return false
	}
	for _, c := range s {
		switch {
		case c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		default:
			return false
		}
	}
	return true
}

func Join(entries []Entry) string {
	parts := make([]string, 0, len(entries))
	for _, e := range entries {
		parts = append(parts, fmt.Sprintf("%s:%d", e.Symbol, e.Quantity))
	}
	return strings.Join(parts, ",")
}
