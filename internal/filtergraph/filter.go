// Package filtergraph builds engine filter expressions from typed steps.
//
// Every effect is an explicit Filter with numeric options that are clamped
// before serialisation, so no caller-controlled text ever reaches the
// engine's filter syntax.
package filtergraph

import (
	"math"
	"strconv"
	"strings"
)

// Option is one key=value pair of a filter. An empty Key renders the value
// positionally.
type Option struct {
	Key   string
	Value string
}

// Filter is a single named filter with its options.
type Filter struct {
	Name    string
	Options []Option
}

func (f Filter) String() string {
	if len(f.Options) == 0 {
		return f.Name
	}
	parts := make([]string, len(f.Options))
	for i, o := range f.Options {
		if o.Key == "" {
			parts[i] = o.Value
		} else {
			parts[i] = o.Key + "=" + o.Value
		}
	}
	return f.Name + "=" + strings.Join(parts, ":")
}

// Chain is an ordered list of filters applied one after another.
type Chain []Filter

// String returns the chain joined with commas.
func (c Chain) String() string {
	parts := make([]string, len(c))
	for i, f := range c {
		parts[i] = f.String()
	}
	return strings.Join(parts, ",")
}

// Names lists the filter names in order. Handy in tests and logs.
func (c Chain) Names() []string {
	names := make([]string, len(c))
	for i, f := range c {
		names[i] = f.Name
	}
	return names
}

func opt(key string, v float64) Option {
	return Option{Key: key, Value: Num(v)}
}

// Num formats a float with at most 4 decimals and no trailing zeros.
func Num(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		v = 0
	}
	v = math.Round(v*10000) / 10000
	if v == 0 {
		v = 0 // normalise -0
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}
