package perfspan

import (
	"fmt"
	"sort"
	"strings"
)

// Results maps a display name to the count read at Stop.
type Results map[string]uint64

// Names returns the result names in sorted order.
func (r Results) Names() []string {
	names := make([]string, 0, len(r))
	for n := range r {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Results returns every counter's value keyed by its catalog name. Before
// Stop all values are zero.
func (g *Group) Results() Results {
	r := make(Results, len(g.counters))
	for _, c := range g.counters {
		r[c.event.String()] = c.value
	}
	return r
}

// ResultsByName returns the values of counters that were given a custom name,
// keyed by that name.
func (g *Group) ResultsByName() Results {
	r := make(Results)
	for i, c := range g.counters {
		if g.names[i] != "" {
			r[g.names[i]] = c.value
		}
	}
	return r
}

// Value returns the value of the counter registered under the custom name.
// If a name was registered twice, the later counter wins.
func (g *Group) Value(name string) (uint64, error) {
	for i := len(g.counters) - 1; i >= 0; i-- {
		if name != "" && g.names[i] == name {
			return g.counters[i].value, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrNotFound, name)
}

// label is the custom name of counter i, or its catalog name.
func (g *Group) label(i int) string {
	if g.names[i] != "" {
		return g.names[i]
	}
	return g.counters[i].event.String()
}

// MissRate returns 100*misses/refs. ok is false when refs is zero.
func MissRate(misses, refs uint64) (rate float64, ok bool) {
	if refs == 0 {
		return 0, false
	}
	return 100 * float64(misses) / float64(refs), true
}

func (r Results) rate(miss, ref string) (float64, bool) {
	m, ok1 := r[miss]
	n, ok2 := r[ref]
	if !ok1 || !ok2 {
		return 0, false
	}
	return MissRate(m, n)
}

// CacheMissRate is the percentage of cache references that missed.
func (r Results) CacheMissRate() (float64, bool) {
	return r.rate(EventCacheMisses.String(), EventCacheReferences.String())
}

// BranchMissRate is the percentage of branch instructions that were
// mispredicted.
func (r Results) BranchMissRate() (float64, bool) {
	return r.rate(EventBranchMisses.String(), EventBranchInstructions.String())
}

// MissRates pairs every "<prefix>_miss" result with "<prefix>_access" and
// returns the miss rate keyed by prefix. Prefixes with no accesses are
// omitted.
func (r Results) MissRates() map[string]float64 {
	rates := make(map[string]float64)
	for name, misses := range r {
		prefix, ok := strings.CutSuffix(name, "_miss")
		if !ok || prefix == "" {
			continue
		}
		if rate, ok := MissRate(misses, r[prefix+"_access"]); ok {
			rates[prefix] = rate
		}
	}
	return rates
}
