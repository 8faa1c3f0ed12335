package models

import (
	"fmt"
	"sort"
)

// StartersPerSquad is the size of every starting lineup.
const StartersPerSquad = 11

// FormationSpec maps each position to its required starter count.
type FormationSpec map[Position]int

// Total returns the number of starters the formation requires.
func (f FormationSpec) Total() int {
	total := 0
	for _, n := range f {
		total += n
	}
	return total
}

// Count returns the required starters at p (0 when the formation skips it).
func (f FormationSpec) Count(p Position) int {
	return f[p]
}

var formations = map[string]FormationSpec{
	"4-3-3": {Goalkeeper: 1, CenterBack: 2, Fullback: 2, Midfielder: 3, Forward: 3},
	"4-4-2": {Goalkeeper: 1, CenterBack: 2, Fullback: 2, Midfielder: 4, Forward: 2},
	"3-4-3": {Goalkeeper: 1, CenterBack: 3, Fullback: 0, Midfielder: 4, Forward: 3},
	"3-5-2": {Goalkeeper: 1, CenterBack: 3, Fullback: 0, Midfielder: 5, Forward: 2},
	"5-3-2": {Goalkeeper: 1, CenterBack: 3, Fullback: 2, Midfielder: 3, Forward: 2},
}

// DefaultFormation is used when a request omits the formation.
const DefaultFormation = "4-3-3"

// Formation looks up a formation key. The returned spec is a copy.
func Formation(key string) (FormationSpec, error) {
	spec, ok := formations[key]
	if !ok {
		return nil, fmt.Errorf("unknown formation %q, use one of %v", key, FormationKeys())
	}
	out := make(FormationSpec, len(spec))
	for p, n := range spec {
		out[p] = n
	}
	return out, nil
}

// FormationKeys returns the supported formation keys in sorted order.
func FormationKeys() []string {
	keys := make([]string, 0, len(formations))
	for k := range formations {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
