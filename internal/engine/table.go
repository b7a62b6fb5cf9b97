package engine

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// Table holds the legal edges of the state machine. An absent edge is not
// an error at dispatch time: the loop logs a warning and falls back to
// parking instead.
type Table struct {
	edges map[State]map[State]bool
}

// DefaultTable is the stock observing-night graph. Every active state can
// bail to parking; analyzing may loop back to observing for the next
// exposure of a set.
func DefaultTable() *Table {
	return tableFrom(map[State][]State{
		StateSleeping:     {StateReady},
		StateReady:        {StateScheduling, StateParking},
		StateScheduling:   {StateSlewing, StateObserving, StateParking},
		StateSlewing:      {StateObserving, StateParking},
		StateObserving:    {StateAnalyzing, StateParking},
		StateAnalyzing:    {StateScheduling, StateObserving, StateParking},
		StateParking:      {StateParked},
		StateParked:       {StateReady, StateHousekeeping},
		StateHousekeeping: {StateSleeping, StateReady},
	})
}

func tableFrom(edges map[State][]State) *Table {
	t := &Table{edges: make(map[State]map[State]bool, len(edges))}
	for from, tos := range edges {
		set := make(map[State]bool, len(tos))
		for _, to := range tos {
			set[to] = true
		}
		t.edges[from] = set
	}
	return t
}

// tableFile is the on-disk shape of an override table.
type tableFile struct {
	Edges map[string][]string `toml:"edges"`
}

// LoadTable reads an override table from a TOML file. Unknown state names
// on either side of an edge fail here, at load time.
func LoadTable(path string) (*Table, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("engine: read state table: %w", err)
	}
	var tf tableFile
	if err := toml.Unmarshal(raw, &tf); err != nil {
		return nil, fmt.Errorf("engine: parse state table %s: %w", path, err)
	}
	if len(tf.Edges) == 0 {
		return nil, fmt.Errorf("engine: state table %s defines no edges", path)
	}

	edges := make(map[State][]State, len(tf.Edges))
	for fromName, toNames := range tf.Edges {
		from, err := ParseState(fromName)
		if err != nil {
			return nil, fmt.Errorf("engine: state table %s: %w", path, err)
		}
		for _, toName := range toNames {
			to, err := ParseState(toName)
			if err != nil {
				return nil, fmt.Errorf("engine: state table %s: %w", path, err)
			}
			edges[from] = append(edges[from], to)
		}
	}
	return tableFrom(edges), nil
}

// Allowed reports whether the edge from -> to is defined. Staying in the
// current state is always legal; an idle state may hold its position
// without declaring a self-edge.
func (t *Table) Allowed(from, to State) bool {
	if from == to {
		return true
	}
	return t.edges[from][to]
}

// Destinations returns the defined destinations from a state.
func (t *Table) Destinations(from State) []State {
	var out []State
	for _, s := range AllStates {
		if t.edges[from][s] {
			out = append(out, s)
		}
	}
	return out
}
