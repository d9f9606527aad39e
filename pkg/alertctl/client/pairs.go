package client

import (
	"fmt"
	"strings"
)

// Pair is one key=value argument.
type Pair struct {
	Key   string
	Value string
}

// Pairs keeps the order in which keys were first given.
type Pairs []Pair

// ParsePairs splits every entry on its first "=". A repeated key keeps its
// first position and takes the last value.
func ParsePairs(raw []string) (Pairs, error) {
	var pairs Pairs
	index := map[string]int{}
	for _, entry := range raw {
		key, value, ok := strings.Cut(entry, "=")
		if !ok {
			return nil, fmt.Errorf("invalid key=value pair: %s", entry)
		}
		if i, seen := index[key]; seen {
			pairs[i].Value = value
			continue
		}
		index[key] = len(pairs)
		pairs = append(pairs, Pair{Key: key, Value: value})
	}
	return pairs, nil
}

func (p Pairs) Map() map[string]string {
	out := make(map[string]string, len(p))
	for _, pair := range p {
		out[pair.Key] = pair.Value
	}
	return out
}
