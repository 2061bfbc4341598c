package streaks

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// Count is a single ranked entry.
type Count struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// Ranking is an ordered list of counts, highest first. It marshals to a JSON
// object whose key order is the ranking order.
type Ranking []Count

// MarshalJSON encodes the ranking as an ordered JSON object.
func (r Ranking) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, c := range r {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(c.Name)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		fmt.Fprintf(&buf, "%d", c.Count)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes an ordered JSON object, keeping key order.
func (r *Ranking) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		*r = nil
		return nil
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("ranking: expected object, got %v", tok)
	}

	out := Ranking{}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("ranking: expected string key, got %v", keyTok)
		}
		var n int
		if err := dec.Decode(&n); err != nil {
			return fmt.Errorf("ranking: value for %q: %w", key, err)
		}
		out = append(out, Count{Name: key, Count: n})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*r = out
	return nil
}

// Names returns the ranked names in order.
func (r Ranking) Names() []string {
	names := make([]string, len(r))
	for i, c := range r {
		names[i] = c.Name
	}
	return names
}

// Get returns the count for name and whether it is ranked.
func (r Ranking) Get(name string) (int, bool) {
	for _, c := range r {
		if c.Name == name {
			return c.Count, true
		}
	}
	return 0, false
}

// counter counts occurrences and remembers first-seen order.
type counter struct {
	index  map[string]int
	counts []Count
}

func newCounter() *counter {
	return &counter{index: make(map[string]int)}
}

func (c *counter) add(name string) {
	if i, ok := c.index[name]; ok {
		c.counts[i].Count++
		return
	}
	c.index[name] = len(c.counts)
	c.counts = append(c.counts, Count{Name: name, Count: 1})
}

// top returns the n most frequent entries. Ties keep first-seen order.
func (c *counter) top(n int) Ranking {
	ranked := make(Ranking, len(c.counts))
	copy(ranked, c.counts)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Count > ranked[j].Count
	})
	if len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked
}
