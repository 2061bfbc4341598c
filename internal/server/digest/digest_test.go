package digest

import (
	"encoding/json"
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/autonomy/pkg/streaks"
)

func TestDetector_Changed(t *testing.T) {
	d := NewDetector()

	changed, err := d.Changed("stats", map[string]any{"a": 1, "b": 2})
	require.NoError(t, err)
	assert.True(t, changed, "first payload is always a change")

	changed, err = d.Changed("stats", map[string]any{"b": 2, "a": 1})
	require.NoError(t, err)
	assert.False(t, changed, "key order must not matter")

	changed, err = d.Changed("stats", map[string]any{"a": 1, "b": 3})
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = d.Changed("health", map[string]any{"a": 1, "b": 3})
	require.NoError(t, err)
	assert.True(t, changed, "names are tracked independently")
}

func TestDetector_EncodedKeyOrderIgnored(t *testing.T) {
	forward := streaks.Ranking{{Name: "a", Count: 1}, {Name: "b", Count: 2}}
	reversed := streaks.Ranking{{Name: "b", Count: 2}, {Name: "a", Count: 1}}

	fj, err := json.Marshal(forward)
	require.NoError(t, err)
	rj, err := json.Marshal(reversed)
	require.NoError(t, err)
	require.NotEqual(t, string(fj), string(rj), "payloads must differ on the wire")

	d := NewDetector()
	changed, err := d.Changed("signal", forward)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = d.Changed("signal", reversed)
	require.NoError(t, err)
	assert.False(t, changed, "same members in another order are the same snapshot")

	changed, err = d.Changed("signal", json.RawMessage(`{"b":2,"a":1}`))
	require.NoError(t, err)
	assert.False(t, changed)

	changed, err = d.Changed("signal", streaks.Ranking{{Name: "a", Count: 1}, {Name: "b", Count: 3}})
	require.NoError(t, err)
	assert.True(t, changed)
}

func TestDetector_StructAndMapAgree(t *testing.T) {
	type payload struct {
		Zeta  int    `json:"zeta"`
		Alpha string `json:"alpha"`
	}
	d := NewDetector()

	changed, err := d.Changed("x", payload{Zeta: 1, Alpha: "a"})
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = d.Changed("x", map[string]any{"alpha": "a", "zeta": 1.0})
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestDetector_TypesDistinguished(t *testing.T) {
	a, err := Of(map[string]any{"n": 1})
	require.NoError(t, err)
	b, err := Of(map[string]any{"n": "1"})
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestDetector_ForgetAndReset(t *testing.T) {
	d := NewDetector()
	p := []int{1, 2, 3}

	_, err := d.Changed("a", p)
	require.NoError(t, err)
	_, err = d.Changed("b", p)
	require.NoError(t, err)
	assert.Equal(t, 2, d.Len())

	d.Forget("a")
	changed, err := d.Changed("a", p)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = d.Changed("b", p)
	require.NoError(t, err)
	assert.False(t, changed)

	d.Reset()
	assert.Zero(t, d.Len())
	changed, err = d.Changed("b", p)
	require.NoError(t, err)
	assert.True(t, changed)
}

func TestDetector_EncodingError(t *testing.T) {
	d := NewDetector()
	_, err := d.Changed("bad", math.Inf(1))
	require.Error(t, err)
	assert.Zero(t, d.Len())

	_, err = d.Changed("bad", make(chan int))
	assert.Error(t, err)
}

func TestDetector_Concurrent(t *testing.T) {
	d := NewDetector()
	var wg sync.WaitGroup
	var mu sync.Mutex
	changes := 0

	for range 32 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			changed, err := d.Changed("stats", map[string]int{"n": 7})
			assert.NoError(t, err)
			if changed {
				mu.Lock()
				changes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, changes)
}

func TestDigestString(t *testing.T) {
	sum, err := Of(nil)
	require.NoError(t, err)
	assert.Len(t, sum.String(), 64)
}
