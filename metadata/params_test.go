package metadata

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xapiens/rvpf/value"
)

func mustDecimal(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	require.NoError(t, err)
	return d
}

func TestParamsGetString(t *testing.T) {
	p := NewParams(map[string][]value.Value{"name": {value.NewString("gauge-1")}})
	s, ok := p.GetString("name")
	assert.True(t, ok)
	assert.Equal(t, "gauge-1", s)

	_, ok = p.GetString("missing")
	assert.False(t, ok)
}

func TestParamsGetAllPreservesOrder(t *testing.T) {
	p := NewParams(map[string][]value.Value{
		"tag": {value.NewString("a"), value.NewString("b"), value.NewString("c")},
	})
	all := p.GetAll("tag")
	assert.Equal(t, []string{"a", "b", "c"}, mustStrings(t, all))
}

// TestParamsGetInt64StringFallback covers metadata loaded from TOML, where
// every scalar arrives as a String value (see metadata/load.go's
// paramsFromFile): GetInt64 must still recognize a numeric-looking string.
func TestParamsGetInt64StringFallback(t *testing.T) {
	p := NewParams(map[string][]value.Value{
		"count":     {value.NewString("42")},
		"native":    {value.NewInt64(7)},
		"not_a_num": {value.NewString("abc")},
	})

	n, ok := p.GetInt64("count")
	assert.True(t, ok)
	assert.Equal(t, int64(42), n)

	n, ok = p.GetInt64("native")
	assert.True(t, ok)
	assert.Equal(t, int64(7), n)

	_, ok = p.GetInt64("not_a_num")
	assert.False(t, ok)

	_, ok = p.GetInt64("missing")
	assert.False(t, ok)
}

// TestParamsGetFloat64StringFallback is the float64 counterpart used by
// processor/behavior.go's filter parameter wiring (step_size, gaps, ratios).
func TestParamsGetFloat64StringFallback(t *testing.T) {
	p := NewParams(map[string][]value.Value{
		"gap":       {value.NewString("0.75")},
		"native":    {value.NewDouble(1.5)},
		"dec":       {value.NewDecimal(mustDecimal(t, "2.25"))},
		"not_a_num": {value.NewString("nope")},
	})

	f, ok := p.GetFloat64("gap")
	assert.True(t, ok)
	assert.Equal(t, 0.75, f)

	f, ok = p.GetFloat64("native")
	assert.True(t, ok)
	assert.Equal(t, 1.5, f)

	f, ok = p.GetFloat64("dec")
	assert.True(t, ok)
	assert.Equal(t, 2.25, f)

	_, ok = p.GetFloat64("not_a_num")
	assert.False(t, ok)
}

func TestParamsGetBool(t *testing.T) {
	p := NewParams(map[string][]value.Value{"enabled": {value.NewBool(true)}})
	b, ok := p.GetBool("enabled")
	assert.True(t, ok)
	assert.True(t, b)
}

func mustStrings(t *testing.T, vs []value.Value) []string {
	t.Helper()
	out := make([]string, len(vs))
	for i, v := range vs {
		s, ok := v.StringValue()
		assert.True(t, ok)
		out[i] = s
	}
	return out
}
