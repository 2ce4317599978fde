package value_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boonlang/boon-core/internal/value"
)

func TestNumberEqualNaN(t *testing.T) {
	nan := value.Number(math.NaN())
	assert.True(t, nan.Equal(nan), "NaN must equal itself per spec §4.L")
	assert.False(t, value.Number(1).Equal(value.Number(2)))
}

func TestNumberString(t *testing.T) {
	assert.Equal(t, "3", value.Number(3).String())
	assert.Equal(t, "3.5", value.Number(3.5).String())
}

func TestRecordEqualIsRecursiveAndOrderless(t *testing.T) {
	a := value.NewRecordFrom(map[string]value.Value{
		"x": value.Number(1),
		"y": value.Text("hi"),
	})
	b := value.NewRecordFrom(map[string]value.Value{
		"y": value.Text("hi"),
		"x": value.Number(1),
	})
	assert.True(t, a.Equal(b))

	c := a.Set("x", value.Number(2))
	assert.False(t, a.Equal(c))
	assert.Equal(t, value.Number(1), mustGet(t, a, "x"))
}

func mustGet(t *testing.T, r *value.Record, field string) value.Value {
	t.Helper()
	v, ok := r.Get(field)
	require.True(t, ok)
	return v
}

func TestListEqualityIsItemKeyWise(t *testing.T) {
	a := value.NewList(
		value.Item{Key: 1, Value: value.Number(1)},
		value.Item{Key: 2, Value: value.Number(2)},
	)
	reordered := value.NewList(
		value.Item{Key: 2, Value: value.Number(2)},
		value.Item{Key: 1, Value: value.Number(1)},
	)
	// Same keys and values, different order: NOT equal. A reorder must be
	// distinguishable from a no-op (spec §4.L).
	assert.False(t, a.Equal(reordered))

	same := value.NewList(
		value.Item{Key: 1, Value: value.Number(1)},
		value.Item{Key: 2, Value: value.Number(2)},
	)
	assert.True(t, a.Equal(same))

	differentKeySameValues := value.NewList(
		value.Item{Key: 3, Value: value.Number(1)},
		value.Item{Key: 4, Value: value.Number(2)},
	)
	assert.False(t, a.Equal(differentKeySameValues))
}

func TestSkipAndFlushSentinels(t *testing.T) {
	assert.True(t, value.IsSkip(value.Skip))
	assert.False(t, value.IsSkip(value.Number(0)))

	f1 := value.Flush{Payload: value.Text("boom")}
	f2 := value.Flush{Payload: value.Text("boom")}
	assert.True(t, value.IsFlush(f1))
	assert.True(t, f1.Equal(f2))

	bare := value.Flush{}
	assert.False(t, bare.Equal(f1))
}

func TestTagWithPayload(t *testing.T) {
	a := value.NewTag("ok", value.Number(1))
	b := value.NewTag("ok", value.Number(1))
	c := value.NewTag("ok", value.Number(2))
	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))

	bare := value.NewTag("ok", nil)
	assert.Equal(t, "#ok", bare.String())
}

func TestErrorValuePropagatesLikeFlush(t *testing.T) {
	e := value.NewError("type_mismatch", "expected Number")
	assert.Equal(t, value.KindFlush, e.Kind())
	assert.True(t, value.IsError(e))
}
