package errors

import (
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnhancedErrorBasics(t *testing.T) {
	t.Parallel()

	base := stderrors.New("device init failed")
	ee := New(base).
		Component("audio").
		Category(CategoryAudioDevice).
		Context("device", "default").
		Build()

	assert.Equal(t, "device init failed", ee.Error())
	assert.Equal(t, "audio", ee.GetComponent())
	assert.Equal(t, string(CategoryAudioDevice), ee.GetCategory())
	assert.True(t, Is(ee, base), "enhanced error should unwrap to base error")
	assert.False(t, ee.GetTimestamp().IsZero())
}

func TestBuildDefaults(t *testing.T) {
	t.Parallel()

	ee := Newf("frame size mismatch: got %d", 100).Build()

	assert.Equal(t, CategoryGeneric, ee.Category)
	assert.Equal(t, ComponentUnknown, ee.GetComponent())
	assert.Nil(t, ee.GetContext())
}

func TestContextIsCopied(t *testing.T) {
	t.Parallel()

	ee := New(stderrors.New("boom")).Context("stage", "stt").Build()

	ctx := ee.GetContext()
	require.NotNil(t, ctx)
	ctx["stage"] = "mutated"

	assert.Equal(t, "stt", ee.GetContext()["stage"])
}

func TestIsMatchesByCategory(t *testing.T) {
	t.Parallel()

	a := New(stderrors.New("a")).Category(CategoryBuffer).Build()
	b := New(stderrors.New("b")).Category(CategoryBuffer).Build()
	c := New(stderrors.New("c")).Category(CategoryTimeout).Build()

	assert.True(t, stderrors.Is(a, b))
	assert.False(t, stderrors.Is(a, c))
}

func TestTimingContext(t *testing.T) {
	t.Parallel()

	ee := New(stderrors.New("slow")).Timing("warmup", 1500000000).Build()

	ctx := ee.GetContext()
	assert.Equal(t, "warmup", ctx["operation"])
	assert.Equal(t, int64(1500), ctx["duration_ms"])
}
