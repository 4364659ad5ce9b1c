package arena

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name     string
		capacity int
		wantErr  bool
	}{
		{"valid", 4096, false},
		{"zero", 0, true},
		{"negative", -8, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := New(tt.capacity)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.capacity, a.Cap())
			assert.Equal(t, 0, len(a.Bytes()))
		})
	}
}

func TestExtendGrowsMonotonically(t *testing.T) {
	a, err := New(64)
	require.NoError(t, err)

	base := a.Base()
	old, err := a.Extend(16)
	require.NoError(t, err)
	assert.Equal(t, base, old)
	assert.Equal(t, base+16, a.End())
	assert.Equal(t, 16, len(a.Bytes()))

	old2, err := a.Extend(16)
	require.NoError(t, err)
	assert.Equal(t, base+16, old2)
	assert.Equal(t, base+32, a.End())
}

func TestExtendRejectsBadSizes(t *testing.T) {
	a, err := New(64)
	require.NoError(t, err)

	_, err = a.Extend(0)
	assert.Error(t, err)

	_, err = a.Extend(3)
	assert.Error(t, err)
}

func TestExtendExhausted(t *testing.T) {
	a, err := New(16)
	require.NoError(t, err)

	_, err = a.Extend(16)
	require.NoError(t, err)

	_, err = a.Extend(8)
	assert.ErrorIs(t, err, ErrExhausted)
}

func TestResetReturnsToEmpty(t *testing.T) {
	a, err := New(32)
	require.NoError(t, err)

	_, err = a.Extend(16)
	require.NoError(t, err)
	assert.Equal(t, 16, len(a.Bytes()))

	a.Reset()
	assert.Equal(t, 0, len(a.Bytes()))
	assert.Equal(t, 32, a.Cap())
}

func TestBackingNeverMoves(t *testing.T) {
	a, err := New(64)
	require.NoError(t, err)

	_, err = a.Extend(16)
	require.NoError(t, err)
	p1 := a.Base()

	_, err = a.Extend(16)
	require.NoError(t, err)
	p2 := a.Base()

	assert.Equal(t, p1, p2, "base address must stay stable as the arena grows")
}
