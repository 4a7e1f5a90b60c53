package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundLimiter(t *testing.T) {
	l := newRoundLimiter(3)

	for i := 1; i <= 3; i++ {
		require.NoError(t, l.Next())
		assert.Equal(t, i, l.Current())
	}

	err := l.Next()
	require.Error(t, err)
	var re *RoundsExceededError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, 3, re.Limit)
	assert.Contains(t, err.Error(), "no fixpoint after 3 rounds (limit 3)")
}

func TestRoundLimiter_DefaultLimit(t *testing.T) {
	for _, n := range []int{0, -1} {
		l := newRoundLimiter(n)
		assert.Equal(t, DefaultMaxRounds, l.max)
	}
}
