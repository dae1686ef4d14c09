package lifecycle

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrderNumberGenerator_Format(t *testing.T) {
	g := &OrderNumberGenerator{
		process: processDiscriminator("pharmacy-1", 42),
		now:     func() time.Time { return time.UnixMilli(1700000000123) },
	}

	number := g.Next()

	parts := strings.Split(number, "-")
	require.Len(t, parts, 4)
	assert.Equal(t, "ORD", parts[0])
	assert.Equal(t, "1700000000123", parts[1])
	assert.Len(t, parts[2], 9)
	assert.Equal(t, strings.ToUpper(processDiscriminator("pharmacy-1", 42)), parts[3])
}

func TestOrderNumberGenerator_UniqueWithinSameMillisecond(t *testing.T) {
	g := &OrderNumberGenerator{
		process: processDiscriminator("host", 1),
		now:     func() time.Time { return time.UnixMilli(1) },
	}

	seen := make(map[string]struct{}, 1000)
	for i := 0; i < 1000; i++ {
		n := g.Next()
		_, dup := seen[n]
		require.False(t, dup, "duplicate %s", n)
		seen[n] = struct{}{}
	}
}

func TestProcessDiscriminator_DiffersAcrossProcesses(t *testing.T) {
	assert.NotEqual(t, processDiscriminator("host", 1), processDiscriminator("host", 2))
	assert.NotEqual(t, processDiscriminator("a", 1), processDiscriminator("b", 1))
}
