package memory

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRetentionFactorStrictlyDecreasing(t *testing.T) {
	prev := RetentionFactor(0, 0.8, 3)
	assert.Equal(t, 1.0, prev)

	for hours := 1.0; hours <= 200; hours += 1.0 {
		cur := RetentionFactor(hours, 0.8, 3)
		assert.Less(t, cur, prev, "hours=%v", hours)
		prev = cur
	}
}

func TestRetentionFactorSlowedByImportanceAndAccess(t *testing.T) {
	// Higher importance decays slower.
	assert.Greater(t,
		RetentionFactor(24, 0.9, 1),
		RetentionFactor(24, 0.3, 1),
	)

	// More accesses decay slower.
	assert.Greater(t,
		RetentionFactor(24, 0.5, 10),
		RetentionFactor(24, 0.5, 1),
	)
}

func TestRetentionFactorBounds(t *testing.T) {
	assert.Equal(t, 1.0, RetentionFactor(-5, 0.5, 1))
	assert.Equal(t, 0.0, RetentionFactor(10, 0, 1))
	assert.Equal(t, 1.0, RetentionFactor(0, 0, 1))

	v := RetentionFactor(100000, 0.9, 50)
	assert.GreaterOrEqual(t, v, 0.0)
	assert.LessOrEqual(t, v, 1.0)
}
