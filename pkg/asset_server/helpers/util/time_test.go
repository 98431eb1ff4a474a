package util

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStampOrderIsLexicographic(t *testing.T) {
	base := time.Date(2026, 3, 1, 9, 59, 59, 999999000, time.UTC)
	later := base.Add(time.Microsecond)

	a := base.Format(StampLayout)
	b := later.Format(StampLayout)
	assert.Less(t, a, b)
	assert.Len(t, a, len(b)) // fixed width, required for string comparison
}
