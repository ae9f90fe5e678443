package orders

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDatedNumberGenerator_Next(t *testing.T) {
	tokyo := time.FixedZone("JST", 9*60*60)
	g := &DatedNumberGenerator{now: func() time.Time {
		return time.Date(2026, 10, 19, 8, 0, 0, 0, tokyo)
	}}

	first, second := g.Next(), g.Next()

	assert.Regexp(t, `^ORD-20261018-[0-9A-F]{8}$`, first, "date is taken in UTC")
	assert.NotEqual(t, first, second)
}
