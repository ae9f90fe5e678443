package orders

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// NumberGenerator produces human-facing order numbers. Uniqueness is finally
// enforced by the orders_order_number_key constraint; a collision makes the
// factory retry with a fresh number.
type NumberGenerator interface {
	Next() string
}

// DatedNumberGenerator yields numbers of the form ORD-YYYYMMDD-XXXXXXXX where
// the suffix is eight upper-case hex characters taken from a random UUID.
type DatedNumberGenerator struct {
	now func() time.Time
}

func NewDatedNumberGenerator() *DatedNumberGenerator {
	return &DatedNumberGenerator{now: time.Now}
}

func (g *DatedNumberGenerator) Next() string {
	suffix := strings.ToUpper(uuid.NewString()[:8])
	return "ORD-" + g.now().UTC().Format("20060102") + "-" + suffix
}
