package observe

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/alanyoungcy/polyarb/internal/domain"
)

type orderObserver struct {
	domain.NopObserver
	name string
	log  *[]string
}

func (o orderObserver) OpportunityDetected(context.Context, domain.Opportunity) {
	*o.log = append(*o.log, o.name+":detected")
}

func (o orderObserver) PositionTransition(context.Context, domain.Position, domain.PositionState) {
	*o.log = append(*o.log, o.name+":transition")
}

func TestMulti_FansOutInOrder(t *testing.T) {
	var log []string
	m := Multi{
		orderObserver{name: "first", log: &log},
		orderObserver{name: "second", log: &log},
	}

	ctx := context.Background()
	m.OpportunityDetected(ctx, domain.Opportunity{})
	m.PositionTransition(ctx, domain.Position{}, domain.PositionOpened)

	assert.Equal(t, []string{
		"first:detected", "second:detected",
		"first:transition", "second:transition",
	}, log)
}
