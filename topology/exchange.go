package topology

import (
	"context"
	"fmt"
	"reflect"

	cbus "github.com/next-trace/scg-future-publish/contract/bus"
	"github.com/next-trace/scg-future-publish/conventions"
)

// PublishExchangeDeclareStrategy resolves, declaring if needed, the exchange that subscribers of a
// message type are bound to.
type PublishExchangeDeclareStrategy interface {
	DeclareExchange(ctx context.Context, d cbus.TopologyDeclarer, t reflect.Type, kind string) (cbus.Exchange, error)
}

// DeclareStrategy names the exchange through the exchange naming convention and declares it on
// every call; declares are idempotent on the broker side.
type DeclareStrategy struct {
	conventions *conventions.Conventions
}

var _ PublishExchangeDeclareStrategy = (*DeclareStrategy)(nil)

func NewDeclareStrategy(c *conventions.Conventions) *DeclareStrategy {
	return &DeclareStrategy{conventions: c}
}

func (s *DeclareStrategy) DeclareExchange(
	ctx context.Context,
	d cbus.TopologyDeclarer,
	t reflect.Type,
	kind string,
) (cbus.Exchange, error) {
	name := s.conventions.ExchangeName(t)

	ex, err := d.ExchangeDeclare(ctx, name, kind)
	if err != nil {
		return cbus.Exchange{}, fmt.Errorf("declare publish exchange %q: %w", name, err)
	}

	return ex, nil
}
