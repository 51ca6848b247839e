package location

import (
	"context"

	"trail-go/internal/trail"
)

// StaticProvider reports one fixed position. Watch delivers it once and
// then keeps the stream open until unsubscribed.
type StaticProvider struct {
	pos trail.Position
}

var _ trail.LocationProvider = (*StaticProvider)(nil)

func NewStaticProvider(pos trail.Position) *StaticProvider {
	return &StaticProvider{pos: pos}
}

func (p *StaticProvider) Current(context.Context, trail.WatchOptions) (trail.Position, error) {
	return p.pos, nil
}

func (p *StaticProvider) Watch(ctx context.Context, _ trail.WatchOptions) (<-chan trail.Fix, error) {
	ch := make(chan trail.Fix)
	go func() {
		defer close(ch)
		select {
		case ch <- trail.Fix{Position: p.pos}:
		case <-ctx.Done():
			return
		}
		<-ctx.Done()
	}()
	return ch, nil
}
