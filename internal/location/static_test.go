package location

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trail-go/internal/config"
	"trail-go/internal/trail"
)

func TestStaticProvider(t *testing.T) {
	pos := trail.Position{Latitude: 48.8584, Longitude: 2.2945}
	p := NewStaticProvider(pos)

	cur, err := p.Current(context.Background(), trail.WatchOptions{})
	require.NoError(t, err)
	assert.Equal(t, pos, cur)

	ctx, cancel := context.WithCancel(context.Background())
	ch, err := p.Watch(ctx, trail.WatchOptions{})
	require.NoError(t, err)

	select {
	case fix := <-ch:
		assert.Equal(t, pos, fix.Position)
	case <-time.After(time.Second):
		t.Fatal("no fix delivered")
	}

	cancel()
	select {
	case _, ok := <-ch:
		assert.False(t, ok, "stream should close on unsubscribe")
	case <-time.After(time.Second):
		t.Fatal("stream not closed after cancel")
	}
}

func TestNewProviderFromConfig(t *testing.T) {
	p, err := NewProviderFromConfig(config.LocationConfig{Type: "static", StaticLatitude: 1, StaticLongitude: 2})
	require.NoError(t, err)
	assert.IsType(t, &StaticProvider{}, p)

	_, err = NewProviderFromConfig(config.LocationConfig{Type: "replay"})
	assert.Error(t, err)

	_, err = NewProviderFromConfig(config.LocationConfig{Type: "gps"})
	assert.Error(t, err)
}
