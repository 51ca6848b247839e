package location

import (
	"fmt"
	"time"

	"trail-go/internal/config"
	"trail-go/internal/trail"
)

// NewProviderFromConfig creates a LocationProvider based on the config type.
func NewProviderFromConfig(cfg config.LocationConfig) (trail.LocationProvider, error) {
	switch cfg.Type {
	case "replay":
		if cfg.ReplayFile == "" {
			return nil, fmt.Errorf("replay provider requires replay_file to be set")
		}
		p, err := LoadReplayFile(cfg.ReplayFile, time.Duration(cfg.ReplayIntervalMS)*time.Millisecond)
		if err != nil {
			return nil, err
		}
		return p, nil
	case "static":
		return NewStaticProvider(trail.Position{Latitude: cfg.StaticLatitude, Longitude: cfg.StaticLongitude}), nil
	default:
		return nil, fmt.Errorf("unknown location provider type: %s", cfg.Type)
	}
}
