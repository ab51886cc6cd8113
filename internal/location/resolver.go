// Package location resolves the device's best-effort last known position.
package location

import (
	"context"
	"errors"
	"sort"

	"go.uber.org/zap"

	"github.com/i474232898/local-weather/internal/weather"
)

// ErrPermissionDenied is returned by a Source when the host did not grant
// access to the position it provides.
var ErrPermissionDenied = errors.New("location permission denied")

// Source is a single positioning capability.
type Source interface {
	Kind() weather.LocationSource
	// LastKnown returns the most recent fix. ok is false when the source has
	// no fix yet.
	LastKnown(ctx context.Context) (fix weather.Fix, ok bool, err error)
}

// Permissions mirrors the host's location grants.
type Permissions struct {
	Fine   bool
	Coarse bool
}

func (p Permissions) allows(kind weather.LocationSource) bool {
	switch kind {
	case weather.LocationGPS:
		return p.Fine
	case weather.LocationNetwork:
		return p.Fine || p.Coarse
	default:
		return true
	}
}

// Resolver picks the best available fix: GPS first, then network, then any
// other source. Stale fixes are returned as they are.
type Resolver struct {
	sources     []Source
	permissions Permissions
	logger      *zap.Logger
	onMissing   func()
}

// NewResolver orders sources by preference. Sources of equal kind keep
// their registration order.
func NewResolver(perms Permissions, logger *zap.Logger, sources ...Source) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	ordered := make([]Source, 0, len(sources))
	for _, s := range sources {
		if s != nil {
			ordered = append(ordered, s)
		}
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Kind().Rank() < ordered[j].Kind().Rank()
	})
	return &Resolver{
		sources:     ordered,
		permissions: perms,
		logger:      logger.Named("location"),
	}
}

// OnMissingCapability registers a callback run whenever a lookup finds no
// positioning source at all.
func (r *Resolver) OnMissingCapability(fn func()) {
	r.onMissing = fn
}

// LastKnownLocation implements weather.LocationResolver.
func (r *Resolver) LastKnownLocation(ctx context.Context) (weather.Fix, bool) {
	if len(r.sources) == 0 {
		r.logger.Error("cannot get location without a positioning source")
		if r.onMissing != nil {
			r.onMissing()
		}
		return weather.Fix{}, false
	}

	for _, src := range r.sources {
		kind := src.Kind()
		if !r.permissions.allows(kind) {
			r.logger.Error("failed to get location",
				zap.String("source", string(kind)),
				zap.Error(ErrPermissionDenied))
			return weather.Fix{}, false
		}

		fix, ok, err := src.LastKnown(ctx)
		if errors.Is(err, ErrPermissionDenied) {
			r.logger.Error("failed to get location", zap.String("source", string(kind)), zap.Error(err))
			return weather.Fix{}, false
		}
		if err != nil {
			r.logger.Warn("positioning source failed", zap.String("source", string(kind)), zap.Error(err))
			continue
		}
		if !ok {
			continue
		}

		fix.Source = kind
		return fix, true
	}

	return weather.Fix{}, false
}
