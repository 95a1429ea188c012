// Package location resolves a best-effort user location for crisis
// alerts. Lookup failure of any kind collapses to a fixed fallback.
package location

import (
	"context"

	"github.com/rogercare/roger-go/internal/models"
)

// Fallback is the location attached to alerts when no lookup succeeds.
var Fallback = models.LocationInfo{
	City:        "unknown",
	Region:      "unknown",
	Coordinates: "",
}

// Resolver looks up a session's location.
type Resolver interface {
	Resolve(ctx context.Context, sessionID string) (models.LocationInfo, error)
}

// StaticResolver always returns a fixed location. The default resolver
// returns the fallback; deployments with a real geolocation collaborator
// supply their own Resolver.
type StaticResolver struct {
	Location models.LocationInfo
}

// NewStaticResolver creates a resolver pinned to the given location.
func NewStaticResolver(loc models.LocationInfo) *StaticResolver {
	return &StaticResolver{Location: loc}
}

// Resolve returns the pinned location.
func (r *StaticResolver) Resolve(_ context.Context, _ string) (models.LocationInfo, error) {
	return r.Location, nil
}

// BestEffort runs a resolver and substitutes the fallback on any error
// or nil resolver.
func BestEffort(ctx context.Context, r Resolver, sessionID string) models.LocationInfo {
	if r == nil {
		return Fallback
	}
	loc, err := r.Resolve(ctx, sessionID)
	if err != nil {
		return Fallback
	}
	return loc
}
