package service

import (
	"context"
	"fmt"
	"math"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pelino250/safeboda/internal/rider/cache"
	"github.com/pelino250/safeboda/internal/rider/domain"
)

// Directory owns rider records and serves the availability listing through
// the snapshot cache. It is the sole writer of rider state; the cache only
// mirrors query results.
type Directory struct {
	repo   domain.Repository
	cache  *cache.AvailabilityCache
	events domain.EventPublisher
	clock  domain.Clock
	logger *zap.Logger
}

// NewDirectory constructs the Directory with its collaborators. events may be
// nil when no broker is configured.
func NewDirectory(repo domain.Repository, snapshots *cache.AvailabilityCache, events domain.EventPublisher, clock domain.Clock, logger *zap.Logger) *Directory {
	if clock == nil {
		clock = domain.SystemClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Directory{repo: repo, cache: snapshots, events: events, clock: clock, logger: logger}
}

// ListAvailable serves the availability listing. The read path is
// cache-aside: a hit answers without touching the durable store; a miss
// queries the store, fills the cache and returns the fresh snapshot. Cache
// failures degrade to pass-through, never to request failures.
func (d *Directory) ListAvailable(ctx context.Context, filter domain.ListFilter) ([]domain.AvailableRider, error) {
	key := cache.FilterKey(filter)
	if snapshot, ok := d.cache.Lookup(ctx, key); ok {
		return snapshot, nil
	}

	riders, err := d.repo.ListAvailable(ctx)
	if err != nil {
		return nil, fmt.Errorf("list available riders: %w", err)
	}

	snapshot := make([]domain.AvailableRider, 0, len(riders))
	for _, rider := range riders {
		if !matchesFilter(rider, filter) {
			continue
		}
		snapshot = append(snapshot, rider.Public())
	}

	d.cache.Fill(ctx, key, snapshot)
	return snapshot, nil
}

// UpdateLocation validates and persists a rider's position. The durable
// commit is ordered strictly before the cache invalidation so a concurrent
// read can never repopulate the cache with pre-commit data.
func (d *Directory) UpdateLocation(ctx context.Context, riderID uuid.UUID, point domain.GeoPoint) (domain.Rider, error) {
	if err := point.Validate(); err != nil {
		return domain.Rider{}, err
	}

	rider, err := d.repo.UpdateLocation(ctx, riderID, point)
	if err != nil {
		return domain.Rider{}, err
	}

	d.cache.Invalidate(ctx)
	d.publish(ctx, domain.RiderEvent{
		RiderID:   riderID,
		Type:      domain.EventLocationUpdated,
		Payload:   map[string]any{"lat": point.Lat, "lng": point.Lng},
		CreatedAt: d.clock.Now(),
	})
	return rider, nil
}

// SetAvailability toggles whether the rider appears in the listing.
func (d *Directory) SetAvailability(ctx context.Context, riderID uuid.UUID, available bool) (domain.Rider, error) {
	rider, err := d.repo.SetAvailability(ctx, riderID, available)
	if err != nil {
		return domain.Rider{}, err
	}

	d.cache.Invalidate(ctx)
	d.publish(ctx, domain.RiderEvent{
		RiderID:   riderID,
		Type:      domain.EventAvailabilityChanged,
		Payload:   map[string]any{"available": available},
		CreatedAt: d.clock.Now(),
	})
	return rider, nil
}

// SetVerification records a staff review outcome. An approval or suspension
// changes listing membership, so it invalidates like any other mutation.
func (d *Directory) SetVerification(ctx context.Context, riderID uuid.UUID, status domain.VerificationStatus, notes string) (domain.Rider, error) {
	if !status.Valid() {
		return domain.Rider{}, fmt.Errorf("unknown verification status %q", status)
	}

	rider, err := d.repo.SetVerification(ctx, riderID, status, notes)
	if err != nil {
		return domain.Rider{}, err
	}

	d.cache.Invalidate(ctx)
	d.publish(ctx, domain.RiderEvent{
		RiderID:   riderID,
		Type:      domain.EventVerificationChanged,
		Payload:   map[string]any{"status": string(status)},
		CreatedAt: d.clock.Now(),
	})
	return rider, nil
}

// Register creates a new rider profile.
func (d *Directory) Register(ctx context.Context, rider domain.Rider) (domain.Rider, error) {
	if rider.Location != nil {
		if err := rider.Location.Validate(); err != nil {
			return domain.Rider{}, err
		}
	}
	return d.repo.CreateRider(ctx, rider)
}

// GetRider fetches a rider by id.
func (d *Directory) GetRider(ctx context.Context, riderID uuid.UUID) (domain.Rider, error) {
	return d.repo.GetRiderByID(ctx, riderID)
}

// publish delivers best-effort; event loss never fails a committed mutation.
func (d *Directory) publish(ctx context.Context, event domain.RiderEvent) {
	if d.events == nil {
		return
	}
	if err := d.events.Publish(ctx, event); err != nil {
		d.logger.Warn("rider event publish failed",
			zap.String("type", string(event.Type)),
			zap.String("rider_id", event.RiderID.String()),
			zap.Error(err))
	}
}

func matchesFilter(rider domain.Rider, filter domain.ListFilter) bool {
	if filter.Origin == nil || filter.RadiusKM <= 0 {
		return true
	}
	if rider.Location == nil {
		return false
	}
	return haversineKM(*filter.Origin, *rider.Location) <= filter.RadiusKM
}

func haversineKM(a, b domain.GeoPoint) float64 {
	const earthRadiusKM = 6371.0
	lat1 := toRadians(a.Lat)
	lat2 := toRadians(b.Lat)
	dlat := toRadians(b.Lat - a.Lat)
	dlon := toRadians(b.Lng - a.Lng)

	sinDlat := math.Sin(dlat / 2)
	sinDlon := math.Sin(dlon / 2)
	h := sinDlat*sinDlat + math.Cos(lat1)*math.Cos(lat2)*sinDlon*sinDlon
	return earthRadiusKM * 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180.0
}
