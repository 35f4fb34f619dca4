package domain

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// VerificationStatus tracks the outcome of the rider document review.
type VerificationStatus string

const (
	VerificationPending   VerificationStatus = "pending"
	VerificationApproved  VerificationStatus = "approved"
	VerificationRejected  VerificationStatus = "rejected"
	VerificationSuspended VerificationStatus = "suspended"
)

// Valid reports whether the status is one of the known review outcomes.
func (s VerificationStatus) Valid() bool {
	switch s {
	case VerificationPending, VerificationApproved, VerificationRejected, VerificationSuspended:
		return true
	}
	return false
}

var (
	ErrNotFound           = errors.New("rider not found")
	ErrInvalidCoordinates = errors.New("coordinates out of range")
	ErrStoreUnavailable   = errors.New("rider store unavailable")
)

// GeoPoint is a WGS84 coordinate pair.
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Validate checks the coordinate bounds.
func (p GeoPoint) Validate() error {
	if p.Lat < -90 || p.Lat > 90 || p.Lng < -180 || p.Lng > 180 {
		return ErrInvalidCoordinates
	}
	return nil
}

// Rider is a driver profile. Location is nil until the rider reports a
// position for the first time.
type Rider struct {
	ID                 uuid.UUID
	FirstName          string
	LastName           string
	PhoneNumber        string
	LicenseNumber      string
	VerificationStatus VerificationStatus
	VerificationNotes  string
	Available          bool
	Location           *GeoPoint
	AverageRating      float64
	TotalRides         int64
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Listable reports whether the rider belongs in the availability listing.
// Only approved riders are shown to passengers.
func (r Rider) Listable() bool {
	return r.Available && r.VerificationStatus == VerificationApproved
}

// AvailableRider is the public projection served from the availability
// listing and stored in cache snapshots.
type AvailableRider struct {
	ID                 uuid.UUID          `json:"id"`
	FirstName          string             `json:"first_name"`
	Latitude           *float64           `json:"latitude"`
	Longitude          *float64           `json:"longitude"`
	VerificationStatus VerificationStatus `json:"verification_status"`
	AverageRating      float64            `json:"average_rating"`
	TotalRides         int64              `json:"total_rides"`
}

// Public builds the listing projection for the rider.
func (r Rider) Public() AvailableRider {
	out := AvailableRider{
		ID:                 r.ID,
		FirstName:          r.FirstName,
		VerificationStatus: r.VerificationStatus,
		AverageRating:      r.AverageRating,
		TotalRides:         r.TotalRides,
	}
	if r.Location != nil {
		lat, lng := r.Location.Lat, r.Location.Lng
		out.Latitude = &lat
		out.Longitude = &lng
	}
	return out
}

// ListFilter narrows the availability listing. The zero value means the
// global listing. When Origin is set, only riders within RadiusKM of it are
// returned.
type ListFilter struct {
	Origin   *GeoPoint
	RadiusKM float64
}

// Repository is the durable store for rider records. Implementations return
// ErrNotFound for unknown ids and wrap infrastructure failures with
// ErrStoreUnavailable.
type Repository interface {
	CreateRider(ctx context.Context, rider Rider) (Rider, error)
	GetRiderByID(ctx context.Context, id uuid.UUID) (Rider, error)
	ListAvailable(ctx context.Context) ([]Rider, error)
	UpdateLocation(ctx context.Context, id uuid.UUID, point GeoPoint) (Rider, error)
	SetAvailability(ctx context.Context, id uuid.UUID, available bool) (Rider, error)
	SetVerification(ctx context.Context, id uuid.UUID, status VerificationStatus, notes string) (Rider, error)
}

// RiderEventType labels published rider events.
type RiderEventType string

const (
	EventLocationUpdated     RiderEventType = "rider.location_updated"
	EventAvailabilityChanged RiderEventType = "rider.availability_changed"
	EventVerificationChanged RiderEventType = "rider.verification_changed"
)

// RiderEvent is emitted after a rider mutation commits.
type RiderEvent struct {
	RiderID   uuid.UUID      `json:"rider_id"`
	Type      RiderEventType `json:"type"`
	Payload   map[string]any `json:"payload,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// EventPublisher delivers rider events to interested consumers.
type EventPublisher interface {
	Publish(ctx context.Context, event RiderEvent) error
}

// Clock abstracts time for deterministic tests.
type Clock interface {
	Now() time.Time
}

// SystemClock implements Clock with the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }
