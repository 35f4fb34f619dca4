package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pelino250/safeboda/internal/rider/domain"
)

// MemoryRepository provides an in-memory rider store suitable for tests and
// local demos.
type MemoryRepository struct {
	mu     sync.RWMutex
	riders map[uuid.UUID]domain.Rider
}

// NewMemoryRepository constructs an empty memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{riders: make(map[uuid.UUID]domain.Rider)}
}

// CreateRider stores the rider and returns it.
func (m *MemoryRepository) CreateRider(_ context.Context, rider domain.Rider) (domain.Rider, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rider.ID == uuid.Nil {
		rider.ID = uuid.New()
	}
	now := time.Now().UTC()
	if rider.CreatedAt.IsZero() {
		rider.CreatedAt = now
	}
	rider.UpdatedAt = now
	if rider.VerificationStatus == "" {
		rider.VerificationStatus = domain.VerificationPending
	}
	m.riders[rider.ID] = rider
	return rider, nil
}

// GetRiderByID retrieves a rider.
func (m *MemoryRepository) GetRiderByID(_ context.Context, id uuid.UUID) (domain.Rider, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rider, ok := m.riders[id]
	if !ok {
		return domain.Rider{}, domain.ErrNotFound
	}
	return rider, nil
}

// ListAvailable returns listable riders sorted by id so a single query sees a
// stable snapshot.
func (m *MemoryRepository) ListAvailable(_ context.Context) ([]domain.Rider, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.Rider, 0, len(m.riders))
	for _, rider := range m.riders {
		if rider.Listable() {
			out = append(out, rider)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out, nil
}

// UpdateLocation persists a new coordinate pair.
func (m *MemoryRepository) UpdateLocation(_ context.Context, id uuid.UUID, point domain.GeoPoint) (domain.Rider, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rider, ok := m.riders[id]
	if !ok {
		return domain.Rider{}, domain.ErrNotFound
	}
	loc := point
	rider.Location = &loc
	rider.UpdatedAt = time.Now().UTC()
	m.riders[id] = rider
	return rider, nil
}

// SetAvailability flips the availability flag.
func (m *MemoryRepository) SetAvailability(_ context.Context, id uuid.UUID, available bool) (domain.Rider, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rider, ok := m.riders[id]
	if !ok {
		return domain.Rider{}, domain.ErrNotFound
	}
	rider.Available = available
	rider.UpdatedAt = time.Now().UTC()
	m.riders[id] = rider
	return rider, nil
}

// SetVerification records the review outcome.
func (m *MemoryRepository) SetVerification(_ context.Context, id uuid.UUID, status domain.VerificationStatus, notes string) (domain.Rider, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rider, ok := m.riders[id]
	if !ok {
		return domain.Rider{}, domain.ErrNotFound
	}
	rider.VerificationStatus = status
	rider.VerificationNotes = notes
	rider.UpdatedAt = time.Now().UTC()
	m.riders[id] = rider
	return rider, nil
}
