package passenger

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound indicates a missing passenger profile.
var ErrNotFound = errors.New("passenger profile not found")

// ErrExists indicates the account already has a profile.
var ErrExists = errors.New("passenger profile already exists")

// Passenger holds the rider-facing profile of a passenger account.
type Passenger struct {
	ID                     uuid.UUID `json:"id"`
	AccountID              uuid.UUID `json:"account_id"`
	PreferredPaymentMethod string    `json:"preferred_payment_method"`
	HomeAddress            string    `json:"home_address"`
	PreferredLanguage      string    `json:"preferred_language"`
	EmergencyContact       string    `json:"emergency_contact"`
	Verified               bool      `json:"is_verified"`
	CreatedAt              time.Time `json:"created_at"`
	UpdatedAt              time.Time `json:"updated_at"`
}

// MemoryRepository stores passenger profiles in memory, one per account.
type MemoryRepository struct {
	mu        sync.RWMutex
	byID      map[uuid.UUID]Passenger
	byAccount map[uuid.UUID]uuid.UUID
}

// NewMemoryRepository constructs an empty repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		byID:      make(map[uuid.UUID]Passenger),
		byAccount: make(map[uuid.UUID]uuid.UUID),
	}
}

// Create stores a new profile for the account.
func (m *MemoryRepository) Create(_ context.Context, p Passenger) (Passenger, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.byAccount[p.AccountID]; exists {
		return Passenger{}, ErrExists
	}
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now
	m.byID[p.ID] = p
	m.byAccount[p.AccountID] = p.ID
	return p, nil
}

// GetByAccount fetches the profile owned by the account.
func (m *MemoryRepository) GetByAccount(_ context.Context, accountID uuid.UUID) (Passenger, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byAccount[accountID]
	if !ok {
		return Passenger{}, ErrNotFound
	}
	return m.byID[id], nil
}

// Update replaces mutable profile fields.
func (m *MemoryRepository) Update(_ context.Context, p Passenger) (Passenger, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.byID[p.ID]
	if !ok {
		return Passenger{}, ErrNotFound
	}
	existing.PreferredPaymentMethod = p.PreferredPaymentMethod
	existing.HomeAddress = p.HomeAddress
	existing.PreferredLanguage = p.PreferredLanguage
	existing.EmergencyContact = p.EmergencyContact
	existing.UpdatedAt = time.Now().UTC()
	m.byID[p.ID] = existing
	return existing, nil
}
