package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/pelino250/safeboda/internal/rider/domain"
)

const riderColumns = `id, first_name, last_name, phone_number, license_number,
verification_status, verification_notes, is_available, current_lat, current_lng,
average_rating, total_rides, created_at, updated_at`

// PostgresRepository persists riders in Postgres. Mutations write a matching
// row into the outbox table inside the same transaction so the dispatcher can
// deliver events without dual-write races.
type PostgresRepository struct {
	db      *sql.DB
	subject string
}

// NewPostgresRepository wraps an open connection pool. subject is the outbox
// topic rider events are queued under.
func NewPostgresRepository(db *sql.DB, subject string) *PostgresRepository {
	if subject == "" {
		subject = "rider.events"
	}
	return &PostgresRepository{db: db, subject: subject}
}

// CreateRider inserts a new rider row.
func (p *PostgresRepository) CreateRider(ctx context.Context, rider domain.Rider) (domain.Rider, error) {
	if rider.ID == uuid.Nil {
		rider.ID = uuid.New()
	}
	if rider.VerificationStatus == "" {
		rider.VerificationStatus = domain.VerificationPending
	}
	var lat, lng *float64
	if rider.Location != nil {
		lat, lng = &rider.Location.Lat, &rider.Location.Lng
	}
	row := p.db.QueryRowContext(ctx, `INSERT INTO riders
(id, first_name, last_name, phone_number, license_number, verification_status, verification_notes, is_available, current_lat, current_lng, average_rating, total_rides)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
RETURNING `+riderColumns,
		rider.ID, rider.FirstName, rider.LastName, rider.PhoneNumber, rider.LicenseNumber,
		rider.VerificationStatus, rider.VerificationNotes, rider.Available, lat, lng,
		rider.AverageRating, rider.TotalRides)
	return scanRider(row)
}

// GetRiderByID fetches a single rider.
func (p *PostgresRepository) GetRiderByID(ctx context.Context, id uuid.UUID) (domain.Rider, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+riderColumns+` FROM riders WHERE id = $1`, id)
	return scanRider(row)
}

// ListAvailable returns approved available riders in id order. The single
// SELECT runs against one MVCC snapshot, so the result has no gaps or dupes.
func (p *PostgresRepository) ListAvailable(ctx context.Context) ([]domain.Rider, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT `+riderColumns+`
FROM riders WHERE is_available = true AND verification_status = $1 ORDER BY id`,
		domain.VerificationApproved)
	if err != nil {
		return nil, storeErr("list available", err)
	}
	defer rows.Close()
	var out []domain.Rider
	for rows.Next() {
		rider, err := scanRider(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rider)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("iterate riders", err)
	}
	return out, nil
}

// UpdateLocation persists the new coordinates and queues the event, both in
// one transaction. The commit happens here, strictly before any cache
// invalidation the caller performs.
func (p *PostgresRepository) UpdateLocation(ctx context.Context, id uuid.UUID, point domain.GeoPoint) (domain.Rider, error) {
	return p.mutate(ctx, domain.RiderEvent{
		RiderID: id,
		Type:    domain.EventLocationUpdated,
		Payload: map[string]any{"lat": point.Lat, "lng": point.Lng},
	}, `UPDATE riders SET current_lat = $2, current_lng = $3, updated_at = now()
WHERE id = $1 RETURNING `+riderColumns, id, point.Lat, point.Lng)
}

// SetAvailability flips the availability flag.
func (p *PostgresRepository) SetAvailability(ctx context.Context, id uuid.UUID, available bool) (domain.Rider, error) {
	return p.mutate(ctx, domain.RiderEvent{
		RiderID: id,
		Type:    domain.EventAvailabilityChanged,
		Payload: map[string]any{"available": available},
	}, `UPDATE riders SET is_available = $2, updated_at = now()
WHERE id = $1 RETURNING `+riderColumns, id, available)
}

// SetVerification records the review outcome.
func (p *PostgresRepository) SetVerification(ctx context.Context, id uuid.UUID, status domain.VerificationStatus, notes string) (domain.Rider, error) {
	return p.mutate(ctx, domain.RiderEvent{
		RiderID: id,
		Type:    domain.EventVerificationChanged,
		Payload: map[string]any{"status": string(status)},
	}, `UPDATE riders SET verification_status = $2, verification_notes = $3, updated_at = now()
WHERE id = $1 RETURNING `+riderColumns, id, status, notes)
}

func (p *PostgresRepository) mutate(ctx context.Context, event domain.RiderEvent, query string, args ...any) (domain.Rider, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Rider{}, storeErr("begin tx", err)
	}
	defer tx.Rollback() //nolint:errcheck

	rider, err := scanRider(tx.QueryRowContext(ctx, query, args...))
	if err != nil {
		return domain.Rider{}, err
	}

	event.CreatedAt = time.Now().UTC()
	payload, err := json.Marshal(event)
	if err != nil {
		return domain.Rider{}, fmt.Errorf("encode event: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO outbox (topic, payload, published) VALUES ($1, $2, false)`,
		p.subject, payload); err != nil {
		return domain.Rider{}, storeErr("queue event", err)
	}

	if err := tx.Commit(); err != nil {
		return domain.Rider{}, storeErr("commit", err)
	}
	return rider, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRider(row rowScanner) (domain.Rider, error) {
	var rider domain.Rider
	var lat, lng sql.NullFloat64
	err := row.Scan(&rider.ID, &rider.FirstName, &rider.LastName, &rider.PhoneNumber,
		&rider.LicenseNumber, &rider.VerificationStatus, &rider.VerificationNotes,
		&rider.Available, &lat, &lng, &rider.AverageRating, &rider.TotalRides,
		&rider.CreatedAt, &rider.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Rider{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Rider{}, storeErr("scan rider", err)
	}
	if lat.Valid && lng.Valid {
		rider.Location = &domain.GeoPoint{Lat: lat.Float64, Lng: lng.Float64}
	}
	return rider, nil
}

func storeErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, domain.ErrStoreUnavailable, err)
}
