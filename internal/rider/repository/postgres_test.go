package repository_test

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/pelino250/safeboda/internal/rider/domain"
	"github.com/pelino250/safeboda/internal/rider/repository"
)

// stubConn is a minimal database/sql driver serving a canned rider row and
// recording outbox inserts, enough to exercise the transactional write path
// without a server.
type stubConn struct {
	riderRow []driver.Value
	outbox   [][]byte
}

type stubConnector struct{ conn *stubConn }

func (c stubConnector) Connect(context.Context) (driver.Conn, error) { return c.conn, nil }
func (c stubConnector) Driver() driver.Driver                        { return stubDriver{} }

type stubDriver struct{}

func (stubDriver) Open(string) (driver.Conn, error) { return nil, errors.New("use OpenDB") }

func (c *stubConn) Prepare(string) (driver.Stmt, error) { return nil, errors.New("not supported") }
func (c *stubConn) Close() error                        { return nil }
func (c *stubConn) Begin() (driver.Tx, error)           { return stubTx{}, nil }

func (c *stubConn) BeginTx(context.Context, driver.TxOptions) (driver.Tx, error) {
	return stubTx{}, nil
}

func (c *stubConn) QueryContext(_ context.Context, _ string, _ []driver.NamedValue) (driver.Rows, error) {
	return &stubRows{row: c.riderRow}, nil
}

func (c *stubConn) ExecContext(_ context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	if strings.HasPrefix(query, "INSERT INTO outbox") {
		payload := append([]byte(nil), args[1].Value.([]byte)...)
		c.outbox = append(c.outbox, payload)
	}
	return driver.RowsAffected(1), nil
}

type stubTx struct{}

func (stubTx) Commit() error   { return nil }
func (stubTx) Rollback() error { return nil }

type stubRows struct {
	row  []driver.Value
	done bool
}

func (r *stubRows) Columns() []string { return make([]string, len(r.row)) }
func (r *stubRows) Close() error      { return nil }

func (r *stubRows) Next(dest []driver.Value) error {
	if r.done {
		return io.EOF
	}
	copy(dest, r.row)
	r.done = true
	return nil
}

func riderRow(id uuid.UUID, now time.Time) []driver.Value {
	return []driver.Value{
		id.String(), "Eric", "Mugisha", "+250788800001", "RW-LIC-001",
		string(domain.VerificationApproved), "", true,
		float64(-1.9441), float64(30.0619), float64(4.8), int64(120),
		now, now,
	}
}

func TestMutationQueuesStampedEvent(t *testing.T) {
	id := uuid.New()
	conn := &stubConn{riderRow: riderRow(id, time.Now().UTC())}
	db := sql.OpenDB(stubConnector{conn: conn})
	defer db.Close()

	repo := repository.NewPostgresRepository(db, "rider.events")
	before := time.Now().UTC()
	rider, err := repo.UpdateLocation(context.Background(), id, domain.GeoPoint{Lat: -1.9441, Lng: 30.0619})
	require.NoError(t, err)
	require.Equal(t, id, rider.ID)
	require.NotNil(t, rider.Location)

	require.Len(t, conn.outbox, 1)
	var event domain.RiderEvent
	require.NoError(t, json.Unmarshal(conn.outbox[0], &event))
	require.Equal(t, domain.EventLocationUpdated, event.Type)
	require.Equal(t, id, event.RiderID)
	require.InDelta(t, -1.9441, event.Payload["lat"].(float64), 1e-9)

	// Consumers must see when the mutation happened, not a zero time.
	require.False(t, event.CreatedAt.IsZero())
	require.False(t, event.CreatedAt.Before(before))
}

func TestSetAvailabilityQueuesEvent(t *testing.T) {
	id := uuid.New()
	conn := &stubConn{riderRow: riderRow(id, time.Now().UTC())}
	db := sql.OpenDB(stubConnector{conn: conn})
	defer db.Close()

	repo := repository.NewPostgresRepository(db, "rider.events")
	_, err := repo.SetAvailability(context.Background(), id, false)
	require.NoError(t, err)

	require.Len(t, conn.outbox, 1)
	var event domain.RiderEvent
	require.NoError(t, json.Unmarshal(conn.outbox[0], &event))
	require.Equal(t, domain.EventAvailabilityChanged, event.Type)
	require.False(t, event.CreatedAt.IsZero())
}
