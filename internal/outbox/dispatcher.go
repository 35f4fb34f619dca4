package outbox

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var (
	dispatchedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "safeboda",
		Name:      "outbox_dispatched_total",
		Help:      "Total number of successfully dispatched outbox events.",
	})
	dispatchFailTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "safeboda",
		Name:      "outbox_dispatch_failures_total",
		Help:      "Outbox dispatch failures after exhausting retries.",
	})
	dispatchLagSeconds = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "safeboda",
		Name:      "outbox_lag_seconds",
		Help:      "Age of the oldest event dispatched in the last batch.",
	})
)

// DispatcherConfig defines tunables for the dispatcher.
type DispatcherConfig struct {
	PollInterval time.Duration
	BatchSize    int
	RetryMax     int
}

type natsPublisher interface {
	PublishMsg(msg *nats.Msg) error
}

// Dispatcher drains committed rider events from the outbox table and
// publishes them to NATS. Rows are claimed with SKIP LOCKED so multiple
// service replicas can run dispatchers concurrently.
type Dispatcher struct {
	db        *sql.DB
	publisher natsPublisher
	logger    *zap.Logger
	cfg       DispatcherConfig
	tracer    trace.Tracer
}

// NewDispatcher constructs a dispatcher.
func NewDispatcher(db *sql.DB, conn *nats.Conn, logger *zap.Logger, cfg DispatcherConfig) *Dispatcher {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 200 * time.Millisecond
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.RetryMax <= 0 {
		cfg.RetryMax = 3
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		db:        db,
		publisher: conn,
		logger:    logger,
		cfg:       cfg,
		tracer:    otel.Tracer("safeboda.outbox.dispatcher"),
	}
}

// Run starts the polling loop until the context is cancelled.
func (d *Dispatcher) Run(ctx context.Context) error {
	if d.db == nil || d.publisher == nil {
		return errors.New("outbox dispatcher requires database and NATS connection")
	}
	ticker := time.NewTicker(d.cfg.PollInterval)
	defer ticker.Stop()
	for {
		if err := d.dispatchBatch(ctx); err != nil && !errors.Is(err, context.Canceled) {
			d.logger.Error("outbox batch failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

type pendingEvent struct {
	ID        int64
	Topic     string
	Payload   []byte
	CreatedAt time.Time
}

func (d *Dispatcher) dispatchBatch(ctx context.Context) error {
	ctx, span := d.tracer.Start(ctx, "outbox.batch")
	defer span.End()

	tx, err := d.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	pending, err := loadPending(ctx, tx, d.cfg.BatchSize)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	if len(pending) == 0 {
		return tx.Commit()
	}

	ids := make([]int64, 0, len(pending))
	maxLag := 0.0
	for _, evt := range pending {
		if err := d.publishWithRetry(ctx, evt); err != nil {
			_ = tx.Rollback()
			return err
		}
		ids = append(ids, evt.ID)
		dispatchedTotal.Inc()
		if lag := time.Since(evt.CreatedAt).Seconds(); lag > maxLag {
			maxLag = lag
		}
	}
	dispatchLagSeconds.Set(maxLag)

	if err := markPublished(ctx, tx, ids); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func loadPending(ctx context.Context, tx *sql.Tx, limit int) ([]pendingEvent, error) {
	rows, err := tx.QueryContext(ctx, `SELECT id, topic, payload, created_at FROM outbox
WHERE published = false ORDER BY id LIMIT $1 FOR UPDATE SKIP LOCKED`, limit)
	if err != nil {
		return nil, fmt.Errorf("select outbox: %w", err)
	}
	defer rows.Close()
	var pending []pendingEvent
	for rows.Next() {
		var evt pendingEvent
		if err := rows.Scan(&evt.ID, &evt.Topic, &evt.Payload, &evt.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan outbox: %w", err)
		}
		pending = append(pending, evt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outbox: %w", err)
	}
	return pending, nil
}

func markPublished(ctx context.Context, tx *sql.Tx, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}
	query := fmt.Sprintf("UPDATE outbox SET published = true WHERE id IN (%s)", strings.Join(placeholders, ","))
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("mark published: %w", err)
	}
	return nil
}

func (d *Dispatcher) publishWithRetry(ctx context.Context, evt pendingEvent) error {
	ctx, span := d.tracer.Start(ctx, "outbox.publish")
	defer span.End()
	if evt.Topic == "" {
		return errors.New("outbox event missing topic")
	}
	msg := nats.NewMsg(evt.Topic)
	msg.Data = evt.Payload
	if sc := span.SpanContext(); sc.IsValid() {
		msg.Header.Set("traceparent", fmt.Sprintf("00-%s-%s-01", sc.TraceID(), sc.SpanID()))
	}
	for attempt := 1; ; attempt++ {
		err := d.publisher.PublishMsg(msg)
		if err == nil {
			return nil
		}
		d.logger.Warn("publish failed",
			zap.Error(err), zap.Int("attempt", attempt), zap.Int64("outbox_id", evt.ID))
		if attempt >= d.cfg.RetryMax {
			dispatchFailTotal.Inc()
			return fmt.Errorf("publish outbox %d: %w", evt.ID, err)
		}
		backoff := time.Duration(attempt*attempt) * 100 * time.Millisecond
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
