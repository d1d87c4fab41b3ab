package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lold2424/LessURL-Service/internal/model"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// MonitorRepository stores operational events shown on the admin dashboard
type MonitorRepository struct {
	db *pgxpool.Pool
}

// NewMonitorRepository creates a new monitor event repository
func NewMonitorRepository(db *pgxpool.Pool) *MonitorRepository {
	return &MonitorRepository{db: db}
}

// Record stores one event with data marshalled as its JSON payload
func (r *MonitorRepository) Record(ctx context.Context, metric model.MetricType, data any) error {
	ctx, span := tracer.Start(ctx, "db.insert",
		trace.WithAttributes(
			attribute.String("db.system", "postgresql"),
			attribute.String("db.operation", "INSERT"),
			attribute.String("db.sql.table", "monitor_events"),
			attribute.String("metric_type", string(metric)),
		),
	)
	defer span.End()

	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx,
		`INSERT INTO monitor_events (metric_type, occurred_at, data) VALUES ($1, $2, $3)`,
		string(metric), time.Now().UTC(), payload)
	if err != nil {
		span.RecordError(err)
	}
	return err
}

// Since returns events of one type recorded at or after since, newest first
func (r *MonitorRepository) Since(ctx context.Context, metric model.MetricType, since time.Time) ([]model.MonitorEvent, error) {
	ctx, span := tracer.Start(ctx, "db.select",
		trace.WithAttributes(
			attribute.String("db.system", "postgresql"),
			attribute.String("db.operation", "SELECT"),
			attribute.String("db.sql.table", "monitor_events"),
			attribute.String("metric_type", string(metric)),
		),
	)
	defer span.End()

	rows, err := r.db.Query(ctx, `
		SELECT metric_type, occurred_at, data
		FROM monitor_events
		WHERE metric_type = $1 AND occurred_at >= $2
		ORDER BY occurred_at DESC`,
		string(metric), since.UTC())
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	defer rows.Close()

	events := []model.MonitorEvent{}
	for rows.Next() {
		var e model.MonitorEvent
		var metricType string
		var data []byte
		if err := rows.Scan(&metricType, &e.Timestamp, &data); err != nil {
			span.RecordError(err)
			return nil, err
		}
		e.MetricType = model.MetricType(metricType)
		e.Timestamp = e.Timestamp.UTC()
		e.Data = data
		events = append(events, e)
	}
	return events, rows.Err()
}
