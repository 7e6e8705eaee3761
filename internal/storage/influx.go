package storage

import (
	"context"
	"fmt"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"github.com/VittorioRossetto/dogTrainer/internal/config"
	"github.com/VittorioRossetto/dogTrainer/internal/event"
)

// EventWriter persists event envelopes into the durable sink. Writes are
// at-most-once: a failure is the caller's to log, never to retry.
type EventWriter interface {
	WriteEvent(ctx context.Context, env event.Envelope) error
}

// Querier serves the read side of the sink for the collector's HTTP API.
type Querier interface {
	Measurements(ctx context.Context) ([]string, error)
	RecentPoints(ctx context.Context, measurement string, limit int) ([]map[string]any, error)
}

// Influx writes envelopes to InfluxDB v2 and answers range queries over them.
type Influx struct {
	client influxdb2.Client
	write  api.WriteAPIBlocking
	query  api.QueryAPI
	bucket string
}

// NewInflux builds the client. The connection is lazy; a bad URL or token
// surfaces on the first write, which the caller logs and drops.
func NewInflux(cfg config.InfluxConfig) *Influx {
	client := influxdb2.NewClient(cfg.URL, cfg.Token)
	return &Influx{
		client: client,
		write:  client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		query:  client.QueryAPI(cfg.Org),
		bucket: cfg.Bucket,
	}
}

// WriteEvent maps env onto the schema and writes a single point stamped with
// the envelope's own timestamp.
func (s *Influx) WriteEvent(ctx context.Context, env event.Envelope) error {
	rec := BuildRecord(env)
	point := influxdb2.NewPoint(rec.Measurement, rec.Tags, rec.Fields, event.Time(env.Timestamp))
	if err := s.write.WritePoint(ctx, point); err != nil {
		return fmt.Errorf("write %s point: %w", rec.Measurement, err)
	}
	return nil
}

// Measurements lists the measurements present in the bucket.
func (s *Influx) Measurements(ctx context.Context) ([]string, error) {
	flux := fmt.Sprintf(`import "influxdata/influxdb/schema"
schema.measurements(bucket: %q)`, s.bucket)

	result, err := s.query.Query(ctx, flux)
	if err != nil {
		return nil, fmt.Errorf("query measurements: %w", err)
	}

	var names []string
	for result.Next() {
		if v, ok := result.Record().Value().(string); ok {
			names = append(names, v)
		}
	}
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("read measurements: %w", err)
	}
	return names, nil
}

// RecentPoints returns up to limit most recent points of a measurement.
func (s *Influx) RecentPoints(ctx context.Context, measurement string, limit int) ([]map[string]any, error) {
	flux := fmt.Sprintf(`from(bucket: %q)
  |> range(start: -30d)
  |> filter(fn: (r) => r._measurement == %q)
  |> sort(columns: ["_time"], desc: true)
  |> limit(n: %d)`, s.bucket, measurement, limit)

	result, err := s.query.Query(ctx, flux)
	if err != nil {
		return nil, fmt.Errorf("query points: %w", err)
	}

	var points []map[string]any
	for result.Next() {
		points = append(points, result.Record().Values())
	}
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("read points: %w", err)
	}
	return points, nil
}

// Close releases the client.
func (s *Influx) Close() {
	s.client.Close()
}

// Discard is the writer used when no sink is configured. Events are counted
// in memory by the collector either way; only durability is lost.
type Discard struct{}

// WriteEvent drops the envelope.
func (Discard) WriteEvent(context.Context, event.Envelope) error { return nil }
