package app

import (
	"context"
	"fmt"
	"time"

	"github.com/nerrad567/mqtt-client-app/internal/infrastructure/config"
	"github.com/nerrad567/mqtt-client-app/internal/infrastructure/database"
	"github.com/nerrad567/mqtt-client-app/internal/infrastructure/influxdb"
	"github.com/nerrad567/mqtt-client-app/internal/infrastructure/logging"
	"github.com/nerrad567/mqtt-client-app/internal/journal"
	"github.com/nerrad567/mqtt-client-app/internal/scheduler"
	"github.com/nerrad567/mqtt-client-app/migrations"
)

// sinkTimeout bounds each journal write so a locked database cannot stall
// the publish loop.
const sinkTimeout = 2 * time.Second

// delivery is what the recorder learns about one scheduled send.
type delivery struct {
	tick     scheduler.Tick
	topic    string
	size     int
	outcome  string
	err      error
	started  time.Time
	finished time.Time
}

// recorder fans delivery results out to the journal and metrics sinks.
// Both sinks are optional; a recorder with neither does nothing.
type recorder struct {
	log *logging.Logger

	db      *database.DB
	journal journal.Repository
	influx  *influxdb.Client

	runID string
	topic string
}

// openRecorder opens the sinks enabled in cfg and starts a journal run.
func openRecorder(ctx context.Context, cfg *config.Config, log *logging.Logger) (*recorder, error) {
	r := &recorder{log: log, topic: cfg.Publish.Topic}

	if cfg.Journal.Enabled {
		db, err := database.Open(cfg.Journal)
		if err != nil {
			return nil, fmt.Errorf("opening journal: %w", err)
		}
		r.db = db
		if err := db.HealthCheck(ctx); err != nil {
			r.close()
			return nil, fmt.Errorf("checking journal: %w", err)
		}
		mode, err := db.JournalMode(ctx)
		if err != nil {
			r.close()
			return nil, fmt.Errorf("reading journal mode: %w", err)
		}
		if err := db.Migrate(ctx, migrations.FS); err != nil {
			r.close()
			return nil, fmt.Errorf("running journal migrations: %w", err)
		}
		r.journal = journal.NewSQLiteRepository(db.DB)

		run, err := r.journal.StartRun(ctx, cfg.MQTT.Broker.ClientID, cfg.Publish.Topic)
		if err != nil {
			r.close()
			return nil, fmt.Errorf("starting journal run: %w", err)
		}
		r.runID = run.ID
		log.Info("journal opened", "path", db.Path(), "mode", mode, "run_id", run.ID)
	}

	if cfg.InfluxDB.Enabled {
		client, err := influxdb.Connect(ctx, cfg.InfluxDB)
		if err != nil {
			r.close()
			return nil, fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		client.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		r.influx = client
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	}

	return r, nil
}

// record stores one delivery. Sink failures are logged, never returned.
func (r *recorder) record(d delivery) {
	if r.journal != nil {
		entry := &journal.Delivery{
			RunID:       r.runID,
			Seq:         d.tick.Seq,
			Topic:       d.topic,
			PayloadSize: d.size,
			Outcome:     d.outcome,
			Deadline:    d.tick.Deadline,
			PublishedAt: d.finished,
		}
		if d.err != nil {
			entry.Error = d.err.Error()
		}

		ctx, cancel := context.WithTimeout(context.Background(), sinkTimeout)
		if err := r.journal.RecordDelivery(ctx, entry); err != nil {
			r.log.Warn("journal write failed", "seq", d.tick.Seq, "error", err)
		}
		cancel()
	}

	if r.influx != nil {
		r.influx.WritePublish(influxdb.PublishPoint{
			RunID:        r.runID,
			Topic:        d.topic,
			Outcome:      d.outcome,
			Seq:          d.tick.Seq,
			Lateness:     max(d.started.Sub(d.tick.Deadline), 0),
			Latency:      d.finished.Sub(d.started),
			PayloadBytes: d.size,
			At:           d.finished,
		})
	}
}

// finish stores the run totals and closes the sinks.
func (r *recorder) finish(res scheduler.Result, status journal.Status) {
	if r.journal != nil {
		ctx, cancel := context.WithTimeout(context.Background(), sinkTimeout)
		if err := r.journal.FinishRun(ctx, r.runID, res.Sent, res.Failed, status); err != nil {
			r.log.Warn("journal finish failed", "run_id", r.runID, "error", err)
		} else {
			r.logStored(ctx)
		}
		cancel()
	}

	if r.influx != nil {
		r.influx.WriteRunSummary(influxdb.RunSummary{
			RunID:   r.runID,
			Topic:   r.topic,
			Status:  string(status),
			Sent:    res.Sent,
			Failed:  res.Failed,
			Elapsed: res.Elapsed,
		})
	}

	r.close()
}

// logStored reads the finished run back and logs what the journal holds.
func (r *recorder) logStored(ctx context.Context) {
	run, err := r.journal.GetRun(ctx, r.runID)
	if err != nil {
		r.log.Warn("journal read failed", "run_id", r.runID, "error", err)
		return
	}
	failed, err := r.journal.ListDeliveries(ctx, r.runID, journal.Filter{Outcome: "failed", Limit: 1})
	if err != nil {
		r.log.Warn("journal read failed", "run_id", r.runID, "error", err)
		return
	}

	attrs := []any{
		"run_id", run.ID,
		"status", run.Status,
		"sent", run.Sent,
		"failed", run.Failed,
	}
	if len(failed) > 0 {
		attrs = append(attrs, "first_failed_seq", failed[0].Seq, "first_failed_error", failed[0].Error)
	}
	r.log.Info("journal run stored", attrs...)
}

func (r *recorder) close() {
	if r.influx != nil {
		if err := r.influx.Close(); err != nil {
			r.log.Error("error closing InfluxDB", "error", err)
		}
		if n := r.influx.WriteErrors(); n > 0 {
			r.log.Warn("InfluxDB batches lost", "count", n)
		}
		r.influx = nil
	}
	if r.db != nil {
		if err := r.db.Close(); err != nil {
			r.log.Error("error closing journal", "error", err)
		}
		r.db = nil
		r.journal = nil
	}
}

// runStatus maps a loop result to the journal's terminal status.
func runStatus(res scheduler.Result, err error) journal.Status {
	switch {
	case err != nil:
		return journal.StatusFailed
	case res.Drained:
		return journal.StatusDrained
	case res.Stopped:
		return journal.StatusStopped
	default:
		return journal.StatusCompleted
	}
}
