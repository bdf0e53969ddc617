package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	measurementPublish    = "publish"
	measurementRunSummary = "run_summary"
)

// PublishPoint describes one scheduled publish.
type PublishPoint struct {
	RunID   string
	Topic   string
	Outcome string // delivered, resent or failed
	Seq     int

	// Lateness is how far after its deadline the publish started.
	Lateness time.Duration
	// Latency is how long the publish (including any retry) took.
	Latency      time.Duration
	PayloadBytes int

	// At is the point timestamp; zero means now.
	At time.Time
}

// RunSummary describes a finished run.
type RunSummary struct {
	RunID   string
	Topic   string
	Status  string
	Sent    int
	Failed  int
	Elapsed time.Duration
}

// WritePublish records a publish point.
//
// The write is non-blocking; data is batched and sent asynchronously.
//
//	client.WritePublish(influxdb.PublishPoint{
//	    RunID: runID, Topic: "sensors/temp", Outcome: "delivered",
//	    Seq: 3, Lateness: 2 * time.Millisecond, Latency: 9 * time.Millisecond,
//	})
func (c *Client) WritePublish(p PublishPoint) {
	if !c.IsConnected() {
		return
	}

	at := p.At
	if at.IsZero() {
		at = time.Now()
	}

	point := write.NewPoint(
		measurementPublish,
		map[string]string{
			"run_id":  p.RunID,
			"topic":   p.Topic,
			"outcome": p.Outcome,
		},
		map[string]interface{}{
			"seq":           p.Seq,
			"lateness_ms":   durationMillis(p.Lateness),
			"latency_ms":    durationMillis(p.Latency),
			"payload_bytes": p.PayloadBytes,
		},
		at,
	)
	c.writeAPI.WritePoint(point)
}

// WriteRunSummary records the totals of a finished run.
func (c *Client) WriteRunSummary(s RunSummary) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		measurementRunSummary,
		map[string]string{
			"run_id": s.RunID,
			"topic":  s.Topic,
			"status": s.Status,
		},
		map[string]interface{}{
			"sent":       s.Sent,
			"failed":     s.Failed,
			"elapsed_ms": durationMillis(s.Elapsed),
		},
		time.Now(),
	)
	c.writeAPI.WritePoint(point)
}

func durationMillis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
