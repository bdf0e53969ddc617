// Package influxdb writes publish metrics to InfluxDB v2.
//
// It wraps the official influxdb-client-go v2 library for connection
// management, batched metric writes and health checks.
//
// # Measurements
//
//   - publish: one point per scheduled send, tagged run_id, topic and
//     outcome, with fields seq, lateness_ms, latency_ms and payload_bytes
//   - run_summary: one point per run with sent, failed and elapsed_ms
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.SetOnError(func(err error) { log.Warn("metrics write failed", "error", err) })
//	client.WritePublish(influxdb.PublishPoint{RunID: runID, Topic: topic, Outcome: "delivered", Seq: 1})
//
// # Error Handling
//
// Writes are non-blocking; batch errors arrive through the SetOnError
// callback. Connection and health check errors are returned directly.
package influxdb
