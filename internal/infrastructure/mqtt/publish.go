package mqtt

import (
	"context"
	"fmt"
)

// Maximum payload size for MQTT messages (1MB).
// This prevents resource exhaustion and aligns with typical broker limits.
const maxPayloadSize = 1 << 20 // 1MB

// Publish sends a message and waits for the library to complete it.
//
// QoS Levels:
//   - 0: At most once (complete once written)
//   - 1: At least once (complete on PUBACK)
//   - 2: Exactly once (complete on PUBCOMP)
//
// The wait is bounded by publish_timeout and ctx; a timeout returns
// *TimeoutError.
func (c *Client) Publish(ctx context.Context, topic string, payload []byte, qos byte, retained bool) error {
	if err := ValidateTopic(topic); err != nil {
		return err
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: payload size %d exceeds maximum %d bytes", ErrPublishFailed, len(payload), maxPayloadSize)
	}

	c.mu.RLock()
	client := c.client
	c.mu.RUnlock()
	if client == nil || !client.IsConnectionOpen() {
		return ErrNotConnected
	}

	token := client.Publish(topic, qos, retained, payload)
	if err := wait(ctx, token, publishTimeout(c.cfg), "publish"); err != nil {
		if _, ok := err.(*TimeoutError); ok {
			return err
		}
		if ctx.Err() != nil {
			return err
		}
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}

	return nil
}
