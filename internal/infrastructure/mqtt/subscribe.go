package mqtt

import (
	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// grantFailure is the SUBACK code for a refused entry.
const grantFailure = 0x80

// Subscribe issues a subscribe request without waiting for the broker.
//
// Topics can include MQTT wildcards:
//   - + (single-level): "sensors/+/temp" matches any one level
//   - # (multi-level): "sensors/#" matches everything below
//
// The SUBACK arrives later through the OnSubscribe callback with the granted
// QoS for the filter (0x80 when refused). If the request fails or the
// connection closes first, no acknowledgment is delivered and the caller's
// handshake times out.
//
// Messages are delivered through the OnMessage callback.
func (c *Client) Subscribe(filter string, qos byte) error {
	if err := ValidateFilter(filter); err != nil {
		return err
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.client == nil || !c.client.IsConnectionOpen() {
		return ErrNotConnected
	}

	// A nil callback routes messages to the default publish handler.
	token := c.client.Subscribe(filter, qos, nil)
	closing := c.closing

	c.acks.Add(1)
	go func() {
		defer c.acks.Done()
		c.awaitAck(filter, token, closing)
	}()

	return nil
}

// awaitAck relays the subscribe token's result to the OnSubscribe callback.
func (c *Client) awaitAck(filter string, token pahomqtt.Token, closing <-chan struct{}) {
	select {
	case <-token.Done():
	case <-closing:
		return
	}

	if err := token.Error(); err != nil {
		if logger := c.getLogger(); logger != nil {
			logger.Warn("subscribe request failed", "filter", filter, "error", err)
		}
		return
	}

	granted := byte(grantFailure)
	if st, ok := token.(*pahomqtt.SubscribeToken); ok {
		if q, found := st.Result()[filter]; found {
			granted = q
		}
	}

	c.callbackMu.RLock()
	callback := c.onSubscribe
	c.callbackMu.RUnlock()
	if callback != nil {
		callback(filter, []byte{granted})
	}
}
