package session

import "context"

// Transport is the pub/sub client library as seen by a Session.
//
// Implementations own the network connection. The callbacks are invoked from
// the library's own goroutines; a Session registers all four in New.
//
// Contract:
//   - OnConnect fires with code 0 after every successful connection,
//     including automatic reconnections made by the library.
//   - Subscribe only issues the request; the broker's acknowledgment is
//     delivered later through OnSubscribe with one granted QoS per entry
//     (values above 2 mean the entry was refused).
//   - Disconnect releases the connection and is safe to call when not connected.
//   - Errors that represent a timeout implement Timeout() bool; connect
//     errors carrying a broker return code implement ReturnCode() byte.
type Transport interface {
	Connect(ctx context.Context) error
	Disconnect() error
	Subscribe(filter string, qos byte) error
	Publish(ctx context.Context, topic string, payload []byte, qos byte, retained bool) error

	SetOnConnect(func(code byte))
	SetOnConnectionLost(func(err error))
	SetOnSubscribe(func(filter string, granted []byte))
	SetOnMessage(func(topic string, qos byte, payload []byte))
}
