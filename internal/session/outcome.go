package session

// maxQoS is the highest QoS a broker can grant; anything above is a refusal.
const maxQoS = 2

// SubscriptionOutcome is the broker's answer to one subscribe request.
type SubscriptionOutcome struct {
	// Granted is true when at least one entry was accepted.
	Granted bool

	// GrantedQoS holds one value per requested entry, in request order.
	// MQTT 3.1.1 brokers report a refused entry as 0x80.
	GrantedQoS []byte
}

// NewSubscriptionOutcome builds an outcome from the granted QoS sequence.
func NewSubscriptionOutcome(granted []byte) SubscriptionOutcome {
	out := SubscriptionOutcome{GrantedQoS: append([]byte(nil), granted...)}
	for _, q := range granted {
		if q <= maxQoS {
			out.Granted = true
			break
		}
	}
	return out
}

// Accepted returns the number of accepted entries.
func (o SubscriptionOutcome) Accepted() int {
	n := 0
	for _, q := range o.GrantedQoS {
		if q <= maxQoS {
			n++
		}
	}
	return n
}
