package payload

import (
	"encoding/json"
	"math/rand/v2"
	"strconv"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// Reading is one simulated temperature sample.
type Reading struct {
	Seq         int   `json:"seq" msgpack:"seq"`
	Temperature int   `json:"temperature" msgpack:"temperature"`
	Timestamp   int64 `json:"ts" msgpack:"ts"`
}

// Sensor pretends to read a temperature in 0..99.
type Sensor struct {
	format Format
	rng    *rand.Rand
	now    func() time.Time
}

// NewSensor creates a sensor source. A nil rng uses a randomly seeded one.
func NewSensor(format Format, rng *rand.Rand) *Sensor {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	if format == "" {
		format = FormatText
	}
	return &Sensor{format: format, rng: rng, now: time.Now}
}

// Read samples the sensor.
func (s *Sensor) Read(seq int) Reading {
	return Reading{
		Seq:         seq,
		Temperature: s.rng.IntN(100),
		Timestamp:   s.now().Unix(),
	}
}

// Next implements Source.
func (s *Sensor) Next(seq int) ([]byte, error) {
	r := s.Read(seq)
	switch s.format {
	case FormatText:
		return []byte(strconv.Itoa(r.Temperature)), nil
	case FormatJSON:
		return json.Marshal(r)
	case FormatMsgpack:
		return msgpack.Marshal(r)
	default:
		return nil, ErrUnknownFormat
	}
}
