package events

import "time"

// Event names emitted over the realtime feed. Dashboards subscribe to these
// to show matching and acceptance activity as it happens.
const (
	EmailMatched    = "email:matched"
	OrderProcessing = "order:processing"
	OrderAccepted   = "order:accepted"
	OrderFailed     = "order:failed"
)

// Event is one realtime notification. Payload shape varies by name.
type Event struct {
	Name      string    `json:"event"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}

// Publisher delivers events to whoever is listening. Delivery is best
// effort: the processing pipeline never blocks or fails on a publish.
type Publisher interface {
	Publish(name string, payload any)
}

// NopPublisher discards everything. Used when the realtime feed is disabled.
type NopPublisher struct{}

func (NopPublisher) Publish(name string, payload any) {}
