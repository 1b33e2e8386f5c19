package queue

import (
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Queue is the fire-and-forget event fanout. The core publishes campaign
// lifecycle events ("campaign reached state X") on it; external notifiers
// (email, SMS) subscribe at the edge. Delivery is best-effort.
type Queue interface {
	Publish(topic string, payload any) error
	Subscribe(topic string, handler func(payload any) error) error
}

// CampaignEvent is the payload published on the lifecycle topic.
type CampaignEvent struct {
	CampaignID string `json:"campaign_id"`
	Status     string `json:"status"`
}

// EventsTopic carries campaign lifecycle transitions.
const EventsTopic = "campaign_events"

// InMemoryQueue is an in-process queue with per-job retry. Handlers run on
// their own goroutine; a failing handler is retried with backoff up to
// MaxRetries and then dropped.
type InMemoryQueue struct {
	mu       sync.Mutex
	handlers map[string][]func(payload any) error
	Logger   *slog.Logger
}

func NewInMemoryQueue(logger *slog.Logger) *InMemoryQueue {
	return &InMemoryQueue{
		handlers: make(map[string][]func(payload any) error),
		Logger:   logger,
	}
}

type jobPayload struct {
	payload    any
	retryCount int
	maxRetries int
}

// Publish sends a message to all subscribers. Unlike the process-job
// queue, having no subscribers is fine: lifecycle events are optional.
func (q *InMemoryQueue) Publish(topic string, payload any) error {
	q.mu.Lock()
	handlers := q.handlers[topic]
	q.mu.Unlock()

	job := jobPayload{payload: payload, maxRetries: 3}
	for _, handler := range handlers {
		go q.processJob(topic, handler, job)
	}
	return nil
}

func (q *InMemoryQueue) processJob(topic string, handler func(payload any) error, job jobPayload) {
	for job.retryCount <= job.maxRetries {
		err := handler(job.payload)
		if err == nil {
			return
		}

		job.retryCount++
		if q.Logger != nil {
			q.Logger.Warn("event handler failed",
				slog.String("topic", topic),
				slog.Int("attempt", job.retryCount),
				slog.Any("error", err))
		}
		if job.retryCount > job.maxRetries {
			return
		}
		time.Sleep(time.Duration(job.retryCount) * 500 * time.Millisecond)
	}
}

// Subscribe adds a handler for a topic.
func (q *InMemoryQueue) Subscribe(topic string, handler func(payload any) error) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handlers[topic] = append(q.handlers[topic], handler)
	return nil
}

var _ Queue = (*InMemoryQueue)(nil)

// NopQueue drops everything. Handy default when no notifier is wired.
type NopQueue struct{}

func (NopQueue) Publish(string, any) error                       { return nil }
func (NopQueue) Subscribe(string, func(payload any) error) error { return nil }

var _ Queue = NopQueue{}

// Collector records published events for assertions in tests.
type Collector struct {
	mu     sync.Mutex
	events []CampaignEvent
}

func (c *Collector) Publish(_ string, payload any) error {
	ev, ok := payload.(CampaignEvent)
	if !ok {
		return fmt.Errorf("unexpected payload type %T", payload)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
	return nil
}

func (c *Collector) Subscribe(string, func(payload any) error) error { return nil }

func (c *Collector) Events() []CampaignEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]CampaignEvent, len(c.events))
	copy(out, c.events)
	return out
}

var _ Queue = (*Collector)(nil)
