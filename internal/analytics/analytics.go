// Package analytics records query and click events for zero-result and
// popularity analysis. Recording is asynchronous and lossy under pressure:
// a full buffer drops the event with a warning, it never slows a search.
package analytics

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	pkgkafka "github.com/marketloom/search-service/pkg/kafka"
)

// Event types published to the bus.
var (
	TopicQueryLogged  = pkgkafka.Topic("search", "query_logged")
	TopicClickTracked = pkgkafka.Topic("search", "click_tracked")
)

const sourceName = "search-service"

// QueryLogEntry is one executed search, append-only.
type QueryLogEntry struct {
	Query          string            `json:"query"`
	Filters        map[string]string `json:"filters,omitempty"`
	ResultCount    int               `json:"result_count"`
	IdentityKey    string            `json:"identity_key,omitempty"`
	SessionID      string            `json:"session_id,omitempty"`
	Timestamp      time.Time         `json:"timestamp"`
	ResponseTimeMs int64             `json:"response_time_ms"`
}

// ClickEvent is one result click, append-only.
type ClickEvent struct {
	Query     string    `json:"query"`
	ClickedID string    `json:"clicked_id"`
	Position  int       `json:"position"`
	SessionID string    `json:"session_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Publisher is the slice of the Kafka producer the recorder needs.
type Publisher interface {
	Publish(ctx context.Context, topic string, event *pkgkafka.Event) error
}

var (
	recorderEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "search_analytics_events_total",
			Help: "Analytics events partitioned by type and outcome",
		},
		[]string{"type", "outcome"},
	)
)

type queued struct {
	topic       string
	eventType   string
	aggregateID string
	kind        string
	payload     any
}

// Recorder buffers analytics events and publishes them from a single worker
// goroutine.
type Recorder struct {
	publisher Publisher
	logger    *slog.Logger

	events  chan queued
	wg      sync.WaitGroup
	timeout time.Duration

	mu     sync.RWMutex
	closed bool
}

// NewRecorder creates a recorder with the given buffer size and starts its
// worker. Call Close to flush and stop.
func NewRecorder(publisher Publisher, bufferSize int, logger *slog.Logger) *Recorder {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	if logger == nil {
		logger = slog.Default()
	}
	r := &Recorder{
		publisher: publisher,
		logger:    logger,
		events:    make(chan queued, bufferSize),
		timeout:   5 * time.Second,
	}
	r.wg.Add(1)
	go r.run()
	return r
}

// RecordQuery enqueues a query log entry. Non-blocking.
func (r *Recorder) RecordQuery(entry QueryLogEntry) {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	if entry.SessionID == "" {
		entry.SessionID = uuid.New().String()
	}
	r.enqueue(queued{
		topic:       TopicQueryLogged,
		eventType:   TopicQueryLogged,
		aggregateID: entry.SessionID,
		kind:        "query",
		payload:     entry,
	})
}

// RecordClick enqueues a click event. Non-blocking.
func (r *Recorder) RecordClick(event ClickEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	r.enqueue(queued{
		topic:       TopicClickTracked,
		eventType:   TopicClickTracked,
		aggregateID: event.ClickedID,
		kind:        "click",
		payload:     event,
	})
}

func (r *Recorder) enqueue(q queued) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		recorderEvents.WithLabelValues(q.kind, "dropped").Inc()
		return
	}

	select {
	case r.events <- q:
		recorderEvents.WithLabelValues(q.kind, "queued").Inc()
	default:
		recorderEvents.WithLabelValues(q.kind, "dropped").Inc()
		r.logger.Warn("analytics buffer full, dropping event", slog.String("type", q.kind))
	}
}

func (r *Recorder) run() {
	defer r.wg.Done()
	for q := range r.events {
		r.publish(q)
	}
}

func (r *Recorder) publish(q queued) {
	event, err := pkgkafka.NewEvent(q.eventType, q.aggregateID, "search", sourceName, q.payload)
	if err != nil {
		recorderEvents.WithLabelValues(q.kind, "failed").Inc()
		r.logger.Error("analytics event marshal failed", slog.String("error", err.Error()))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	if err := r.publisher.Publish(ctx, q.topic, event); err != nil {
		recorderEvents.WithLabelValues(q.kind, "failed").Inc()
		r.logger.Error("analytics publish failed",
			slog.String("topic", q.topic),
			slog.String("error", err.Error()),
		)
		return
	}
	recorderEvents.WithLabelValues(q.kind, "published").Inc()
}

// Close stops accepting events, flushes the buffer and waits for the worker.
func (r *Recorder) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	r.mu.Unlock()

	close(r.events)
	r.wg.Wait()
}
