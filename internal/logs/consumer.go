package logs

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/phuslu/log"
	"github.com/ternarybob/arbor"
	arborlevels "github.com/ternarybob/arbor/levels"
	arbormodels "github.com/ternarybob/arbor/models"
	"github.com/ternarybob/opero/internal/interfaces"
	"github.com/ternarybob/opero/internal/models"
)

// Consumer drains log batches from arbor's context channel, groups them by
// correlation ID (the job ID), appends them to the job log store, and
// republishes entries at or above the event threshold as log_event.
type Consumer struct {
	storage       interfaces.JobLogStorage
	eventService  interfaces.EventService
	logger        arbor.ILogger
	channel       chan []arbormodels.LogEvent
	ctx           context.Context
	cancel        context.CancelFunc
	wg            sync.WaitGroup
	minEventLevel arbor.LogLevel

	// publishing guards against recursive event publication: a handler that
	// logs would otherwise feed its own output back through this consumer
	publishing sync.Map
}

// NewConsumer creates a new log consumer
func NewConsumer(storage interfaces.JobLogStorage, eventService interfaces.EventService, logger arbor.ILogger, minEventLevel string) *Consumer {
	ctx, cancel := context.WithCancel(context.Background())
	return &Consumer{
		storage:       storage,
		eventService:  eventService,
		logger:        logger,
		channel:       make(chan []arbormodels.LogEvent, 10),
		ctx:           ctx,
		cancel:        cancel,
		minEventLevel: parseLogLevel(minEventLevel),
	}
}

// parseLogLevel converts a config string to an arbor level
func parseLogLevel(levelStr string) arbor.LogLevel {
	switch strings.ToLower(levelStr) {
	case "debug":
		return arbor.DebugLevel
	case "info":
		return arbor.InfoLevel
	case "warn", "warning":
		return arbor.WarnLevel
	case "error":
		return arbor.ErrorLevel
	default:
		return arbor.WarnLevel
	}
}

// normalizeLevel maps a phuslu level name to the stored lowercase form
func normalizeLevel(level string) string {
	switch strings.ToLower(level) {
	case "debug", "trace":
		return "debug"
	case "info":
		return "info"
	case "warn", "warning":
		return "warn"
	case "error", "fatal", "panic":
		return "error"
	default:
		return "info"
	}
}

// GetChannel returns the channel arbor sends log batches to
func (c *Consumer) GetChannel() chan []arbormodels.LogEvent {
	return c.channel
}

// Start launches the consumer goroutine
func (c *Consumer) Start() error {
	c.wg.Add(1)
	go c.consume()
	return nil
}

// Stop shuts the consumer down and waits for in-flight writes
func (c *Consumer) Stop() error {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
	c.logger.Info().Msg("Log consumer stopped")
	return nil
}

// consume processes batches until the channel closes or the context ends
func (c *Consumer) consume() {
	defer c.wg.Done()

	defer func() {
		if r := recover(); r != nil {
			// Logged without correlation ID so it never re-enters the channel
			c.logger.Error().
				Str("panic", fmt.Sprintf("%v", r)).
				Msg("Log consumer panic recovered")
		}
	}()

	for {
		select {
		case batch, ok := <-c.channel:
			if !ok {
				return
			}
			c.processBatch(batch)

		case <-c.ctx.Done():
			return
		}
	}
}

// processBatch groups a batch by job ID and writes each group
func (c *Consumer) processBatch(batch []arbormodels.LogEvent) {
	entriesByJob := make(map[string][]models.JobLogEntry)

	for _, event := range batch {
		// Request-tracing output carries a correlation ID but is not a job
		// log; skip it rather than polluting the per-job history
		if event.Message == "HTTP request" ||
			strings.HasPrefix(event.Message, "HTTP request -") ||
			strings.Contains(event.Message, "WebSocket client") {
			continue
		}

		entry := transformEvent(event)

		if event.CorrelationID != "" {
			entriesByJob[event.CorrelationID] = append(entriesByJob[event.CorrelationID], entry)
		}

		if c.eventService != nil && c.shouldPublishEvent(event.Level) {
			c.publishLogEvent(event.CorrelationID, entry)
		}
	}

	var wg sync.WaitGroup
	for jobID, entries := range entriesByJob {
		wg.Add(1)
		go func(jid string, logs []models.JobLogEntry) {
			defer wg.Done()
			if err := c.storage.AppendLogs(c.ctx, jid, logs); err != nil {
				c.logger.Warn().
					Err(err).
					Str("job_id", jid).
					Int("log_count", len(logs)).
					Msg("Failed to write batch logs to store")
			}
		}(jobID, entries)
	}
	wg.Wait()
}

// shouldPublishEvent checks the level threshold for event republication
func (c *Consumer) shouldPublishEvent(level log.Level) bool {
	return arborlevels.FromLogLevel(level) >= c.minEventLevel
}

// publishLogEvent republishes a log entry as a log_event for live consumers
func (c *Consumer) publishLogEvent(jobID string, entry models.JobLogEntry) {
	key := fmt.Sprintf("%s:%s", jobID, entry.Message)
	if _, loaded := c.publishing.LoadOrStore(key, true); loaded {
		return
	}
	defer c.publishing.Delete(key)

	payload := map[string]interface{}{
		"job_id":    jobID,
		"level":     entry.Level,
		"message":   entry.Message,
		"timestamp": entry.Timestamp,
	}
	if len(entry.Context) > 0 {
		payload["context"] = entry.Context
	}

	go func() {
		err := c.eventService.Publish(c.ctx, interfaces.Event{
			Type:    interfaces.EventLogEvent,
			Payload: payload,
		})
		if err != nil {
			c.logger.Warn().
				Err(err).
				Str("job_id", jobID).
				Msg("Failed to publish log event")
		}
	}()
}

// transformEvent converts an arbor log event into a persistent entry.
// Structured fields become the entry's context map; the message is stored
// as written.
func transformEvent(event arbormodels.LogEvent) models.JobLogEntry {
	entry := models.JobLogEntry{
		Timestamp:     event.Timestamp.Format("15:04:05.000"),
		FullTimestamp: event.Timestamp.Format(time.RFC3339Nano),
		Level:         normalizeLevel(event.Level.String()),
		Message:       event.Message,
		JobIDField:    event.CorrelationID,
	}

	for key, value := range event.Fields {
		entry.SetContext(key, fmt.Sprintf("%v", value))
	}

	return entry
}
