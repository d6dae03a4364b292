package progress

import (
	"sync"

	"inventaire-ai/internal/util"

	"go.uber.org/zap"
)

// Stage labels where in the pipeline an event was emitted.
type Stage string

const (
	StageDiscovery Stage = "discovery"
	StageAnalysis  Stage = "analysis"
	StageRescan    Stage = "rescan"
	StageExport    Stage = "export"
)

// Event is one progress tick. Total is 0 when the stage has no fixed
// denominator (e.g. discovery of a folder of unknown size).
type Event struct {
	Stage   Stage
	File    string
	Done    int
	Total   int
	Message string
	Err     error
}

// Handler consumes events. Handlers run synchronously on the publishing
// goroutine and must not block.
type Handler func(Event)

// Publisher fans events out to subscribers: a CLI progress line, a log
// sink, a future UI. Safe for concurrent use.
type Publisher struct {
	mu       sync.RWMutex
	handlers []Handler
	logger   *zap.Logger
}

func NewPublisher() *Publisher {
	return &Publisher{logger: util.GetLogger()}
}

// Subscribe registers a handler for all subsequent events.
func (p *Publisher) Subscribe(h Handler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handlers = append(p.handlers, h)
}

// Publish delivers the event to every subscriber and mirrors failures to
// the log so they are never silently swallowed.
func (p *Publisher) Publish(e Event) {
	if e.Err != nil {
		p.logger.Warn("Pipeline step failed",
			zap.String("stage", string(e.Stage)),
			zap.String("file", e.File),
			zap.Error(e.Err))
	}

	p.mu.RLock()
	handlers := make([]Handler, len(p.handlers))
	copy(handlers, p.handlers)
	p.mu.RUnlock()

	for _, h := range handlers {
		h(e)
	}
}
