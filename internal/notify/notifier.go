package notify

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	Console  = "console"
	Slack    = "slack"
	Telegram = "telegram"

	sendTimeout = 10 * time.Second
)

// Sink delivers a message to one destination.
type Sink interface {
	Send(ctx context.Context, msg string) error
}

// Hub fans operator messages out to named sinks. Delivery is asynchronous
// and failures are only logged; a notification never blocks a trading cycle.
type Hub struct {
	sinks    map[string]Sink
	defaults []string
	log      *zap.Logger

	wg sync.WaitGroup
}

func NewHub(log *zap.Logger, defaults []string) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{
		sinks:    make(map[string]Sink),
		defaults: defaults,
		log:      log,
	}
}

func (h *Hub) Register(name string, s Sink) { h.sinks[name] = s }

// Notify sends msg to dests, or to the default destinations when none are
// given. Named destinations without a registered sink are skipped.
func (h *Hub) Notify(ctx context.Context, msg string, dests ...string) {
	explicit := len(dests) > 0
	if !explicit {
		dests = h.defaults
	}
	ctx = context.WithoutCancel(ctx)

	for _, name := range dests {
		sink, ok := h.sinks[name]
		if !ok {
			// explicit lists may name sinks that are simply not configured
			if explicit {
				h.log.Debug("notification destination not configured", zap.String("dest", name))
			} else {
				h.log.Warn("unknown notification destination", zap.String("dest", name))
			}
			continue
		}
		h.wg.Add(1)
		go func(name string, sink Sink) {
			defer h.wg.Done()
			sctx, cancel := context.WithTimeout(ctx, sendTimeout)
			defer cancel()
			if err := sink.Send(sctx, msg); err != nil {
				h.log.Warn("notification failed", zap.String("dest", name), zap.Error(err))
			}
		}(name, sink)
	}
}

// Wait blocks until every pending delivery has finished.
func (h *Hub) Wait() { h.wg.Wait() }

// ConsoleSink writes messages to the log.
type ConsoleSink struct {
	log *zap.Logger
}

func NewConsole(log *zap.Logger) *ConsoleSink { return &ConsoleSink{log: log} }

func (c *ConsoleSink) Send(_ context.Context, msg string) error {
	c.log.Info(msg)
	return nil
}
