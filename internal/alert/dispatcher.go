package alert

import (
	"context"
	"log/slog"
	"net/http"
	"slices"
	"sync"
)

// Dispatcher fans out alert events to matching webhook configurations.
// Deliveries run in the background until Close cancels them.
type Dispatcher struct {
	configs []AlertConfig
	logger  *slog.Logger
	client  *http.Client

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewDispatcher creates a Dispatcher from webhook configurations.
// Returns nil if configs is empty; a nil Dispatcher drops every event.
func NewDispatcher(configs []AlertConfig, logger *slog.Logger) *Dispatcher {
	if len(configs) == 0 {
		return nil
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		configs: configs,
		logger:  logger,
		client:  &http.Client{Timeout: requestTimeout},
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Dispatch sends the event to all webhooks whose Events list contains
// event.Type. It does not block; events after Close are dropped.
func (d *Dispatcher) Dispatch(event AlertEvent) {
	if d == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	for _, cfg := range d.configs {
		if !slices.Contains(cfg.Events, event.Type) {
			continue
		}
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			if err := d.Send(d.ctx, cfg, event); err != nil {
				d.logger.Warn("alert delivery failed", "url", cfg.URL, "type", event.Type, "error", err)
			}
		}()
	}
}

// Close cancels pending deliveries, including retry waits, and waits for
// them to return.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	d.cancel()
	d.wg.Wait()
}
