/*
scheduler.go - Periodic catalog sampler

PURPOSE:
  Periodically samples ledger state that is too expensive to track on every
  request and publishes it as gauges: the number of active courses and the
  number of live event subscribers.

DESIGN:
  - Runs a background goroutine with configurable interval
  - Samples once immediately on Start
  - Sampling errors are logged, never fatal

USAGE:
  sampler := NewCatalogSampler(handler)
  sampler.Start()
  // ... later
  sampler.Stop()

SEE ALSO:
  - obs/metrics.go: ActiveCourses, EventSubscribers gauges
*/
package api

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// CatalogSampler refreshes catalog gauges on a ticker.
type CatalogSampler struct {
	Handler  *Handler
	Interval time.Duration

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewCatalogSampler creates a sampler with a 15 second interval.
func NewCatalogSampler(h *Handler) *CatalogSampler {
	return &CatalogSampler{
		Handler:  h,
		Interval: 15 * time.Second,
	}
}

// Start begins sampling. Calling Start on a running sampler does nothing.
func (cs *CatalogSampler) Start() {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	if cs.ticker != nil {
		return
	}
	cs.ticker = time.NewTicker(cs.Interval)
	cs.stop = make(chan struct{})
	cs.wg.Add(1)

	go cs.run(cs.ticker, cs.stop)

	cs.Handler.Logger.Info("catalog sampler started", zap.Duration("interval", cs.Interval))
}

// Stop stops the sampler and waits for the goroutine to exit.
func (cs *CatalogSampler) Stop() {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	if cs.ticker == nil {
		return
	}
	cs.ticker.Stop()
	close(cs.stop)
	cs.wg.Wait()
	cs.ticker = nil
	cs.Handler.Logger.Info("catalog sampler stopped")
}

func (cs *CatalogSampler) run(ticker *time.Ticker, stop <-chan struct{}) {
	defer cs.wg.Done()

	// Run immediately on start
	cs.RunNow(context.Background())

	for {
		select {
		case <-ticker.C:
			cs.RunNow(context.Background())
		case <-stop:
			return
		}
	}
}

// RunNow samples once.
func (cs *CatalogSampler) RunNow(ctx context.Context) {
	h := cs.Handler

	ids, err := h.Ledger.ActiveCourses(ctx)
	if err != nil {
		h.Logger.Warn("sample active courses", zap.Error(err))
	} else {
		h.Metrics.ActiveCourses.Set(float64(len(ids)))
	}

	if h.Broker != nil {
		h.Metrics.EventSubscribers.Set(float64(h.Broker.Subscribers()))
	}
}
