/*
scheduler.go - Background maintenance scheduler

PURPOSE:
  Periodically removes discount codes that have expired or run out of
  uses, and warns about products that are out of stock. Neither task is
  needed for correctness (purchases check expiry and uses themselves);
  they keep the tables and the /stock listing tidy.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Runs once immediately on Start
  - Errors are logged, never fatal

CONFIGURATION:
  - CheckInterval: How often to check (default: 1 hour)
  - Enabled: Whether scheduler is active (default: true)

USAGE:
  scheduler := NewMaintenanceScheduler(l, log)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - ledger/ledger.go: PurgeDiscounts
*/
package api

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/warp/credit-bot/ledger"
)

// MaintenanceScheduler runs periodic ledger housekeeping.
type MaintenanceScheduler struct {
	Ledger        *ledger.Ledger
	Log           logrus.FieldLogger
	CheckInterval time.Duration
	Enabled       bool

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewMaintenanceScheduler creates a new scheduler.
func NewMaintenanceScheduler(l *ledger.Ledger, log logrus.FieldLogger) *MaintenanceScheduler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &MaintenanceScheduler{
		Ledger:        l,
		Log:           log.WithField("component", "scheduler"),
		CheckInterval: 1 * time.Hour,
		Enabled:       true,
	}
}

// Start begins the scheduler. Calling Start twice is a no-op.
func (ms *MaintenanceScheduler) Start() {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	if !ms.Enabled {
		ms.Log.Info("Scheduler disabled, not starting")
		return
	}
	if ms.ticker != nil {
		return
	}

	ms.ticker = time.NewTicker(ms.CheckInterval)
	ms.stop = make(chan struct{})
	ms.wg.Add(1)

	go ms.run(ms.ticker, ms.stop)

	ms.Log.WithField("interval", ms.CheckInterval.String()).Info("Scheduler started")
}

// Stop stops the scheduler and waits for an in-flight pass to finish.
func (ms *MaintenanceScheduler) Stop() {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	if ms.ticker != nil {
		ms.ticker.Stop()
		close(ms.stop)
		ms.wg.Wait()
		ms.ticker = nil
		ms.Log.Info("Scheduler stopped")
	}
}

func (ms *MaintenanceScheduler) run(ticker *time.Ticker, stop <-chan struct{}) {
	defer ms.wg.Done()

	// Run immediately on start
	ms.RunOnce(context.Background())

	for {
		select {
		case <-ticker.C:
			ms.RunOnce(context.Background())
		case <-stop:
			return
		}
	}
}

// RunOnce performs a single housekeeping pass.
func (ms *MaintenanceScheduler) RunOnce(ctx context.Context) {
	purged, err := ms.Ledger.PurgeDiscounts(ctx)
	if err != nil {
		ms.Log.WithError(err).Error("Failed to purge discount codes")
	} else if purged > 0 {
		ms.Log.WithField("count", purged).Info("Purged expired discount codes")
	}

	products, err := ms.Ledger.Products(ctx)
	if err != nil {
		ms.Log.WithError(err).Error("Failed to list products")
		return
	}
	for _, p := range products {
		if p.Stock == 0 {
			ms.Log.WithField("product", p.Name).Warn("Product is out of stock")
		}
	}
}
