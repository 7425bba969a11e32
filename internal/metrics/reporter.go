package metrics

import (
	"sync"
	"time"

	"github.com/BookmapAPI/bitfinex-adapter/logger"
)

// SnapshotFunc returns the current gauge values to report, keyed by metric
// name.
type SnapshotFunc func() map[string]interface{}

// Reporter periodically emits a snapshot of adapter counters.
type Reporter struct {
	component string
	interval  time.Duration
	snapshot  SnapshotFunc

	stop chan struct{}
	once sync.Once
	wg   sync.WaitGroup
}

func NewReporter(component string, interval time.Duration, snapshot SnapshotFunc) *Reporter {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Reporter{
		component: component,
		interval:  interval,
		snapshot:  snapshot,
		stop:      make(chan struct{}),
	}
}

func (r *Reporter) Start() {
	r.wg.Add(1)
	go r.run()
}

func (r *Reporter) Stop() {
	r.once.Do(func() { close(r.stop) })
	r.wg.Wait()
}

func (r *Reporter) run() {
	defer r.wg.Done()
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stop:
			return
		case <-ticker.C:
			r.report()
		}
	}
}

func (r *Reporter) report() {
	log := logger.GetLogger()
	for name, value := range r.snapshot() {
		EmitMetric(log, r.component, name, value, "gauge", nil)
	}
}
