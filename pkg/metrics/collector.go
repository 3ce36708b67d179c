package metrics

import "time"

// coordinatorSource is the slice of *coordinator.Coordinator the
// Collector samples. Defined locally to avoid an import cycle (the
// coordinator package already depends on metrics for its own counters).
type coordinatorSource interface {
	WorkerCounts() (idle, working int)
	QueueDepth() int
	RunningCount() int
	NodeCounts() (paired, unpaired int, err error)
}

// Collector periodically samples the coordinator and updates the gauges
// that aren't naturally updated inline by coordinator operations (queue
// depth and task totals are; worker/node pool sizes are cheaper to poll
// than to thread through every registry mutation).
type Collector struct {
	coordinator coordinatorSource
	stopCh      chan struct{}
}

// NewCollector creates a metrics collector over a coordinator.
func NewCollector(coord coordinatorSource) *Collector {
	return &Collector{
		coordinator: coord,
		stopCh:      make(chan struct{}),
	}
}

// Start begins periodic collection in its own goroutine.
func (c *Collector) Start() {
	ticker := time.NewTicker(5 * time.Second)
	go func() {
		c.collect()
		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop halts periodic collection.
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	idle, working := c.coordinator.WorkerCounts()
	WorkersIdle.Set(float64(idle))
	WorkersWorking.Set(float64(working))

	QueueDepth.Set(float64(c.coordinator.QueueDepth()))
	RunningTasks.Set(float64(c.coordinator.RunningCount()))

	if paired, unpaired, err := c.coordinator.NodeCounts(); err == nil {
		NodesTotal.WithLabelValues("paired").Set(float64(paired))
		NodesTotal.WithLabelValues("unpaired").Set(float64(unpaired))
	}
}
