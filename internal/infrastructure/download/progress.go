package download

import (
	"sync"

	"github.com/narwhalmedia/segload/internal/domain/download"
)

// progressAggregator folds per-segment updates into task-level progress.
// Reports below the percent persisted by an earlier run are suppressed.
type progressAggregator struct {
	mu          sync.Mutex
	total       int64
	current     int64
	floor       int
	lastPercent int
	report      func(download.Progress)
}

func newProgressAggregator(total int64, floor int, report func(download.Progress)) *progressAggregator {
	return &progressAggregator{
		total:       total,
		floor:       floor,
		lastPercent: floor,
		report:      report,
	}
}

// add accounts update bytes and reports when the percent advanced by at least one
func (a *progressAggregator) add(update int64) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.current += update
	if a.current > a.total {
		a.current = a.total
	}

	percent := download.Percent(a.current, a.total)
	if percent <= a.floor || percent-a.lastPercent < 1 {
		return
	}
	a.lastPercent = percent
	a.report(download.Progress{
		Total:   a.total,
		Current: a.current,
		Update:  update,
		Percent: percent,
	})
}

// snapshot returns the aggregated byte count
func (a *progressAggregator) snapshot() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.current
}
