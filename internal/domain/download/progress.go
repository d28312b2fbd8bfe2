package download

// Progress is a snapshot of transfer progress. It is passed by value.
type Progress struct {
	// Total is the expected length in bytes, or <= 0 when unknown
	Total int64
	// Current is the number of bytes transferred so far
	Current int64
	// Update is the number of bytes since the previous notification
	Update int64
	// Percent is in [0, 100]
	Percent int
}

// NewProgress computes the percent for current out of total
func NewProgress(total, current, update int64) Progress {
	return Progress{
		Total:   total,
		Current: current,
		Update:  update,
		Percent: Percent(current, total),
	}
}

// CompleteProgress returns a finished snapshot for a resource of the given length
func CompleteProgress(length int64) Progress {
	return Progress{
		Total:   length,
		Current: length,
		Update:  length,
		Percent: 100,
	}
}

// Percent returns current/total as an integer percentage clamped to [0, 100]
func Percent(current, total int64) int {
	if total <= 0 {
		return 0
	}
	p := int(current * 100 / total)
	switch {
	case p < 0:
		return 0
	case p > 100:
		return 100
	default:
		return p
	}
}
