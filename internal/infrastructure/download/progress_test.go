package download

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/narwhalmedia/segload/internal/domain/download"
)

func TestProgressAggregator_ReportsWholePercentSteps(t *testing.T) {
	var reports []download.Progress
	agg := newProgressAggregator(1000, 0, func(p download.Progress) {
		reports = append(reports, p)
	})

	agg.add(5)  // 0%
	agg.add(5)  // 1%
	agg.add(4)  // still 1%
	agg.add(36) // 5%

	assert.Len(t, reports, 2)
	assert.Equal(t, 1, reports[0].Percent)
	assert.Equal(t, int64(10), reports[0].Current)
	assert.Equal(t, 5, reports[1].Percent)
	assert.Equal(t, int64(36), reports[1].Update)
	assert.Equal(t, int64(50), agg.snapshot())
}

func TestProgressAggregator_SuppressesBelowFloor(t *testing.T) {
	var percents []int
	agg := newProgressAggregator(100, 40, func(p download.Progress) {
		percents = append(percents, p.Percent)
	})

	agg.add(30)
	agg.add(10)
	agg.add(1)
	agg.add(20)

	assert.Equal(t, []int{41, 61}, percents)
}

func TestProgressAggregator_ClampsToTotal(t *testing.T) {
	var last download.Progress
	agg := newProgressAggregator(10, 0, func(p download.Progress) { last = p })

	agg.add(8)
	agg.add(8)

	assert.Equal(t, int64(10), agg.snapshot())
	assert.Equal(t, 100, last.Percent)
	assert.Equal(t, int64(10), last.Current)
}
