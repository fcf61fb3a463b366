package enrichment

import (
	"context"
	"fmt"
	"sort"

	"github.com/DeafMist/headline-radar/internal/models"
)

// HeadlineSource iterates every headline in a store.
type HeadlineSource interface {
	ForEachHeadline(ctx context.Context, fn func(models.HeadlineDocument) error) error
}

// EntityAggregator is implemented by stores that can rank entities natively.
type EntityAggregator interface {
	AggregateEntities(ctx context.Context, limit int) ([]models.EntityFrequencyRow, error)
}

// Report ranks entities by how often they appear across enriched headlines.
type Report struct {
	source HeadlineSource
}

// NewReport creates a report over source. When source also implements
// EntityAggregator the ranking is delegated to the store.
func NewReport(source HeadlineSource) (*Report, error) {
	if source == nil {
		return nil, ErrStoreRequired
	}
	return &Report{source: source}, nil
}

// TopEntities returns at most limit entities in descending count order.
func (r *Report) TopEntities(ctx context.Context, limit int) ([]models.EntityFrequencyRow, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidLimit, limit)
	}

	if agg, ok := r.source.(EntityAggregator); ok {
		rows, err := agg.AggregateEntities(ctx, limit)
		if err != nil {
			return nil, fmt.Errorf("aggregate entities: %w", err)
		}
		return rows, nil
	}
	return RankEntities(ctx, r.source, limit)
}

// RankEntities counts every (type, value) pair across the source, sorts by
// count descending and keeps the first limit rows. Ties keep first-seen order.
func RankEntities(ctx context.Context, source HeadlineSource, limit int) ([]models.EntityFrequencyRow, error) {
	counts := make(map[models.EntityAnnotation]int)
	var order []models.EntityAnnotation

	err := source.ForEachHeadline(ctx, func(doc models.HeadlineDocument) error {
		for _, ent := range doc.Entities {
			if _, seen := counts[ent]; !seen {
				order = append(order, ent)
			}
			counts[ent]++
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan headlines: %w", err)
	}

	rows := make([]models.EntityFrequencyRow, 0, len(order))
	for _, ent := range order {
		rows = append(rows, models.EntityFrequencyRow{Entity: ent, Count: counts[ent]})
	}
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].Count > rows[j].Count
	})

	if limit < len(rows) {
		rows = rows[:limit]
	}
	return rows, nil
}
