package analysis

import (
	"context"
	"fmt"
	"time"

	"medbrief/internal/store"
)

// TrendWindow is how far back the publication trend looks.
const TrendWindow = 180 * 24 * time.Hour

// HighCitationPlaceholder is reported for high_citation_count. No citation
// metric is tracked yet, so the field is a fixed zero rather than a computed
// value; consumers depend on its presence.
const HighCitationPlaceholder = 0

// Stats summarizes a topic's literature.
type Stats struct {
	TotalCount         int `json:"total_count"`
	HighCitationCount  int `json:"high_citation_count"`
	ClinicalTrialCount int `json:"clinical_trial_count"`
	MetaAnalysisCount  int `json:"meta_analysis_count"`
}

// Result is the full analysis view for a topic.
type Result struct {
	Stats        Stats                     `json:"stats"`
	Trend        []store.TrendPoint        `json:"trend_data"`
	Distribution []store.DistributionPoint `json:"distribution_data"`
	Literature   []store.Literature        `json:"literature"`
}

// Analyzer computes read-only literature aggregates.
type Analyzer struct {
	store store.Store
}

// NewAnalyzer creates an analyzer over the given store.
func NewAnalyzer(s store.Store) *Analyzer {
	return &Analyzer{store: s}
}

// Analyze returns stats, the trailing-window monthly trend, the per-type
// distribution, and a page of literature for the topic. A topic with no
// literature yields zero counts and empty sequences, not an error.
func (a *Analyzer) Analyze(ctx context.Context, topicID int64, offset, limit int) (*Result, error) {
	total, err := a.store.CountLiterature(ctx, topicID)
	if err != nil {
		return nil, fmt.Errorf("analysis stats: %w", err)
	}
	clinical, err := a.store.CountLiteratureByType(ctx, topicID, "clinical trial")
	if err != nil {
		return nil, fmt.Errorf("analysis stats: %w", err)
	}
	meta, err := a.store.CountLiteratureByType(ctx, topicID, "meta-analysis")
	if err != nil {
		return nil, fmt.Errorf("analysis stats: %w", err)
	}

	since := time.Now().UTC().Add(-TrendWindow)
	trend, err := a.store.LiteratureTrend(ctx, topicID, since)
	if err != nil {
		return nil, fmt.Errorf("analysis trend: %w", err)
	}

	distribution, err := a.store.LiteratureDistribution(ctx, topicID)
	if err != nil {
		return nil, fmt.Errorf("analysis distribution: %w", err)
	}

	literature, err := a.store.ListLiterature(ctx, topicID, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("analysis literature page: %w", err)
	}

	return &Result{
		Stats: Stats{
			TotalCount:         total,
			HighCitationCount:  HighCitationPlaceholder,
			ClinicalTrialCount: clinical,
			MetaAnalysisCount:  meta,
		},
		Trend:        trend,
		Distribution: distribution,
		Literature:   literature,
	}, nil
}
