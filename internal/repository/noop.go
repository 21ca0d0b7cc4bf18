package repository

import "context"

type noopScoreboard struct{}

// NewNoopScoreboard - keeps no score at all. Used when redis is not
// configured; matches still run, totals just stay at zero.
func NewNoopScoreboard() ScoreboardRepository {
	return &noopScoreboard{}
}

func (that *noopScoreboard) RecordOutcome(_ context.Context, _, _ string) error {
	return nil
}

func (that *noopScoreboard) Totals(_ context.Context) (Totals, error) {
	return Totals{}, nil
}
