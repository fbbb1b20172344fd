package fetcher

import (
	"context"

	"match-alerts/internal/domain"
)

// SnapshotSource retrieves the current set of live match snapshots.
// Implementations may fail transiently; the orchestrator treats an error
// as a skipped cycle, never as a fatal condition.
type SnapshotSource interface {
	FetchCurrentMatches(ctx context.Context) ([]domain.MatchSnapshot, error)
}
