package pipeline

import (
	"context"

	"github.com/kailas-cloud/nqdecode/internal/domain/feature"
	"github.com/kailas-cloud/nqdecode/internal/domain/rawresult"
)

// ResultStore persists raw results between runs.
type ResultStore interface {
	PutMany(ctx context.Context, results []rawresult.Result) (int, error)
	Lookup(ctx context.Context, ids []feature.UniqueID) (map[feature.UniqueID]rawresult.Result, error)
}
