package normalizer

import (
	"context"
	"fmt"
	"time"

	"github.com/pricefeed/backend/internal/domain"
)

// SafeNormalize runs n.Normalize and converts a panic into a failed result,
// so one bad record cannot take down the batch it belongs to
func SafeNormalize(ctx context.Context, n Normalizer, raw domain.RawRecord, opts domain.NormalizeOptions) (res domain.NormalizationResult) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			res = domain.FailedResult(fmt.Sprintf("%v: %v", domain.ErrBatchItemFault, r))
		}
		if res.ProcessingTime == 0 {
			res.ProcessingTime = time.Since(start)
		}
	}()
	return n.Normalize(ctx, raw, opts)
}

// NormalizeBatch normalizes raws in order, handing each result to emit with
// its 1-based line number, and returns the aggregated stats
func NormalizeBatch(
	ctx context.Context,
	n Normalizer,
	raws []domain.RawRecord,
	opts domain.NormalizeOptions,
	emit func(domain.NormalizationResult),
) domain.NormalizationStats {
	start := time.Now()
	stats := domain.NewNormalizationStats()
	for i, raw := range raws {
		res := SafeNormalize(ctx, n, raw, opts)
		res.LineNumber = i + 1
		stats.Record(res)
		if emit != nil {
			emit(res)
		}
	}
	stats.Batches = 1
	stats.Elapsed = time.Since(start)
	return stats
}
