package pipeline

import (
	"fmt"

	"github.com/ignite/conversion-relay/internal/ads"
	"github.com/ignite/conversion-relay/internal/pkg/logger"
)

// Batch size bounds accepted by the upstream upload endpoint.
const (
	MinBatchSize     = 1
	MaxBatchSize     = 2000
	DefaultBatchSize = 100
)

// clampBatchSize forces the configured size into [MinBatchSize,
// MaxBatchSize]. Out-of-range input is clamped with a diagnostic note,
// not rejected.
func clampBatchSize(n int) int {
	if n == 0 {
		return DefaultBatchSize
	}
	if n < MinBatchSize {
		logger.Warn("batch size below minimum, clamping", "requested", fmt.Sprintf("%d", n), "clamped", fmt.Sprintf("%d", MinBatchSize))
		return MinBatchSize
	}
	if n > MaxBatchSize {
		logger.Warn("batch size above maximum, clamping", "requested", fmt.Sprintf("%d", n), "clamped", fmt.Sprintf("%d", MaxBatchSize))
		return MaxBatchSize
	}
	return n
}

// BatchPlan partitions built records into ordered batches while keeping
// a side table from batch-local position back to the original item
// index. The side table is what makes partial-failure attribution
// possible. Read-only after construction.
type BatchPlan struct {
	batches [][]ads.ConversionRecord
	origins [][]int
}

// planBatches splits records (paired with their original item indices)
// into batches of at most batchSize, preserving relative order.
func planBatches(records []ads.ConversionRecord, indices []int, batchSize int) BatchPlan {
	var plan BatchPlan
	for start := 0; start < len(records); start += batchSize {
		end := start + batchSize
		if end > len(records) {
			end = len(records)
		}
		plan.batches = append(plan.batches, records[start:end])
		plan.origins = append(plan.origins, indices[start:end])
	}
	return plan
}

// NumBatches returns how many batches the plan holds.
func (p BatchPlan) NumBatches() int { return len(p.batches) }

// Batch returns batch b and its position→original-index side table.
func (p BatchPlan) Batch(b int) ([]ads.ConversionRecord, []int) {
	return p.batches[b], p.origins[b]
}
