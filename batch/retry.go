package batch

import (
	"context"

	"github.com/christianvidalwolf-prog/promochecker/models"
)

// FailedRows returns the row identities of results with an ERROR_* status,
// in result order.
func FailedRows(results []models.PromoCheckResult) []int {
	var rows []int
	for _, r := range results {
		if r.Status.IsError() {
			rows = append(rows, r.Row)
		}
	}
	return rows
}

// Merge returns a new slice in which every fixed result replaces the
// previous result with the same Row. Neither argument is modified; fixed
// results with no matching row are ignored.
func Merge(previous, fixed []models.PromoCheckResult) []models.PromoCheckResult {
	byRow := make(map[int]models.PromoCheckResult, len(fixed))
	for _, f := range fixed {
		byRow[f.Row] = f
	}
	merged := make([]models.PromoCheckResult, len(previous))
	for i, p := range previous {
		if f, ok := byRow[p.Row]; ok {
			merged[i] = f
			continue
		}
		merged[i] = p
	}
	return merged
}

// RetryFailed reprocesses only the inputs whose previous result failed and
// returns the merged full result set. With nothing to retry it returns a
// copy of previous without starting a session.
func (r *Runner) RetryFailed(ctx context.Context, inputs []models.ProductCheckInput, previous []models.PromoCheckResult, headless bool, onProgress ProgressFunc) ([]models.PromoCheckResult, error) {
	failed := make(map[int]struct{})
	for _, row := range FailedRows(previous) {
		failed[row] = struct{}{}
	}

	var subset []models.ProductCheckInput
	for _, in := range inputs {
		if _, ok := failed[in.Row]; ok {
			subset = append(subset, in)
		}
	}
	if len(subset) == 0 {
		if onProgress != nil {
			onProgress(1.0)
		}
		return Merge(previous, nil), nil
	}

	fixed, err := r.ProcessAll(ctx, subset, headless, onProgress)
	return Merge(previous, fixed), err
}
