package pipeline

import (
	"context"

	"github.com/JonMunkholm/shortages/internal/core"
	"github.com/JonMunkholm/shortages/internal/logging"
)

// verify re-counts every successfully loaded table. A mismatch or a failed
// count is recorded and logged; neither changes the table status.
func (r *Runner) verify(ctx context.Context, report *Report) {
	for i := range report.Tables {
		tr := &report.Tables[i]
		if tr.Status != TableSuccess {
			continue
		}
		logger := logging.WithFields(ctx, "table", tr.Table)

		counted, err := r.store.CountRows(ctx, tr.Table)
		if err != nil {
			verifyErr := &core.VerificationError{Table: tr.Table, Err: err}
			tr.ErrorCode = core.MapError(verifyErr).Code
			tr.Error = verifyErr.Error()
			logger.Warn("verification count failed", "error", err, "code", tr.ErrorCode)
			continue
		}
		tr.RowsVerified = &counted

		if counted != tr.RowsPersisted {
			mismatch := &core.VerificationMismatch{Table: tr.Table, Reported: tr.RowsPersisted, Counted: counted}
			tr.Mismatch = true
			tr.ErrorCode = core.MapError(mismatch).Code
			tr.Error = mismatch.Error()
			r.metrics.IncrementMismatch(tr.Table)
			logger.Warn("row count mismatch",
				"error", mismatch,
				"code", tr.ErrorCode,
				"persisted", tr.RowsPersisted,
				"counted", counted,
			)
			continue
		}

		logger.Debug("verified", "rows", counted)
	}
}
