package model

import (
	"time"

	"github.com/stakebonds/bonds-settlement/internal/types"
)

const RunReportCollection = "run_reports"

type RunReportDocument struct {
	ID           string    `bson:"_id"`
	Epoch        uint64    `bson:"epoch"`
	Operation    string    `bson:"operation"`
	AttemptedTxs int       `bson:"attempted_txs"`
	AttemptedIxs int       `bson:"attempted_ixs"`
	ExecutedTxs  int       `bson:"executed_txs"`
	ExecutedIxs  int       `bson:"executed_ixs"`
	Failures     []string  `bson:"failures"`
	ErrorCode    string    `bson:"error_code,omitempty"`
	StartedAt    time.Time `bson:"started_at"`
	FinishedAt   time.Time `bson:"finished_at"`
}

func FromRunReport(report *types.RunReport) *RunReportDocument {
	return &RunReportDocument{
		ID:           report.ID,
		Epoch:        report.Epoch,
		Operation:    report.Operation,
		AttemptedTxs: report.AttemptedTxs,
		AttemptedIxs: report.AttemptedIxs,
		ExecutedTxs:  report.ExecutedTxs,
		ExecutedIxs:  report.ExecutedIxs,
		Failures:     report.Failures,
		ErrorCode:    report.ErrorCode.String(),
		StartedAt:    report.StartedAt,
		FinishedAt:   report.FinishedAt,
	}
}

func (d *RunReportDocument) ToRunReport() *types.RunReport {
	return &types.RunReport{
		ID:           d.ID,
		Epoch:        d.Epoch,
		Operation:    d.Operation,
		AttemptedTxs: d.AttemptedTxs,
		AttemptedIxs: d.AttemptedIxs,
		ExecutedTxs:  d.ExecutedTxs,
		ExecutedIxs:  d.ExecutedIxs,
		Failures:     d.Failures,
		ErrorCode:    types.ErrorCode(d.ErrorCode),
		StartedAt:    d.StartedAt,
		FinishedAt:   d.FinishedAt,
	}
}
