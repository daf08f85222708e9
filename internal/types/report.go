package types

import "time"

// RunReport summarizes one executed operation of a settlement run. It is
// persisted and published so operators can follow each epoch.
type RunReport struct {
	ID           string    `json:"id"`
	Epoch        uint64    `json:"epoch"`
	Operation    string    `json:"operation"`
	AttemptedTxs int       `json:"attempted_txs"`
	AttemptedIxs int       `json:"attempted_ixs"`
	ExecutedTxs  int       `json:"executed_txs"`
	ExecutedIxs  int       `json:"executed_ixs"`
	Failures     []string  `json:"failures,omitempty"`
	ErrorCode    ErrorCode `json:"error_code,omitempty"`
	StartedAt    time.Time `json:"started_at"`
	FinishedAt   time.Time `json:"finished_at"`
}

func (r *RunReport) Succeeded() bool {
	return len(r.Failures) == 0 && r.ErrorCode == ""
}
