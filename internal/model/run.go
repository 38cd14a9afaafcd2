// Package model holds the records persisted for dedup and match runs.
package model

import "time"

// RunKind identifies the operation a run performed.
type RunKind string

const (
	RunKindDedup RunKind = "dedup"
	RunKindMatch RunKind = "match"
)

// RunStatus represents the current state of a run.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// RunParams records the inputs of a run so sessions can be compared.
type RunParams struct {
	Primary         string  `json:"primary" yaml:"primary"`
	Secondary       string  `json:"secondary,omitempty" yaml:"secondary,omitempty"`
	ToleranceArcsec float64 `json:"tolerance_arcsec" yaml:"tolerance_arcsec"`
	IDColumn        string  `json:"id_column,omitempty" yaml:"id_column,omitempty"`
	RankColumn      string  `json:"rank_column,omitempty" yaml:"rank_column,omitempty"`
	Index           string  `json:"index,omitempty" yaml:"index,omitempty"`
	Metric          string  `json:"metric,omitempty" yaml:"metric,omitempty"`
	OnMalformed     string  `json:"on_malformed,omitempty" yaml:"on_malformed,omitempty"`
}

// RunResult holds the outcome of a run.
type RunResult struct {
	InputRows      int    `json:"input_rows" yaml:"input_rows"`
	OutputRows     int    `json:"output_rows" yaml:"output_rows"`
	PrimaryMatched int    `json:"primary_matched,omitempty" yaml:"primary_matched,omitempty"`
	Skipped        int    `json:"skipped" yaml:"skipped"`
	Output         string `json:"output,omitempty" yaml:"output,omitempty"`
	Error          string `json:"error,omitempty" yaml:"error,omitempty"`
}

// Run is one dedup or match invocation.
type Run struct {
	ID        string     `json:"id" yaml:"id"`
	Kind      RunKind    `json:"kind" yaml:"kind"`
	Status    RunStatus  `json:"status" yaml:"status"`
	Params    RunParams  `json:"params" yaml:"params"`
	Result    *RunResult `json:"result,omitempty" yaml:"result,omitempty"`
	CreatedAt time.Time  `json:"created_at" yaml:"created_at"`
	UpdatedAt time.Time  `json:"updated_at" yaml:"updated_at"`
}

// Association is one persisted row of a match run's association table.
// Seq preserves table order.
type Association struct {
	RunID            string  `json:"run_id" yaml:"run_id"`
	Seq              int     `json:"seq" yaml:"seq"`
	PrimaryID        string  `json:"primary_id" yaml:"primary_id"`
	PrimaryRow       int     `json:"primary_row" yaml:"primary_row"`
	SecondaryRow     int     `json:"secondary_row" yaml:"secondary_row"`
	RA               float64 `json:"ra" yaml:"ra"`
	Dec              float64 `json:"dec" yaml:"dec"`
	SeparationArcsec float64 `json:"separation_arcsec" yaml:"separation_arcsec"`
}
