package model

import "time"

// RunKind identifies which pipeline a run executed.
type RunKind string

const (
	RunKindDedup    RunKind = "dedup"
	RunKindTaxonomy RunKind = "taxonomy"
	RunKindTransfer RunKind = "transfer"
)

// RunStatus tracks run lifecycle.
type RunStatus string

const (
	RunStatusQueued   RunStatus = "queued"
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// RunInput records what a run was asked to process.
type RunInput struct {
	SourcePath  string `json:"source_path,omitempty"`
	TargetPath  string `json:"target_path,omitempty"`
	Profile     string `json:"profile,omitempty"`
	RecordCount int    `json:"record_count,omitempty"`
}

// RunSummary is the persisted outcome of a completed run. Only the
// fields relevant to the run's kind are populated.
type RunSummary struct {
	InputSkills     int     `json:"input_skills,omitempty"`
	UniqueSkills    int     `json:"unique_skills,omitempty"`
	DuplicateGroups int     `json:"duplicate_groups,omitempty"`
	MergedSkills    int     `json:"merged_skills,omitempty"`
	FacetedSkills   int     `json:"faceted_skills,omitempty"`
	FamilyAssigned  int     `json:"family_assigned,omitempty"`
	CoverageRatio   float64 `json:"coverage_ratio,omitempty"`
	AlignmentScore  float64 `json:"alignment_score,omitempty"`
	Recommendation  string  `json:"recommendation,omitempty"`
	DurationSeconds float64 `json:"duration_seconds,omitempty"`
	Error           string  `json:"error,omitempty"`
}

// Run is one execution of a pipeline.
type Run struct {
	ID        string      `json:"id"`
	Kind      RunKind     `json:"kind"`
	Input     RunInput    `json:"input"`
	Status    RunStatus   `json:"status"`
	Result    *RunSummary `json:"result,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}
