// Package store implements the Database Adapter (spec.md §4.3): the
// exclusive owner of prompt, output, evaluation, and human-feedback
// persistence, plus the aggregate queries the control loop needs for
// selection. Two implementations are provided: store/memory (an
// in-memory reference used by tests and simple embedders) and
// store/postgres (a pgx-backed implementation for production use),
// mirroring the table shapes the original Python implementation's
// Supabase adapter used
// (_examples/original_source/data_labelling/archer/database/supabase.py).
package store

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// EvaluationResult is the outcome of scoring one output. Score is nil
// when the evaluator could not parse a structured response (spec.md
// §4.5's persistent parse-failure path); such evaluations are recorded
// but excluded from aggregates.
type EvaluationResult struct {
	ID             uuid.UUID
	OutputID       uuid.UUID
	Score          *int
	Feedback       string
	ImprovedOutput string
	IsHuman        bool
	EvaluatorID    string
	Coerced        bool
	CreatedAt      time.Time
}

// OutputRecord is one generated output (spec.md §3).
type OutputRecord struct {
	ID        uuid.UUID
	PromptID  uuid.UUID
	InputData string
	Content   string
	RoundNum  int
	CreatedAt time.Time
}

// PerformanceRecord is one append-only snapshot of a prompt's aggregate
// score and survival decision (spec.md §3, §4.3).
type PerformanceRecord struct {
	PromptID   uuid.UUID
	AvgScore   *float64
	Survived   bool
	RecordedAt time.Time
}

// AnnotationItem is one row surfaced to a human annotator (spec.md
// §4.3's get_current_data_for_annotation).
type AnnotationItem struct {
	OutputID     uuid.UUID
	Input        string
	Content      string
	PromptID     uuid.UUID
	AIEvaluation *EvaluationResult
}

// BestPrompt is one entry of get_current_best_prompts, carrying the
// aggregate fields the tie-break rule (spec.md §4.3) needs, plus the
// prompt's latest survival snapshot so the control loop's SELECT_ACTIVE
// can recover the candidate set (spec.md §3 invariant 4, §4.8) without a
// second query.
type BestPrompt struct {
	PromptID        uuid.UUID
	Content         string
	Generation      int
	MeanScore       *float64
	EvaluationCount int
	CreatedAt       time.Time
	// Survived is the prompt's most recent prompt_performance.survived
	// value, or false if it has never been through a backward pass.
	Survived bool
	// HasPerformanceRecord is true once the prompt has been through at
	// least one backward pass. False for freshly committed variants and
	// freshly seeded generation-0 prompts, which are eligible as
	// candidates precisely because they have no prior verdict yet.
	HasPerformanceRecord bool
}

// GenerationMetrics is one row of get_performance_metrics.
type GenerationMetrics struct {
	Generation    int
	MeanScore     *float64
	BestScore     *float64
	SurvivalRatio float64
	PromptCount   int
}

// PromptHistoryEntry is one row of get_prompt_history.
type PromptHistoryEntry struct {
	Generation     int
	PromptID       uuid.UUID
	ParentID       *uuid.UUID
	ContentExcerpt string
	MeanScore      *float64
}

// StoredPrompt is a persisted prompt row, independent of the in-memory
// prompt.Prompt view the control loop holds.
type StoredPrompt struct {
	ID         uuid.UUID
	Content    string
	ModelID    string
	Purpose    string
	Generation int
	ParentID   *uuid.UUID
	CreatedAt  time.Time
}

// Store is the Database Adapter's public contract (spec.md §4.3). Every
// operation is safe for concurrent use; write ordering guarantees live in
// the implementation (a single SQL transaction for postgres, a mutex for
// memory).
type Store interface {
	StorePrompt(ctx context.Context, content, modelID, purpose string, generation int, parentID *uuid.UUID) (uuid.UUID, error)
	UpdatePromptPerformance(ctx context.Context, promptID uuid.UUID, avgScore *float64, survived bool) error
	StoreGeneratedContent(ctx context.Context, inputData, content string, promptID uuid.UUID, roundNum int) (uuid.UUID, error)
	StoreEvaluation(ctx context.Context, outputID uuid.UUID, score *int, feedback, improvedOutput string, isHuman bool, evaluatorID string, coerced bool) (uuid.UUID, error)
	StoreHumanFeedback(ctx context.Context, outputID uuid.UUID, score *int, feedback, improvedOutput string) (uuid.UUID, error)

	GetPrompt(ctx context.Context, id uuid.UUID) (*StoredPrompt, error)
	GetCurrentDataForAnnotation(ctx context.Context, roundNum, limit int) ([]AnnotationItem, error)
	GetCurrentBestPrompts(ctx context.Context, topN int) ([]BestPrompt, error)
	GetPerformanceMetrics(ctx context.Context, maxRounds int) ([]GenerationMetrics, error)
	GetPromptHistory(ctx context.Context) ([]PromptHistoryEntry, error)

	// CommitGeneration atomically persists survivor flags and newly
	// created variant prompts, and must be all-or-nothing (spec.md §7:
	// "a cycle either commits atomically... or commits nothing").
	CommitGeneration(ctx context.Context, survivors []PerformanceRecord, variants []StoredPrompt) error
}
