// Package postgres is a pgx-backed implementation of store.Store
// (spec.md §4.3), grounded on the table layout of the original
// Supabase adapter
// (_examples/original_source/data_labelling/archer/database/supabase.py)
// and on the jackc/pgx/v5 + pashagolub/pgxmock/v4 pairing the example
// pack uses for Postgres access
// (_examples/longregen-alicia/go.mod). schema.sql carries the DDL.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/archerhq/archer/archererr"
	"github.com/archerhq/archer/store"
)

// dbConn is the narrow slice of pgxpool.Pool's API this package needs.
// Depending on it instead of the concrete pool lets tests substitute
// pgxmock.PgxPoolIface directly, without a running database.
type dbConn interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Store is a Postgres-backed store.Store.
type Store struct {
	conn dbConn
	pool *pgxpool.Pool // non-nil only when this Store owns the pool's lifecycle
}

// Connect opens a pool against dsn and verifies connectivity.
func Connect(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, archererr.Wrap(archererr.KindStore, "connecting to postgres", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, archererr.Wrap(archererr.KindStore, "pinging postgres", err)
	}
	return &Store{conn: pool, pool: pool}, nil
}

// New wraps any dbConn — a *pgxpool.Pool in production, a
// pgxmock.PgxPoolIface in tests.
func New(conn dbConn) *Store {
	return &Store{conn: conn}
}

// Close releases the underlying pool, if this Store owns one.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

func (s *Store) StorePrompt(ctx context.Context, content, modelID, purpose string, generation int, parentID *uuid.UUID) (uuid.UUID, error) {
	id := uuid.New()
	_, err := s.conn.Exec(ctx, `
		INSERT INTO archer_prompts (id, content, model_id, purpose, generation, parent_id)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		id, content, modelID, purpose, generation, parentID)
	if err != nil {
		return uuid.Nil, archererr.Wrap(archererr.KindStore, "storing prompt", err)
	}
	return id, nil
}

func (s *Store) UpdatePromptPerformance(ctx context.Context, promptID uuid.UUID, avgScore *float64, survived bool) error {
	tag, err := s.conn.Exec(ctx, `
		INSERT INTO archer_prompt_performance (prompt_id, avg_score, survived)
		SELECT $1, $2, $3 WHERE EXISTS (SELECT 1 FROM archer_prompts WHERE id = $1)`,
		promptID, avgScore, survived)
	if err != nil {
		return archererr.Wrap(archererr.KindStore, "recording prompt performance", err)
	}
	if tag.RowsAffected() == 0 {
		return archererr.New(archererr.KindStore, fmt.Sprintf("unknown prompt %s", promptID))
	}
	return nil
}

func (s *Store) StoreGeneratedContent(ctx context.Context, inputData, content string, promptID uuid.UUID, roundNum int) (uuid.UUID, error) {
	id := uuid.New()
	_, err := s.conn.Exec(ctx, `
		INSERT INTO archer_outputs (id, prompt_id, input_data, content, round_num)
		VALUES ($1, $2, $3, $4, $5)`,
		id, promptID, inputData, content, roundNum)
	if err != nil {
		return uuid.Nil, archererr.Wrap(archererr.KindStore, "storing generated content", err)
	}
	return id, nil
}

func (s *Store) StoreEvaluation(ctx context.Context, outputID uuid.UUID, score *int, feedback, improvedOutput string, isHuman bool, evaluatorID string, coerced bool) (uuid.UUID, error) {
	id := uuid.New()
	_, err := s.conn.Exec(ctx, `
		INSERT INTO archer_evaluations (id, output_id, score, feedback, improved_output, is_human, evaluator_id, coerced)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		id, outputID, score, feedback, improvedOutput, isHuman, evaluatorID, coerced)
	if err != nil {
		return uuid.Nil, archererr.Wrap(archererr.KindStore, "storing evaluation", err)
	}
	return id, nil
}

func (s *Store) StoreHumanFeedback(ctx context.Context, outputID uuid.UUID, score *int, feedback, improvedOutput string) (uuid.UUID, error) {
	return s.StoreEvaluation(ctx, outputID, score, feedback, improvedOutput, true, "human", false)
}

func (s *Store) GetPrompt(ctx context.Context, id uuid.UUID) (*store.StoredPrompt, error) {
	row := s.conn.QueryRow(ctx, `
		SELECT id, content, model_id, purpose, generation, parent_id, created_at
		FROM archer_prompts WHERE id = $1`, id)

	var p store.StoredPrompt
	if err := row.Scan(&p.ID, &p.Content, &p.ModelID, &p.Purpose, &p.Generation, &p.ParentID, &p.CreatedAt); err != nil {
		return nil, archererr.Wrap(archererr.KindStore, fmt.Sprintf("fetching prompt %s", id), err)
	}
	return &p, nil
}

func (s *Store) GetCurrentDataForAnnotation(ctx context.Context, roundNum, limit int) ([]store.AnnotationItem, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT o.id, o.input_data, o.content, o.prompt_id,
		       e.id, e.score, e.feedback, e.improved_output, e.evaluator_id, e.coerced
		FROM archer_outputs o
		LEFT JOIN LATERAL (
			SELECT * FROM archer_evaluations
			WHERE output_id = o.id AND is_human = false
			ORDER BY created_at DESC LIMIT 1
		) e ON true
		WHERE o.round_num = $1
		  AND NOT EXISTS (
		      SELECT 1 FROM archer_evaluations h
		      WHERE h.output_id = o.id AND h.is_human = true
		  )
		ORDER BY o.created_at ASC
		LIMIT NULLIF($2, 0)`, roundNum, limit)
	if err != nil {
		return nil, archererr.Wrap(archererr.KindStore, "fetching annotation data", err)
	}
	defer rows.Close()

	var items []store.AnnotationItem
	for rows.Next() {
		var item store.AnnotationItem
		var evalID *uuid.UUID
		var score *int
		var feedback, improved, evaluatorID *string
		var coerced *bool
		if err := rows.Scan(&item.OutputID, &item.Input, &item.Content, &item.PromptID,
			&evalID, &score, &feedback, &improved, &evaluatorID, &coerced); err != nil {
			return nil, archererr.Wrap(archererr.KindStore, "scanning annotation row", err)
		}
		if evalID != nil {
			item.AIEvaluation = &store.EvaluationResult{
				ID:             *evalID,
				OutputID:       item.OutputID,
				Score:          score,
				Feedback:       deref(feedback),
				ImprovedOutput: deref(improved),
				EvaluatorID:    deref(evaluatorID),
				Coerced:        coerced != nil && *coerced,
			}
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// GetCurrentBestPrompts aggregates each output's effective evaluation —
// its latest human evaluation if one exists, else its latest AI
// evaluation — picked by the LATERAL subquery's `is_human DESC, created_at
// DESC` ordering (DESIGN.md's human-preferred, AI-fallback decision). A
// second LATERAL join picks up each prompt's latest survival snapshot, so
// the control loop's SELECT_ACTIVE can recover the candidate set (spec.md
// §3 invariant 4, §4.8) from this one query.
func (s *Store) GetCurrentBestPrompts(ctx context.Context, topN int) ([]store.BestPrompt, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT p.id, p.content, p.generation, p.created_at,
		       ROUND(AVG(eff.score) FILTER (WHERE eff.score IS NOT NULL)::numeric, 2) AS mean_score,
		       COUNT(eff.score) FILTER (WHERE eff.score IS NOT NULL) AS eval_count,
		       COALESCE(bool_or(perf.survived), false) AS survived,
		       bool_or(perf.prompt_id IS NOT NULL) AS has_performance_record
		FROM archer_prompts p
		LEFT JOIN archer_outputs o ON o.prompt_id = p.id
		LEFT JOIN LATERAL (
			SELECT score FROM archer_evaluations
			WHERE output_id = o.id
			ORDER BY is_human DESC, created_at DESC
			LIMIT 1
		) eff ON true
		LEFT JOIN LATERAL (
			SELECT prompt_id, survived FROM archer_prompt_performance
			WHERE prompt_id = p.id
			ORDER BY recorded_at DESC LIMIT 1
		) perf ON true
		GROUP BY p.id, p.content, p.generation, p.created_at
		ORDER BY mean_score DESC NULLS LAST, eval_count DESC, p.created_at ASC
		LIMIT NULLIF($1, 0)`, topN)
	if err != nil {
		return nil, archererr.Wrap(archererr.KindStore, "fetching best prompts", err)
	}
	defer rows.Close()

	var out []store.BestPrompt
	for rows.Next() {
		var b store.BestPrompt
		if err := rows.Scan(&b.PromptID, &b.Content, &b.Generation, &b.CreatedAt, &b.MeanScore, &b.EvaluationCount, &b.Survived, &b.HasPerformanceRecord); err != nil {
			return nil, archererr.Wrap(archererr.KindStore, "scanning best-prompt row", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// GetPerformanceMetrics aggregates each prompt's latest performance
// snapshot only (the LATERAL subquery's `recorded_at DESC LIMIT 1`),
// rather than every append-only row a re-recorded prompt has accumulated
// (spec.md property 6).
func (s *Store) GetPerformanceMetrics(ctx context.Context, maxRounds int) ([]store.GenerationMetrics, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT p.generation,
		       ROUND(AVG(latest.avg_score) FILTER (WHERE latest.avg_score IS NOT NULL)::numeric, 2) AS mean_score,
		       ROUND(MAX(latest.avg_score)::numeric, 2) AS best_score,
		       AVG(CASE WHEN latest.survived THEN 1.0 ELSE 0.0 END) AS survival_ratio,
		       COUNT(*) AS prompt_count
		FROM archer_prompts p
		JOIN LATERAL (
			SELECT avg_score, survived FROM archer_prompt_performance
			WHERE prompt_id = p.id
			ORDER BY recorded_at DESC LIMIT 1
		) latest ON true
		GROUP BY p.generation
		ORDER BY p.generation DESC
		LIMIT NULLIF($1, 0)`, maxRounds)
	if err != nil {
		return nil, archererr.Wrap(archererr.KindStore, "fetching performance metrics", err)
	}
	defer rows.Close()

	var out []store.GenerationMetrics
	for rows.Next() {
		var g store.GenerationMetrics
		if err := rows.Scan(&g.Generation, &g.MeanScore, &g.BestScore, &g.SurvivalRatio, &g.PromptCount); err != nil {
			return nil, archererr.Wrap(archererr.KindStore, "scanning metrics row", err)
		}
		out = append(out, g)
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, rows.Err()
}

func (s *Store) GetPromptHistory(ctx context.Context) ([]store.PromptHistoryEntry, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT p.generation, p.id, p.parent_id, LEFT(p.content, 120),
		       (SELECT pp.avg_score FROM archer_prompt_performance pp
		        WHERE pp.prompt_id = p.id ORDER BY pp.recorded_at DESC LIMIT 1)
		FROM archer_prompts p
		ORDER BY p.generation ASC, p.id ASC`)
	if err != nil {
		return nil, archererr.Wrap(archererr.KindStore, "fetching prompt history", err)
	}
	defer rows.Close()

	var out []store.PromptHistoryEntry
	for rows.Next() {
		var e store.PromptHistoryEntry
		if err := rows.Scan(&e.Generation, &e.PromptID, &e.ParentID, &e.ContentExcerpt, &e.MeanScore); err != nil {
			return nil, archererr.Wrap(archererr.KindStore, "scanning history row", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// CommitGeneration wraps the survivor updates and variant inserts in a
// single transaction, per spec.md §7's all-or-nothing commit
// requirement.
func (s *Store) CommitGeneration(ctx context.Context, survivors []store.PerformanceRecord, variants []store.StoredPrompt) error {
	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return archererr.Wrap(archererr.KindStore, "beginning commit transaction", err)
	}

	for _, sv := range survivors {
		tag, err := tx.Exec(ctx, `
			INSERT INTO archer_prompt_performance (prompt_id, avg_score, survived)
			SELECT $1, $2, $3 WHERE EXISTS (SELECT 1 FROM archer_prompts WHERE id = $1)`,
			sv.PromptID, sv.AvgScore, sv.Survived)
		if err != nil {
			_ = tx.Rollback(ctx)
			return archererr.Wrap(archererr.KindStore, "committing survivor record", err)
		}
		if tag.RowsAffected() == 0 {
			_ = tx.Rollback(ctx)
			return archererr.New(archererr.KindStore, fmt.Sprintf("commit references unknown prompt %s", sv.PromptID))
		}
	}

	for _, v := range variants {
		createdAt := v.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now()
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO archer_prompts (id, content, model_id, purpose, generation, parent_id, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			v.ID, v.Content, v.ModelID, v.Purpose, v.Generation, v.ParentID, createdAt); err != nil {
			_ = tx.Rollback(ctx)
			return archererr.Wrap(archererr.KindStore, "committing variant prompt", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return archererr.Wrap(archererr.KindStore, "committing generation", err)
	}
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

var _ store.Store = (*Store)(nil)
