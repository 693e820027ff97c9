// Package prompt implements the Prompt entity (spec.md §3, §4.2): an
// immutable-identity record carrying content, generation, score,
// feedback, survival flag, and parent linkage. It follows the teacher's
// builder shape (llm.Prompt's NewPrompt/With* chain) but replaces the
// teacher's Input/Output/Directives fields with the ones this
// specification names.
//
// Ownership: the Database Adapter (package store) exclusively owns
// persistence. A *Prompt held by the control loop is a view; attaching a
// score or marking survival only mutates the in-memory view; it is the
// caller's responsibility to persist the change via store so that every
// attachment produces a fresh, append-only performance record (spec.md
// §4.2's "each attachment is also persisted" guarantee).
package prompt

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Slot is the single substitution point every prompt and every variant
// must contain exactly once.
const Slot = "{input}"

// Prompt is the immutable-identity record described by spec.md §3.
type Prompt struct {
	ID         uuid.UUID
	Content    string
	Generation int
	ModelID    string
	Purpose    string
	Score      *float64
	Feedback   string
	Survived   bool
	ParentID   *uuid.UUID
	CreatedAt  time.Time
}

// New constructs a generation-0 prompt. derive_child (DeriveChild) is the
// only way to create a prompt at a later generation, per spec.md §4.2.
func New(content, modelID, purpose string) *Prompt {
	return &Prompt{
		ID:        uuid.New(),
		Content:   content,
		ModelID:   modelID,
		Purpose:   purpose,
		CreatedAt: time.Now(),
	}
}

// AttachScore records the prompt's current score and feedback. Repeated
// calls replace the in-memory value (last-writer-wins); history is
// recovered from the append-only performance records the caller persists
// alongside each call.
func (p *Prompt) AttachScore(score *float64, feedback string) {
	p.Score = score
	p.Feedback = feedback
}

// MarkSurvived sets the survival flag. survived=true means this prompt
// appears as a candidate in the next generation (spec.md §3).
func (p *Prompt) MarkSurvived(survived bool) {
	p.Survived = survived
}

// DeriveChild creates a new generation+1 prompt with parent_id set to p's
// id. It is the only constructor that produces a prompt at generation>0.
func (p *Prompt) DeriveChild(newContent string) *Prompt {
	parent := p.ID
	return &Prompt{
		ID:         uuid.New(),
		Content:    newContent,
		Generation: p.Generation + 1,
		ModelID:    p.ModelID,
		Purpose:    p.Purpose,
		ParentID:   &parent,
		CreatedAt:  time.Now(),
	}
}

// HasSlot reports whether content contains the {input} slot at least
// once.
func HasSlot(content string) bool {
	return strings.Contains(content, Slot)
}

// HasExactlyOneSlot reports whether content contains the {input} slot
// exactly once, the invariant spec.md §8 (property 7) requires of every
// persisted variant.
func HasExactlyOneSlot(content string) bool {
	return strings.Count(content, Slot) == 1
}
