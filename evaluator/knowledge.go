package evaluator

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/pkoukk/tiktoken-go"

	"github.com/archerhq/archer/archererr"
)

// KnowledgeBase is a directory-backed collection of short passages
// (spec.md §4.5's "if a knowledge base is provided" collaborator,
// supplemented per SPEC_FULL.md §D.1: the distilled spec leaves passage
// selection external, so this is one concrete, swappable
// implementation, not a hard dependency). Each file in the directory is
// one passage; files are read once at construction time and sorted by
// name for deterministic ordering.
type KnowledgeBase struct {
	passages []string
}

// LoadKnowledgeBase reads every regular file directly inside dir as one
// passage, sorted by filename.
func LoadKnowledgeBase(dir string) (*KnowledgeBase, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, archererr.Wrap(archererr.KindMalformed, "reading knowledge base directory", err)
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	kb := &KnowledgeBase{}
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, archererr.Wrap(archererr.KindMalformed, "reading knowledge base passage "+name, err)
		}
		kb.passages = append(kb.passages, string(data))
	}
	return kb, nil
}

// Passages returns all loaded passages, in deterministic order.
func (kb *KnowledgeBase) Passages() []string {
	return append([]string(nil), kb.passages...)
}

// tokenBoundContext caps the number of passages to maxPassages and the
// total token count (via tiktoken-go, the same library the teacher uses
// for memory truncation in llm/memory.go) to maxTokens, per spec.md
// §4.5's "context handling" paragraph. The first passage that does not
// fit the remaining budget is cut to the tokens that still fit, and no
// later passage is included.
func tokenBoundContext(snippets []string, maxPassages, maxTokens int, encoding *tiktoken.Tiktoken) []string {
	if len(snippets) > maxPassages {
		snippets = snippets[:maxPassages]
	}

	var out []string
	remaining := maxTokens
	for _, s := range snippets {
		if remaining <= 0 {
			break
		}
		tokens := encoding.Encode(s, nil, nil)
		if len(tokens) <= remaining {
			out = append(out, s)
			remaining -= len(tokens)
			continue
		}
		truncated := encoding.Decode(tokens[:remaining])
		out = append(out, truncated)
		remaining = 0
	}
	return out
}
