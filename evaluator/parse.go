package evaluator

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

// parsedEvaluation is the pre-clamp result of label extraction.
type parsedEvaluation struct {
	score          int
	scoreValid     bool
	outOfRange     bool
	feedback       string
	improvedOutput string
}

// clamp applies spec.md §4.5 step 5: clamp to 1..5, flag coerced when
// clamping or rounding changed the value.
func (p parsedEvaluation) clamp() Result {
	if !p.scoreValid {
		return Result{Feedback: p.feedback, ImprovedOutput: p.improvedOutput}
	}
	score := p.score
	coerced := p.outOfRange
	if score < 1 {
		score, coerced = 1, true
	} else if score > 5 {
		score, coerced = 5, true
	}
	return Result{Score: &score, Feedback: p.feedback, ImprovedOutput: p.improvedOutput, Coerced: coerced}
}

var (
	scoreLabel    = regexp.MustCompile(`(?is)\bscore\b\s*[:\-]\s*([^\n]*)`)
	feedbackLabel = regexp.MustCompile(`(?is)\bfeedback\b\s*[:\-]\s*(.*?)(?:\n\s*improved_output\b|\z)`)
	improvedLabel = regexp.MustCompile(`(?is)\bimproved_output\b\s*[:\-]\s*(.*)`)

	fractionScore = regexp.MustCompile(`(?i)^\s*([0-9]+)\s*/\s*5\b`)
	bareIntScore  = regexp.MustCompile(`^\s*(-?[0-9]+(?:\.[0-9]+)?)`)
)

var spelledOutScores = map[string]int{
	"one": 1, "two": 2, "three": 3, "four": 4, "five": 5,
}

// parseEvaluation tolerantly extracts SCORE/FEEDBACK/IMPROVED_OUTPUT
// sections from raw, per spec.md §4.5 step 3. ok is false when no score
// label could be matched at all (a full parse failure); feedback and
// improved_output are optional and default to empty strings.
func parseEvaluation(raw string) (parsedEvaluation, bool) {
	scoreMatch := scoreLabel.FindStringSubmatch(raw)
	if scoreMatch == nil {
		return parsedEvaluation{}, false
	}

	score, outOfRange, ok := parseScoreValue(scoreMatch[1])
	if !ok {
		return parsedEvaluation{}, false
	}

	p := parsedEvaluation{score: score, scoreValid: true, outOfRange: outOfRange}

	if m := feedbackLabel.FindStringSubmatch(raw); m != nil {
		p.feedback = strings.TrimSpace(m[1])
	}
	if m := improvedLabel.FindStringSubmatch(raw); m != nil {
		p.improvedOutput = strings.TrimSpace(m[1])
	}

	return p, true
}

// parseScoreValue accepts a bare integer, "N/5", or a spelled-out digit
// one..five (spec.md §8 boundary behaviors). A bare decimal such as "3.6"
// is rounded to the nearest integer. outOfRange reports whether the raw
// value fell outside 1..5 before clamping or had to be rounded.
func parseScoreValue(s string) (score int, outOfRange bool, ok bool) {
	s = strings.TrimSpace(s)
	lower := strings.ToLower(s)

	if n, found := spelledOutScores[lower]; found {
		return n, false, true
	}

	if m := fractionScore.FindStringSubmatch(s); m != nil {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			return 0, false, false
		}
		return n, n < 1 || n > 5, true
	}

	if m := bareIntScore.FindStringSubmatch(s); m != nil {
		f, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			return 0, false, false
		}
		n := int(math.Round(f))
		return n, n < 1 || n > 5 || float64(n) != f, true
	}

	return 0, false, false
}
