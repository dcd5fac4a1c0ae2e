package grading

import "sort"

// Choice is one answer option of a question as the grader sees it.
type Choice struct {
	ID      string
	Correct bool
}

// Q is a minimal view of a question needed for grading.
type Q struct {
	ID      string
	Choices []Choice
}

// Kind reports which strategy applies to q.
func (q Q) Kind() string {
	n := 0
	for _, c := range q.Choices {
		if c.Correct {
			n++
		}
	}
	if n > 1 {
		return KindMulti
	}
	return KindSingle
}

const (
	KindSingle = "single"
	KindMulti  = "multi"
)

// Result is the outcome of grading one question.
type Result struct {
	Correct  bool
	Answered bool
	// Selected keeps only ids that belong to the question, sorted.
	Selected []string
	// Expected lists the ids of the correct choices, sorted.
	Expected []string
}

// Strategy grades a single question.
type Strategy interface {
	Grade(q Q, selected []string) Result
}

// Grader routes by question kind to the correct Strategy.
type Grader interface {
	Grade(q Q, selected []string) Result
}

type defaultGrader struct {
	strategies map[string]Strategy
}

func (g *defaultGrader) Grade(q Q, selected []string) Result {
	s, ok := g.strategies[q.Kind()]
	if !ok {
		return baseResult(q, selected)
	}
	return s.Grade(q, selected)
}

// NewDefaultGrader installs the strict strategies: a question counts only when
// every correct choice and no incorrect choice was selected. There is no
// partial credit.
func NewDefaultGrader() Grader {
	return &defaultGrader{
		strategies: map[string]Strategy{
			KindSingle: singleStrategy{},
			KindMulti:  multiStrategy{},
		},
	}
}

// --- Strategies ---

type singleStrategy struct{}

func (singleStrategy) Grade(q Q, selected []string) Result {
	res := baseResult(q, selected)
	if len(res.Selected) != 1 || len(res.Expected) != 1 {
		return res
	}
	res.Correct = res.Selected[0] == res.Expected[0]
	return res
}

type multiStrategy struct{}

func (multiStrategy) Grade(q Q, selected []string) Result {
	res := baseResult(q, selected)
	if len(res.Expected) == 0 {
		return res
	}
	res.Correct = setEqual(toSet(res.Selected), toSet(res.Expected))
	return res
}

// Percentage is score/total*100 rounded half up; 0 when total is 0.
func Percentage(score, total int) int {
	if total <= 0 {
		return 0
	}
	return (score*200 + total) / (2 * total)
}

// Passed reports whether percentage meets threshold.
func Passed(percentage, threshold int) bool { return percentage >= threshold }

// helpers

func baseResult(q Q, selected []string) Result {
	known := make(map[string]bool, len(q.Choices))
	res := Result{Selected: []string{}, Expected: []string{}}
	for _, c := range q.Choices {
		known[c.ID] = true
		if c.Correct {
			res.Expected = append(res.Expected, c.ID)
		}
	}
	seen := map[string]bool{}
	for _, id := range selected {
		if known[id] && !seen[id] {
			seen[id] = true
			res.Selected = append(res.Selected, id)
		}
	}
	sort.Strings(res.Selected)
	sort.Strings(res.Expected)
	res.Answered = len(res.Selected) > 0
	return res
}

func toSet(arr []string) map[string]struct{} {
	m := make(map[string]struct{}, len(arr))
	for _, s := range arr {
		m[s] = struct{}{}
	}
	return m
}

func setEqual(a, b map[string]struct{}) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}
