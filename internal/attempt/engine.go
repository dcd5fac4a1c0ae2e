// Package attempt runs the lifecycle of a quiz attempt: start, record
// answers, and finalize with a score that is a pure function of what was
// persisted.
package attempt

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/mind-engage/mindengage-quiz/internal/grading"
	"github.com/mind-engage/mindengage-quiz/internal/quiz"
)

type AnswerRef struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

type QuestionDetail struct {
	QuestionID   string      `json:"question_id"`
	QuestionText string      `json:"question_text"`
	Selected     []AnswerRef `json:"selected"`
	Correct      []AnswerRef `json:"correct"`
	IsCorrect    bool        `json:"is_correct"`
}

// ScoreResult is the outcome of a completed attempt.
type ScoreResult struct {
	AttemptID    string           `json:"attempt_id"`
	QuizID       string           `json:"quiz_id"`
	Score        int              `json:"score"`
	Total        int              `json:"total_questions"`
	Percentage   int              `json:"percentage"`
	Passed       bool             `json:"passed"`
	PassingScore int              `json:"passing_score"`
	CompletedAt  time.Time        `json:"completed_at"`
	Details      []QuestionDetail `json:"details"`
}

// SubmissionReport tells the caller which entries of a batch were written and
// which were dropped as malformed. Both lists hold question ids, sorted.
type SubmissionReport struct {
	Recorded []string `json:"recorded"`
	Skipped  []string `json:"skipped"`
}

type Engine struct {
	store          quiz.Store
	grader         grading.Grader
	now            func() time.Time
	requireStarted bool
}

type Option func(*Engine)

func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }

// WithRequireStarted makes StartAttempt refuse quizzes whose author has not
// flagged them as started.
func WithRequireStarted(v bool) Option { return func(e *Engine) { e.requireStarted = v } }

func WithGrader(g grading.Grader) Option { return func(e *Engine) { e.grader = g } }

func NewEngine(store quiz.Store, opts ...Option) *Engine {
	e := &Engine{store: store, grader: grading.NewDefaultGrader(), now: time.Now}
	for _, o := range opts {
		o(e)
	}
	return e
}

// timestamp is second-precision UTC, the resolution the store keeps.
func (e *Engine) timestamp() time.Time { return time.Unix(e.now().Unix(), 0).UTC() }

// StartAttempt opens a new attempt on an active quiz.
func (e *Engine) StartAttempt(ctx context.Context, quizID string, p quiz.Participant) (quiz.Attempt, error) {
	if err := p.Validate(); err != nil {
		return quiz.Attempt{}, err
	}
	q, err := e.store.FindQuizByID(ctx, quizID)
	if err != nil {
		return quiz.Attempt{}, err
	}
	if !q.Active {
		return quiz.Attempt{}, fmt.Errorf("quiz is not active: %w", quiz.ErrQuizNotAvailable)
	}
	if e.requireStarted && !q.Started {
		return quiz.Attempt{}, fmt.Errorf("quiz has not started: %w", quiz.ErrQuizNotAvailable)
	}

	a := quiz.Attempt{
		QuizID:    q.ID,
		UserID:    p.UserID,
		FirstName: strings.TrimSpace(p.FirstName),
		LastName:  strings.TrimSpace(p.LastName),
		StartedAt: e.timestamp(),
	}
	if err := e.store.SaveAttempt(ctx, &a); err != nil {
		return quiz.Attempt{}, err
	}
	return a, nil
}

// RecordAnswer stores the selection for one question, replacing any earlier
// one. Unlike SubmitAnswers it rejects a malformed entry outright.
func (e *Engine) RecordAnswer(ctx context.Context, attemptID, questionID string, answerIDs ...string) error {
	return e.store.InTx(ctx, func(tx quiz.Store) error {
		a, err := openAttempt(ctx, tx, "", attemptID)
		if err != nil {
			return err
		}
		questions, err := questionIndex(ctx, tx, a.QuizID)
		if err != nil {
			return err
		}
		sel, ok := validSelection(questions, questionID, answerIDs)
		if !ok {
			return fmt.Errorf("question %s: %w", questionID, quiz.ErrInvalidSubmission)
		}
		return tx.ReplaceRecordedAnswers(ctx, attemptID, questionID, sel)
	})
}

// SubmitAnswers records a batch of selections keyed by question id. When
// quizID is non-empty the attempt must belong to it. Entries that do not fit
// the quiz are skipped and reported; a batch with no usable entry fails.
func (e *Engine) SubmitAnswers(ctx context.Context, quizID, attemptID string, answers map[string][]string) (SubmissionReport, error) {
	if len(answers) == 0 {
		return SubmissionReport{}, fmt.Errorf("no answers: %w", quiz.ErrInvalidSubmission)
	}
	qids := make([]string, 0, len(answers))
	for qid := range answers {
		qids = append(qids, qid)
	}
	sort.Strings(qids)

	report := SubmissionReport{Recorded: []string{}, Skipped: []string{}}
	err := e.store.InTx(ctx, func(tx quiz.Store) error {
		a, err := openAttempt(ctx, tx, quizID, attemptID)
		if err != nil {
			return err
		}
		questions, err := questionIndex(ctx, tx, a.QuizID)
		if err != nil {
			return err
		}
		for _, qid := range qids {
			sel, ok := validSelection(questions, qid, answers[qid])
			if !ok {
				report.Skipped = append(report.Skipped, qid)
				continue
			}
			if err := tx.ReplaceRecordedAnswers(ctx, attemptID, qid, sel); err != nil {
				return err
			}
			report.Recorded = append(report.Recorded, qid)
		}
		if len(report.Recorded) == 0 {
			return fmt.Errorf("no entry matches the quiz: %w", quiz.ErrInvalidSubmission)
		}
		return nil
	})
	if err != nil {
		return SubmissionReport{}, err
	}
	return report, nil
}

// FinalizeAndScore completes the attempt and scores it from the persisted
// answers, all inside one transaction. The attempt row is held for the whole
// transaction and the quiz row is held against question edits, so the reads
// agree with each other. Completion is written once; every later call, and a
// concurrent call that loses the race, returns the stored result.
func (e *Engine) FinalizeAndScore(ctx context.Context, attemptID string) (ScoreResult, error) {
	var res ScoreResult
	err := e.store.InTx(ctx, func(tx quiz.Store) error {
		a, err := tx.FindAttemptLocked(ctx, attemptID)
		if err != nil {
			return err
		}
		q, err := tx.FindQuizLocked(ctx, a.QuizID, quiz.LockShare)
		if err != nil {
			return err
		}
		questions, err := tx.LoadQuestionsWithAnswers(ctx, a.QuizID)
		if err != nil {
			return err
		}
		recorded, err := tx.LoadRecordedAnswers(ctx, attemptID)
		if err != nil {
			return err
		}

		res = e.score(a, q, questions, recorded)
		if !a.Completed() {
			done := e.timestamp()
			wrote, err := tx.CompleteAttempt(ctx, a.ID, done, res.Score, res.Total)
			if err != nil {
				return err
			}
			if wrote {
				res.CompletedAt = done
				return nil
			}
			if a, err = tx.FindAttemptByID(ctx, attemptID); err != nil {
				return err
			}
		}
		applyStored(&res, a, q)
		return nil
	})
	if err != nil {
		return ScoreResult{}, err
	}
	return res, nil
}

// applyStored overwrites the computed totals with the ones persisted at
// completion.
func applyStored(res *ScoreResult, a quiz.Attempt, q quiz.Quiz) {
	if a.CompletedAt != nil {
		res.CompletedAt = *a.CompletedAt
	}
	if a.Score != nil && a.Total != nil {
		res.Score, res.Total = *a.Score, *a.Total
		res.Percentage = grading.Percentage(res.Score, res.Total)
		res.Passed = grading.Passed(res.Percentage, q.PassingScore)
	}
}

// GetScore returns the stored result of a completed attempt and finalizes
// the attempt first when it is still open.
func (e *Engine) GetScore(ctx context.Context, attemptID string) (ScoreResult, error) {
	return e.FinalizeAndScore(ctx, attemptID)
}

// score grades every question of the quiz. Unanswered questions count as
// incorrect, so Total is always the number of questions.
func (e *Engine) score(a quiz.Attempt, q quiz.Quiz, questions []quiz.Question, recorded []quiz.RecordedAnswer) ScoreResult {
	selections := make(map[string][]string, len(recorded))
	for _, r := range recorded {
		selections[r.QuestionID] = r.AnswerIDs
	}

	res := ScoreResult{
		AttemptID:    a.ID,
		QuizID:       q.ID,
		Total:        len(questions),
		PassingScore: q.PassingScore,
		Details:      make([]QuestionDetail, 0, len(questions)),
	}
	for _, question := range questions {
		out := e.grader.Grade(toGradable(question), selections[question.ID])
		if out.Correct {
			res.Score++
		}
		res.Details = append(res.Details, QuestionDetail{
			QuestionID:   question.ID,
			QuestionText: question.Text,
			Selected:     refs(question, out.Selected),
			Correct:      refs(question, out.Expected),
			IsCorrect:    out.Correct,
		})
	}
	res.Percentage = grading.Percentage(res.Score, res.Total)
	res.Passed = grading.Passed(res.Percentage, q.PassingScore)
	return res
}

// openAttempt holds the attempt and its quiz for the rest of the transaction
// and fails if the attempt is already completed.
func openAttempt(ctx context.Context, st quiz.Store, quizID, attemptID string) (quiz.Attempt, error) {
	a, err := st.FindAttemptLocked(ctx, attemptID)
	if err != nil {
		return quiz.Attempt{}, err
	}
	if quizID != "" && a.QuizID != quizID {
		return quiz.Attempt{}, quiz.ErrAttemptQuizMismatch
	}
	if a.Completed() {
		return quiz.Attempt{}, quiz.ErrAttemptCompleted
	}
	if _, err := st.FindQuizLocked(ctx, a.QuizID, quiz.LockShare); err != nil {
		return quiz.Attempt{}, err
	}
	return a, nil
}

func questionIndex(ctx context.Context, st quiz.Store, quizID string) (map[string]quiz.Question, error) {
	questions, err := st.LoadQuestionsWithAnswers(ctx, quizID)
	if err != nil {
		return nil, err
	}
	idx := make(map[string]quiz.Question, len(questions))
	for _, q := range questions {
		idx[q.ID] = q
	}
	return idx, nil
}

// validSelection checks that every id belongs to the question and that a
// single-choice question gets exactly one. It returns the ids deduplicated.
func validSelection(questions map[string]quiz.Question, questionID string, answerIDs []string) ([]string, bool) {
	q, ok := questions[questionID]
	if !ok || len(answerIDs) == 0 {
		return nil, false
	}
	seen := make(map[string]bool, len(answerIDs))
	out := make([]string, 0, len(answerIDs))
	for _, id := range answerIDs {
		if !q.HasAnswer(id) {
			return nil, false
		}
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	if q.CorrectCount() <= 1 && len(out) != 1 {
		return nil, false
	}
	return out, true
}

func toGradable(q quiz.Question) grading.Q {
	g := grading.Q{ID: q.ID, Choices: make([]grading.Choice, 0, len(q.Answers))}
	for _, a := range q.Answers {
		g.Choices = append(g.Choices, grading.Choice{ID: a.ID, Correct: a.Correct})
	}
	return g
}

// refs maps ids back to answers in question order.
func refs(q quiz.Question, ids []string) []AnswerRef {
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	out := []AnswerRef{}
	for _, a := range q.Answers {
		if want[a.ID] {
			out = append(out, AnswerRef{ID: a.ID, Text: a.Text})
		}
	}
	return out
}
