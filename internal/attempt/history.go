package attempt

import (
	"context"
	"sort"

	"github.com/mind-engage/mindengage-quiz/internal/grading"
	"github.com/mind-engage/mindengage-quiz/internal/quiz"
)

// UserAttempt is one row of a participant's attempt history.
type UserAttempt struct {
	quiz.Attempt
	QuizTitle  string `json:"quiz_title"`
	Percentage *int   `json:"percentage,omitempty"`
	Passed     *bool  `json:"passed,omitempty"`
}

type Detail struct {
	Attempt   quiz.Attempt `json:"attempt"`
	QuizTitle string       `json:"quiz_title"`
	Result    *ScoreResult `json:"result,omitempty"`
}

type Stats struct {
	Attempts        int      `json:"attempts"`
	Passed          int      `json:"passed"`
	PassRate        int      `json:"pass_rate"`
	AverageScore    int      `json:"average_score"`
	DistinctQuizzes int      `json:"distinct_quizzes"`
	QuizTitles      []string `json:"quiz_titles"`
}

// ListUserAttempts returns the user's attempts, newest first.
func (e *Engine) ListUserAttempts(ctx context.Context, userID string) ([]UserAttempt, error) {
	attempts, err := e.store.ListAttemptsByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	quizzes := map[string]quiz.Quiz{}
	out := make([]UserAttempt, 0, len(attempts))
	for _, a := range attempts {
		q, ok := quizzes[a.QuizID]
		if !ok {
			q, err = e.store.FindQuizByID(ctx, a.QuizID)
			if err != nil {
				return nil, err
			}
			quizzes[a.QuizID] = q
		}
		row := UserAttempt{Attempt: a, QuizTitle: q.Title}
		if a.Completed() && a.Score != nil && a.Total != nil {
			pct := grading.Percentage(*a.Score, *a.Total)
			passed := grading.Passed(pct, q.PassingScore)
			row.Percentage, row.Passed = &pct, &passed
		}
		out = append(out, row)
	}
	return out, nil
}

// AttemptDetail shows one of the user's own attempts. Open attempts are
// returned without a result and are not finalized.
func (e *Engine) AttemptDetail(ctx context.Context, userID, attemptID string) (Detail, error) {
	a, err := e.store.FindAttemptByID(ctx, attemptID)
	if err != nil {
		return Detail{}, err
	}
	if userID == "" || a.UserID != userID {
		return Detail{}, quiz.ErrNotAttemptOwner
	}
	q, err := e.store.FindQuizByID(ctx, a.QuizID)
	if err != nil {
		return Detail{}, err
	}
	d := Detail{Attempt: a, QuizTitle: q.Title}
	if !a.Completed() {
		return d, nil
	}
	res, err := e.FinalizeAndScore(ctx, attemptID)
	if err != nil {
		return Detail{}, err
	}
	d.Result = &res
	return d, nil
}

// UserStats aggregates the user's completed attempts.
func (e *Engine) UserStats(ctx context.Context, userID string) (Stats, error) {
	rows, err := e.ListUserAttempts(ctx, userID)
	if err != nil {
		return Stats{}, err
	}
	st := Stats{QuizTitles: []string{}}
	titles := map[string]string{}
	sum := 0
	for _, r := range rows {
		if r.Percentage == nil {
			continue
		}
		st.Attempts++
		sum += *r.Percentage
		if *r.Passed {
			st.Passed++
		}
		titles[r.QuizID] = r.QuizTitle
	}
	if st.Attempts > 0 {
		st.PassRate = grading.Percentage(st.Passed, st.Attempts)
		st.AverageScore = (sum*2 + st.Attempts) / (2 * st.Attempts)
	}
	st.DistinctQuizzes = len(titles)
	for _, t := range titles {
		st.QuizTitles = append(st.QuizTitles, t)
	}
	sort.Strings(st.QuizTitles)
	return st, nil
}
