package attempt_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mind-engage/mindengage-quiz/internal/quiz"
)

func TestHistoryAndStats(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	geo := f.createQuiz(t, 50, yesNo("G1"), yesNo("G2"))
	math := f.createQuiz(t, 100, yesNo("M1"))
	eng := f.engine()
	student := quiz.Participant{UserID: "student-1"}

	take := func(q quiz.Quiz, answers map[string][]string) quiz.Attempt {
		a, err := eng.StartAttempt(ctx, q.ID, student)
		require.NoError(t, err)
		_, err = eng.SubmitAnswers(ctx, q.ID, a.ID, answers)
		require.NoError(t, err)
		_, err = eng.GetScore(ctx, a.ID)
		require.NoError(t, err)
		f.clock.t = f.clock.t.Add(time.Minute)
		return a
	}

	// 50% on geo (pass), 100% on geo (pass), 0% on math (fail)
	take(geo, map[string][]string{geo.Questions[0].ID: right(geo.Questions[0])})
	take(geo, map[string][]string{
		geo.Questions[0].ID: right(geo.Questions[0]),
		geo.Questions[1].ID: right(geo.Questions[1]),
	})
	failed := take(math, map[string][]string{math.Questions[0].ID: wrong(math.Questions[0])})

	open, err := eng.StartAttempt(ctx, math.ID, student)
	require.NoError(t, err)
	_, err = eng.StartAttempt(ctx, math.ID, quiz.Participant{UserID: "student-2"})
	require.NoError(t, err)

	rows, err := eng.ListUserAttempts(ctx, "student-1")
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, open.ID, rows[0].ID, "newest first")
	assert.Nil(t, rows[0].Percentage)
	assert.Equal(t, failed.ID, rows[1].ID)
	require.NotNil(t, rows[1].Percentage)
	assert.Equal(t, 0, *rows[1].Percentage)
	assert.False(t, *rows[1].Passed)

	stats, err := eng.UserStats(ctx, "student-1")
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Attempts)
	assert.Equal(t, 2, stats.Passed)
	assert.Equal(t, 67, stats.PassRate)
	assert.Equal(t, 50, stats.AverageScore)
	assert.Equal(t, 2, stats.DistinctQuizzes)
	assert.Equal(t, []string{"Quiz"}, dedupe(stats.QuizTitles))

	empty, err := eng.UserStats(ctx, "nobody")
	require.NoError(t, err)
	assert.Zero(t, empty.Attempts)
	assert.Empty(t, empty.QuizTitles)
}

func TestAttemptDetail(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	q := f.createQuiz(t, 50, yesNo("Q1"))
	eng := f.engine()

	a, err := eng.StartAttempt(ctx, q.ID, quiz.Participant{UserID: "student-1"})
	require.NoError(t, err)

	d, err := eng.AttemptDetail(ctx, "student-1", a.ID)
	require.NoError(t, err)
	assert.Nil(t, d.Result)
	assert.False(t, d.Attempt.Completed(), "viewing must not finalize")

	_, err = eng.AttemptDetail(ctx, "student-2", a.ID)
	assert.ErrorIs(t, err, quiz.ErrNotAttemptOwner)
	_, err = eng.AttemptDetail(ctx, "", a.ID)
	assert.ErrorIs(t, err, quiz.ErrForbidden)

	require.NoError(t, eng.RecordAnswer(ctx, a.ID, q.Questions[0].ID, right(q.Questions[0])...))
	_, err = eng.GetScore(ctx, a.ID)
	require.NoError(t, err)

	d, err = eng.AttemptDetail(ctx, "student-1", a.ID)
	require.NoError(t, err)
	require.NotNil(t, d.Result)
	assert.Equal(t, 100, d.Result.Percentage)
	assert.Equal(t, "Quiz", d.QuizTitle)
}

func dedupe(in []string) []string {
	out := []string{}
	seen := map[string]bool{}
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
