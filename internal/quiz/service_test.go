package quiz_test

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/mind-engage/mindengage-quiz/internal/accesscode"
	"github.com/mind-engage/mindengage-quiz/internal/quiz"
)

// scriptedAllocator hands out codes from next, ignoring the store.
type scriptedAllocator struct {
	mu    sync.Mutex
	calls int
	max   int
	next  func(call int) string
}

func (s *scriptedAllocator) Allocate(context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.next(s.calls), nil
}

func (s *scriptedAllocator) MaxAttempts() int { return s.max }

var (
	author = quiz.Actor{UserID: "author-1"}
	other  = quiz.Actor{UserID: "author-2"}
)

func twoAnswerQuestion(text string) quiz.NewQuestion {
	return quiz.NewQuestion{Text: text, Answers: []quiz.NewAnswer{
		{Text: "right", Correct: true},
		{Text: "wrong"},
	}}
}

func newService(t *testing.T) (*quiz.SQLStore, *quiz.Service) {
	t.Helper()
	st := newStore(t)
	return st, quiz.NewService(st, accesscode.NewAllocator(st))
}

func TestCreateQuiz_WithQuestions(t *testing.T) {
	_, svc := newService(t)
	ctx := context.Background()
	desc := "  warm-up  "

	q, err := svc.CreateQuiz(ctx, author, quiz.NewQuiz{
		Title:       "  Geography ",
		Description: &desc,
		Questions:   []quiz.NewQuestion{twoAnswerQuestion("Q1"), twoAnswerQuestion("Q2")},
	})
	require.NoError(t, err)

	assert.Equal(t, "Geography", q.Title)
	require.NotNil(t, q.Description)
	assert.Equal(t, "warm-up", *q.Description)
	assert.Equal(t, quiz.DefaultPassingScore, q.PassingScore)
	assert.True(t, q.Active)
	assert.False(t, q.Started)
	assert.True(t, accesscode.Valid(q.AccessCode, accesscode.DefaultLength))
	require.Len(t, q.Questions, 2)

	full, err := svc.GetQuizForAuthor(ctx, author, q.ID)
	require.NoError(t, err)
	require.Len(t, full.Questions, 2)
	assert.Equal(t, "Q1", full.Questions[0].Text)
	assert.Equal(t, 1, full.Questions[0].Position)
	assert.Equal(t, 2, full.Questions[1].Position)
	assert.True(t, full.Questions[0].Answers[0].Correct)
}

func TestCreateQuiz_Validation(t *testing.T) {
	_, svc := newService(t)
	ctx := context.Background()
	tooHigh := 101

	cases := []struct {
		name string
		in   quiz.NewQuiz
		want error
	}{
		{"empty title", quiz.NewQuiz{Title: "  "}, quiz.ErrInvalidInput},
		{"passing score out of range", quiz.NewQuiz{Title: "T", PassingScore: &tooHigh}, quiz.ErrInvalidInput},
		{"single answer", quiz.NewQuiz{Title: "T", Questions: []quiz.NewQuestion{{
			Text: "Q", Answers: []quiz.NewAnswer{{Text: "only", Correct: true}},
		}}}, quiz.ErrMalformedQuestion},
		{"no correct answer", quiz.NewQuiz{Title: "T", Questions: []quiz.NewQuestion{{
			Text: "Q", Answers: []quiz.NewAnswer{{Text: "a"}, {Text: "b"}},
		}}}, quiz.ErrMalformedQuestion},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.CreateQuiz(ctx, author, tc.in)
			assert.ErrorIs(t, err, tc.want)
		})
	}

	_, err := svc.CreateQuiz(ctx, quiz.Actor{}, quiz.NewQuiz{Title: "T"})
	assert.ErrorIs(t, err, quiz.ErrForbidden)
}

func TestCreateQuiz_RetriesOnWriteTimeCollision(t *testing.T) {
	st := newStore(t)
	seedQuiz(t, st, "AAAAAA")

	alloc := &scriptedAllocator{max: 10, next: func(call int) string {
		if call == 1 {
			return "AAAAAA"
		}
		return "BBBBBB"
	}}
	svc := quiz.NewService(st, alloc)

	q, err := svc.CreateQuiz(context.Background(), author, quiz.NewQuiz{
		Title:     "Retry",
		Questions: []quiz.NewQuestion{twoAnswerQuestion("Q1")},
	})
	require.NoError(t, err)
	assert.Equal(t, "BBBBBB", q.AccessCode)
	assert.Equal(t, 2, alloc.calls)

	// the failed first write must not leave questions behind
	questions, err := st.LoadQuestionsWithAnswers(context.Background(), q.ID)
	require.NoError(t, err)
	assert.Len(t, questions, 1)
}

func TestCreateQuiz_ExhaustedOnPersistentCollision(t *testing.T) {
	st := newStore(t)
	seedQuiz(t, st, "AAAAAA")

	alloc := &scriptedAllocator{max: 3, next: func(int) string { return "AAAAAA" }}
	svc := quiz.NewService(st, alloc)

	_, err := svc.CreateQuiz(context.Background(), author, quiz.NewQuiz{Title: "Never"})
	require.ErrorIs(t, err, quiz.ErrAllocationExhausted)
	assert.Equal(t, 3, alloc.calls)
}

func TestCreateQuiz_ConcurrentCodesStayUnique(t *testing.T) {
	st := newStore(t)
	// every code is handed out twice, so half of the first writes collide
	alloc := &scriptedAllocator{max: 50, next: func(call int) string {
		return fmt.Sprintf("C%05d", (call+1)/2)
	}}
	svc := quiz.NewService(st, alloc)

	const n = 16
	codes := make([]string, n)
	var g errgroup.Group
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			q, err := svc.CreateQuiz(context.Background(), author, quiz.NewQuiz{Title: fmt.Sprintf("Quiz %d", i)})
			if err != nil {
				return err
			}
			codes[i] = q.AccessCode
			return nil
		})
	}
	require.NoError(t, g.Wait())

	seen := map[string]bool{}
	for _, c := range codes {
		assert.False(t, seen[c], "code %s allocated twice", c)
		seen[c] = true
	}
	mine, err := svc.ListMyQuizzes(context.Background(), author)
	require.NoError(t, err)
	assert.Len(t, mine, n)
}

func TestAddQuestion(t *testing.T) {
	_, svc := newService(t)
	ctx := context.Background()
	q, err := svc.CreateQuiz(ctx, author, quiz.NewQuiz{Title: "T", Questions: []quiz.NewQuestion{twoAnswerQuestion("Q1")}})
	require.NoError(t, err)

	added, err := svc.AddQuestion(ctx, author, q.ID, twoAnswerQuestion("Q2"))
	require.NoError(t, err)
	assert.Equal(t, 2, added.Position)
	assert.NotEmpty(t, added.Answers[0].ID)

	_, err = svc.AddQuestion(ctx, other, q.ID, twoAnswerQuestion("Q3"))
	assert.ErrorIs(t, err, quiz.ErrForbidden)

	_, err = svc.AddQuestion(ctx, quiz.Actor{UserID: "author-2", Admin: true}, q.ID, twoAnswerQuestion("Q3"))
	assert.NoError(t, err)

	_, err = svc.AddQuestion(ctx, author, q.ID, quiz.NewQuestion{Text: "bad", Answers: []quiz.NewAnswer{{Text: "x"}, {Text: "y"}}})
	assert.ErrorIs(t, err, quiz.ErrMalformedQuestion)

	_, err = svc.AddQuestion(ctx, author, "missing", twoAnswerQuestion("Q4"))
	assert.ErrorIs(t, err, quiz.ErrQuizNotFound)
}

func TestUpdateQuiz(t *testing.T) {
	st := newStore(t)
	alloc := &scriptedAllocator{max: 10, next: func(call int) string { return fmt.Sprintf("CODE%02d", call) }}
	svc := quiz.NewService(st, alloc)
	ctx := context.Background()

	q, err := svc.CreateQuiz(ctx, author, quiz.NewQuiz{Title: "Old"})
	require.NoError(t, err)
	require.Equal(t, "CODE01", q.AccessCode)

	title, started, pass := "New", true, 80
	updated, err := svc.UpdateQuiz(ctx, author, q.ID, quiz.QuizPatch{
		Title: &title, Started: &started, PassingScore: &pass, RegenerateCode: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "New", updated.Title)
	assert.True(t, updated.Started)
	assert.Equal(t, 80, updated.PassingScore)
	assert.Equal(t, "CODE02", updated.AccessCode)

	stored, err := st.FindQuizByID(ctx, q.ID)
	require.NoError(t, err)
	assert.Equal(t, "CODE02", stored.AccessCode)

	_, err = svc.UpdateQuiz(ctx, other, q.ID, quiz.QuizPatch{Title: &title})
	assert.ErrorIs(t, err, quiz.ErrNotQuizAuthor)
}

func TestDeleteQuiz_Cascades(t *testing.T) {
	st, svc := newService(t)
	ctx := context.Background()
	q, err := svc.CreateQuiz(ctx, author, quiz.NewQuiz{Title: "T", Questions: []quiz.NewQuestion{twoAnswerQuestion("Q1")}})
	require.NoError(t, err)

	a := quiz.Attempt{QuizID: q.ID, FirstName: "Jane", LastName: "Doe", StartedAt: time.Now()}
	require.NoError(t, st.SaveAttempt(ctx, &a))
	require.NoError(t, st.ReplaceRecordedAnswers(ctx, a.ID, q.Questions[0].ID, []string{q.Questions[0].Answers[0].ID}))

	assert.ErrorIs(t, svc.DeleteQuiz(ctx, other, q.ID), quiz.ErrForbidden)
	require.NoError(t, svc.DeleteQuiz(ctx, author, q.ID))

	_, err = st.FindQuizByID(ctx, q.ID)
	assert.ErrorIs(t, err, quiz.ErrQuizNotFound)
	_, err = st.FindAttemptByID(ctx, a.ID)
	assert.ErrorIs(t, err, quiz.ErrAttemptNotFound)
	recorded, err := st.LoadRecordedAnswers(ctx, a.ID)
	require.NoError(t, err)
	assert.Empty(t, recorded)
}

func TestGetPublicQuizByCode(t *testing.T) {
	_, svc := newService(t)
	ctx := context.Background()
	q, err := svc.CreateQuiz(ctx, author, quiz.NewQuiz{Title: "T", Questions: []quiz.NewQuestion{twoAnswerQuestion("Q1")}})
	require.NoError(t, err)

	pub, err := svc.GetPublicQuizByCode(ctx, " "+strings.ToLower(q.AccessCode)+" ")
	require.NoError(t, err)
	require.Len(t, pub.Questions, 1)
	for _, a := range pub.Questions[0].Answers {
		assert.False(t, a.Correct, "correctness must not leak")
	}

	inactive := false
	_, err = svc.UpdateQuiz(ctx, author, q.ID, quiz.QuizPatch{Active: &inactive})
	require.NoError(t, err)
	_, err = svc.GetPublicQuizByCode(ctx, q.AccessCode)
	assert.ErrorIs(t, err, quiz.ErrQuizNotFound)
}

func TestQuizResults(t *testing.T) {
	st, svc := newService(t)
	ctx := context.Background()
	pass := 50
	q, err := svc.CreateQuiz(ctx, author, quiz.NewQuiz{Title: "T", PassingScore: &pass})
	require.NoError(t, err)

	done := time.Now().UTC()
	score, total := 1, 2
	finished := quiz.Attempt{QuizID: q.ID, FirstName: "A", LastName: "B", StartedAt: done,
		CompletedAt: &done, Score: &score, Total: &total}
	require.NoError(t, st.SaveAttempt(ctx, &finished))
	open := quiz.Attempt{QuizID: q.ID, FirstName: "C", LastName: "D", StartedAt: done}
	require.NoError(t, st.SaveAttempt(ctx, &open))

	rows, err := svc.QuizResults(ctx, author, q.ID)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	byID := map[string]quiz.AttemptSummary{}
	for _, r := range rows {
		byID[r.ID] = r
	}
	require.NotNil(t, byID[finished.ID].Percentage)
	assert.Equal(t, 50, *byID[finished.ID].Percentage)
	assert.True(t, *byID[finished.ID].Passed)
	assert.Nil(t, byID[open.ID].Percentage)

	_, err = svc.QuizResults(ctx, other, q.ID)
	assert.ErrorIs(t, err, quiz.ErrForbidden)
}

func TestUpdateQuestion(t *testing.T) {
	st, svc := newService(t)
	ctx := context.Background()
	q, err := svc.CreateQuiz(ctx, author, quiz.NewQuiz{Title: "T", Questions: []quiz.NewQuestion{twoAnswerQuestion("Q1")}})
	require.NoError(t, err)
	q1 := q.Questions[0]
	keep := q1.Answers[1]

	updated, err := svc.UpdateQuestion(ctx, author, q1.ID, quiz.NewQuestion{Text: " Q1 v2 ", Answers: []quiz.NewAnswer{
		{ID: keep.ID, Text: "now right", Correct: true},
		{Text: "new wrong"},
		{Text: "another wrong"},
	}})
	require.NoError(t, err)
	assert.Equal(t, "Q1 v2", updated.Text)
	assert.Equal(t, q1.Position, updated.Position)

	got, err := st.FindQuestion(ctx, q1.ID)
	require.NoError(t, err)
	require.Len(t, got.Answers, 3)
	assert.Equal(t, keep.ID, got.Answers[0].ID)
	assert.True(t, got.Answers[0].Correct)
	assert.Equal(t, 1, got.CorrectCount())

	tests := []struct {
		name  string
		actor quiz.Actor
		id    string
		in    quiz.NewQuestion
		want  error
	}{
		{"not the author", other, q1.ID, twoAnswerQuestion("x"), quiz.ErrNotQuizAuthor},
		{"missing question", author, "missing", twoAnswerQuestion("x"), quiz.ErrQuestionNotFound},
		{"one answer", author, q1.ID, quiz.NewQuestion{Text: "x", Answers: []quiz.NewAnswer{{Text: "a", Correct: true}}}, quiz.ErrMalformedQuestion},
		{"no correct answer", author, q1.ID, quiz.NewQuestion{Text: "x", Answers: []quiz.NewAnswer{{Text: "a"}, {Text: "b"}}}, quiz.ErrMalformedQuestion},
		{"foreign answer id", author, q1.ID, quiz.NewQuestion{Text: "x", Answers: []quiz.NewAnswer{
			{ID: "elsewhere", Text: "a", Correct: true}, {Text: "b"},
		}}, quiz.ErrInvalidInput},
		{"repeated answer id", author, q1.ID, quiz.NewQuestion{Text: "x", Answers: []quiz.NewAnswer{
			{ID: keep.ID, Text: "a", Correct: true}, {ID: keep.ID, Text: "b"},
		}}, quiz.ErrInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.UpdateQuestion(ctx, tt.actor, tt.id, tt.in)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestDeleteQuestion(t *testing.T) {
	st, svc := newService(t)
	ctx := context.Background()
	q, err := svc.CreateQuiz(ctx, author, quiz.NewQuiz{Title: "T", Questions: []quiz.NewQuestion{
		twoAnswerQuestion("Q1"), twoAnswerQuestion("Q2"),
	}})
	require.NoError(t, err)

	assert.ErrorIs(t, svc.DeleteQuestion(ctx, other, q.Questions[0].ID), quiz.ErrForbidden)
	require.NoError(t, svc.DeleteQuestion(ctx, author, q.Questions[0].ID))
	assert.ErrorIs(t, svc.DeleteQuestion(ctx, author, q.Questions[0].ID), quiz.ErrQuestionNotFound)

	left, err := st.LoadQuestionsWithAnswers(ctx, q.ID)
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.Equal(t, "Q2", left[0].Text)
}

func TestQuestionEditsBlockedOnceScored(t *testing.T) {
	st, svc := newService(t)
	ctx := context.Background()
	q, err := svc.CreateQuiz(ctx, author, quiz.NewQuiz{Title: "T", Questions: []quiz.NewQuestion{twoAnswerQuestion("Q1")}})
	require.NoError(t, err)

	a := quiz.Attempt{QuizID: q.ID, FirstName: "Jane", LastName: "Doe", StartedAt: time.Now()}
	require.NoError(t, st.SaveAttempt(ctx, &a))

	// an open attempt does not block edits
	_, err = svc.AddQuestion(ctx, author, q.ID, twoAnswerQuestion("Q2"))
	require.NoError(t, err)

	wrote, err := st.CompleteAttempt(ctx, a.ID, time.Now(), 0, 2)
	require.NoError(t, err)
	require.True(t, wrote)

	_, err = svc.AddQuestion(ctx, author, q.ID, twoAnswerQuestion("Q3"))
	assert.ErrorIs(t, err, quiz.ErrQuizHasResults)
	_, err = svc.UpdateQuestion(ctx, author, q.Questions[0].ID, twoAnswerQuestion("Q1 v2"))
	assert.ErrorIs(t, err, quiz.ErrQuizHasResults)
	assert.ErrorIs(t, svc.DeleteQuestion(ctx, author, q.Questions[0].ID), quiz.ErrQuizHasResults)

	n, err := st.CountQuestions(ctx, q.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestListAllQuizzes(t *testing.T) {
	_, svc := newService(t)
	ctx := context.Background()
	_, err := svc.CreateQuiz(ctx, author, quiz.NewQuiz{Title: "A", Questions: []quiz.NewQuestion{twoAnswerQuestion("Q1")}})
	require.NoError(t, err)
	_, err = svc.CreateQuiz(ctx, other, quiz.NewQuiz{Title: "B"})
	require.NoError(t, err)

	_, err = svc.ListAllQuizzes(ctx, author)
	assert.ErrorIs(t, err, quiz.ErrForbidden)

	all, err := svc.ListAllQuizzes(ctx, quiz.Actor{UserID: "admin-1", Admin: true})
	require.NoError(t, err)
	require.Len(t, all, 2)
	counts := map[string]int{}
	for _, s := range all {
		counts[s.Title] = s.QuestionCount
	}
	assert.Equal(t, map[string]int{"A": 1, "B": 0}, counts)
}
