package quiz

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mind-engage/mindengage-quiz/internal/grading"
)

// CodeAllocator hands out access codes that are free at the time of the call.
type CodeAllocator interface {
	Allocate(ctx context.Context) (string, error)
	MaxAttempts() int
}

// Actor is the already-authenticated caller of an authoring operation.
type Actor struct {
	UserID string
	Admin  bool
}

type NewAnswer struct {
	// ID keeps an existing answer when a question is edited; ignored on create.
	ID       string `json:"id,omitempty"`
	Text     string `json:"text" validate:"required,max=1000"`
	Correct  bool   `json:"is_correct"`
	Position int    `json:"position" validate:"gte=0"`
}

type NewQuestion struct {
	Text     string      `json:"text" validate:"required,max=2000"`
	Position int         `json:"position" validate:"gte=0"`
	Answers  []NewAnswer `json:"answers" validate:"min=2,dive"`
}

type NewQuiz struct {
	Title        string        `json:"title" validate:"required,max=255"`
	Description  *string       `json:"description,omitempty" validate:"omitempty,max=5000"`
	PassingScore *int          `json:"passing_score,omitempty" validate:"omitempty,gte=0,lte=100"`
	Active       *bool         `json:"is_active,omitempty"`
	Started      *bool         `json:"is_started,omitempty"`
	Questions    []NewQuestion `json:"questions,omitempty" validate:"dive"`
}

type QuizPatch struct {
	Title          *string `json:"title,omitempty" validate:"omitempty,max=255"`
	Description    *string `json:"description,omitempty" validate:"omitempty,max=5000"`
	Active         *bool   `json:"is_active,omitempty"`
	Started        *bool   `json:"is_started,omitempty"`
	PassingScore   *int    `json:"passing_score,omitempty" validate:"omitempty,gte=0,lte=100"`
	RegenerateCode bool    `json:"regenerate_code,omitempty"`
}

type QuizSummary struct {
	Quiz
	QuestionCount int `json:"question_count"`
	AttemptCount  int `json:"attempt_count"`
}

// AttemptSummary is one row of a quiz's results table.
type AttemptSummary struct {
	Attempt
	Percentage *int  `json:"percentage,omitempty"`
	Passed     *bool `json:"passed,omitempty"`
}

type Service struct {
	store          Store
	codes          CodeAllocator
	now            func() time.Time
	defaultPassing int
}

type ServiceOption func(*Service)

func WithClock(now func() time.Time) ServiceOption { return func(s *Service) { s.now = now } }

func WithDefaultPassingScore(n int) ServiceOption {
	return func(s *Service) { s.defaultPassing = n }
}

func NewService(store Store, codes CodeAllocator, opts ...ServiceOption) *Service {
	s := &Service{store: store, codes: codes, now: time.Now, defaultPassing: DefaultPassingScore}
	for _, o := range opts {
		o(s)
	}
	return s
}

// CreateQuiz stores a new quiz with a freshly allocated access code. A unique
// violation at write time re-runs allocation, bounded by the allocator's own
// attempt limit.
func (s *Service) CreateQuiz(ctx context.Context, actor Actor, in NewQuiz) (Quiz, error) {
	if actor.UserID == "" {
		return Quiz{}, fmt.Errorf("author required: %w", ErrForbidden)
	}
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return Quiz{}, fmt.Errorf("title required: %w", ErrInvalidInput)
	}
	passing := s.defaultPassing
	if in.PassingScore != nil {
		passing = *in.PassingScore
	}
	if passing < 0 || passing > 100 {
		return Quiz{}, fmt.Errorf("passing score must be between 0 and 100: %w", ErrInvalidInput)
	}
	for i, nq := range in.Questions {
		if err := validateQuestion(nq); err != nil {
			return Quiz{}, fmt.Errorf("question %d: %w", i+1, err)
		}
	}

	for i := 0; i < s.codes.MaxAttempts(); i++ {
		code, err := s.codes.Allocate(ctx)
		if err != nil {
			return Quiz{}, err
		}

		q := Quiz{
			Title:        title,
			Description:  trimmed(in.Description),
			AccessCode:   code,
			Active:       boolOr(in.Active, true),
			Started:      boolOr(in.Started, false),
			PassingScore: passing,
			AuthorID:     actor.UserID,
			CreatedAt:    s.now().UTC().Truncate(time.Second),
		}
		err = s.store.InTx(ctx, func(tx Store) error {
			if err := tx.InsertQuiz(ctx, &q); err != nil {
				return err
			}
			q.Questions = make([]Question, 0, len(in.Questions))
			for j, nq := range in.Questions {
				question := buildQuestion(q.ID, nq, j+1)
				if err := tx.InsertQuestion(ctx, &question); err != nil {
					return err
				}
				q.Questions = append(q.Questions, question)
			}
			return nil
		})
		if errors.Is(err, ErrDuplicateAccessCode) {
			continue
		}
		if err != nil {
			return Quiz{}, err
		}
		return q, nil
	}
	return Quiz{}, fmt.Errorf("create quiz: %w", ErrAllocationExhausted)
}

// AddQuestion appends a well-formed question to a quiz the actor owns.
func (s *Service) AddQuestion(ctx context.Context, actor Actor, quizID string, in NewQuestion) (Question, error) {
	if err := validateQuestion(in); err != nil {
		return Question{}, err
	}
	var q Question
	err := s.store.InTx(ctx, func(tx Store) error {
		if _, err := editableQuiz(ctx, tx, actor, quizID); err != nil {
			return err
		}
		n, err := tx.CountQuestions(ctx, quizID)
		if err != nil {
			return err
		}
		q = buildQuestion(quizID, in, n+1)
		return tx.InsertQuestion(ctx, &q)
	})
	if err != nil {
		return Question{}, err
	}
	return q, nil
}

// UpdateQuestion replaces a question's text and answer set. Answers sent with
// an id must already belong to the question; the rest are created. Recorded
// selections for the question are discarded.
func (s *Service) UpdateQuestion(ctx context.Context, actor Actor, questionID string, in NewQuestion) (Question, error) {
	if err := validateQuestion(in); err != nil {
		return Question{}, err
	}
	var q Question
	err := s.store.InTx(ctx, func(tx Store) error {
		cur, err := tx.FindQuestion(ctx, questionID)
		if err != nil {
			return err
		}
		if _, err := editableQuiz(ctx, tx, actor, cur.QuizID); err != nil {
			return err
		}
		seen := make(map[string]bool, len(in.Answers))
		for _, a := range in.Answers {
			if a.ID == "" {
				continue
			}
			if !cur.HasAnswer(a.ID) || seen[a.ID] {
				return fmt.Errorf("answer %s is not a distinct answer of question %s: %w", a.ID, questionID, ErrInvalidInput)
			}
			seen[a.ID] = true
		}
		q = buildQuestion(cur.QuizID, in, cur.Position)
		q.ID = cur.ID
		for i, a := range in.Answers {
			q.Answers[i].ID = a.ID
		}
		return tx.UpdateQuestion(ctx, &q)
	})
	if err != nil {
		return Question{}, err
	}
	return q, nil
}

func (s *Service) DeleteQuestion(ctx context.Context, actor Actor, questionID string) error {
	return s.store.InTx(ctx, func(tx Store) error {
		cur, err := tx.FindQuestion(ctx, questionID)
		if err != nil {
			return err
		}
		if _, err := editableQuiz(ctx, tx, actor, cur.QuizID); err != nil {
			return err
		}
		return tx.DeleteQuestion(ctx, questionID)
	})
}

func (s *Service) UpdateQuiz(ctx context.Context, actor Actor, quizID string, p QuizPatch) (Quiz, error) {
	q, err := s.ownedQuiz(ctx, actor, quizID)
	if err != nil {
		return Quiz{}, err
	}
	if p.Title != nil {
		t := strings.TrimSpace(*p.Title)
		if t == "" {
			return Quiz{}, fmt.Errorf("title required: %w", ErrInvalidInput)
		}
		q.Title = t
	}
	if p.Description != nil {
		q.Description = trimmed(p.Description)
	}
	if p.Active != nil {
		q.Active = *p.Active
	}
	if p.Started != nil {
		q.Started = *p.Started
	}
	if p.PassingScore != nil {
		if *p.PassingScore < 0 || *p.PassingScore > 100 {
			return Quiz{}, fmt.Errorf("passing score must be between 0 and 100: %w", ErrInvalidInput)
		}
		q.PassingScore = *p.PassingScore
	}

	if !p.RegenerateCode {
		if err := s.store.UpdateQuiz(ctx, q); err != nil {
			return Quiz{}, err
		}
		return q, nil
	}
	for i := 0; i < s.codes.MaxAttempts(); i++ {
		code, err := s.codes.Allocate(ctx)
		if err != nil {
			return Quiz{}, err
		}
		q.AccessCode = code
		err = s.store.UpdateQuiz(ctx, q)
		if errors.Is(err, ErrDuplicateAccessCode) {
			continue
		}
		if err != nil {
			return Quiz{}, err
		}
		return q, nil
	}
	return Quiz{}, fmt.Errorf("regenerate code: %w", ErrAllocationExhausted)
}

func (s *Service) DeleteQuiz(ctx context.Context, actor Actor, quizID string) error {
	if _, err := s.ownedQuiz(ctx, actor, quizID); err != nil {
		return err
	}
	return s.store.DeleteQuiz(ctx, quizID)
}

func (s *Service) ListMyQuizzes(ctx context.Context, actor Actor) ([]QuizSummary, error) {
	quizzes, err := s.store.ListQuizzesByAuthor(ctx, actor.UserID)
	if err != nil {
		return nil, err
	}
	return s.summaries(ctx, quizzes)
}

// ListAllQuizzes is the admin view across every author.
func (s *Service) ListAllQuizzes(ctx context.Context, actor Actor) ([]QuizSummary, error) {
	if !actor.Admin {
		return nil, fmt.Errorf("admin only: %w", ErrForbidden)
	}
	quizzes, err := s.store.ListAllQuizzes(ctx)
	if err != nil {
		return nil, err
	}
	return s.summaries(ctx, quizzes)
}

func (s *Service) summaries(ctx context.Context, quizzes []Quiz) ([]QuizSummary, error) {
	out := make([]QuizSummary, 0, len(quizzes))
	for _, q := range quizzes {
		n, err := s.store.CountQuestions(ctx, q.ID)
		if err != nil {
			return nil, err
		}
		attempts, err := s.store.ListAttemptsByQuiz(ctx, q.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, QuizSummary{Quiz: q, QuestionCount: n, AttemptCount: len(attempts)})
	}
	return out, nil
}

// GetQuizForAuthor returns the quiz with questions and answer keys.
func (s *Service) GetQuizForAuthor(ctx context.Context, actor Actor, quizID string) (Quiz, error) {
	q, err := s.ownedQuiz(ctx, actor, quizID)
	if err != nil {
		return Quiz{}, err
	}
	q.Questions, err = s.store.LoadQuestionsWithAnswers(ctx, quizID)
	if err != nil {
		return Quiz{}, err
	}
	return q, nil
}

// GetPublicQuizByCode returns an active quiz with its questions and the
// correctness flags stripped.
func (s *Service) GetPublicQuizByCode(ctx context.Context, code string) (Quiz, error) {
	q, err := s.store.FindQuizByAccessCode(ctx, strings.ToUpper(strings.TrimSpace(code)))
	if err != nil {
		return Quiz{}, err
	}
	if !q.Active {
		return Quiz{}, ErrQuizNotFound
	}
	q.Questions, err = s.store.LoadQuestionsWithAnswers(ctx, q.ID)
	if err != nil {
		return Quiz{}, err
	}
	for i := range q.Questions {
		for j := range q.Questions[i].Answers {
			q.Questions[i].Answers[j].Correct = false
		}
	}
	return q, nil
}

// QuizResults lists every attempt of a quiz the actor owns.
func (s *Service) QuizResults(ctx context.Context, actor Actor, quizID string) ([]AttemptSummary, error) {
	q, err := s.ownedQuiz(ctx, actor, quizID)
	if err != nil {
		return nil, err
	}
	attempts, err := s.store.ListAttemptsByQuiz(ctx, quizID)
	if err != nil {
		return nil, err
	}
	out := make([]AttemptSummary, 0, len(attempts))
	for _, a := range attempts {
		row := AttemptSummary{Attempt: a}
		if a.Completed() && a.Score != nil && a.Total != nil {
			pct := grading.Percentage(*a.Score, *a.Total)
			passed := grading.Passed(pct, q.PassingScore)
			row.Percentage, row.Passed = &pct, &passed
		}
		out = append(out, row)
	}
	return out, nil
}

func (s *Service) ownedQuiz(ctx context.Context, actor Actor, quizID string) (Quiz, error) {
	q, err := s.store.FindQuizByID(ctx, quizID)
	if err != nil {
		return Quiz{}, err
	}
	if !actor.Admin && q.AuthorID != actor.UserID {
		return Quiz{}, ErrNotQuizAuthor
	}
	return q, nil
}

// editableQuiz locks the quiz against concurrent scoring and refuses question
// changes once any attempt has been scored against the current questions.
func editableQuiz(ctx context.Context, tx Store, actor Actor, quizID string) (Quiz, error) {
	q, err := tx.FindQuizLocked(ctx, quizID, LockUpdate)
	if err != nil {
		return Quiz{}, err
	}
	if !actor.Admin && q.AuthorID != actor.UserID {
		return Quiz{}, ErrNotQuizAuthor
	}
	scored, err := tx.HasCompletedAttempts(ctx, quizID)
	if err != nil {
		return Quiz{}, err
	}
	if scored {
		return Quiz{}, ErrQuizHasResults
	}
	return q, nil
}

func validateQuestion(q NewQuestion) error {
	if strings.TrimSpace(q.Text) == "" {
		return fmt.Errorf("question text required: %w", ErrMalformedQuestion)
	}
	if len(q.Answers) < 2 {
		return fmt.Errorf("at least two answers required: %w", ErrMalformedQuestion)
	}
	correct := 0
	for _, a := range q.Answers {
		if strings.TrimSpace(a.Text) == "" {
			return fmt.Errorf("answer text required: %w", ErrMalformedQuestion)
		}
		if a.Correct {
			correct++
		}
	}
	if correct == 0 {
		return fmt.Errorf("at least one correct answer required: %w", ErrMalformedQuestion)
	}
	return nil
}

func buildQuestion(quizID string, in NewQuestion, defaultPos int) Question {
	q := Question{
		QuizID:   quizID,
		Text:     strings.TrimSpace(in.Text),
		Position: in.Position,
		Answers:  make([]Answer, 0, len(in.Answers)),
	}
	if q.Position <= 0 {
		q.Position = defaultPos
	}
	for i, a := range in.Answers {
		pos := a.Position
		if pos <= 0 {
			pos = i + 1
		}
		q.Answers = append(q.Answers, Answer{Text: strings.TrimSpace(a.Text), Correct: a.Correct, Position: pos})
	}
	return q
}

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	t := strings.TrimSpace(*s)
	if t == "" {
		return nil
	}
	return &t
}

func boolOr(b *bool, def bool) bool {
	if b == nil {
		return def
	}
	return *b
}
