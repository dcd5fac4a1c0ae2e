package quiz

import (
	"context"
	"time"
)

// LockMode is the row lock a Find*Locked read takes on Postgres. The lock is
// held until the surrounding transaction ends.
type LockMode int

const (
	// LockShare blocks writers of the row but not other share holders.
	LockShare LockMode = iota + 1
	LockUpdate
)

// Store is the persistence collaborator for quizzes, attempts and recorded
// answers. Implementations return the package's sentinel errors for missing
// rows and unique violations.
type Store interface {
	FindQuizByID(ctx context.Context, id string) (Quiz, error)
	FindQuizLocked(ctx context.Context, id string, mode LockMode) (Quiz, error)
	FindQuizByAccessCode(ctx context.Context, code string) (Quiz, error)
	ExistsAccessCode(ctx context.Context, code string) (bool, error)
	InsertQuiz(ctx context.Context, q *Quiz) error
	UpdateQuiz(ctx context.Context, q Quiz) error
	DeleteQuiz(ctx context.Context, id string) error
	ListQuizzesByAuthor(ctx context.Context, authorID string) ([]Quiz, error)
	ListAllQuizzes(ctx context.Context) ([]Quiz, error)

	// InsertQuestion stores q and its answers, assigning ids.
	InsertQuestion(ctx context.Context, q *Question) error
	FindQuestion(ctx context.Context, id string) (Question, error)
	// UpdateQuestion replaces the text, position and answers of q and drops
	// every recorded selection for it.
	UpdateQuestion(ctx context.Context, q *Question) error
	DeleteQuestion(ctx context.Context, id string) error
	// LoadQuestionsWithAnswers returns the quiz's questions ordered by position,
	// each with its answers ordered by position.
	LoadQuestionsWithAnswers(ctx context.Context, quizID string) ([]Question, error)
	CountQuestions(ctx context.Context, quizID string) (int, error)

	// SaveAttempt inserts a when a.ID is empty and updates it otherwise.
	SaveAttempt(ctx context.Context, a *Attempt) error
	FindAttemptByID(ctx context.Context, id string) (Attempt, error)
	// FindAttemptLocked reads the attempt and holds it against concurrent
	// writers until the transaction ends.
	FindAttemptLocked(ctx context.Context, id string) (Attempt, error)
	// CompleteAttempt sets completion fields if and only if they are unset,
	// reporting whether this call wrote them.
	CompleteAttempt(ctx context.Context, id string, at time.Time, score, total int) (bool, error)
	HasCompletedAttempts(ctx context.Context, quizID string) (bool, error)
	ListAttemptsByUser(ctx context.Context, userID string) ([]Attempt, error)
	ListAttemptsByQuiz(ctx context.Context, quizID string) ([]Attempt, error)

	// ReplaceRecordedAnswers deletes any recorded answer for (attemptID,
	// questionID) and inserts one holding answerIDs.
	ReplaceRecordedAnswers(ctx context.Context, attemptID, questionID string, answerIDs []string) error
	LoadRecordedAnswers(ctx context.Context, attemptID string) ([]RecordedAnswer, error)

	// InTx runs fn against a Store bound to one transaction. The transaction
	// commits when fn returns nil and rolls back otherwise.
	InTx(ctx context.Context, fn func(Store) error) error
}
