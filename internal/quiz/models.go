package quiz

import (
	"strings"
	"time"
)

// DefaultPassingScore applies when a quiz is created without a threshold.
const DefaultPassingScore = 70

type Answer struct {
	ID         string `json:"id"`
	QuestionID string `json:"question_id"`
	Text       string `json:"text"`
	Correct    bool   `json:"is_correct"`
	Position   int    `json:"position"`
}

type Question struct {
	ID       string   `json:"id"`
	QuizID   string   `json:"quiz_id"`
	Text     string   `json:"text"`
	Position int      `json:"position"`
	Answers  []Answer `json:"answers"`
}

// CorrectCount is the number of answers flagged correct.
func (q Question) CorrectCount() int {
	n := 0
	for _, a := range q.Answers {
		if a.Correct {
			n++
		}
	}
	return n
}

// HasAnswer reports whether answerID belongs to q.
func (q Question) HasAnswer(answerID string) bool {
	for _, a := range q.Answers {
		if a.ID == answerID {
			return true
		}
	}
	return false
}

type Quiz struct {
	ID           string     `json:"id"`
	Title        string     `json:"title"`
	Description  *string    `json:"description,omitempty"`
	AccessCode   string     `json:"access_code"`
	Active       bool       `json:"is_active"`
	Started      bool       `json:"is_started"`
	PassingScore int        `json:"passing_score"`
	AuthorID     string     `json:"author_id"`
	CreatedAt    time.Time  `json:"created_at"`
	Questions    []Question `json:"questions,omitempty"`
}

// AttemptStatus is derived from the persisted fields of an Attempt.
type AttemptStatus string

const (
	StatusCreated         AttemptStatus = "created"
	StatusAnswersRecorded AttemptStatus = "answers_recorded"
	StatusCompleted       AttemptStatus = "completed"
)

type Attempt struct {
	ID          string     `json:"id"`
	QuizID      string     `json:"quiz_id"`
	UserID      string     `json:"user_id,omitempty"`
	FirstName   string     `json:"first_name"`
	LastName    string     `json:"last_name"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Score       *int       `json:"score,omitempty"`
	Total       *int       `json:"total_questions,omitempty"`

	// Answered is filled by the store on reads; it is not a column.
	Answered int `json:"answered"`
}

func (a Attempt) Completed() bool { return a.CompletedAt != nil }

func (a Attempt) Status() AttemptStatus {
	switch {
	case a.CompletedAt != nil:
		return StatusCompleted
	case a.Answered > 0:
		return StatusAnswersRecorded
	default:
		return StatusCreated
	}
}

// RecordedAnswer is the selection a participant made for one question of one
// attempt. There is at most one per (AttemptID, QuestionID).
type RecordedAnswer struct {
	ID         string    `json:"id"`
	AttemptID  string    `json:"attempt_id"`
	QuestionID string    `json:"question_id"`
	AnswerIDs  []string  `json:"answer_ids"`
	AnsweredAt time.Time `json:"answered_at"`
}

// Participant identifies who takes a quiz: an authenticated user, a free-text
// name, or both.
type Participant struct {
	UserID    string
	FirstName string
	LastName  string
}

func (p Participant) Validate() error {
	p.FirstName = strings.TrimSpace(p.FirstName)
	p.LastName = strings.TrimSpace(p.LastName)
	if p.UserID != "" {
		return nil
	}
	if p.FirstName == "" || p.LastName == "" {
		return ErrInvalidParticipant
	}
	return nil
}
