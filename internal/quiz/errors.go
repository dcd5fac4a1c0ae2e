package quiz

import (
	"errors"
	"fmt"
)

// Error kinds. Callers classify failures with errors.Is against these.
var (
	ErrNotFound            = errors.New("not found")
	ErrConflict            = errors.New("conflict")
	ErrInvalidInput        = errors.New("invalid input")
	ErrForbidden           = errors.New("forbidden")
	ErrAllocationExhausted = errors.New("access code allocation exhausted")
)

var (
	ErrQuizNotFound     = fmt.Errorf("quiz %w", ErrNotFound)
	ErrQuestionNotFound = fmt.Errorf("question %w", ErrNotFound)
	ErrAttemptNotFound  = fmt.Errorf("attempt %w", ErrNotFound)

	ErrQuizNotAvailable = fmt.Errorf("quiz not available: %w", ErrForbidden)
	ErrNotQuizAuthor    = fmt.Errorf("not the quiz author: %w", ErrForbidden)
	ErrNotAttemptOwner  = fmt.Errorf("not the attempt owner: %w", ErrForbidden)

	ErrAttemptQuizMismatch = fmt.Errorf("attempt does not belong to quiz: %w", ErrInvalidInput)
	ErrInvalidSubmission   = fmt.Errorf("invalid submission: %w", ErrInvalidInput)
	ErrInvalidParticipant  = fmt.Errorf("first name and last name are required: %w", ErrInvalidInput)
	ErrMalformedQuestion   = fmt.Errorf("malformed question: %w", ErrInvalidInput)

	ErrDuplicateAccessCode = fmt.Errorf("duplicate access code: %w", ErrConflict)
	ErrAttemptCompleted    = fmt.Errorf("attempt already completed: %w", ErrConflict)
	ErrQuizHasResults      = fmt.Errorf("quiz has completed attempts: %w", ErrConflict)
)
