package http

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mind-engage/mindengage-quiz/internal/quiz"
	"github.com/mind-engage/mindengage-quiz/internal/users"
)

func TestStatusFor(t *testing.T) {
	cases := map[error]int{
		quiz.ErrQuizNotFound:                               http.StatusNotFound,
		fmt.Errorf("wrapped: %w", quiz.ErrAttemptNotFound): http.StatusNotFound,
		quiz.ErrAttemptCompleted:                           http.StatusConflict,
		users.ErrDuplicateEmail:                            http.StatusConflict,
		quiz.ErrInvalidSubmission:                          http.StatusBadRequest,
		quiz.ErrAttemptQuizMismatch:                        http.StatusBadRequest,
		quiz.ErrQuizNotAvailable:                           http.StatusForbidden,
		quiz.ErrNotQuizAuthor:                              http.StatusForbidden,
		quiz.ErrAllocationExhausted:                        http.StatusServiceUnavailable,
		users.ErrInvalidCredentials:                        http.StatusUnauthorized,
		errors.New("disk on fire"):                         http.StatusInternalServerError,
	}
	for err, want := range cases {
		assert.Equal(t, want, statusFor(err), err.Error())
	}
}

func TestSelectionDecodes(t *testing.T) {
	var s selection
	assert.NoError(t, s.UnmarshalJSON([]byte(`"a1"`)))
	assert.Equal(t, selection{"a1"}, s)
	assert.NoError(t, s.UnmarshalJSON([]byte(`["a1","a2"]`)))
	assert.Equal(t, selection{"a1", "a2"}, s)
	assert.Error(t, s.UnmarshalJSON([]byte(`42`)))
}
