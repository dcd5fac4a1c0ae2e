package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/mind-engage/mindengage-quiz/internal/accesscode"
	"github.com/mind-engage/mindengage-quiz/internal/attempt"
	auth "github.com/mind-engage/mindengage-quiz/internal/auth/middleware"
	"github.com/mind-engage/mindengage-quiz/internal/quiz"
	"github.com/mind-engage/mindengage-quiz/internal/users"
)

// selection is a question's chosen answers. It decodes from a single id or
// an array of ids.
type selection []string

func (s *selection) UnmarshalJSON(b []byte) error {
	var one string
	if err := json.Unmarshal(b, &one); err == nil {
		*s = selection{one}
		return nil
	}
	var many []string
	if err := json.Unmarshal(b, &many); err != nil {
		return errors.New("answer must be an id or a list of ids")
	}
	*s = many
	return nil
}

// GET /public/quizzes/by-code/{code}
func QuizByCodeHandler(svc *quiz.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code := strings.ToUpper(strings.TrimSpace(chi.URLParam(r, "code")))
		if !accesscode.Valid(code, accesscode.DefaultLength) {
			writeError(w, r, fmt.Errorf("malformed access code: %w", quiz.ErrInvalidInput))
			return
		}
		q, err := svc.GetPublicQuizByCode(r.Context(), code)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, q)
	}
}

// POST /public/quizzes/{quizID}/attempts  { "first_name": "...", "last_name": "..." }
// Signed-in callers may omit the names; their profile names are used.
func StartAttemptHandler(eng *attempt.Engine, us *users.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			FirstName string `json:"first_name" validate:"max=100"`
			LastName  string `json:"last_name" validate:"max=100"`
		}
		if err := decode(w, r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		p := quiz.Participant{
			UserID:    auth.SubjectFromContext(r.Context()),
			FirstName: req.FirstName,
			LastName:  req.LastName,
		}
		if p.UserID != "" && strings.TrimSpace(p.FirstName) == "" && strings.TrimSpace(p.LastName) == "" {
			u, err := us.Get(r.Context(), p.UserID)
			if err != nil {
				writeError(w, r, err)
				return
			}
			p.FirstName, p.LastName = u.FirstName, u.LastName
		}
		a, err := eng.StartAttempt(r.Context(), chi.URLParam(r, "quizID"), p)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, a)
	}
}

type submitResponse struct {
	attempt.SubmissionReport
	Result *attempt.ScoreResult `json:"result,omitempty"`
}

// POST /public/quizzes/{quizID}/attempts/{attemptID}/answers
//
//	{ "answers": { "<questionID>": "<answerID>" | ["<answerID>", ...] }, "finalize": true }
func SubmitAnswersHandler(eng *attempt.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Answers  map[string]selection `json:"answers" validate:"required,min=1"`
			Finalize bool                 `json:"finalize"`
		}
		if err := decode(w, r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		answers := make(map[string][]string, len(req.Answers))
		for qid, sel := range req.Answers {
			answers[qid] = sel
		}

		attemptID := chi.URLParam(r, "attemptID")
		report, err := eng.SubmitAnswers(r.Context(), chi.URLParam(r, "quizID"), attemptID, answers)
		if err != nil {
			writeError(w, r, err)
			return
		}
		out := submitResponse{SubmissionReport: report}
		if req.Finalize {
			res, err := eng.FinalizeAndScore(r.Context(), attemptID)
			if err != nil {
				writeError(w, r, err)
				return
			}
			out.Result = &res
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// GET /public/attempts/{attemptID}/score
func ScoreHandler(eng *attempt.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := eng.GetScore(r.Context(), chi.URLParam(r, "attemptID"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

// GET /me/attempts
func MyAttemptsHandler(eng *attempt.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := eng.ListUserAttempts(r.Context(), auth.SubjectFromContext(r.Context()))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}

// GET /me/attempts/{attemptID}
func MyAttemptDetailHandler(eng *attempt.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		d, err := eng.AttemptDetail(r.Context(), auth.SubjectFromContext(r.Context()), chi.URLParam(r, "attemptID"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, d)
	}
}

// GET /me/stats
func MyStatsHandler(eng *attempt.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st, err := eng.UserStats(r.Context(), auth.SubjectFromContext(r.Context()))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, st)
	}
}
