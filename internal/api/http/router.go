package http

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/mind-engage/mindengage-quiz/internal/attempt"
	auth "github.com/mind-engage/mindengage-quiz/internal/auth/middleware"
	"github.com/mind-engage/mindengage-quiz/internal/quiz"
	"github.com/mind-engage/mindengage-quiz/internal/rbac"
	"github.com/mind-engage/mindengage-quiz/internal/users"
)

type Deps struct {
	DB       *sql.DB
	Auth     *auth.AuthService
	Users    *users.Service
	Quizzes  *quiz.Service
	Attempts *attempt.Engine
	Logger   *slog.Logger

	CORSOrigins            []string
	AllowClaimRoleFallback bool
}

func NewRouter(d Deps) http.Handler {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	roles := auth.AttachRoleFromStore(roleLookup(d.Users), d.AllowClaimRoleFallback)

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, requestLogger(d.Logger), middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   d.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Post("/auth/register", RegisterHandler(d.Users, d.Auth))
	r.Post("/auth/login", LoginHandler(d.Users, d.Auth))

	// Quiz taking: anonymous participants allowed, signed-in ones are linked.
	r.Route("/public", func(pr chi.Router) {
		pr.Use(auth.OptionalJWT(d.Auth), roles)
		pr.Get("/quizzes/by-code/{code}", QuizByCodeHandler(d.Quizzes))
		pr.Post("/quizzes/{quizID}/attempts", StartAttemptHandler(d.Attempts, d.Users))
		pr.Post("/quizzes/{quizID}/attempts/{attemptID}/answers", SubmitAnswersHandler(d.Attempts))
		pr.Get("/attempts/{attemptID}/score", ScoreHandler(d.Attempts))
	})

	// Protected API (JWT → stored role → RBAC)
	r.Group(func(pr chi.Router) {
		pr.Use(auth.JWTMiddleware(d.Auth), roles)

		pr.With(rbac.Require(rbac.PermMeView)).Get("/me", MeHandler(d.Users))
		pr.With(rbac.Require(rbac.PermMePassword)).Post("/me/password", ChangePasswordHandler(d.Users))
		pr.With(rbac.Require(rbac.PermAttemptViewOwn)).Get("/me/attempts", MyAttemptsHandler(d.Attempts))
		pr.With(rbac.Require(rbac.PermAttemptViewOwn)).Get("/me/attempts/{attemptID}", MyAttemptDetailHandler(d.Attempts))
		pr.With(rbac.Require(rbac.PermMeView)).Get("/me/stats", MyStatsHandler(d.Attempts))

		pr.Route("/quizzes", func(qr chi.Router) {
			qr.With(rbac.Require(rbac.PermQuizCreate)).Post("/", CreateQuizHandler(d.Quizzes))
			qr.With(rbac.Require(rbac.PermQuizViewOwn)).Get("/mine", ListMyQuizzesHandler(d.Quizzes))
			qr.With(rbac.Require(rbac.PermQuizViewOwn)).Get("/{quizID}", GetQuizHandler(d.Quizzes))
			qr.With(rbac.Require(rbac.PermQuizEditOwn)).Put("/{quizID}", UpdateQuizHandler(d.Quizzes))
			qr.With(rbac.Require(rbac.PermQuizDeleteOwn)).Delete("/{quizID}", DeleteQuizHandler(d.Quizzes))
			qr.With(rbac.Require(rbac.PermQuizEditOwn)).Post("/{quizID}/questions", AddQuestionHandler(d.Quizzes))
			qr.With(rbac.Require(rbac.PermQuizResults)).Get("/{quizID}/results", QuizResultsHandler(d.Quizzes))
		})
		pr.With(rbac.Require(rbac.PermQuizEditOwn)).Put("/questions/{questionID}", UpdateQuestionHandler(d.Quizzes))
		pr.With(rbac.Require(rbac.PermQuizEditOwn)).Delete("/questions/{questionID}", DeleteQuestionHandler(d.Quizzes))

		pr.With(rbac.Require(rbac.PermQuizzesListAll)).Get("/admin/quizzes", ListAllQuizzesHandler(d.Quizzes))
		pr.With(rbac.Require(rbac.PermUsersList)).Get("/admin/users", ListUsersHandler(d.Users))
		pr.With(rbac.Require(rbac.PermUsersSetRole)).Put("/admin/users/{userID}/role", SetUserRoleHandler(d.Users))
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := d.DB.PingContext(ctx); err != nil {
			http.Error(w, "db unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	return r
}

func roleLookup(svc *users.Service) auth.RoleLookup {
	return func(ctx context.Context, sub string) (string, error) {
		u, err := svc.Get(ctx, sub)
		if errors.Is(err, users.ErrUserNotFound) {
			return "", auth.ErrUnknownSubject
		}
		if err != nil {
			return "", err
		}
		return u.Role, nil
	}
}

func requestLogger(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.LogAttrs(r.Context(), slog.LevelInfo, "http",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.Status()),
				slog.Int("bytes", ww.BytesWritten()),
				slog.Duration("took", time.Since(start)),
				slog.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	}
}
