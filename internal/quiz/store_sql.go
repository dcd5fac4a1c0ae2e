package quiz

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mind-engage/mindengage-quiz/internal/db"
)

// querier is the subset of *sql.DB and *sql.Tx the store needs.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type SQLStore struct {
	db     *sql.DB
	q      querier
	inTx   bool
	driver db.Driver
}

type StoreOption func(*SQLStore)

// WithDriver selects the SQL dialect for row locks. SQLite, the default,
// serializes writers on its own and gets no locking clause.
func WithDriver(d db.Driver) StoreOption { return func(s *SQLStore) { s.driver = d } }

func NewSQLStore(sqldb *sql.DB, opts ...StoreOption) *SQLStore {
	s := &SQLStore{db: sqldb, q: sqldb, driver: db.DriverSQLite}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *SQLStore) InTx(ctx context.Context, fn func(Store) error) error {
	if s.inTx {
		return fn(s)
	}
	return db.WithTx(ctx, s.db, nil, func(tx *sql.Tx) error {
		return fn(&SQLStore{db: s.db, q: tx, inTx: true, driver: s.driver})
	})
}

// lockClause returns the row-lock suffix for a SELECT on table.
func (s *SQLStore) lockClause(mode LockMode, table string) string {
	if s.driver != db.DriverPostgres {
		return ""
	}
	switch mode {
	case LockShare:
		return " FOR SHARE OF " + table
	case LockUpdate:
		return " FOR UPDATE OF " + table
	}
	return ""
}

/* ---------------------------------- quizzes ---------------------------------- */

const quizColumns = `id,title,description,access_code,is_active,is_started,passing_score,author_id,created_at`

func scanQuiz(row interface{ Scan(...any) error }) (Quiz, error) {
	var (
		q       Quiz
		desc    sql.NullString
		created int64
	)
	if err := row.Scan(&q.ID, &q.Title, &desc, &q.AccessCode, &q.Active, &q.Started,
		&q.PassingScore, &q.AuthorID, &created); err != nil {
		return Quiz{}, err
	}
	if desc.Valid {
		d := desc.String
		q.Description = &d
	}
	q.CreatedAt = fromUnix(created)
	return q, nil
}

func (s *SQLStore) FindQuizByID(ctx context.Context, id string) (Quiz, error) {
	q, err := scanQuiz(s.q.QueryRowContext(ctx, `SELECT `+quizColumns+` FROM quizzes WHERE id=$1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Quiz{}, ErrQuizNotFound
	}
	if err != nil {
		return Quiz{}, fmt.Errorf("find quiz: %w", err)
	}
	return q, nil
}

func (s *SQLStore) FindQuizLocked(ctx context.Context, id string, mode LockMode) (Quiz, error) {
	q, err := scanQuiz(s.q.QueryRowContext(ctx,
		`SELECT `+quizColumns+` FROM quizzes WHERE id=$1`+s.lockClause(mode, "quizzes"), id))
	if errors.Is(err, sql.ErrNoRows) {
		return Quiz{}, ErrQuizNotFound
	}
	if err != nil {
		return Quiz{}, fmt.Errorf("lock quiz: %w", err)
	}
	return q, nil
}

func (s *SQLStore) FindQuizByAccessCode(ctx context.Context, code string) (Quiz, error) {
	q, err := scanQuiz(s.q.QueryRowContext(ctx, `SELECT `+quizColumns+` FROM quizzes WHERE access_code=$1`, code))
	if errors.Is(err, sql.ErrNoRows) {
		return Quiz{}, ErrQuizNotFound
	}
	if err != nil {
		return Quiz{}, fmt.Errorf("find quiz by code: %w", err)
	}
	return q, nil
}

func (s *SQLStore) ExistsAccessCode(ctx context.Context, code string) (bool, error) {
	var one int
	err := s.q.QueryRowContext(ctx, `SELECT 1 FROM quizzes WHERE access_code=$1`, code).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check access code: %w", err)
	}
	return true, nil
}

func (s *SQLStore) InsertQuiz(ctx context.Context, q *Quiz) error {
	if q.ID == "" {
		q.ID = uuid.NewString()
	}
	if q.CreatedAt.IsZero() {
		q.CreatedAt = fromUnix(time.Now().Unix())
	}
	_, err := s.q.ExecContext(ctx, `INSERT INTO quizzes (`+quizColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		q.ID, q.Title, nullString(q.Description), q.AccessCode, q.Active, q.Started,
		q.PassingScore, q.AuthorID, q.CreatedAt.Unix())
	if err != nil {
		if db.IsUniqueViolation(err) {
			return ErrDuplicateAccessCode
		}
		return fmt.Errorf("insert quiz: %w", err)
	}
	return nil
}

func (s *SQLStore) UpdateQuiz(ctx context.Context, q Quiz) error {
	res, err := s.q.ExecContext(ctx, `UPDATE quizzes
		SET title=$1, description=$2, access_code=$3, is_active=$4, is_started=$5, passing_score=$6
		WHERE id=$7`,
		q.Title, nullString(q.Description), q.AccessCode, q.Active, q.Started, q.PassingScore, q.ID)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return ErrDuplicateAccessCode
		}
		return fmt.Errorf("update quiz: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrQuizNotFound
	}
	return nil
}

// DeleteQuiz removes the quiz and, explicitly, every row below it so the
// cascade holds even on connections without foreign key enforcement.
func (s *SQLStore) DeleteQuiz(ctx context.Context, id string) error {
	return s.InTx(ctx, func(st Store) error {
		tx := st.(*SQLStore)
		stmts := []string{
			`DELETE FROM recorded_answer_choices WHERE recorded_answer_id IN
				(SELECT ra.id FROM recorded_answers ra JOIN attempts a ON a.id = ra.attempt_id WHERE a.quiz_id=$1)`,
			`DELETE FROM recorded_answers WHERE attempt_id IN (SELECT id FROM attempts WHERE quiz_id=$1)`,
			`DELETE FROM attempts WHERE quiz_id=$1`,
			`DELETE FROM answers WHERE question_id IN (SELECT id FROM questions WHERE quiz_id=$1)`,
			`DELETE FROM questions WHERE quiz_id=$1`,
		}
		for _, stmt := range stmts {
			if _, err := tx.q.ExecContext(ctx, stmt, id); err != nil {
				return fmt.Errorf("delete quiz children: %w", err)
			}
		}
		res, err := tx.q.ExecContext(ctx, `DELETE FROM quizzes WHERE id=$1`, id)
		if err != nil {
			return fmt.Errorf("delete quiz: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrQuizNotFound
		}
		return nil
	})
}

func (s *SQLStore) ListQuizzesByAuthor(ctx context.Context, authorID string) ([]Quiz, error) {
	return s.listQuizzes(ctx,
		`SELECT `+quizColumns+` FROM quizzes WHERE author_id=$1 ORDER BY created_at DESC, id`, authorID)
}

func (s *SQLStore) ListAllQuizzes(ctx context.Context) ([]Quiz, error) {
	return s.listQuizzes(ctx, `SELECT `+quizColumns+` FROM quizzes ORDER BY created_at DESC, id`)
}

func (s *SQLStore) listQuizzes(ctx context.Context, query string, args ...any) ([]Quiz, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list quizzes: %w", err)
	}
	defer rows.Close()
	out := []Quiz{}
	for rows.Next() {
		q, err := scanQuiz(rows)
		if err != nil {
			return nil, fmt.Errorf("scan quiz: %w", err)
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

/* --------------------------------- questions --------------------------------- */

func (s *SQLStore) InsertQuestion(ctx context.Context, q *Question) error {
	return s.InTx(ctx, func(st Store) error {
		tx := st.(*SQLStore)
		if q.ID == "" {
			q.ID = uuid.NewString()
		}
		if _, err := tx.q.ExecContext(ctx,
			`INSERT INTO questions (id,quiz_id,body,position) VALUES ($1,$2,$3,$4)`,
			q.ID, q.QuizID, q.Text, q.Position); err != nil {
			return fmt.Errorf("insert question: %w", err)
		}
		return tx.insertAnswers(ctx, q)
	})
}

func (s *SQLStore) insertAnswers(ctx context.Context, q *Question) error {
	for i := range q.Answers {
		a := &q.Answers[i]
		if a.ID == "" {
			a.ID = uuid.NewString()
		}
		a.QuestionID = q.ID
		if _, err := s.q.ExecContext(ctx,
			`INSERT INTO answers (id,question_id,body,is_correct,position) VALUES ($1,$2,$3,$4,$5)`,
			a.ID, a.QuestionID, a.Text, a.Correct, a.Position); err != nil {
			return fmt.Errorf("insert answer: %w", err)
		}
	}
	return nil
}

func (s *SQLStore) FindQuestion(ctx context.Context, id string) (Question, error) {
	var q Question
	err := s.q.QueryRowContext(ctx, `SELECT id, quiz_id, body, position FROM questions WHERE id=$1`, id).
		Scan(&q.ID, &q.QuizID, &q.Text, &q.Position)
	if errors.Is(err, sql.ErrNoRows) {
		return Question{}, ErrQuestionNotFound
	}
	if err != nil {
		return Question{}, fmt.Errorf("find question: %w", err)
	}

	rows, err := s.q.QueryContext(ctx,
		`SELECT id, body, is_correct, position FROM answers WHERE question_id=$1 ORDER BY position, id`, id)
	if err != nil {
		return Question{}, fmt.Errorf("load answers: %w", err)
	}
	defer rows.Close()
	q.Answers = []Answer{}
	for rows.Next() {
		a := Answer{QuestionID: id}
		if err := rows.Scan(&a.ID, &a.Text, &a.Correct, &a.Position); err != nil {
			return Question{}, fmt.Errorf("scan answer: %w", err)
		}
		q.Answers = append(q.Answers, a)
	}
	return q, rows.Err()
}

// UpdateQuestion rewrites the question and its answer set. Answers keep the
// ids they carry; recorded selections for the question are discarded since
// they may point at answers that no longer exist.
func (s *SQLStore) UpdateQuestion(ctx context.Context, q *Question) error {
	return s.InTx(ctx, func(st Store) error {
		tx := st.(*SQLStore)
		res, err := tx.q.ExecContext(ctx,
			`UPDATE questions SET body=$1, position=$2 WHERE id=$3`, q.Text, q.Position, q.ID)
		if err != nil {
			return fmt.Errorf("update question: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrQuestionNotFound
		}
		if err := tx.clearQuestionChildren(ctx, q.ID); err != nil {
			return err
		}
		return tx.insertAnswers(ctx, q)
	})
}

func (s *SQLStore) DeleteQuestion(ctx context.Context, id string) error {
	return s.InTx(ctx, func(st Store) error {
		tx := st.(*SQLStore)
		if err := tx.clearQuestionChildren(ctx, id); err != nil {
			return err
		}
		res, err := tx.q.ExecContext(ctx, `DELETE FROM questions WHERE id=$1`, id)
		if err != nil {
			return fmt.Errorf("delete question: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrQuestionNotFound
		}
		return nil
	})
}

// clearQuestionChildren drops recorded selections and answers of a question.
func (s *SQLStore) clearQuestionChildren(ctx context.Context, questionID string) error {
	stmts := []string{
		`DELETE FROM recorded_answer_choices WHERE recorded_answer_id IN
			(SELECT id FROM recorded_answers WHERE question_id=$1)`,
		`DELETE FROM recorded_answers WHERE question_id=$1`,
		`DELETE FROM answers WHERE question_id=$1`,
	}
	for _, stmt := range stmts {
		if _, err := s.q.ExecContext(ctx, stmt, questionID); err != nil {
			return fmt.Errorf("clear question: %w", err)
		}
	}
	return nil
}

func (s *SQLStore) LoadQuestionsWithAnswers(ctx context.Context, quizID string) ([]Question, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT q.id, q.body, q.position, a.id, a.body, a.is_correct, a.position
		FROM questions q
		LEFT JOIN answers a ON a.question_id = q.id
		WHERE q.quiz_id=$1
		ORDER BY q.position, q.id, a.position, a.id`, quizID)
	if err != nil {
		return nil, fmt.Errorf("load questions: %w", err)
	}
	defer rows.Close()

	out := []Question{}
	for rows.Next() {
		var (
			qid, qtext string
			qpos       int
			aid, atext sql.NullString
			acorrect   sql.NullBool
			apos       sql.NullInt64
		)
		if err := rows.Scan(&qid, &qtext, &qpos, &aid, &atext, &acorrect, &apos); err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		if len(out) == 0 || out[len(out)-1].ID != qid {
			out = append(out, Question{ID: qid, QuizID: quizID, Text: qtext, Position: qpos, Answers: []Answer{}})
		}
		if aid.Valid {
			cur := &out[len(out)-1]
			cur.Answers = append(cur.Answers, Answer{
				ID:         aid.String,
				QuestionID: qid,
				Text:       atext.String,
				Correct:    acorrect.Bool,
				Position:   int(apos.Int64),
			})
		}
	}
	return out, rows.Err()
}

func (s *SQLStore) CountQuestions(ctx context.Context, quizID string) (int, error) {
	var n int
	if err := s.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM questions WHERE quiz_id=$1`, quizID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count questions: %w", err)
	}
	return n, nil
}

/* ---------------------------------- attempts --------------------------------- */

const attemptSelect = `
	SELECT a.id, a.quiz_id, a.user_id, a.first_name, a.last_name, a.started_at, a.completed_at, a.score, a.total,
	       (SELECT COUNT(*) FROM recorded_answers ra WHERE ra.attempt_id = a.id)
	FROM attempts a`

func scanAttempt(row interface{ Scan(...any) error }) (Attempt, error) {
	var (
		a            Attempt
		userID       sql.NullString
		started      int64
		completed    sql.NullInt64
		score, total sql.NullInt64
	)
	if err := row.Scan(&a.ID, &a.QuizID, &userID, &a.FirstName, &a.LastName, &started,
		&completed, &score, &total, &a.Answered); err != nil {
		return Attempt{}, err
	}
	a.UserID = userID.String
	a.StartedAt = fromUnix(started)
	if completed.Valid {
		t := fromUnix(completed.Int64)
		a.CompletedAt = &t
	}
	if score.Valid {
		v := int(score.Int64)
		a.Score = &v
	}
	if total.Valid {
		v := int(total.Int64)
		a.Total = &v
	}
	return a, nil
}

func (s *SQLStore) SaveAttempt(ctx context.Context, a *Attempt) error {
	var completed, score, total any
	if a.CompletedAt != nil {
		completed = a.CompletedAt.Unix()
	}
	if a.Score != nil {
		score = *a.Score
	}
	if a.Total != nil {
		total = *a.Total
	}
	var userID any
	if a.UserID != "" {
		userID = a.UserID
	}

	if a.ID == "" {
		a.ID = uuid.NewString()
		_, err := s.q.ExecContext(ctx, `INSERT INTO attempts
			(id,quiz_id,user_id,first_name,last_name,started_at,completed_at,score,total)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
			a.ID, a.QuizID, userID, a.FirstName, a.LastName, a.StartedAt.Unix(), completed, score, total)
		if err != nil {
			a.ID = ""
			return fmt.Errorf("insert attempt: %w", err)
		}
		return nil
	}

	res, err := s.q.ExecContext(ctx, `UPDATE attempts
		SET user_id=$1, first_name=$2, last_name=$3, completed_at=$4, score=$5, total=$6
		WHERE id=$7`,
		userID, a.FirstName, a.LastName, completed, score, total, a.ID)
	if err != nil {
		return fmt.Errorf("update attempt: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrAttemptNotFound
	}
	return nil
}

// CompleteAttempt records completion only while the attempt is still open.
// It reports false when another writer completed it first.
func (s *SQLStore) CompleteAttempt(ctx context.Context, id string, at time.Time, score, total int) (bool, error) {
	res, err := s.q.ExecContext(ctx, `UPDATE attempts
		SET completed_at=$1, score=$2, total=$3
		WHERE id=$4 AND completed_at IS NULL`,
		at.Unix(), score, total, id)
	if err != nil {
		return false, fmt.Errorf("complete attempt: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("complete attempt: %w", err)
	}
	if n == 1 {
		return true, nil
	}
	if _, err := s.FindAttemptByID(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}

func (s *SQLStore) HasCompletedAttempts(ctx context.Context, quizID string) (bool, error) {
	var one int
	err := s.q.QueryRowContext(ctx,
		`SELECT 1 FROM attempts WHERE quiz_id=$1 AND completed_at IS NOT NULL LIMIT 1`, quizID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check completed attempts: %w", err)
	}
	return true, nil
}

func (s *SQLStore) FindAttemptLocked(ctx context.Context, id string) (Attempt, error) {
	a, err := scanAttempt(s.q.QueryRowContext(ctx, attemptSelect+` WHERE a.id=$1`+s.lockClause(LockUpdate, "a"), id))
	if errors.Is(err, sql.ErrNoRows) {
		return Attempt{}, ErrAttemptNotFound
	}
	if err != nil {
		return Attempt{}, fmt.Errorf("lock attempt: %w", err)
	}
	return a, nil
}

func (s *SQLStore) FindAttemptByID(ctx context.Context, id string) (Attempt, error) {
	a, err := scanAttempt(s.q.QueryRowContext(ctx, attemptSelect+` WHERE a.id=$1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Attempt{}, ErrAttemptNotFound
	}
	if err != nil {
		return Attempt{}, fmt.Errorf("find attempt: %w", err)
	}
	return a, nil
}

func (s *SQLStore) ListAttemptsByUser(ctx context.Context, userID string) ([]Attempt, error) {
	return s.listAttempts(ctx, attemptSelect+` WHERE a.user_id=$1 ORDER BY a.started_at DESC, a.id`, userID)
}

func (s *SQLStore) ListAttemptsByQuiz(ctx context.Context, quizID string) ([]Attempt, error) {
	return s.listAttempts(ctx, attemptSelect+` WHERE a.quiz_id=$1 ORDER BY a.started_at DESC, a.id`, quizID)
}

func (s *SQLStore) listAttempts(ctx context.Context, query string, arg string) ([]Attempt, error) {
	rows, err := s.q.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	defer rows.Close()
	out := []Attempt{}
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

/* ------------------------------ recorded answers ----------------------------- */

func (s *SQLStore) ReplaceRecordedAnswers(ctx context.Context, attemptID, questionID string, answerIDs []string) error {
	return s.InTx(ctx, func(st Store) error {
		tx := st.(*SQLStore)
		if _, err := tx.q.ExecContext(ctx, `DELETE FROM recorded_answer_choices WHERE recorded_answer_id IN
			(SELECT id FROM recorded_answers WHERE attempt_id=$1 AND question_id=$2)`, attemptID, questionID); err != nil {
			return fmt.Errorf("delete recorded choices: %w", err)
		}
		if _, err := tx.q.ExecContext(ctx,
			`DELETE FROM recorded_answers WHERE attempt_id=$1 AND question_id=$2`, attemptID, questionID); err != nil {
			return fmt.Errorf("delete recorded answer: %w", err)
		}
		if len(answerIDs) == 0 {
			return nil
		}

		id := uuid.NewString()
		if _, err := tx.q.ExecContext(ctx,
			`INSERT INTO recorded_answers (id,attempt_id,question_id,answered_at) VALUES ($1,$2,$3,$4)`,
			id, attemptID, questionID, time.Now().Unix()); err != nil {
			if db.IsUniqueViolation(err) {
				return fmt.Errorf("recorded answer for question %s: %w", questionID, ErrConflict)
			}
			return fmt.Errorf("insert recorded answer: %w", err)
		}
		seen := make(map[string]struct{}, len(answerIDs))
		for _, aid := range answerIDs {
			if _, dup := seen[aid]; dup {
				continue
			}
			seen[aid] = struct{}{}
			if _, err := tx.q.ExecContext(ctx,
				`INSERT INTO recorded_answer_choices (recorded_answer_id,answer_id) VALUES ($1,$2)`, id, aid); err != nil {
				return fmt.Errorf("insert recorded choice: %w", err)
			}
		}
		return nil
	})
}

func (s *SQLStore) LoadRecordedAnswers(ctx context.Context, attemptID string) ([]RecordedAnswer, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT ra.id, ra.question_id, ra.answered_at, c.answer_id
		FROM recorded_answers ra
		LEFT JOIN recorded_answer_choices c ON c.recorded_answer_id = ra.id
		WHERE ra.attempt_id=$1
		ORDER BY ra.question_id, c.answer_id`, attemptID)
	if err != nil {
		return nil, fmt.Errorf("load recorded answers: %w", err)
	}
	defer rows.Close()

	out := []RecordedAnswer{}
	for rows.Next() {
		var (
			id, qid  string
			answered int64
			aid      sql.NullString
		)
		if err := rows.Scan(&id, &qid, &answered, &aid); err != nil {
			return nil, fmt.Errorf("scan recorded answer: %w", err)
		}
		if len(out) == 0 || out[len(out)-1].ID != id {
			out = append(out, RecordedAnswer{
				ID:         id,
				AttemptID:  attemptID,
				QuestionID: qid,
				AnswerIDs:  []string{},
				AnsweredAt: fromUnix(answered),
			})
		}
		if aid.Valid {
			cur := &out[len(out)-1]
			cur.AnswerIDs = append(cur.AnswerIDs, aid.String)
		}
	}
	return out, rows.Err()
}

/* ---------------------------------- helpers ---------------------------------- */

func fromUnix(sec int64) time.Time { return time.Unix(sec, 0).UTC() }

func nullString(s *string) any {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil
	}
	return *s
}
