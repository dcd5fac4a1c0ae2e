package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mind-engage/mindengage-quiz/internal/rbac"
)

type seen struct {
	sub, role string
	called    bool
}

func probe(s *seen) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.called = true
		s.sub = SubjectFromContext(r.Context())
		s.role = rbac.RoleFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})
}

func do(h http.Handler, authz string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if authz != "" {
		req.Header.Set("Authorization", authz)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestIssueAndParse(t *testing.T) {
	a := NewAuthService("secret", time.Hour)
	tok, err := a.IssueJWT("user-1", "teacher")
	require.NoError(t, err)

	c, err := a.Parse(tok)
	require.NoError(t, err)
	assert.Equal(t, "user-1", c.Sub)
	assert.Equal(t, "teacher", c.Role)

	_, err = NewAuthService("other", time.Hour).Parse(tok)
	assert.ErrorIs(t, err, ErrBadToken)

	expired := NewAuthService("secret", time.Minute)
	expired.now = func() time.Time { return time.Now().Add(-time.Hour) }
	old, err := expired.IssueJWT("user-1", "student")
	require.NoError(t, err)
	_, err = a.Parse(old)
	assert.ErrorIs(t, err, ErrBadToken)
}

func TestJWTMiddleware(t *testing.T) {
	a := NewAuthService("secret", time.Hour)
	tok, err := a.IssueJWT("user-1", "student")
	require.NoError(t, err)

	var s seen
	h := JWTMiddleware(a)(probe(&s))

	assert.Equal(t, http.StatusUnauthorized, do(h, "").Code)
	assert.Equal(t, http.StatusUnauthorized, do(h, "Bearer junk").Code)
	assert.False(t, s.called)

	assert.Equal(t, http.StatusOK, do(h, "Bearer "+tok).Code)
	assert.Equal(t, "user-1", s.sub)
	assert.Equal(t, "student", s.role)
}

func TestOptionalJWT(t *testing.T) {
	a := NewAuthService("secret", time.Hour)
	tok, err := a.IssueJWT("user-2", "teacher")
	require.NoError(t, err)

	var s seen
	h := OptionalJWT(a)(probe(&s))

	assert.Equal(t, http.StatusOK, do(h, "").Code)
	assert.Empty(t, s.sub)

	assert.Equal(t, http.StatusUnauthorized, do(h, "Bearer junk").Code)

	assert.Equal(t, http.StatusOK, do(h, "Bearer "+tok).Code)
	assert.Equal(t, "user-2", s.sub)
	assert.Equal(t, "teacher", s.role)
}

func TestAttachRoleFromStore(t *testing.T) {
	a := NewAuthService("secret", time.Hour)
	tok, err := a.IssueJWT("user-3", "student")
	require.NoError(t, err)

	roles := map[string]string{"user-3": "teacher"}
	var lookupErr error
	lookup := func(_ context.Context, sub string) (string, error) {
		if lookupErr != nil {
			return "", lookupErr
		}
		r, ok := roles[sub]
		if !ok {
			return "", ErrUnknownSubject
		}
		return r, nil
	}

	var s seen
	h := JWTMiddleware(a)(AttachRoleFromStore(lookup, false)(probe(&s)))
	assert.Equal(t, http.StatusOK, do(h, "Bearer "+tok).Code)
	assert.Equal(t, "teacher", s.role, "stored role wins over the token")

	delete(roles, "user-3")
	assert.Equal(t, http.StatusUnauthorized, do(h, "Bearer "+tok).Code)

	lookupErr = errors.New("db down")
	assert.Equal(t, http.StatusForbidden, do(h, "Bearer "+tok).Code)

	lenient := JWTMiddleware(a)(AttachRoleFromStore(lookup, true)(probe(&s)))
	assert.Equal(t, http.StatusOK, do(lenient, "Bearer "+tok).Code)
	assert.Equal(t, "student", s.role)

	anon := AttachRoleFromStore(lookup, false)(probe(&s))
	assert.Equal(t, http.StatusOK, do(anon, "").Code)
}
