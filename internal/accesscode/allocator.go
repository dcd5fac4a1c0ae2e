// Package accesscode allocates the short codes participants type to join a quiz.
package accesscode

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"math/big"

	"github.com/mind-engage/mindengage-quiz/internal/quiz"
)

const (
	Alphabet           = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	DefaultLength      = 6
	DefaultMaxAttempts = 10
)

// Checker reports whether a code is already taken.
type Checker interface {
	ExistsAccessCode(ctx context.Context, code string) (bool, error)
}

// Allocator draws random codes until its Checker reports one as free.
type Allocator struct {
	checker     Checker
	length      int
	maxAttempts int
	rand        io.Reader
}

// Option configures an Allocator.
type Option func(*Allocator)

func WithLength(n int) Option       { return func(a *Allocator) { a.length = n } }
func WithMaxAttempts(n int) Option  { return func(a *Allocator) { a.maxAttempts = n } }
func WithRandom(r io.Reader) Option { return func(a *Allocator) { a.rand = r } }

// NewAllocator returns an Allocator producing DefaultLength codes with
// DefaultMaxAttempts candidates per call unless opts say otherwise.
func NewAllocator(checker Checker, opts ...Option) *Allocator {
	a := &Allocator{
		checker:     checker,
		length:      DefaultLength,
		maxAttempts: DefaultMaxAttempts,
		rand:        rand.Reader,
	}
	for _, o := range opts {
		o(a)
	}
	if a.length <= 0 {
		a.length = DefaultLength
	}
	if a.maxAttempts <= 0 {
		a.maxAttempts = DefaultMaxAttempts
	}
	return a
}

// MaxAttempts is the number of candidates Allocate checks before giving up.
func (a *Allocator) MaxAttempts() int { return a.maxAttempts }

// Allocate returns a code the checker does not know about. It performs no
// writes: the caller persists the code and must still handle a unique
// violation at write time.
func (a *Allocator) Allocate(ctx context.Context) (string, error) {
	for i := 0; i < a.maxAttempts; i++ {
		code, err := a.Generate()
		if err != nil {
			return "", err
		}
		taken, err := a.checker.ExistsAccessCode(ctx, code)
		if err != nil {
			return "", fmt.Errorf("accesscode: check: %w", err)
		}
		if !taken {
			return code, nil
		}
	}
	return "", fmt.Errorf("accesscode: %d candidates collided: %w", a.maxAttempts, quiz.ErrAllocationExhausted)
}

// Generate draws one candidate, each symbol independently and uniformly.
func (a *Allocator) Generate() (string, error) {
	size := big.NewInt(int64(len(Alphabet)))
	buf := make([]byte, a.length)
	for i := range buf {
		n, err := rand.Int(a.rand, size)
		if err != nil {
			return "", fmt.Errorf("accesscode: random: %w", err)
		}
		buf[i] = Alphabet[n.Int64()]
	}
	return string(buf), nil
}

// Valid reports whether code has the shape of an allocated code of length n.
func Valid(code string, n int) bool {
	if len(code) != n {
		return false
	}
	for i := 0; i < len(code); i++ {
		c := code[i]
		if !(c >= 'A' && c <= 'Z') && !(c >= '0' && c <= '9') {
			return false
		}
	}
	return true
}
