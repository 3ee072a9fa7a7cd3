package tokenpool

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"math/big"
)

// Alphabet excludes '0' and the trailing 'Y'/'Z' so tokens stay unambiguous
// when read back from broker order books by hand.
const Alphabet = "123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWX"

const (
	TokenLength = 10
	DefaultSize = 20
)

var ErrExhausted = errors.New("token pool exhausted")

// Pool is an ordered, fixed set of distinct idempotency tokens. It is never
// extended or regenerated after Generate returns.
type Pool struct {
	tokens []string
}

// Generate returns a pool of n distinct tokens drawn from crypto/rand.
func Generate(n int) (*Pool, error) {
	return generate(rand.Reader, n)
}

func generate(r io.Reader, n int) (*Pool, error) {
	if n <= 0 {
		return nil, fmt.Errorf("token pool size must be > 0, got %d", n)
	}
	seen := make(map[string]struct{}, n)
	tokens := make([]string, 0, n)
	for len(tokens) < n {
		tok, err := randomToken(r)
		if err != nil {
			return nil, fmt.Errorf("generate token: %w", err)
		}
		if _, dup := seen[tok]; dup {
			continue
		}
		seen[tok] = struct{}{}
		tokens = append(tokens, tok)
	}
	return &Pool{tokens: tokens}, nil
}

func randomToken(r io.Reader) (string, error) {
	max := big.NewInt(int64(len(Alphabet)))
	b := make([]byte, TokenLength)
	for i := range b {
		idx, err := rand.Int(r, max)
		if err != nil {
			return "", err
		}
		b[i] = Alphabet[idx.Int64()]
	}
	return string(b), nil
}

func (p *Pool) Size() int {
	if p == nil {
		return 0
	}
	return len(p.tokens)
}

// At returns the token at position i. Positions at or beyond Size are
// reported as ErrExhausted; the pool never wraps around.
func (p *Pool) At(i int) (string, error) {
	if i < 0 || i >= p.Size() {
		return "", fmt.Errorf("%w: index %d, size %d", ErrExhausted, i, p.Size())
	}
	return p.tokens[i], nil
}
