package api

import (
	"context"
	"crypto/subtle"
	"net/http"

	"github.com/fulldump/box"
)

// Authenticate accepts requests whose Authorization header is one of tokens.
// Preflight requests pass through.
func Authenticate(tokens []string) box.I {
	return func(next box.H) box.H {
		return func(ctx context.Context) {
			r := box.GetRequest(ctx)
			if r.Method == http.MethodOptions {
				next(ctx)
				return
			}

			token := r.Header.Get("Authorization")
			if token == "" || !validToken(tokens, token) {
				box.SetError(ctx, ErrUnauthorized)
				return
			}

			next(ctx)
		}
	}
}

func validToken(tokens []string, token string) bool {
	valid := false
	for _, t := range tokens {
		if subtle.ConstantTimeCompare([]byte(t), []byte(token)) == 1 {
			valid = true
		}
	}
	return valid
}
