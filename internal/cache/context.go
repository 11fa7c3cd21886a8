package cache

import (
	"context"
	"net/http"
)

type memoKey struct{}

// WithMemo attaches m to ctx.
func WithMemo(ctx context.Context, m *Memo) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, memoKey{}, m)
}

// FromContext returns the memo attached to ctx.
func FromContext(ctx context.Context) (*Memo, bool) {
	if ctx == nil {
		return nil, false
	}
	m, ok := ctx.Value(memoKey{}).(*Memo)
	return m, ok && m != nil
}

// Middleware attaches a fresh memo to every request.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r.WithContext(WithMemo(r.Context(), NewMemo())))
	})
}
