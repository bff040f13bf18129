package livews

import (
	"context"
)

// URLProvider supplies the URL for each connection attempt.
type URLProvider interface {
	ResolveURL(ctx context.Context) (string, error)
}

// StaticURL always resolves to itself.
type StaticURL string

func (u StaticURL) ResolveURL(context.Context) (string, error) {
	if u == "" {
		return "", ErrInvalidURL
	}
	return string(u), nil
}

// URLFunc resolves the URL by calling the function before every attempt.
// It may block, e.g. to fetch a fresh token; ctx is cancelled when the
// socket is disposed.
type URLFunc func(ctx context.Context) (string, error)

func (f URLFunc) ResolveURL(ctx context.Context) (string, error) {
	return f(ctx)
}
