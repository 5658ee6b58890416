package source

import (
	"net/http"
	"time"
)

// Option applies a configuration option to the Router.
type Option func(*Router)

// WithLocalRoot resolves local refs beneath root. Refs may carry the upload
// URL prefix "api/file/", which is stripped.
func WithLocalRoot(root string) Option {
	return func(r *Router) {
		r.root = root
	}
}

// WithTimeout bounds each remote fetch.
func WithTimeout(d time.Duration) Option {
	return func(r *Router) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithMaxBytes bounds the size of any resolved file.
func WithMaxBytes(n int64) Option {
	return func(r *Router) {
		if n > 0 {
			r.maxBytes = n
		}
	}
}

// WithHTTPClient replaces the client used for remote refs.
func WithHTTPClient(c *http.Client) Option {
	return func(r *Router) {
		if c != nil {
			r.client = c
		}
	}
}
