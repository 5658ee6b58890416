package gateway

import (
	"github.com/okian/scorer/pkg/logger"
)

// Option applies a configuration option to the Gateway.
type Option func(*Gateway)

// WithMaxInFlight caps concurrent scoring calls.
func WithMaxInFlight(n int) Option {
	return func(g *Gateway) {
		if n > 0 {
			g.maxInFlight = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(g *Gateway) {
		if l != nil {
			g.log = l
		}
	}
}

// WithTransitionHook registers fn to observe every state transition.
func WithTransitionHook(fn func(reqID string, from, to State)) Option {
	return func(g *Gateway) {
		g.hook = fn
	}
}
