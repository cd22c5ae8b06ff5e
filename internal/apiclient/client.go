// Package apiclient speaks the agent side of the management API: node lookup with
// bounded retries, and single-shot heartbeats.
package apiclient

import (
	"log/slog"

	"github.com/izzyreal/nodeagent/internal/retry"
	"github.com/izzyreal/nodeagent/internal/transport"
)

type Client struct {
	transport transport.Requester
	log       *slog.Logger
	retryOpts []retry.Option
}

type Option func(*Client)

// WithRetryOptions passes options through to the lookup retry scheduler.
func WithRetryOptions(opts ...retry.Option) Option {
	return func(c *Client) {
		c.retryOpts = append(c.retryOpts, opts...)
	}
}

func New(t transport.Requester, logger *slog.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{
		transport: t,
		log:       logger.With("component", "apiclient"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}
