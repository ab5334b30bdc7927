// Package mock provides test doubles for relay interfaces using function fields.
package mock

import (
	"context"

	"github.com/fwojciec/relay"
)

// Interface compliance checks.
var (
	_ relay.Client      = (*Client)(nil)
	_ relay.Completer   = (*Completer)(nil)
	_ relay.Credentials = (*Credentials)(nil)
)

// Client is a test double for relay.Client.
// Set StreamFn before calling Stream.
type Client struct {
	StreamFn func(ctx context.Context, req relay.Request) (relay.Stream, error)
}

// Stream delegates to StreamFn.
func (c *Client) Stream(ctx context.Context, req relay.Request) (relay.Stream, error) {
	return c.StreamFn(ctx, req)
}

// Completer is a test double for relay.Completer.
type Completer struct {
	CompleteFn func(ctx context.Context, req relay.Request) (relay.Completion, error)
}

// Complete delegates to CompleteFn.
func (c *Completer) Complete(ctx context.Context, req relay.Request) (relay.Completion, error) {
	return c.CompleteFn(ctx, req)
}

// Credentials is a test double for relay.Credentials.
type Credentials struct {
	TokenFn func(ctx context.Context) (string, error)
}

// Token delegates to TokenFn.
func (c *Credentials) Token(ctx context.Context) (string, error) {
	return c.TokenFn(ctx)
}
