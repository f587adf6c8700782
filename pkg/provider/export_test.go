package provider

import (
	"context"

	"golang.org/x/oauth2"

	"github.com/projectloop/mailgrouper/pkg/domain/model"
)

// Export internal identifiers for provider_test.go (package provider_test).
var (
	BuildMessage    = buildMessage
	NewHTMLReducer  = newHTMLReducer
	Backoff         = backoff
	IsTransient     = isTransient
	IsUnauthorized  = isUnauthorized
	IsQuotaExceeded = isQuotaExceeded
	IsRateLimited   = isRateLimited
)

// GmailTransport re-exports the transport seam so an external test package
// can implement a fake against it.
type GmailTransport = gmailTransport

// SetTransport injects a pre-built transport for userID, bypassing the
// real OAuth/HTTP wiring transportFor would otherwise perform.
func (c *Client) SetTransport(userID model.UserID, tr GmailTransport) {
	c.mu.Lock()
	c.transports[userID] = tr
	c.mu.Unlock()
}

// StubTokenSource overrides how Client refreshes tokens, so a forced
// refresh (the 401 retry path) never dials a real token endpoint.
func (c *Client) StubTokenSource(f func(tok *oauth2.Token) oauth2.TokenSource) {
	c.tokenSource = func(_ context.Context, tok *oauth2.Token) oauth2.TokenSource {
		return f(tok)
	}
}

// StubTransportFactory overrides how Client turns a refreshed token into a
// transport, so a forced refresh never builds a real *gmail.Service.
func (c *Client) StubTransportFactory(f func() (GmailTransport, error)) {
	c.newTransport = func(_ context.Context, _ oauth2.TokenSource) (gmailTransport, error) {
		return f()
	}
}
