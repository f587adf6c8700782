// Package provider implements C2, the typed wrapper over the mail
// provider API (Gmail). Every call passes through the shared RateLimiter
// (C1), refreshes credentials on demand, retries transient failures with
// backoff, and classifies terminal failures into the sentinel errors
// pkg/utils/errutil already knows how to route (spec §4.2, §7).
package provider

import (
	"context"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"golang.org/x/oauth2"

	"github.com/projectloop/mailgrouper/pkg/domain/interfaces"
	"github.com/projectloop/mailgrouper/pkg/domain/model"
	"github.com/projectloop/mailgrouper/pkg/utils/secure"
)

// tokenRefreshMargin is spec §4.2's "≤60s life remaining" refresh trigger.
const tokenRefreshMargin = 60 * time.Second

// Config tunes retry policy and per-call timeouts. Zero values fall back
// to spec defaults.
type Config struct {
	MaxAttempts   int           // transient-failure retry ceiling, spec default 3
	BackoffBase   time.Duration
	BackoffMax    time.Duration
	CallTimeout   time.Duration // spec §4.10 default: provider calls 30s
	QuotaCooldown time.Duration // spec §4.2: 403 quota_exceeded is fatal-for-user until this elapses
}

func (c Config) withDefaults() Config {
	if c.MaxAttempts == 0 {
		c.MaxAttempts = 3
	}
	if c.BackoffBase == 0 {
		c.BackoffBase = 500 * time.Millisecond
	}
	if c.BackoffMax == 0 {
		c.BackoffMax = 10 * time.Second
	}
	if c.CallTimeout == 0 {
		c.CallTimeout = 30 * time.Second
	}
	if c.QuotaCooldown == 0 {
		c.QuotaCooldown = time.Hour
	}
	return c
}

// Client implements interfaces.ProviderClient over the Gmail API.
type Client struct {
	users   interfaces.UserRepository
	limiter interfaces.RateLimiter
	box     *secure.Box
	cfg     Config
	reduce  *htmlReducer

	// tokenSource builds the refresh path for a possibly-stale token.
	// Defaults to oauthCfg.TokenSource; overridable in tests so a forced
	// refresh (the 401 retry path) never dials the real token endpoint.
	tokenSource func(ctx context.Context, tok *oauth2.Token) oauth2.TokenSource

	// newTransport builds a gmailTransport from a token source. Defaults
	// to newGmailTransport; stubbed in tests so a forced refresh never
	// builds a real *gmail.Service.
	newTransport func(ctx context.Context, ts oauth2.TokenSource) (gmailTransport, error)

	mu         sync.Mutex
	transports map[model.UserID]gmailTransport
	quotaUntil map[model.UserID]time.Time
}

var _ interfaces.ProviderClient = &Client{}

func New(users interfaces.UserRepository, limiter interfaces.RateLimiter, oauthCfg *oauth2.Config, box *secure.Box, cfg Config) *Client {
	return &Client{
		users:        users,
		limiter:      limiter,
		box:          box,
		cfg:          cfg.withDefaults(),
		reduce:       newHTMLReducer(),
		tokenSource:  oauthCfg.TokenSource,
		newTransport: newGmailTransport,
		transports:   make(map[model.UserID]gmailTransport),
		quotaUntil:   make(map[model.UserID]time.Time),
	}
}

func (c *Client) decrypt(ciphertext []byte) ([]byte, error) {
	if c.box == nil {
		return ciphertext, nil
	}
	return c.box.Open(ciphertext)
}

func (c *Client) encrypt(plaintext []byte) ([]byte, error) {
	if c.box == nil {
		return plaintext, nil
	}
	return c.box.Seal(plaintext)
}

func (c *Client) persistToken(ctx context.Context, u *model.User, tok *oauth2.Token) error {
	accessEnc, err := c.encrypt([]byte(tok.AccessToken))
	if err != nil {
		return goerr.Wrap(err, "encrypt access token")
	}
	refreshTok := tok.RefreshToken
	if refreshTok == "" {
		// Google omits refresh_token from a refresh response; keep the one on file.
		if existing, derr := c.decrypt(u.Credentials.RefreshTokenEnc); derr == nil {
			refreshTok = string(existing)
		}
	}
	refreshEnc, err := c.encrypt([]byte(refreshTok))
	if err != nil {
		return goerr.Wrap(err, "encrypt refresh token")
	}
	u.Credentials = model.Credentials{
		AccessTokenEnc:  accessEnc,
		RefreshTokenEnc: refreshEnc,
		ExpiresAt:       tok.Expiry,
	}
	u.UpdatedAt = time.Now().UTC()
	_, err = c.users.Update(ctx, u)
	return err
}

// transportFor returns a cached, still-valid transport for userID, or
// builds one — refreshing credentials first when they are expiring soon
// or forceRefresh is set (the retry path's response to a 401).
func (c *Client) transportFor(ctx context.Context, userID model.UserID, forceRefresh bool) (gmailTransport, error) {
	c.mu.Lock()
	if !forceRefresh {
		if tr, ok := c.transports[userID]; ok {
			c.mu.Unlock()
			return tr, nil
		}
	}
	c.mu.Unlock()

	u, err := c.users.Get(ctx, userID)
	if err != nil {
		return nil, goerr.Wrap(err, "load user credentials", goerr.V("user_id", userID))
	}

	accessTok, err := c.decrypt(u.Credentials.AccessTokenEnc)
	if err != nil {
		return nil, goerr.Wrap(err, "decrypt access token", goerr.V("user_id", userID))
	}
	refreshTok, err := c.decrypt(u.Credentials.RefreshTokenEnc)
	if err != nil {
		return nil, goerr.Wrap(err, "decrypt refresh token", goerr.V("user_id", userID))
	}

	tok := &oauth2.Token{
		AccessToken:  string(accessTok),
		RefreshToken: string(refreshTok),
		Expiry:       u.Credentials.ExpiresAt,
	}

	if forceRefresh {
		tok.Expiry = time.Now().Add(-time.Minute)
	}

	if forceRefresh || u.Credentials.ExpiringSoon(tokenRefreshMargin, time.Now().UTC()) {
		fresh, err := c.tokenSource(ctx, tok).Token()
		if err != nil {
			return nil, goerr.Wrap(interfaces.ErrAuthExpired, "refresh access token", goerr.V("user_id", userID), goerr.V("cause", err.Error()))
		}
		if fresh.AccessToken != tok.AccessToken {
			if err := c.persistToken(ctx, u, fresh); err != nil {
				return nil, goerr.Wrap(err, "persist refreshed token", goerr.V("user_id", userID))
			}
		}
		tok = fresh
	}

	tr, err := c.newTransport(ctx, oauth2.StaticTokenSource(tok))
	if err != nil {
		return nil, goerr.Wrap(err, "build gmail client", goerr.V("user_id", userID))
	}

	c.mu.Lock()
	c.transports[userID] = tr
	c.mu.Unlock()
	return tr, nil
}

func (c *Client) invalidateTransport(userID model.UserID) {
	c.mu.Lock()
	delete(c.transports, userID)
	c.mu.Unlock()
}

func (c *Client) quotaBlocked(userID model.UserID) (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	until, ok := c.quotaUntil[userID]
	if !ok || time.Now().After(until) {
		return time.Time{}, false
	}
	return until, true
}

func (c *Client) setQuotaCooldown(userID model.UserID) {
	c.mu.Lock()
	c.quotaUntil[userID] = time.Now().Add(c.cfg.QuotaCooldown)
	c.mu.Unlock()
}

// call runs fn against userID's transport, gated by C1, retried on
// transient failure with backoff, and reauthenticated once on a 401
// before surfacing AuthExpired (spec §4.2/§7).
func (c *Client) call(ctx context.Context, userID model.UserID, kind interfaces.RateKind, fn func(ctx context.Context, tr gmailTransport) error) error {
	if until, blocked := c.quotaBlocked(userID); blocked {
		return goerr.Wrap(interfaces.ErrQuotaExceeded, "quota cooldown active", goerr.V("user_id", userID), goerr.V("until", until))
	}

	var lastErr error
	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		if d := c.limiter.Acquire(ctx, userID, kind); !d.OK {
			return goerr.Wrap(interfaces.ErrRateLimited, "rate limiter refused", goerr.V("user_id", userID), goerr.V("retry_after_ms", d.RetryAfterMS))
		}

		tr, err := c.transportFor(ctx, userID, false)
		if err != nil {
			return err
		}

		callCtx, cancel := context.WithTimeout(ctx, c.cfg.CallTimeout)
		err = fn(callCtx, tr)
		cancel()
		if err == nil {
			return nil
		}

		if isUnauthorized(err) {
			c.invalidateTransport(userID)
			tr2, rerr := c.transportFor(ctx, userID, true)
			if rerr != nil {
				return rerr
			}
			retryCtx, cancel2 := context.WithTimeout(ctx, c.cfg.CallTimeout)
			err2 := fn(retryCtx, tr2)
			cancel2()
			if err2 == nil {
				return nil
			}
			if isUnauthorized(err2) {
				_ = c.users.SetAuthExpired(ctx, userID, true)
				return goerr.Wrap(interfaces.ErrAuthExpired, "credentials expired, user re-consent required", goerr.V("user_id", userID))
			}
			err = err2
		}

		if isQuotaExceeded(err) {
			c.setQuotaCooldown(userID)
			return goerr.Wrap(interfaces.ErrQuotaExceeded, "provider quota exceeded", goerr.V("user_id", userID))
		}
		if isRateLimited(err) {
			return goerr.Wrap(interfaces.ErrRateLimited, "provider rate limited", goerr.V("user_id", userID), goerr.V("retry_after_ms", int64(30*time.Second/time.Millisecond)))
		}
		if !isTransient(err) {
			return goerr.Wrap(err, "provider call failed", goerr.V("user_id", userID))
		}

		lastErr = err
		if attempt == c.cfg.MaxAttempts {
			break
		}
		if serr := sleepCtx(ctx, backoff(attempt, c.cfg.BackoffBase, c.cfg.BackoffMax)); serr != nil {
			return goerr.Wrap(serr, "provider retry cancelled", goerr.V("user_id", userID))
		}
	}
	return goerr.Wrap(lastErr, "provider call failed after retries", goerr.V("user_id", userID), goerr.V("attempts", c.cfg.MaxAttempts))
}
