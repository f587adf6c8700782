// Package config implements C13: a single typed struct covering every
// recognized option (spec §6) plus the ambient options the rest of the
// system needs (metastore DSN, credential encryption key, OAuth client,
// bearer-auth verification, Slack/Sentry wiring). Loaded the way the
// teacher's internal/config.Load does — github.com/joho/godotenv for an
// optional local .env file, then github.com/caarlos0/env/v11 struct tags —
// generalized from a handful of bot options to every spec §6 option.
//
// pkg/cli composes a urfave/cli/v3 flag layer on top of this struct so
// its string options are also settable by flag (the numeric and threshold
// options are environment-only), following the teacher's
// pkg/cli/config per-topic flag-struct pattern; this package is the single
// source of defaults both layers agree on.
package config

import (
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/m-mizutani/goerr/v2"

	"github.com/projectloop/mailgrouper/pkg/utils/secure"
)

// Config is the process-wide configuration surface.
type Config struct {
	// Domain options (spec §6).
	AIProvider                string  `env:"AI_PROVIDER" envDefault:"stub"`
	AIModel                   string  `env:"AI_MODEL"`
	AITimeoutMS               int     `env:"AI_TIMEOUT_MS" envDefault:"30000"`
	RateReadPerSec            float64 `env:"RATE_READ_PER_SEC" envDefault:"5"`
	RateWritePerSec           float64 `env:"RATE_WRITE_PER_SEC" envDefault:"5"`
	PollInterval              string  `env:"POLL_INTERVAL" envDefault:"normal"`
	ConfidenceAuto            float64 `env:"CONFIDENCE_AUTO" envDefault:"0.80"`
	ConfidenceReview          float64 `env:"CONFIDENCE_REVIEW" envDefault:"0.60"`
	ConfidenceNew             float64 `env:"CONFIDENCE_NEW" envDefault:"0.40"`
	BatchMax                  int     `env:"BATCH_MAX" envDefault:"100"`
	QueueMaxAttempts          int     `env:"QUEUE_MAX_ATTEMPTS" envDefault:"3"`
	WatchRenewalMarginMin     int     `env:"WATCH_RENEWAL_MARGIN_MIN" envDefault:"60"`
	LearningPatternMinSupport int     `env:"LEARNING_PATTERN_MIN_SUPPORT" envDefault:"3"`

	// RetroScanSliceDays and AlertGroupingAccuracyThreshold resolve
	// SPEC_FULL §13 Open Questions 1 and 2.
	RetroScanSliceDays             int     `env:"RETRO_SCAN_SLICE_DAYS" envDefault:"7"`
	AlertGroupingAccuracyThreshold float64 `env:"ALERT_GROUPING_ACCURACY_THRESHOLD" envDefault:"0.85"`

	// Metastore / credential storage.
	MetastoreDSN   string `env:"METASTORE_DSN" envDefault:"memory://"`
	CredentialsKey string `env:"CREDENTIALS_KEY"`

	// Upstream OAuth client (token exchange for User.Credentials).
	OAuthClientID     string `env:"OAUTH_CLIENT_ID"`
	OAuthClientSecret string `env:"OAUTH_CLIENT_SECRET"`
	OAuthRedirectURL  string `env:"OAUTH_REDIRECT_URL"`

	// Bearer-auth verification for the HTTP surface (spec §6).
	AuthJWKSURL  string `env:"AUTH_JWKS_URL"`
	AuthIssuer   string `env:"AUTH_ISSUER"`
	AuthAudience string `env:"AUTH_AUDIENCE"`

	// WebhookSharedSecret authenticates POST /webhook/mail push deliveries
	// (the provider's push subscription carries it back as the "token"
	// query parameter, out of band from the bearer-auth'd /api/v1 surface).
	WebhookSharedSecret string `env:"WEBHOOK_SHARED_SECRET"`

	// Notifier (C12).
	SlackBotToken string `env:"SLACK_BOT_TOKEN"`
	SlackChannel  string `env:"SLACK_CHANNEL"`

	// Ambient stack.
	SentryDSN string `env:"SENTRY_DSN"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"console"`
	HTTPAddr  string `env:"HTTP_ADDR" envDefault:":8080"`

	OpenAIAPIKey string `env:"OPENAI_API_KEY"`

	// Gemini vendor (AI_PROVIDER=gemini), via github.com/m-mizutani/gollem.
	GeminiProjectID string `env:"GEMINI_PROJECT_ID"`
	GeminiLocation  string `env:"GEMINI_LOCATION" envDefault:"us-central1"`

	// AttachmentBucket is the Cloud Storage bucket backing
	// model.Attachment.BlobRef (spec §3). Left empty, attachment blobs are
	// never fetched or stored — only their metadata is persisted.
	AttachmentBucket string `env:"ATTACHMENT_BUCKET"`
}

// AITimeout is AITimeoutMS as a time.Duration.
func (c Config) AITimeout() time.Duration {
	return time.Duration(c.AITimeoutMS) * time.Millisecond
}

// WatchRenewalMargin is WatchRenewalMarginMin as a time.Duration.
func (c Config) WatchRenewalMargin() time.Duration {
	return time.Duration(c.WatchRenewalMarginMin) * time.Minute
}

// Load reads an optional .env file (ignored if absent, matching the
// teacher) then parses environment variables into a Config.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, goerr.Wrap(err, "parse config from environment")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the invariants the rest of the system assumes hold:
// the confidence bands are strictly ordered (spec §4.7's tiered
// assign/review/create decision) and, when set, CREDENTIALS_KEY is usable
// by pkg/utils/secure.
func (c Config) Validate() error {
	if c.CredentialsKey != "" && len(c.CredentialsKey) != secure.KeySize {
		return goerr.New("CREDENTIALS_KEY must be exactly 32 bytes",
			goerr.V("len", len(c.CredentialsKey)))
	}
	if !(c.ConfidenceAuto > c.ConfidenceReview && c.ConfidenceReview > c.ConfidenceNew) {
		return goerr.New("confidence thresholds must satisfy CONFIDENCE_AUTO > CONFIDENCE_REVIEW > CONFIDENCE_NEW",
			goerr.V("auto", c.ConfidenceAuto), goerr.V("review", c.ConfidenceReview), goerr.V("new", c.ConfidenceNew))
	}
	switch c.PollInterval {
	case "fast", "normal", "slow":
	default:
		return goerr.New("POLL_INTERVAL must be one of fast, normal, slow", goerr.V("value", c.PollInterval))
	}
	if c.AITimeoutMS <= 0 {
		return goerr.New("AI_TIMEOUT_MS must be positive", goerr.V("value", c.AITimeoutMS))
	}
	return nil
}

// SecureBox builds a credential-encryption Box from CredentialsKey. Callers
// that don't touch pkg/provider (e.g. a one-off CLI export command reading
// already-decrypted data) can skip calling this.
func (c Config) SecureBox() (*secure.Box, error) {
	box, err := secure.New([]byte(c.CredentialsKey))
	if err != nil {
		return nil, goerr.Wrap(err, "build credential box")
	}
	return box, nil
}
