// Package config composes a urfave/cli/v3 flag layer on top of
// pkg/config.Config, following the teacher's pkg/cli/config per-topic
// flag-struct pattern (Repository, Slack, Gemini): each topic owns its own
// Flags() and, here, a single ApplyOverrides that writes any
// explicitly-set flag back onto an already env-loaded Config. Flags take
// precedence over the environment only when set, so `serve --addr :9090`
// overrides HTTP_ADDR without disturbing every other option.
package config

import (
	"github.com/urfave/cli/v3"

	appconfig "github.com/projectloop/mailgrouper/pkg/config"
)

// Server holds pkg/config.Config's string options as CLI flags, each
// reading the same environment variable as the matching Config field. The
// numeric and threshold options (AI_TIMEOUT_MS, RATE_*_PER_SEC,
// POLL_INTERVAL, CONFIDENCE_*, BATCH_MAX, QUEUE_MAX_ATTEMPTS,
// WATCH_RENEWAL_MARGIN_MIN, LEARNING_PATTERN_MIN_SUPPORT,
// RETRO_SCAN_SLICE_DAYS, ALERT_GROUPING_ACCURACY_THRESHOLD) have no flag
// and are set through the environment only.
type Server struct {
	MetastoreDSN      string
	HTTPAddr          string
	LogLevel          string
	LogFormat         string
	AIProvider        string
	AIModel           string
	OpenAIAPIKey      string
	GeminiProjectID   string
	GeminiLocation    string
	CredentialsKey    string
	OAuthClientID     string
	OAuthClientSecret string
	OAuthRedirectURL  string
	AuthJWKSURL       string
	AuthIssuer        string
	AuthAudience      string
	WebhookSecret     string
	SlackBotToken     string
	SlackChannel      string
	SentryDSN         string
	AttachmentBucket  string
}

// Flags returns the CLI flags for every Server field. Destinations are
// plain strings rather than pkg/config.Config fields directly so a flag
// left unset does not overwrite the env-loaded value — ApplyOverrides only
// copies a flag's value when it is non-empty, so a flag explicitly set to
// "" is treated the same as an unset one.
func (s *Server) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "metastore-dsn", Usage: "Metastore DSN (memory://, postgres://…, sqlite://…, firestore://project/database)", Sources: cli.EnvVars("METASTORE_DSN"), Destination: &s.MetastoreDSN},
		&cli.StringFlag{Name: "addr", Usage: "HTTP server address", Sources: cli.EnvVars("HTTP_ADDR"), Destination: &s.HTTPAddr},
		&cli.StringFlag{Name: "log-level", Usage: "Log level", Sources: cli.EnvVars("LOG_LEVEL"), Destination: &s.LogLevel},
		&cli.StringFlag{Name: "log-format", Usage: "Log format (console or json)", Sources: cli.EnvVars("LOG_FORMAT"), Destination: &s.LogFormat},
		&cli.StringFlag{Name: "ai-provider", Usage: "Entity extraction vendor (stub, openai, gemini)", Category: "AI", Sources: cli.EnvVars("AI_PROVIDER"), Destination: &s.AIProvider},
		&cli.StringFlag{Name: "ai-model", Usage: "Model name override for the configured AI provider", Category: "AI", Sources: cli.EnvVars("AI_MODEL"), Destination: &s.AIModel},
		&cli.StringFlag{Name: "openai-api-key", Usage: "OpenAI API key (AI_PROVIDER=openai)", Category: "AI", Sources: cli.EnvVars("OPENAI_API_KEY"), Destination: &s.OpenAIAPIKey},
		&cli.StringFlag{Name: "gemini-project", Usage: "Google Cloud project ID for Gemini (AI_PROVIDER=gemini)", Category: "AI", Sources: cli.EnvVars("GEMINI_PROJECT_ID"), Destination: &s.GeminiProjectID},
		&cli.StringFlag{Name: "gemini-location", Usage: "Google Cloud location for Gemini", Category: "AI", Sources: cli.EnvVars("GEMINI_LOCATION"), Destination: &s.GeminiLocation},
		&cli.StringFlag{Name: "credentials-key", Usage: "32-byte key encrypting stored OAuth credentials", Category: "Auth", Sources: cli.EnvVars("CREDENTIALS_KEY"), Destination: &s.CredentialsKey},
		&cli.StringFlag{Name: "oauth-client-id", Usage: "Upstream provider OAuth client ID", Category: "Auth", Sources: cli.EnvVars("OAUTH_CLIENT_ID"), Destination: &s.OAuthClientID},
		&cli.StringFlag{Name: "oauth-client-secret", Usage: "Upstream provider OAuth client secret", Category: "Auth", Sources: cli.EnvVars("OAUTH_CLIENT_SECRET"), Destination: &s.OAuthClientSecret},
		&cli.StringFlag{Name: "oauth-redirect-url", Usage: "Upstream provider OAuth redirect URL", Category: "Auth", Sources: cli.EnvVars("OAUTH_REDIRECT_URL"), Destination: &s.OAuthRedirectURL},
		&cli.StringFlag{Name: "auth-jwks-url", Usage: "JWKS URL verifying bearer tokens on the HTTP API", Category: "Auth", Sources: cli.EnvVars("AUTH_JWKS_URL"), Destination: &s.AuthJWKSURL},
		&cli.StringFlag{Name: "auth-issuer", Usage: "Expected bearer token issuer", Category: "Auth", Sources: cli.EnvVars("AUTH_ISSUER"), Destination: &s.AuthIssuer},
		&cli.StringFlag{Name: "auth-audience", Usage: "Expected bearer token audience", Category: "Auth", Sources: cli.EnvVars("AUTH_AUDIENCE"), Destination: &s.AuthAudience},
		&cli.StringFlag{Name: "webhook-shared-secret", Usage: "Shared secret authenticating POST /webhook/mail", Category: "Auth", Sources: cli.EnvVars("WEBHOOK_SHARED_SECRET"), Destination: &s.WebhookSecret},
		&cli.StringFlag{Name: "slack-bot-token", Usage: "Slack bot token for C12 notifications", Category: "Notify", Sources: cli.EnvVars("SLACK_BOT_TOKEN"), Destination: &s.SlackBotToken},
		&cli.StringFlag{Name: "slack-channel", Usage: "Slack channel for C12 notifications", Category: "Notify", Sources: cli.EnvVars("SLACK_CHANNEL"), Destination: &s.SlackChannel},
		&cli.StringFlag{Name: "sentry-dsn", Usage: "Sentry DSN for panic/error capture", Sources: cli.EnvVars("SENTRY_DSN"), Destination: &s.SentryDSN},
		&cli.StringFlag{Name: "attachment-bucket", Usage: "Cloud Storage bucket backing attachment blob refs", Sources: cli.EnvVars("ATTACHMENT_BUCKET"), Destination: &s.AttachmentBucket},
	}
}

// ApplyOverrides copies every non-empty flag value onto cfg. cfg is
// expected to already carry env.v11 defaults from config.Load, so a flag
// left at its zero value never clobbers an environment-supplied setting.
func (s *Server) ApplyOverrides(cfg *appconfig.Config) {
	for _, o := range []struct {
		set bool
		fn  func()
	}{
		{s.MetastoreDSN != "", func() { cfg.MetastoreDSN = s.MetastoreDSN }},
		{s.HTTPAddr != "", func() { cfg.HTTPAddr = s.HTTPAddr }},
		{s.LogLevel != "", func() { cfg.LogLevel = s.LogLevel }},
		{s.LogFormat != "", func() { cfg.LogFormat = s.LogFormat }},
		{s.AIProvider != "", func() { cfg.AIProvider = s.AIProvider }},
		{s.AIModel != "", func() { cfg.AIModel = s.AIModel }},
		{s.OpenAIAPIKey != "", func() { cfg.OpenAIAPIKey = s.OpenAIAPIKey }},
		{s.GeminiProjectID != "", func() { cfg.GeminiProjectID = s.GeminiProjectID }},
		{s.GeminiLocation != "", func() { cfg.GeminiLocation = s.GeminiLocation }},
		{s.CredentialsKey != "", func() { cfg.CredentialsKey = s.CredentialsKey }},
		{s.OAuthClientID != "", func() { cfg.OAuthClientID = s.OAuthClientID }},
		{s.OAuthClientSecret != "", func() { cfg.OAuthClientSecret = s.OAuthClientSecret }},
		{s.OAuthRedirectURL != "", func() { cfg.OAuthRedirectURL = s.OAuthRedirectURL }},
		{s.AuthJWKSURL != "", func() { cfg.AuthJWKSURL = s.AuthJWKSURL }},
		{s.AuthIssuer != "", func() { cfg.AuthIssuer = s.AuthIssuer }},
		{s.AuthAudience != "", func() { cfg.AuthAudience = s.AuthAudience }},
		{s.WebhookSecret != "", func() { cfg.WebhookSharedSecret = s.WebhookSecret }},
		{s.SlackBotToken != "", func() { cfg.SlackBotToken = s.SlackBotToken }},
		{s.SlackChannel != "", func() { cfg.SlackChannel = s.SlackChannel }},
		{s.SentryDSN != "", func() { cfg.SentryDSN = s.SentryDSN }},
		{s.AttachmentBucket != "", func() { cfg.AttachmentBucket = s.AttachmentBucket }},
	} {
		if o.set {
			o.fn()
		}
	}
}
