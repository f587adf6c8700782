package cli

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/m-mizutani/goerr/v2"
	gollemgemini "github.com/m-mizutani/gollem/llm/gemini"
	"github.com/urfave/cli/v3"
	"golang.org/x/oauth2"

	"github.com/projectloop/mailgrouper/pkg/analysis"
	"github.com/projectloop/mailgrouper/pkg/blobstore"
	cliconfig "github.com/projectloop/mailgrouper/pkg/cli/config"
	appconfig "github.com/projectloop/mailgrouper/pkg/config"
	httpctrl "github.com/projectloop/mailgrouper/pkg/controller/http"
	"github.com/projectloop/mailgrouper/pkg/correction"
	"github.com/projectloop/mailgrouper/pkg/domain/interfaces"
	"github.com/projectloop/mailgrouper/pkg/extractor/gemini"
	"github.com/projectloop/mailgrouper/pkg/extractor/openai"
	"github.com/projectloop/mailgrouper/pkg/extractor/stub"
	"github.com/projectloop/mailgrouper/pkg/ingest"
	"github.com/projectloop/mailgrouper/pkg/notify"
	"github.com/projectloop/mailgrouper/pkg/provider"
	"github.com/projectloop/mailgrouper/pkg/queue"
	"github.com/projectloop/mailgrouper/pkg/ratelimit"
	"github.com/projectloop/mailgrouper/pkg/reflector"
	"github.com/projectloop/mailgrouper/pkg/repository/backend"
	"github.com/projectloop/mailgrouper/pkg/resolver"
	"github.com/projectloop/mailgrouper/pkg/scheduler"
	"github.com/projectloop/mailgrouper/pkg/usecase"
	"github.com/projectloop/mailgrouper/pkg/utils/logging"
	"github.com/projectloop/mailgrouper/pkg/utils/secure"
	"github.com/projectloop/mailgrouper/pkg/watch"
)

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func cmdServe(sentryFlush *func(), version string) *cli.Command {
	var flagCfg cliconfig.Server

	return &cli.Command{
		Name:    "serve",
		Aliases: []string{"s"},
		Usage:   "run the ingestion/extraction/resolution pipeline and its HTTP API",
		Flags:   flagCfg.Flags(),
		Action: func(ctx context.Context, c *cli.Command) error {
			cfg, err := appconfig.Load()
			if err != nil {
				return goerr.Wrap(err, "failed to load configuration")
			}
			flagCfg.ApplyOverrides(cfg)

			logging.SetDefault(logging.New(os.Stderr, cfg.LogFormat, parseLevel(cfg.LogLevel)))

			flush, err := appconfig.InitSentry(cfg.SentryDSN, version)
			if err != nil {
				return err
			}
			*sentryFlush = flush

			repo, err := backend.Open(ctx, cfg.MetastoreDSN)
			if err != nil {
				return goerr.Wrap(err, "failed to open metastore")
			}
			defer func() {
				if cerr := repo.Close(); cerr != nil {
					logging.Default().Error("failed to close metastore", "error", cerr.Error())
				}
			}()

			limiter := ratelimit.New(ratelimit.Config{
				ReadRPS: cfg.RateReadPerSec, ReadBurst: int(cfg.RateReadPerSec),
				WriteRPS: cfg.RateWritePerSec, WriteBurst: int(cfg.RateWritePerSec),
			})

			var box *secure.Box
			if cfg.CredentialsKey != "" {
				box, err = cfg.SecureBox()
				if err != nil {
					return err
				}
			}

			oauthCfg := &oauth2.Config{
				ClientID:     cfg.OAuthClientID,
				ClientSecret: cfg.OAuthClientSecret,
				RedirectURL:  cfg.OAuthRedirectURL,
				Endpoint:     oauth2.Endpoint{TokenURL: "https://oauth2.googleapis.com/token"},
				Scopes:       []string{"https://www.googleapis.com/auth/gmail.modify"},
			}

			providerClient := provider.New(repo.User(), limiter, oauthCfg, box, provider.Config{
				CallTimeout: cfg.AITimeout(),
			})

			extractor, err := buildExtractor(ctx, cfg)
			if err != nil {
				return err
			}

			cache := analysis.NewCache(1000)
			res := resolver.New(repo, extractor, cache, resolver.Config{
				AutoAssignThreshold: cfg.ConfidenceAuto,
				ReviewThreshold:     cfg.ConfidenceReview,
				AmbiguousThreshold:  cfg.ConfidenceNew,
				LearningBonus:       0.10,
			})

			hub := notify.NewHub()
			notifier := notify.New(cfg.SlackBotToken, hub, notify.Config{SlackChannel: cfg.SlackChannel})

			reflectEng := reflector.New(repo.Queue(), queue.Config{MaxAttempts: cfg.QueueMaxAttempts}, providerClient, repo.Project(), repo.Mapping(), reflector.Config{})

			var blobs interfaces.BlobStore
			if cfg.AttachmentBucket != "" {
				blobStore, err := blobstore.New(ctx, cfg.AttachmentBucket)
				if err != nil {
					return err
				}
				blobs = blobStore
			}

			analysisQ := analysis.New(repo.Queue(), repo.Project(), extractor, res, cache, providerClient,
				queue.Config{MaxAttempts: cfg.QueueMaxAttempts}, analysis.Config{}, notifier, repo.Attachment(), blobs)

			ingestQ := ingest.New(repo.Queue(), queue.Config{MaxAttempts: cfg.QueueMaxAttempts}, providerClient, analysisQ)

			watchCoord := watch.New(repo, providerClient, ingestQ, watch.Config{
				RenewalMargin: cfg.WatchRenewalMargin(),
			})

			corrStore := correction.New(repo, correction.Config{MinSupport: cfg.LearningPatternMinSupport})

			sched := scheduler.New(repo.User(), repo.ScanConfig(), watchCoord, reflectEng, corrStore, analysisQ, scheduler.Config{
				RetroScanSliceDays: cfg.RetroScanSliceDays,
			})

			uc := usecase.New(repo, providerClient, ingestQ, analysisQ, watchCoord, reflectEng, corrStore, sched, usecase.Config{
				BatchMax: cfg.BatchMax,
			})

			srv := httpctrl.New(uc, hub, httpctrl.Config{
				JWKSURL:             cfg.AuthJWKSURL,
				Issuer:              cfg.AuthIssuer,
				Audience:            cfg.AuthAudience,
				WebhookSharedSecret: cfg.WebhookSharedSecret,
				Audit:               repo.Audit(),
			})

			workerCtx, cancelWorkers := context.WithCancel(context.Background())
			go ingestQ.Run(workerCtx)
			go analysisQ.Run(workerCtx)
			go reflectEng.Run(workerCtx)
			sched.Start(workerCtx)

			httpServer := &http.Server{
				Addr:              cfg.HTTPAddr,
				Handler:           srv,
				ReadHeaderTimeout: 30 * time.Second,
			}

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

			errCh := make(chan error, 1)
			go func() {
				logging.Default().Info("starting http server", "addr", cfg.HTTPAddr)
				if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					errCh <- goerr.Wrap(err, "http server failed")
				}
			}()

			select {
			case err := <-errCh:
				cancelWorkers()
				return err
			case sig := <-sigCh:
				logging.Default().Info("received shutdown signal", "signal", sig.String())

				ingestQ.Stop()
				analysisQ.Stop()
				reflectEng.Stop()
				sched.Stop()
				cancelWorkers()

				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if err := httpServer.Shutdown(shutdownCtx); err != nil {
					return goerr.Wrap(err, "failed to shut down http server gracefully")
				}
				logging.Default().Info("shutdown complete")
				return nil
			}
		},
	}
}

// buildExtractor selects the C5 EntityExtractor vendor named by
// cfg.AIProvider, defaulting to the deterministic stub when unset or
// unrecognized rather than failing startup (spec §4.5 "runs the pipeline
// without a configured model vendor").
func buildExtractor(ctx context.Context, cfg *appconfig.Config) (interfaces.EntityExtractor, error) {
	switch cfg.AIProvider {
	case "openai":
		if cfg.OpenAIAPIKey == "" {
			return nil, goerr.New("AI_PROVIDER=openai requires OPENAI_API_KEY")
		}
		return openai.New(cfg.OpenAIAPIKey, cfg.AIModel), nil
	case "gemini":
		if cfg.GeminiProjectID == "" {
			return nil, goerr.New("AI_PROVIDER=gemini requires GEMINI_PROJECT_ID")
		}
		llm, err := gollemgemini.New(ctx, cfg.GeminiProjectID, cfg.GeminiLocation)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to build gemini client")
		}
		return gemini.New(llm), nil
	default:
		return stub.New(), nil
	}
}
