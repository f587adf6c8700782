// Package cli is the process entrypoint, grounded on the teacher's
// pkg/cli.Run: one urfave/cli/v3 app with a Before/After pair handling
// process-wide logging and Sentry setup, and one subcommand per operator
// task.
package cli

import (
	"context"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/projectloop/mailgrouper/pkg/utils/logging"
)

// Run is main.go's entrypoint.
func Run(ctx context.Context, args []string, version string) error {
	var sentryFlush func()

	app := &cli.Command{
		Name:    "mailgrouper",
		Usage:   "mailbox ingestion, entity extraction and project resolution pipeline",
		Version: version,
		Before: func(ctx context.Context, c *cli.Command) (context.Context, error) {
			logging.SetDefault(logging.New(os.Stderr, "console", slog.LevelInfo))
			logging.Default().Info("starting mailgrouper", "version", version)
			return ctx, nil
		},
		After: func(ctx context.Context, c *cli.Command) error {
			if sentryFlush != nil {
				sentryFlush()
			}
			return nil
		},
		Commands: []*cli.Command{
			cmdServe(&sentryFlush, version),
			cmdMigrate(),
			cmdExport(),
			cmdDelete(),
		},
	}

	if err := app.Run(ctx, args); err != nil {
		logging.Default().Error("mailgrouper exited with error", "error", err.Error())
		return err
	}
	return nil
}
