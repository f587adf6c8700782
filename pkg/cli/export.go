package cli

import (
	"context"
	"encoding/json"
	"os"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	appconfig "github.com/projectloop/mailgrouper/pkg/config"
	"github.com/projectloop/mailgrouper/pkg/domain/interfaces"
	"github.com/projectloop/mailgrouper/pkg/domain/model"
	"github.com/projectloop/mailgrouper/pkg/repository/backend"
	"github.com/projectloop/mailgrouper/pkg/usecase"
	"github.com/projectloop/mailgrouper/pkg/utils/safe"
)

// bareUseCase builds a usecase.UseCase backed only by repo, for the export
// and delete subcommands whose operations never touch the queues,
// provider or scheduler a full serve wiring would otherwise require.
func bareUseCase(repo interfaces.Repository) *usecase.UseCase {
	return usecase.New(repo, nil, nil, nil, nil, nil, nil, nil, usecase.Config{})
}

func exportBundle(ctx context.Context, repo interfaces.Repository, userID model.UserID) (*usecase.ExportBundle, error) {
	return bareUseCase(repo).ExportUserData(ctx, userID)
}

// cmdExport implements the SPEC_FULL §11 data-export supplement as a CLI
// subcommand rather than an HTTP route, per ExportUserData's doc comment:
// "Not an HTTP route — callable only from pkg/usecase and the CLI's export
// subcommand."
func cmdExport() *cli.Command {
	var userID string
	var metastoreDSN string

	return &cli.Command{
		Name:  "export",
		Usage: "export one user's projects, mappings and corrections as JSON",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "user", Required: true, Destination: &userID},
			&cli.StringFlag{Name: "metastore-dsn", Sources: cli.EnvVars("METASTORE_DSN"), Destination: &metastoreDSN},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			cfg, err := appconfig.Load()
			if err != nil {
				return goerr.Wrap(err, "failed to load configuration")
			}
			if metastoreDSN != "" {
				cfg.MetastoreDSN = metastoreDSN
			}

			repo, err := backend.Open(ctx, cfg.MetastoreDSN)
			if err != nil {
				return goerr.Wrap(err, "failed to open metastore")
			}
			defer safe.Close(ctx, repo)

			bundle, err := exportBundle(ctx, repo, model.UserID(userID))
			if err != nil {
				return err
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(bundle)
		},
	}
}
