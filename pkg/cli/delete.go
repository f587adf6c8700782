package cli

import (
	"context"
	"encoding/json"
	"os"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	appconfig "github.com/projectloop/mailgrouper/pkg/config"
	"github.com/projectloop/mailgrouper/pkg/domain/model"
	"github.com/projectloop/mailgrouper/pkg/repository/backend"
	"github.com/projectloop/mailgrouper/pkg/utils/safe"
)

// cmdDelete implements the SPEC_FULL §11 data-deletion supplement as a CLI
// subcommand, matching DeleteUserData's doc comment: "Not an HTTP route —
// callable only from pkg/usecase and the CLI's delete subcommand."
func cmdDelete() *cli.Command {
	var userID string
	var metastoreDSN string
	var confirm bool

	return &cli.Command{
		Name:  "delete",
		Usage: "deactivate and anonymize one user's data",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "user", Required: true, Destination: &userID},
			&cli.StringFlag{Name: "metastore-dsn", Sources: cli.EnvVars("METASTORE_DSN"), Destination: &metastoreDSN},
			&cli.BoolFlag{Name: "confirm", Usage: "required acknowledgment that this deactivates the user's projects and mappings", Destination: &confirm},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			if !confirm {
				return goerr.New("refusing to delete without --confirm")
			}

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

			summary, err := bareUseCase(repo).DeleteUserData(ctx, model.UserID(userID))
			if err != nil {
				return err
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(summary)
		},
	}
}
