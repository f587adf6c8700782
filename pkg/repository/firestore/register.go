package firestore

import (
	"context"
	"net/url"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/projectloop/mailgrouper/pkg/domain/interfaces"
	"github.com/projectloop/mailgrouper/pkg/repository/backend"
)

func init() {
	backend.Register("firestore", func(ctx context.Context, dsn string) (interfaces.Repository, error) {
		parsed, err := url.Parse(dsn)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to parse firestore dsn")
		}
		projectID := parsed.Host
		var opts []Option
		if prefix := strings.TrimPrefix(parsed.Path, "/"); prefix != "" {
			opts = append(opts, WithCollectionPrefix(prefix))
		}
		return New(ctx, projectID, opts...)
	})
}
