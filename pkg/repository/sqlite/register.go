package sqlite

import (
	"context"
	"net/url"
	"strings"

	"github.com/projectloop/mailgrouper/pkg/domain/interfaces"
	"github.com/projectloop/mailgrouper/pkg/repository/backend"
)

func init() {
	factory := func(_ context.Context, dsn string) (interfaces.Repository, error) {
		return New(dsnPath(dsn))
	}
	backend.Register("sqlite", factory)
	backend.Register("sqlite3", factory)
}

// dsnPath strips a sqlite:// scheme, if present, leaving a filesystem path.
// A bare path with no scheme (the CLI's --db-path convention) passes through
// unchanged.
func dsnPath(dsn string) string {
	if !strings.Contains(dsn, "://") {
		return dsn
	}
	parsed, err := url.Parse(dsn)
	if err != nil {
		return dsn
	}
	if parsed.Opaque != "" {
		return parsed.Opaque
	}
	path := parsed.Host + parsed.Path
	return path
}
