package postgres

import (
	"context"

	"github.com/projectloop/mailgrouper/pkg/domain/interfaces"
	"github.com/projectloop/mailgrouper/pkg/repository/backend"
)

func init() {
	factory := func(ctx context.Context, dsn string) (interfaces.Repository, error) {
		return New(ctx, dsn)
	}
	backend.Register("postgres", factory)
	backend.Register("postgresql", factory)
}
