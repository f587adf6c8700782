package memory

import (
	"context"

	"github.com/projectloop/mailgrouper/pkg/domain/interfaces"
	"github.com/projectloop/mailgrouper/pkg/repository/backend"
)

func init() {
	backend.Register("memory", func(_ context.Context, _ string) (interfaces.Repository, error) {
		return New(), nil
	})
}
