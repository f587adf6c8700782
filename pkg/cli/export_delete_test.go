package cli

import (
	"context"
	"testing"
	"time"

	"github.com/m-mizutani/gt"

	"github.com/projectloop/mailgrouper/pkg/domain/model"
	"github.com/projectloop/mailgrouper/pkg/domain/types"
	"github.com/projectloop/mailgrouper/pkg/repository/memory"
)

const exportTestUser = model.UserID("u1")

func seedExportFixture(t *testing.T, ctx context.Context) *memory.Memory {
	t.Helper()
	repo := memory.New()

	_, err := repo.User().Create(ctx, &model.User{ID: exportTestUser, Email: "u1@example.com", Active: true})
	gt.NoError(t, err).Required()

	p, err := repo.Project().Create(ctx, exportTestUser, &model.Project{Name: "123 Example St", Status: types.ProjectStatusActive})
	gt.NoError(t, err).Required()

	now := time.Now().UTC()
	gt.NoError(t, repo.Mapping().Put(ctx, exportTestUser, &model.EmailProjectMapping{
		UserID: exportTestUser, MessageID: "m1", ProjectID: p.ID, Active: true,
		AssociationMethod: types.AssociationManual, CreatedAt: now, UpdatedAt: now,
	})).Required()

	return repo
}

func TestExportBundleIncludesProjectsAndMappings(t *testing.T) {
	ctx := context.Background()
	repo := seedExportFixture(t, ctx)

	bundle, err := exportBundle(ctx, repo, exportTestUser)
	gt.NoError(t, err).Required()
	gt.Array(t, bundle.Projects).Length(1)
	gt.Array(t, bundle.Mappings).Length(1)
	gt.Value(t, bundle.User.ID).Equal(exportTestUser)
}

func TestDeleteUserDataAnonymizesAndDeactivates(t *testing.T) {
	ctx := context.Background()
	repo := seedExportFixture(t, ctx)

	summary, err := bareUseCase(repo).DeleteUserData(ctx, exportTestUser)
	gt.NoError(t, err).Required()
	gt.Value(t, summary.ProjectsDeleted).Equal(1)
	gt.Value(t, summary.MappingsDeactivated).Equal(1)
	gt.Value(t, summary.UserAnonymized).Equal(true)

	user, err := repo.User().Get(ctx, exportTestUser)
	gt.NoError(t, err).Required()
	gt.Value(t, user.Active).Equal(false)
	gt.Value(t, user.Email).Equal("deleted-u1@deleted.invalid")

	projects, err := repo.Project().List(ctx, exportTestUser, "")
	gt.NoError(t, err).Required()
	gt.Array(t, projects).Length(0)
}
