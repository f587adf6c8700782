package usecase_test

import (
	"context"
	"testing"

	"github.com/m-mizutani/gt"

	"github.com/projectloop/mailgrouper/pkg/analysis"
	"github.com/projectloop/mailgrouper/pkg/correction"
	"github.com/projectloop/mailgrouper/pkg/domain/interfaces"
	"github.com/projectloop/mailgrouper/pkg/domain/model"
	"github.com/projectloop/mailgrouper/pkg/domain/types"
	"github.com/projectloop/mailgrouper/pkg/extractor/stub"
	"github.com/projectloop/mailgrouper/pkg/ingest"
	"github.com/projectloop/mailgrouper/pkg/queue"
	"github.com/projectloop/mailgrouper/pkg/reflector"
	"github.com/projectloop/mailgrouper/pkg/repository/memory"
	"github.com/projectloop/mailgrouper/pkg/resolver"
	"github.com/projectloop/mailgrouper/pkg/scheduler"
	"github.com/projectloop/mailgrouper/pkg/usecase"
	"github.com/projectloop/mailgrouper/pkg/watch"
)

const userID = model.UserID("u1")

// fakeProvider satisfies interfaces.ProviderClient with only the methods
// each test path actually calls, following the fakeProvider idiom used
// throughout pkg/watch, pkg/ingest and pkg/analysis's own tests.
type fakeProvider struct {
	interfaces.ProviderClient
	messages  map[model.MessageID]*model.Message
	listIDs   []model.MessageID
	listErr   error
	fetchErr  error
}

func (f *fakeProvider) FetchMessage(ctx context.Context, userID model.UserID, id model.MessageID, includeBody bool) (*model.Message, error) {
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	if m, ok := f.messages[id]; ok {
		return m, nil
	}
	return &model.Message{ID: id, ThreadID: model.ThreadID("t-" + string(id))}, nil
}

func (f *fakeProvider) ListMessages(ctx context.Context, userID model.UserID, q interfaces.ListQuery) (*interfaces.ListResult, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	ids := f.listIDs
	if q.PageSize > 0 && len(ids) > q.PageSize {
		ids = ids[:q.PageSize]
	}
	return &interfaces.ListResult{MessageIDs: ids}, nil
}

func (f *fakeProvider) GetHistory(ctx context.Context, userID model.UserID, since model.HistoryCursor) (*interfaces.HistoryResult, error) {
	return &interfaces.HistoryResult{}, nil
}

// newUseCase wires the full stack behind one UseCase with the memory
// backend, the deterministic stub extractor and the given provider — the
// same composition pkg/cli's serve command performs with real components.
func newUseCase(t *testing.T, repo *memory.Memory, provider interfaces.ProviderClient) *usecase.UseCase {
	t.Helper()

	extractor := stub.New()
	cache := analysis.NewCache(16)
	res := resolver.New(repo, extractor, cache, resolver.Config{})
	analysisQ := analysis.New(repo.Queue(), repo.Project(), extractor, res, cache, provider, queue.Config{}, analysis.Config{}, nil, repo.Attachment(), nil)
	ingestQ := ingest.New(repo.Queue(), queue.Config{}, provider, analysisQ)
	watchCoord := watch.New(repo, provider, ingestQ, watch.Config{})
	reflect := reflector.New(repo.Queue(), queue.Config{}, provider, repo.Project(), repo.Mapping(), reflector.Config{})
	corr := correction.New(repo, correction.Config{})
	sched := scheduler.New(repo.User(), repo.ScanConfig(), watchCoord, reflect, corr, analysisQ, scheduler.Config{})

	return usecase.New(repo, provider, ingestQ, analysisQ, watchCoord, reflect, corr, sched, usecase.Config{})
}

func seedProject(t *testing.T, ctx context.Context, repo *memory.Memory, id model.ProjectID, name string) *model.Project {
	t.Helper()
	p, err := repo.Project().Create(ctx, userID, &model.Project{ID: id, UserID: userID, Name: name, Status: types.ProjectStatusActive})
	gt.NoError(t, err).Required()
	return p
}

func seedMapping(t *testing.T, ctx context.Context, repo *memory.Memory, msgID model.MessageID, projectID model.ProjectID) {
	t.Helper()
	gt.NoError(t, repo.Mapping().Put(ctx, userID, &model.EmailProjectMapping{
		UserID: userID, MessageID: msgID, ProjectID: projectID, Active: true, Primary: true,
	})).Required()
}

func TestListAndGetProjects(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()
	seedProject(t, ctx, repo, "p1", "12 Baker St")
	uc := newUseCase(t, repo, &fakeProvider{})

	list, err := uc.ListProjects(ctx, userID, "")
	gt.NoError(t, err).Required()
	gt.Array(t, list).Length(1)

	got, err := uc.GetProject(ctx, userID, "p1")
	gt.NoError(t, err).Required()
	gt.Value(t, got.Name).Equal("12 Baker St")

	_, err = uc.GetProject(ctx, userID, "missing")
	gt.Error(t, err)
}

func TestAssignEmailCreatesMappingAndUpdatesCounters(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()
	seedProject(t, ctx, repo, "p1", "12 Baker St")
	uc := newUseCase(t, repo, &fakeProvider{})

	saved, err := uc.AssignEmail(ctx, userID, "p1", "m1", "manual triage")
	gt.NoError(t, err).Required()
	gt.Value(t, saved.EmailCount).Equal(1)

	m, err := repo.Mapping().GetActive(ctx, userID, "m1")
	gt.NoError(t, err).Required()
	gt.Value(t, m.ProjectID).Equal(model.ProjectID("p1"))
	gt.Value(t, m.AssociationMethod).Equal(types.AssociationManual)
}

func TestAssignEmailRepointsFromAnotherProject(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()
	seedProject(t, ctx, repo, "p1", "12 Baker St")
	seedProject(t, ctx, repo, "p2", "14 Baker St")
	seedMapping(t, ctx, repo, "m1", "p1")

	p1, err := repo.Project().Get(ctx, userID, "p1")
	gt.NoError(t, err).Required()
	p1.EmailCount = 1
	_, err = repo.Project().Update(ctx, userID, p1)
	gt.NoError(t, err).Required()

	uc := newUseCase(t, repo, &fakeProvider{})
	saved, err := uc.AssignEmail(ctx, userID, "p2", "m1", "wrong project")
	gt.NoError(t, err).Required()
	gt.Value(t, saved.EmailCount).Equal(1)

	source, err := repo.Project().Get(ctx, userID, "p1")
	gt.NoError(t, err).Required()
	gt.Value(t, source.EmailCount).Equal(0)
}

func TestAssignEmailIsNoopWhenAlreadyAssigned(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()
	seedProject(t, ctx, repo, "p1", "12 Baker St")
	seedMapping(t, ctx, repo, "m1", "p1")
	uc := newUseCase(t, repo, &fakeProvider{})

	saved, err := uc.AssignEmail(ctx, userID, "p1", "m1", "")
	gt.NoError(t, err).Required()
	gt.Value(t, saved.EmailCount).Equal(0)
}

func TestUnassignEmailDeactivatesAndDecrementsCounter(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()
	seedProject(t, ctx, repo, "p1", "12 Baker St")
	seedMapping(t, ctx, repo, "m1", "p1")

	p1, err := repo.Project().Get(ctx, userID, "p1")
	gt.NoError(t, err).Required()
	p1.EmailCount = 1
	_, err = repo.Project().Update(ctx, userID, p1)
	gt.NoError(t, err).Required()

	uc := newUseCase(t, repo, &fakeProvider{})
	gt.NoError(t, uc.UnassignEmail(ctx, userID, "p1", "m1", "misfiled")).Required()

	updated, err := repo.Project().Get(ctx, userID, "p1")
	gt.NoError(t, err).Required()
	gt.Value(t, updated.EmailCount).Equal(0)

	_, err = repo.Mapping().GetActive(ctx, userID, "m1")
	gt.Error(t, err)
}

func TestUnassignEmailRejectsWrongProject(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()
	seedProject(t, ctx, repo, "p1", "12 Baker St")
	seedProject(t, ctx, repo, "p2", "14 Baker St")
	seedMapping(t, ctx, repo, "m1", "p1")
	uc := newUseCase(t, repo, &fakeProvider{})

	err := uc.UnassignEmail(ctx, userID, "p2", "m1", "")
	gt.Error(t, err)
}

func TestUpdateProjectAppliesPatchAndRecordsCorrection(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()
	seedProject(t, ctx, repo, "p1", "12 Baker St")
	uc := newUseCase(t, repo, &fakeProvider{})

	newName := "12 Baker St Renovation"
	onHold := types.ProjectStatusOnHold
	saved, err := uc.UpdateProject(ctx, userID, "p1", usecase.ProjectPatch{
		Name:    &newName,
		Aliases: []string{"Baker Job"},
		Status:  &onHold,
	}, "client renamed the job")
	gt.NoError(t, err).Required()
	gt.Value(t, saved.Name).Equal(newName)
	gt.Value(t, saved.Status).Equal(types.ProjectStatusOnHold)
	gt.Array(t, saved.Aliases).Length(1)

	corrections, err := repo.Correction().ListByProject(ctx, userID, "p1")
	gt.NoError(t, err).Required()
	gt.Array(t, corrections).Length(1)
	gt.Value(t, corrections[0].Type).Equal(types.CorrectionRename)
}

func TestUpdateProjectRejectsInvalidStatus(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()
	seedProject(t, ctx, repo, "p1", "12 Baker St")
	uc := newUseCase(t, repo, &fakeProvider{})

	bogus := types.ProjectStatus("bogus")
	_, err := uc.UpdateProject(ctx, userID, "p1", usecase.ProjectPatch{Status: &bogus}, "")
	gt.Error(t, err)
}

func TestMergeProjectsDelegatesToCorrectionStore(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()
	seedProject(t, ctx, repo, "p1", "Source Job")
	seedProject(t, ctx, repo, "p2", "Target Job")
	seedMapping(t, ctx, repo, "m1", "p1")
	uc := newUseCase(t, repo, &fakeProvider{})

	merged, err := uc.MergeProjects(ctx, userID, "p1", "p2")
	gt.NoError(t, err).Required()
	gt.Value(t, merged.ID).Equal(model.ProjectID("p2"))

	m, err := repo.Mapping().GetActive(ctx, userID, "m1")
	gt.NoError(t, err).Required()
	gt.Value(t, m.ProjectID).Equal(model.ProjectID("p2"))
}

func TestSplitProjectDelegatesToCorrectionStore(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()
	seedProject(t, ctx, repo, "p1", "Big Job")
	seedMapping(t, ctx, repo, "m1", "p1")
	seedMapping(t, ctx, repo, "m2", "p1")
	uc := newUseCase(t, repo, &fakeProvider{})

	split, err := uc.SplitProject(ctx, userID, "p1", []model.MessageID{"m2"}, "Annex Job")
	gt.NoError(t, err).Required()
	gt.Value(t, split.Name).Equal("Annex Job")

	m, err := repo.Mapping().GetActive(ctx, userID, "m2")
	gt.NoError(t, err).Required()
	gt.Value(t, m.ProjectID).Equal(split.ID)
}

func TestScanOndemandEnqueuesUpToLimit(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()
	provider := &fakeProvider{listIDs: []model.MessageID{"m1", "m2", "m3"}}
	uc := newUseCase(t, repo, provider)

	n, err := uc.ScanOndemand(ctx, userID, 2)
	gt.NoError(t, err).Required()
	gt.Value(t, n).Equal(2)

	stats, err := uc.QueueStats(ctx)
	gt.NoError(t, err).Required()
	gt.Value(t, stats.Notification.Pending).Equal(2)
}

func TestScanOndemandFallsBackToBatchMaxWhenLimitUnset(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()
	provider := &fakeProvider{listIDs: []model.MessageID{"m1", "m2"}}
	uc := newUseCase(t, repo, provider)

	n, err := uc.ScanOndemand(ctx, userID, 0)
	gt.NoError(t, err).Required()
	gt.Value(t, n).Equal(2)
}

func TestQueueProcessDrainsEnqueuedWork(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()
	provider := &fakeProvider{listIDs: []model.MessageID{"m1"}}
	uc := newUseCase(t, repo, provider)

	_, err := uc.ScanOndemand(ctx, userID, 1)
	gt.NoError(t, err).Required()

	uc.QueueProcess(ctx)

	stats, err := uc.QueueStats(ctx)
	gt.NoError(t, err).Required()
	gt.Value(t, stats.Notification.Pending).Equal(0)
}

func TestHandleWebhookDelegatesToWatchCoordinator(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()
	uc := newUseCase(t, repo, &fakeProvider{})

	gt.NoError(t, repo.Watch().Put(ctx, &model.WatchSubscription{UserID: userID, Kind: types.WatchKindPolling})).Required()

	err := uc.HandleWebhook(ctx, userID)
	gt.NoError(t, err).Required()
}

func TestExportUserDataCollectsEveryRelatedRecord(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()
	_, err := repo.User().Create(ctx, &model.User{ID: userID, Email: "alice@builder.test", Active: true})
	gt.NoError(t, err).Required()
	seedProject(t, ctx, repo, "p1", "12 Baker St")
	seedMapping(t, ctx, repo, "m1", "p1")
	uc := newUseCase(t, repo, &fakeProvider{})

	bundle, err := uc.ExportUserData(ctx, userID)
	gt.NoError(t, err).Required()
	gt.Value(t, bundle.User.Email).Equal("alice@builder.test")
	gt.Array(t, bundle.Projects).Length(1)
	gt.Array(t, bundle.Mappings).Length(1)
}

func TestDeleteUserDataDeactivatesAndAnonymizes(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()
	_, err := repo.User().Create(ctx, &model.User{ID: userID, Email: "alice@builder.test", Active: true})
	gt.NoError(t, err).Required()
	seedProject(t, ctx, repo, "p1", "12 Baker St")
	seedMapping(t, ctx, repo, "m1", "p1")
	gt.NoError(t, repo.Watch().Put(ctx, &model.WatchSubscription{UserID: userID, Kind: types.WatchKindPolling})).Required()
	uc := newUseCase(t, repo, &fakeProvider{})

	summary, err := uc.DeleteUserData(ctx, userID)
	gt.NoError(t, err).Required()
	gt.Value(t, summary.ProjectsDeleted).Equal(1)
	gt.Value(t, summary.MappingsDeactivated).Equal(1)
	gt.Value(t, summary.WatchRemoved).Equal(true)
	gt.Value(t, summary.UserAnonymized).Equal(true)

	user, err := repo.User().Get(ctx, userID)
	gt.NoError(t, err).Required()
	gt.Value(t, user.Active).Equal(false)
	gt.Value(t, user.Email).Equal("deleted-u1@deleted.invalid")

	_, err = repo.Project().Get(ctx, userID, "p1")
	gt.Error(t, err)
}
