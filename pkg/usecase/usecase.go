// Package usecase is the orchestration layer: it wires the Metastore,
// ProviderClient, Resolver-backed queues, WatchCoordinator, LabelReflector,
// CorrectionStore and Scheduler together behind the operations spec.md §6's
// HTTP surface and pkg/cli's subcommands actually call. Nothing below the
// HTTP/CLI boundary imports this package; everything above it does, so the
// transactional and delegation patterns established by the lower packages
// (resolver.ResolveAndPersist, correction.Store.Merge/Split) stay in one
// place instead of being re-derived at the controller.
package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/projectloop/mailgrouper/pkg/analysis"
	"github.com/projectloop/mailgrouper/pkg/correction"
	"github.com/projectloop/mailgrouper/pkg/domain/interfaces"
	"github.com/projectloop/mailgrouper/pkg/domain/model"
	"github.com/projectloop/mailgrouper/pkg/domain/types"
	"github.com/projectloop/mailgrouper/pkg/ingest"
	"github.com/projectloop/mailgrouper/pkg/reflector"
	"github.com/projectloop/mailgrouper/pkg/scheduler"
	"github.com/projectloop/mailgrouper/pkg/utils/errutil"
	"github.com/projectloop/mailgrouper/pkg/watch"
)

// Config tunes usecase-layer defaults not already owned by a lower package.
type Config struct {
	// BatchMax caps ScanOndemand's limit, mirroring spec §6's BATCH_MAX.
	BatchMax int
}

func (c Config) withDefaults() Config {
	if c.BatchMax <= 0 {
		c.BatchMax = 100
	}
	return c
}

// UseCase holds every already-built component the HTTP controller and CLI
// need, and exposes one method per spec §6 operation (plus the
// export/delete supplements, which are usecase-only per SPEC_FULL §11).
type UseCase struct {
	repo     interfaces.Repository
	provider interfaces.ProviderClient

	ingestQ   *ingest.Queue
	analysisQ *analysis.Queue
	watch     *watch.Coordinator
	reflect   *reflector.Reflector
	corr      *correction.Store
	sched     *scheduler.Scheduler

	cfg Config
}

// New builds a UseCase from already-constructed components.
func New(repo interfaces.Repository, provider interfaces.ProviderClient, ingestQ *ingest.Queue, analysisQ *analysis.Queue, watchCoord *watch.Coordinator, reflect *reflector.Reflector, corr *correction.Store, sched *scheduler.Scheduler, cfg Config) *UseCase {
	return &UseCase{
		repo:      repo,
		provider:  provider,
		ingestQ:   ingestQ,
		analysisQ: analysisQ,
		watch:     watchCoord,
		reflect:   reflect,
		corr:      corr,
		sched:     sched,
		cfg:       cfg.withDefaults(),
	}
}

// ListProjects backs GET /projects?status=….
func (uc *UseCase) ListProjects(ctx context.Context, userID model.UserID, status string) ([]*model.Project, error) {
	projects, err := uc.repo.Project().List(ctx, userID, status)
	if err != nil {
		return nil, goerr.Wrap(err, "list projects", goerr.V("user_id", userID), goerr.V("status", status))
	}
	return projects, nil
}

// GetProject backs GET /projects/{id}.
func (uc *UseCase) GetProject(ctx context.Context, userID model.UserID, id model.ProjectID) (*model.Project, error) {
	p, err := uc.repo.Project().Get(ctx, userID, id)
	if err != nil {
		return nil, goerr.Wrap(err, "get project", goerr.V("project_id", id))
	}
	return p, nil
}

// AssignEmail backs POST /projects/{id}/emails: manually moves messageID
// onto projectID, repointing its existing mapping (if any) or creating one,
// recomputing both projects' counters, and recording a Correction —
// grounded on correction.Store.Merge's direct repo-mutation shape (§4.9)
// generalized from two projects to one message.
func (uc *UseCase) AssignEmail(ctx context.Context, userID model.UserID, projectID model.ProjectID, messageID model.MessageID, reason string) (*model.Project, error) {
	target, err := uc.repo.Project().Get(ctx, userID, projectID)
	if err != nil {
		return nil, goerr.Wrap(err, "load target project", goerr.V("project_id", projectID))
	}

	existing, err := uc.repo.Mapping().GetActive(ctx, userID, messageID)
	if err != nil && !errors.Is(err, interfaces.ErrNotFound) {
		return nil, goerr.Wrap(err, "load existing mapping", goerr.V("message_id", messageID))
	}
	if err == nil && existing.ProjectID == projectID {
		return target, nil
	}

	before := model.Snapshot{ProjectID: projectID, Name: target.Name, Aliases: target.Aliases, Status: target.Status}
	if existing != nil {
		before.ProjectID = existing.ProjectID
		before.MessageIDs = []model.MessageID{messageID}
	}

	now := time.Now().UTC()

	if existing != nil {
		if err := uc.repo.Mapping().Repoint(ctx, userID, []model.MessageID{messageID}, projectID); err != nil {
			return nil, goerr.Wrap(err, "repoint mapping")
		}
		if old, oerr := uc.repo.Project().Get(ctx, userID, existing.ProjectID); oerr == nil {
			decremented := *old
			if decremented.EmailCount > 0 {
				decremented.EmailCount--
			}
			decremented.UpdatedAt = now
			if _, uerr := uc.repo.Project().Update(ctx, userID, &decremented); uerr != nil {
				return nil, goerr.Wrap(uerr, "update source project counters", goerr.V("project_id", existing.ProjectID))
			}
		}
	} else {
		msg, ferr := uc.provider.FetchMessage(ctx, userID, messageID, false)
		if ferr != nil {
			return nil, goerr.Wrap(ferr, "fetch message", goerr.V("message_id", messageID))
		}
		mapping := &model.EmailProjectMapping{
			UserID:            userID,
			MessageID:         messageID,
			ThreadID:          msg.ThreadID,
			ProjectID:         projectID,
			Confidence:        1.0,
			AssociationMethod: types.AssociationManual,
			Primary:           true,
			Active:            true,
			CreatedAt:         now,
			UpdatedAt:         now,
		}
		if err := uc.repo.Mapping().Put(ctx, userID, mapping); err != nil {
			return nil, goerr.Wrap(err, "put mapping")
		}
	}

	if err := uc.repo.Attachment().ReassignProject(ctx, userID, messageID, projectID); err != nil {
		return nil, goerr.Wrap(err, "reassign attachments", goerr.V("message_id", messageID))
	}

	updatedTarget := *target
	updatedTarget.EmailCount++
	updatedTarget.LastEmailAt = now
	updatedTarget.UpdatedAt = now
	saved, err := uc.repo.Project().Update(ctx, userID, &updatedTarget)
	if err != nil {
		return nil, goerr.Wrap(err, "update target project counters", goerr.V("project_id", projectID))
	}

	after := model.Snapshot{ProjectID: projectID, MessageIDs: []model.MessageID{messageID}, Name: saved.Name, Aliases: saved.Aliases, Status: saved.Status}
	if _, err := uc.corr.Record(ctx, userID, types.CorrectionAssign, before, after, messageID, projectID, reason); err != nil {
		return nil, err
	}

	if err := uc.reflect.Enqueue(ctx, userID, messageID, projectID, 5); err != nil {
		errutil.Handle(ctx, err, "enqueue reflection after manual assign")
	}
	return saved, nil
}

// UnassignEmail backs DELETE /projects/{id}/emails/{mid}: deactivates the
// mapping, recomputes the project's counters, and records a Correction.
func (uc *UseCase) UnassignEmail(ctx context.Context, userID model.UserID, projectID model.ProjectID, messageID model.MessageID, reason string) error {
	existing, err := uc.repo.Mapping().GetActive(ctx, userID, messageID)
	if err != nil {
		return goerr.Wrap(err, "load mapping", goerr.V("message_id", messageID))
	}
	if existing.ProjectID != projectID {
		return goerr.Wrap(interfaces.ErrInvalidInput, "message is not assigned to this project",
			goerr.V("project_id", projectID), goerr.V("message_id", messageID))
	}

	project, err := uc.repo.Project().Get(ctx, userID, projectID)
	if err != nil {
		return goerr.Wrap(err, "load project", goerr.V("project_id", projectID))
	}
	before := model.Snapshot{ProjectID: projectID, MessageIDs: []model.MessageID{messageID}, Name: project.Name, Aliases: project.Aliases, Status: project.Status}

	if err := uc.repo.Mapping().Deactivate(ctx, userID, messageID); err != nil {
		return goerr.Wrap(err, "deactivate mapping")
	}

	now := time.Now().UTC()
	updated := *project
	if updated.EmailCount > 0 {
		updated.EmailCount--
	}
	updated.UpdatedAt = now
	saved, err := uc.repo.Project().Update(ctx, userID, &updated)
	if err != nil {
		return goerr.Wrap(err, "update project counters", goerr.V("project_id", projectID))
	}

	after := model.Snapshot{Name: saved.Name, Aliases: saved.Aliases, Status: saved.Status}
	if _, err := uc.corr.Record(ctx, userID, types.CorrectionUnassign, before, after, messageID, projectID, reason); err != nil {
		return err
	}
	return nil
}

// ProjectPatch carries the fields PATCH /projects/{id} may change. A nil
// field leaves the existing value in place; Aliases are additive.
type ProjectPatch struct {
	Name    *string
	Aliases []string
	Status  *types.ProjectStatus
}

// UpdateProject backs PATCH /projects/{id}: rename/alias/status changes,
// recorded as a CorrectionRename.
func (uc *UseCase) UpdateProject(ctx context.Context, userID model.UserID, id model.ProjectID, patch ProjectPatch, reason string) (*model.Project, error) {
	project, err := uc.repo.Project().Get(ctx, userID, id)
	if err != nil {
		return nil, goerr.Wrap(err, "load project", goerr.V("project_id", id))
	}
	before := model.Snapshot{ProjectID: id, Name: project.Name, Aliases: project.Aliases, Status: project.Status}

	updated := *project
	if patch.Name != nil {
		updated.Name = *patch.Name
	}
	for _, a := range patch.Aliases {
		updated.AddAlias(a)
	}
	if patch.Status != nil {
		if !patch.Status.IsValid() {
			return nil, goerr.Wrap(interfaces.ErrInvalidInput, "invalid project status", goerr.V("status", *patch.Status))
		}
		updated.Status = *patch.Status
	}
	updated.UpdatedAt = time.Now().UTC()

	saved, err := uc.repo.Project().Update(ctx, userID, &updated)
	if err != nil {
		return nil, goerr.Wrap(err, "update project", goerr.V("project_id", id))
	}

	after := model.Snapshot{ProjectID: id, Name: saved.Name, Aliases: saved.Aliases, Status: saved.Status}
	if _, err := uc.corr.Record(ctx, userID, types.CorrectionRename, before, after, "", id, reason); err != nil {
		return nil, err
	}
	return saved, nil
}

// MergeProjects backs POST /projects/{id}/merge?target=….
func (uc *UseCase) MergeProjects(ctx context.Context, userID model.UserID, sourceID, targetID model.ProjectID) (*model.Project, error) {
	return uc.corr.Merge(ctx, userID, sourceID, targetID)
}

// SplitProject backs POST /projects/{id}/split.
func (uc *UseCase) SplitProject(ctx context.Context, userID model.UserID, sourceID model.ProjectID, messageIDs []model.MessageID, newName string) (*model.Project, error) {
	return uc.corr.Split(ctx, userID, sourceID, messageIDs, newName)
}

// ScanOndemand backs POST /scan/ondemand?limit=N: lists up to limit
// messages from the provider's mailbox and enqueues each for immediate
// fetch+extract+resolve, returning the number enqueued.
func (uc *UseCase) ScanOndemand(ctx context.Context, userID model.UserID, limit int) (int, error) {
	if limit <= 0 || limit > uc.cfg.BatchMax {
		limit = uc.cfg.BatchMax
	}

	res, err := uc.provider.ListMessages(ctx, userID, interfaces.ListQuery{PageSize: limit})
	if err != nil {
		return 0, goerr.Wrap(err, "list messages", goerr.V("user_id", userID))
	}

	now := time.Now().UTC()
	enqueued := 0
	for _, id := range res.MessageIDs {
		ev := &model.MessageEvent{UserID: userID, MessageID: id, Source: types.EventSourcePoll, ArrivedAt: now}
		if err := uc.ingestQ.Enqueue(ctx, ev, 3); err != nil {
			errutil.Handle(ctx, err, "enqueue ondemand scan message")
			continue
		}
		enqueued++
	}
	return enqueued, nil
}

// ScanRetroactive backs POST /scan/retroactive {start, end}.
func (uc *UseCase) ScanRetroactive(ctx context.Context, userID model.UserID, start, end time.Time) error {
	return uc.sched.RequestRetroactiveScan(ctx, userID, start, end)
}

// QueueReport aggregates stats across the three durable queues for the
// GET /queue operational endpoint.
type QueueReport struct {
	Notification interfaces.QueueStats
	AIProcessing interfaces.QueueStats
	Reflection   interfaces.QueueStats
}

// QueueStats backs GET /queue.
func (uc *UseCase) QueueStats(ctx context.Context) (QueueReport, error) {
	var report QueueReport
	var err error

	if report.Notification, err = uc.ingestQ.Stats(ctx); err != nil {
		return report, goerr.Wrap(err, "notification queue stats")
	}
	if report.AIProcessing, err = uc.analysisQ.Stats(ctx); err != nil {
		return report, goerr.Wrap(err, "ai processing queue stats")
	}
	if report.Reflection, err = uc.reflect.Stats(ctx); err != nil {
		return report, goerr.Wrap(err, "reflection queue stats")
	}
	return report, nil
}

// QueueProcess backs POST /queue/process: drains one batch from each
// durable queue synchronously rather than waiting for the next poll tick.
func (uc *UseCase) QueueProcess(ctx context.Context) {
	uc.ingestQ.ProcessOnce(ctx)
	uc.analysisQ.ProcessOnce(ctx)
	uc.reflect.ProcessOnce(ctx)
}

// HandleWebhook backs POST /webhook/mail.
func (uc *UseCase) HandleWebhook(ctx context.Context, userID model.UserID) error {
	return uc.watch.HandlePush(ctx, userID)
}

// ExportBundle is the shape returned by ExportUserData, grounded on
// original_source's DataExportService.export_all_data — generalized from
// a SQL row dump to the Metastore's own model types so no separate
// serialization schema has to be maintained.
type ExportBundle struct {
	ExportedAt  time.Time
	User        *model.User
	Projects    []*model.Project
	Mappings    []*model.EmailProjectMapping
	Corrections []*model.Correction
	ScanConfig  *model.ScanConfig
}

// ExportUserData implements the SPEC_FULL §11 data-export supplement.
// Not an HTTP route — callable only from pkg/usecase and the CLI's export
// subcommand.
func (uc *UseCase) ExportUserData(ctx context.Context, userID model.UserID) (*ExportBundle, error) {
	user, err := uc.repo.User().Get(ctx, userID)
	if err != nil {
		return nil, goerr.Wrap(err, "load user", goerr.V("user_id", userID))
	}

	projects, err := uc.repo.Project().List(ctx, userID, "")
	if err != nil {
		return nil, goerr.Wrap(err, "list projects", goerr.V("user_id", userID))
	}

	var mappings []*model.EmailProjectMapping
	var corrections []*model.Correction
	for _, p := range projects {
		pm, merr := uc.repo.Mapping().ListByProject(ctx, userID, p.ID)
		if merr != nil {
			return nil, goerr.Wrap(merr, "list mappings", goerr.V("project_id", p.ID))
		}
		mappings = append(mappings, pm...)

		pc, cerr := uc.repo.Correction().ListByProject(ctx, userID, p.ID)
		if cerr != nil {
			return nil, goerr.Wrap(cerr, "list corrections", goerr.V("project_id", p.ID))
		}
		corrections = append(corrections, pc...)
	}

	scanConfig, err := uc.repo.ScanConfig().Get(ctx, userID)
	if err != nil && !errors.Is(err, interfaces.ErrNotFound) {
		return nil, goerr.Wrap(err, "load scan config", goerr.V("user_id", userID))
	}

	return &ExportBundle{
		ExportedAt:  time.Now().UTC(),
		User:        user,
		Projects:    projects,
		Mappings:    mappings,
		Corrections: corrections,
		ScanConfig:  scanConfig,
	}, nil
}

// DeletionSummary reports what DeleteUserData actually touched, grounded
// on original_source's DataDeletionService.delete_all_user_data's summary
// dict — narrowed to what the Metastore contract exposes. The Correction
// ledger is deliberately not purged: it's an append-only audit trail by
// design (pkg/correction), and no repository method exists to erase it.
type DeletionSummary struct {
	ProjectsDeleted     int
	MappingsDeactivated int
	WatchRemoved        bool
	UserAnonymized      bool
}

// DeleteUserData implements the SPEC_FULL §11 data-deletion supplement:
// deactivates every active mapping, deletes every project, removes the
// watch subscription, and anonymizes the user record in place (mirroring
// the original's anonymize=True path rather than a hard row delete, so
// Corrections referencing the user id stay resolvable). Not an HTTP
// route — callable only from pkg/usecase and the CLI's delete subcommand.
func (uc *UseCase) DeleteUserData(ctx context.Context, userID model.UserID) (*DeletionSummary, error) {
	summary := &DeletionSummary{}

	projects, err := uc.repo.Project().List(ctx, userID, "")
	if err != nil {
		return nil, goerr.Wrap(err, "list projects", goerr.V("user_id", userID))
	}

	for _, p := range projects {
		mappings, merr := uc.repo.Mapping().ListByProject(ctx, userID, p.ID)
		if merr != nil {
			return nil, goerr.Wrap(merr, "list mappings", goerr.V("project_id", p.ID))
		}
		for _, m := range mappings {
			if !m.Active {
				continue
			}
			if derr := uc.repo.Mapping().Deactivate(ctx, userID, m.MessageID); derr != nil {
				return nil, goerr.Wrap(derr, "deactivate mapping", goerr.V("message_id", m.MessageID))
			}
			summary.MappingsDeactivated++
		}
		if derr := uc.repo.Project().Delete(ctx, userID, p.ID); derr != nil {
			return nil, goerr.Wrap(derr, "delete project", goerr.V("project_id", p.ID))
		}
		summary.ProjectsDeleted++
	}

	if werr := uc.repo.Watch().Delete(ctx, userID); werr != nil {
		if !errors.Is(werr, interfaces.ErrNotFound) {
			return nil, goerr.Wrap(werr, "delete watch", goerr.V("user_id", userID))
		}
	} else {
		summary.WatchRemoved = true
	}

	user, err := uc.repo.User().Get(ctx, userID)
	if err != nil {
		return nil, goerr.Wrap(err, "load user", goerr.V("user_id", userID))
	}
	anonymized := *user
	anonymized.Email = fmt.Sprintf("deleted-%s@deleted.invalid", userID)
	anonymized.Active = false
	anonymized.AuthExpired = false
	anonymized.Credentials = model.Credentials{}
	anonymized.UpdatedAt = time.Now().UTC()
	if _, err := uc.repo.User().Update(ctx, &anonymized); err != nil {
		return nil, goerr.Wrap(err, "anonymize user", goerr.V("user_id", userID))
	}
	summary.UserAnonymized = true

	return summary, nil
}
