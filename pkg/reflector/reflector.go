// Package reflector implements the LabelReflector (C8): idempotently
// applies "Project: <name>" labels back to the provider and removes them,
// draining the QueueReflection queue that ResolveAndPersist (spec §4.7)
// feeds into. Wraps the generic pkg/queue engine the same way pkg/ingest
// and pkg/analysis do.
package reflector

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"github.com/m-mizutani/goerr/v2"

	"github.com/projectloop/mailgrouper/pkg/domain/interfaces"
	"github.com/projectloop/mailgrouper/pkg/domain/model"
	"github.com/projectloop/mailgrouper/pkg/queue"
	"github.com/projectloop/mailgrouper/pkg/utils/logging"
)

// labelPrefix is spec §4.8's "Project: <name>" label naming convention.
const labelPrefix = "Project: "

// ProjectLabelName returns the label text for a project.
func ProjectLabelName(projectName string) string { return labelPrefix + projectName }

// systemLabels are Gmail's built-in labels; remove() refuses to touch them
// regardless of caller (spec §4.8 "System labels ... are refused for
// deletion").
var systemLabels = map[string]struct{}{
	"INBOX": {}, "SENT": {}, "DRAFT": {}, "TRASH": {}, "SPAM": {},
	"STARRED": {}, "UNREAD": {}, "IMPORTANT": {}, "CHAT": {},
	"CATEGORY_PERSONAL": {}, "CATEGORY_SOCIAL": {},
	"CATEGORY_PROMOTIONS": {}, "CATEGORY_UPDATES": {}, "CATEGORY_FORUMS": {},
}

func isSystemLabel(idOrName string) bool {
	_, ok := systemLabels[strings.ToUpper(idOrName)]
	return ok
}

// Config tunes C8's batching. Zero values fall back to spec defaults.
type Config struct {
	BatchMax int // spec §4.8 default 100
}

func (c Config) withDefaults() Config {
	if c.BatchMax == 0 {
		c.BatchMax = 100
	}
	return c
}

type labelKey struct {
	userID model.UserID
	name   string
}

// Reflector is the C8 typed wrapper.
type Reflector struct {
	provider interfaces.ProviderClient
	projects interfaces.ProjectRepository
	mappings interfaces.MappingRepository
	cfg      Config
	eng      *queue.Engine

	mu    sync.Mutex
	cache map[labelKey]string
}

// New builds the reflector and the QueueReflection engine it drains.
func New(repo interfaces.QueueRepository, qcfg queue.Config, provider interfaces.ProviderClient, projects interfaces.ProjectRepository, mappings interfaces.MappingRepository, cfg Config) *Reflector {
	qcfg.Queue = model.QueueReflection
	r := &Reflector{
		provider: provider,
		projects: projects,
		mappings: mappings,
		cfg:      cfg.withDefaults(),
		cache:    make(map[labelKey]string),
	}
	r.eng = queue.New(repo, qcfg, r.handle)
	return r
}

func (r *Reflector) Run(ctx context.Context) { r.eng.Run(ctx) }
func (r *Reflector) Stop()                   { r.eng.Stop() }

func (r *Reflector) Stats(ctx context.Context) (interfaces.QueueStats, error) {
	return r.eng.Stats(ctx)
}

// ProcessOnce drains one batch synchronously, see queue.Engine.ProcessOnce.
func (r *Reflector) ProcessOnce(ctx context.Context) { r.eng.ProcessOnce(ctx) }

// EnsureLabel finds or creates name, case-insensitively, caching the id per
// (user, name) so repeated applies skip the list_labels round trip (spec
// §4.8 "never creates duplicates").
func (r *Reflector) EnsureLabel(ctx context.Context, userID model.UserID, name string) (string, error) {
	key := labelKey{userID: userID, name: strings.ToLower(name)}
	r.mu.Lock()
	if id, ok := r.cache[key]; ok {
		r.mu.Unlock()
		return id, nil
	}
	r.mu.Unlock()

	labels, err := r.provider.ListLabels(ctx, userID)
	if err != nil {
		return "", goerr.Wrap(err, "list labels", goerr.V("user_id", userID))
	}
	for _, l := range labels {
		if strings.EqualFold(l.Name, name) {
			r.cacheLabel(key, l.ID)
			return l.ID, nil
		}
	}

	created, err := r.provider.CreateLabel(ctx, userID, name)
	if err != nil {
		return "", goerr.Wrap(err, "create label", goerr.V("user_id", userID), goerr.V("name", name))
	}
	r.cacheLabel(key, created.ID)
	return created.ID, nil
}

func (r *Reflector) cacheLabel(key labelKey, id string) {
	r.mu.Lock()
	r.cache[key] = id
	r.mu.Unlock()
}

// Apply idempotently adds labelID to one message (spec §4.8 apply).
func (r *Reflector) Apply(ctx context.Context, userID model.UserID, messageID model.MessageID, labelID string) error {
	return r.provider.ModifyMessage(ctx, userID, messageID, []string{labelID}, nil)
}

// ApplyThread applies labelID to every active-mapped message in threadID,
// batched at cfg.BatchMax (spec §4.8 apply_thread).
func (r *Reflector) ApplyThread(ctx context.Context, userID model.UserID, threadID model.ThreadID, labelID string) error {
	threadMappings, err := r.mappings.ListByThread(ctx, userID, threadID)
	if err != nil {
		return goerr.Wrap(err, "list mappings by thread", goerr.V("thread_id", threadID))
	}
	ids := make([]model.MessageID, 0, len(threadMappings))
	for _, m := range threadMappings {
		if m.Active {
			ids = append(ids, m.MessageID)
		}
	}
	return r.batchModify(ctx, userID, ids, []string{labelID}, nil)
}

// Remove idempotently removes labelID from one message, refusing system
// labels (spec §4.8).
func (r *Reflector) Remove(ctx context.Context, userID model.UserID, messageID model.MessageID, labelID string) error {
	if isSystemLabel(labelID) {
		return goerr.Wrap(interfaces.ErrInvalidInput, "refusing to remove system label", goerr.V("label_id", labelID))
	}
	return r.provider.ModifyMessage(ctx, userID, messageID, nil, []string{labelID})
}

func (r *Reflector) batchModify(ctx context.Context, userID model.UserID, ids []model.MessageID, add, remove []string) error {
	for start := 0; start < len(ids); start += r.cfg.BatchMax {
		end := start + r.cfg.BatchMax
		if end > len(ids) {
			end = len(ids)
		}
		if err := r.provider.BatchModify(ctx, userID, ids[start:end], add, remove); err != nil {
			return goerr.Wrap(err, "batch modify", goerr.V("batch_start", start), goerr.V("batch_size", end-start))
		}
	}
	return nil
}

func (r *Reflector) handle(ctx context.Context, item *model.QueueItem) error {
	var task model.ReflectionTask
	if err := json.Unmarshal(item.Payload, &task); err != nil {
		return goerr.Wrap(interfaces.ErrInvalidInput, "malformed reflection task payload", goerr.V("item_id", item.ID))
	}

	err := r.reflect(ctx, item.UserID, task)
	if err != nil && item.Attempts >= item.MaxAttempts {
		if ferr := r.flagPending(ctx, item.UserID, task.MessageID, true); ferr != nil {
			logging.From(ctx).Error("flag reflection pending failed", "error", ferr.Error(), "message_id", task.MessageID)
		}
	}
	return err
}

func (r *Reflector) reflect(ctx context.Context, userID model.UserID, task model.ReflectionTask) error {
	p, err := r.projects.Get(ctx, userID, task.ProjectID)
	if err != nil {
		return goerr.Wrap(err, "load project", goerr.V("project_id", task.ProjectID))
	}

	labelID, err := r.EnsureLabel(ctx, userID, ProjectLabelName(p.Name))
	if err != nil {
		return err
	}

	if err := r.Apply(ctx, userID, task.MessageID, labelID); err != nil {
		return goerr.Wrap(err, "apply label", goerr.V("message_id", task.MessageID))
	}

	return r.flagPending(ctx, userID, task.MessageID, false)
}

func (r *Reflector) flagPending(ctx context.Context, userID model.UserID, messageID model.MessageID, pending bool) error {
	m, err := r.mappings.GetActive(ctx, userID, messageID)
	if err != nil {
		return err
	}
	if m.ReflectionPending == pending {
		return nil
	}
	m.ReflectionPending = pending
	return r.mappings.Put(ctx, userID, m)
}

// Enqueue schedules a label-reflection task directly, for callers that
// mutate mappings outside the resolver's ResolveAndPersist transaction
// (manual assign/unassign/rename in pkg/usecase).
func (r *Reflector) Enqueue(ctx context.Context, userID model.UserID, messageID model.MessageID, projectID model.ProjectID, priority int) error {
	payload, err := json.Marshal(model.ReflectionTask{MessageID: messageID, ProjectID: projectID})
	if err != nil {
		return goerr.Wrap(err, "marshal reflection task")
	}
	if _, err := r.eng.Enqueue(ctx, userID, payload, priority, "reflect:"+string(messageID)); err != nil {
		return goerr.Wrap(err, "enqueue reflection", goerr.V("message_id", messageID))
	}
	return nil
}

// Reconcile re-enqueues every reflection-pending mapping for userID, for
// the scheduler's periodic retry pass (spec §4.8 "a reconciliation pass
// retries them"). Returns the number of tasks re-enqueued.
func (r *Reflector) Reconcile(ctx context.Context, userID model.UserID) (int, error) {
	pending, err := r.mappings.ListReflectionPending(ctx, userID)
	if err != nil {
		return 0, goerr.Wrap(err, "list reflection-pending mappings", goerr.V("user_id", userID))
	}
	for _, m := range pending {
		payload, err := json.Marshal(model.ReflectionTask{MessageID: m.MessageID, ProjectID: m.ProjectID})
		if err != nil {
			return 0, goerr.Wrap(err, "marshal reflection task")
		}
		if _, err := r.eng.Enqueue(ctx, userID, payload, 5, "reflect-retry:"+string(m.MessageID)); err != nil {
			return 0, goerr.Wrap(err, "re-enqueue reflection", goerr.V("message_id", m.MessageID))
		}
	}
	return len(pending), nil
}
