// Package correction implements the CorrectionStore (C9): an append-only
// log of user overrides to the resolver's project assignments, plus a
// slow-cadence pass that turns repeated corrections into LearningPatterns
// the resolver biases future decisions with, and the merge/split
// operations a user drives directly on two or more projects.
package correction

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"

	"github.com/projectloop/mailgrouper/pkg/domain/interfaces"
	"github.com/projectloop/mailgrouper/pkg/domain/model"
	"github.com/projectloop/mailgrouper/pkg/domain/types"
)

// defaultMinSupport mirrors the original learning service's
// _identify_patterns threshold: a signal needs at least three repeated,
// unambiguous corrections before it is generalized into a pattern.
const defaultMinSupport = 3

const defaultBatchSize = 200

// Config tunes the learning pass. Zero values fall back to defaults.
type Config struct {
	MinSupport int
	BatchSize  int
}

func (c Config) withDefaults() Config {
	if c.MinSupport <= 0 {
		c.MinSupport = defaultMinSupport
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaultBatchSize
	}
	return c
}

// Store is the C9 service. It holds no state of its own beyond cfg; all
// durable state lives behind the Repository's Correction/LearningPattern/
// Project/Mapping/Attachment surfaces.
type Store struct {
	repo interfaces.Repository
	cfg  Config
}

func New(repo interfaces.Repository, cfg Config) *Store {
	return &Store{repo: repo, cfg: cfg.withDefaults()}
}

// Record appends a correction for userID. before is the state the resolver
// or a prior correction produced; after is what the user asserts instead.
// The new record is always unprocessed; the learning pass considers it on
// its next run.
func (s *Store) Record(ctx context.Context, userID model.UserID, typ types.CorrectionType, before, after model.Snapshot, messageID model.MessageID, projectID model.ProjectID, reason string) (*model.Correction, error) {
	if !typ.IsValid() {
		return nil, goerr.Wrap(interfaces.ErrInvalidInput, "invalid correction type", goerr.V("type", typ))
	}
	c := &model.Correction{
		UserID:          userID,
		Type:            typ,
		OriginalResult:  before,
		CorrectedResult: after,
		MessageID:       messageID,
		ProjectID:       projectID,
		Reason:          reason,
	}
	if err := s.repo.Correction().Append(ctx, c); err != nil {
		return nil, goerr.Wrap(err, "append correction")
	}
	return c, nil
}

// Merge folds sourceID into targetID: every active mapping and attachment
// on source is repointed, source's aliases and job numbers are unioned
// into target, target's counters are recomputed, and source is archived
// (never deleted, for audit) per spec §4.9.
func (s *Store) Merge(ctx context.Context, userID model.UserID, sourceID, targetID model.ProjectID) (*model.Project, error) {
	if sourceID == targetID {
		return nil, goerr.Wrap(interfaces.ErrInvalidInput, "cannot merge a project into itself")
	}

	source, err := s.repo.Project().Get(ctx, userID, sourceID)
	if err != nil {
		return nil, goerr.Wrap(err, "load source project", goerr.V("project_id", sourceID))
	}
	target, err := s.repo.Project().Get(ctx, userID, targetID)
	if err != nil {
		return nil, goerr.Wrap(err, "load target project", goerr.V("project_id", targetID))
	}

	sourceMappings, err := s.repo.Mapping().ListByProject(ctx, userID, sourceID)
	if err != nil {
		return nil, goerr.Wrap(err, "list source mappings", goerr.V("project_id", sourceID))
	}

	ids := make([]model.MessageID, 0, len(sourceMappings))
	var latest time.Time
	for _, m := range sourceMappings {
		if !m.Active {
			continue
		}
		ids = append(ids, m.MessageID)
		if m.UpdatedAt.After(latest) {
			latest = m.UpdatedAt
		}
	}

	if len(ids) > 0 {
		if err := s.repo.Mapping().Repoint(ctx, userID, ids, targetID); err != nil {
			return nil, goerr.Wrap(err, "repoint mappings")
		}
	}
	for _, id := range ids {
		if err := s.repo.Attachment().ReassignProject(ctx, userID, id, targetID); err != nil {
			return nil, goerr.Wrap(err, "reassign attachments", goerr.V("message_id", id))
		}
	}

	now := time.Now().UTC()

	mergedTarget := *target
	mergedTarget.AddAlias(source.Name)
	for _, a := range source.Aliases {
		mergedTarget.AddAlias(a)
	}
	for _, jn := range source.JobNumbers {
		mergedTarget.AddJobNumber(jn)
	}
	mergedTarget.EmailCount += len(ids)
	if latest.After(mergedTarget.LastEmailAt) {
		mergedTarget.LastEmailAt = latest
	}
	mergedTarget.UpdatedAt = now
	saved, err := s.repo.Project().Update(ctx, userID, &mergedTarget)
	if err != nil {
		return nil, goerr.Wrap(err, "update target project")
	}

	archived := *source
	archived.Status = types.ProjectStatusArchived
	archived.EmailCount = 0
	archived.UpdatedAt = now
	if _, err := s.repo.Project().Update(ctx, userID, &archived); err != nil {
		return nil, goerr.Wrap(err, "archive source project")
	}

	before := model.Snapshot{ProjectID: sourceID, MessageIDs: ids, Name: source.Name, Aliases: source.Aliases, Status: source.Status}
	after := model.Snapshot{ProjectID: targetID, MessageIDs: ids, Name: saved.Name, Aliases: saved.Aliases, Status: saved.Status}
	if _, err := s.Record(ctx, userID, types.CorrectionMerge, before, after, "", sourceID, ""); err != nil {
		return nil, err
	}

	return saved, nil
}

// Split carves messageIDs out of sourceID into a brand new project named
// newName: mappings and attachments are repointed, and counters on both
// sides are recomputed, per spec §4.9.
func (s *Store) Split(ctx context.Context, userID model.UserID, sourceID model.ProjectID, messageIDs []model.MessageID, newName string) (*model.Project, error) {
	if len(messageIDs) == 0 {
		return nil, goerr.Wrap(interfaces.ErrInvalidInput, "split requires at least one message")
	}

	source, err := s.repo.Project().Get(ctx, userID, sourceID)
	if err != nil {
		return nil, goerr.Wrap(err, "load source project", goerr.V("project_id", sourceID))
	}

	for _, id := range messageIDs {
		m, err := s.repo.Mapping().GetActive(ctx, userID, id)
		if err != nil {
			return nil, goerr.Wrap(err, "load mapping for split", goerr.V("message_id", id))
		}
		if m.ProjectID != sourceID {
			return nil, goerr.Wrap(interfaces.ErrInvalidInput, "message is not mapped to source project", goerr.V("message_id", id), goerr.V("project_id", m.ProjectID))
		}
	}

	now := time.Now().UTC()
	newProject := &model.Project{
		ID:                 model.ProjectID(uuid.NewString()),
		UserID:             userID,
		Name:               newName,
		Address:            source.Address,
		Client:             source.Client,
		Status:             types.ProjectStatusActive,
		EmailCount:         len(messageIDs),
		LastEmailAt:        now,
		CreationConfidence: 1.0,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	created, err := s.repo.Project().Create(ctx, userID, newProject)
	if err != nil {
		return nil, goerr.Wrap(err, "create split project")
	}

	if err := s.repo.Mapping().Repoint(ctx, userID, messageIDs, created.ID); err != nil {
		return nil, goerr.Wrap(err, "repoint mappings")
	}
	for _, id := range messageIDs {
		if err := s.repo.Attachment().ReassignProject(ctx, userID, id, created.ID); err != nil {
			return nil, goerr.Wrap(err, "reassign attachments", goerr.V("message_id", id))
		}
	}

	remaining, err := s.repo.Mapping().ListByProject(ctx, userID, sourceID)
	if err != nil {
		return nil, goerr.Wrap(err, "list remaining source mappings", goerr.V("project_id", sourceID))
	}
	var lastEmailAt time.Time
	for _, m := range remaining {
		if !m.Active {
			continue
		}
		if m.CreatedAt.After(lastEmailAt) {
			lastEmailAt = m.CreatedAt
		}
	}

	updatedSource := *source
	updatedSource.EmailCount -= len(messageIDs)
	if updatedSource.EmailCount < 0 {
		updatedSource.EmailCount = 0
	}
	updatedSource.LastEmailAt = lastEmailAt
	updatedSource.UpdatedAt = now
	if _, err := s.repo.Project().Update(ctx, userID, &updatedSource); err != nil {
		return nil, goerr.Wrap(err, "update source project counters")
	}

	before := model.Snapshot{ProjectID: sourceID, MessageIDs: messageIDs, Name: source.Name, Status: source.Status}
	after := model.Snapshot{ProjectID: created.ID, MessageIDs: messageIDs, Name: created.Name, Status: created.Status}
	if _, err := s.Record(ctx, userID, types.CorrectionSplit, before, after, "", sourceID, ""); err != nil {
		return nil, err
	}

	return created, nil
}

type groupKey struct {
	projectID model.ProjectID
	pattern   string
}

// Learn pulls a batch of unprocessed corrections for userID and derives
// LearningPatterns from signals repeated at least cfg.MinSupport times.
// Only CorrectionAssign records carry a clean per-field signal; other
// types are marked processed without ever producing a pattern, since the
// store never guesses intent across correction types (spec §4.9).
// CorrectionAssign records that carry no usable signal are marked
// processed as well; those whose group hasn't yet reached MinSupport are
// left unprocessed so support can accumulate across future runs. Returns
// how many patterns were created or reinforced.
func (s *Store) Learn(ctx context.Context, userID model.UserID) (int, error) {
	corrections, err := s.repo.Correction().ListUnprocessed(ctx, userID, s.cfg.BatchSize)
	if err != nil {
		return 0, goerr.Wrap(err, "list unprocessed corrections")
	}
	if len(corrections) == 0 {
		return 0, nil
	}

	aliasGroups := map[groupKey][]*model.Correction{}
	senderGroups := map[groupKey][]*model.Correction{}
	addrGroups := map[groupKey][]*model.Correction{}

	done := make(map[model.CorrectionID]*model.Correction, len(corrections))

	for _, c := range corrections {
		if c.Type != types.CorrectionAssign {
			done[c.ID] = c
			continue
		}

		matched := false
		if name := model.NormalizedName(c.CorrectedResult.Name); name != "" {
			k := groupKey{projectID: c.CorrectedResult.ProjectID, pattern: name}
			aliasGroups[k] = append(aliasGroups[k], c)
			matched = true
		}
		if c.CorrectedResult.SenderEmail != "" {
			k := groupKey{projectID: c.CorrectedResult.ProjectID, pattern: strings.ToLower(c.CorrectedResult.SenderEmail)}
			senderGroups[k] = append(senderGroups[k], c)
			matched = true
		}
		if c.CorrectedResult.AddressKey != "" {
			k := groupKey{projectID: c.CorrectedResult.ProjectID, pattern: c.CorrectedResult.AddressKey}
			addrGroups[k] = append(addrGroups[k], c)
			matched = true
		}
		if !matched {
			done[c.ID] = c
		}
	}

	created := 0
	apply := func(typ types.LearningPatternType, groups map[groupKey][]*model.Correction) error {
		for k, group := range groups {
			if len(group) < s.cfg.MinSupport {
				continue
			}
			if err := s.upsertPattern(ctx, userID, typ, k.projectID, group[0], k.pattern, len(group)); err != nil {
				return err
			}
			created++
			for _, c := range group {
				done[c.ID] = c
			}
		}
		return nil
	}
	if err := apply(types.LearningPatternAlias, aliasGroups); err != nil {
		return created, err
	}
	if err := apply(types.LearningPatternSenderToProj, senderGroups); err != nil {
		return created, err
	}
	if err := apply(types.LearningPatternAddrToProj, addrGroups); err != nil {
		return created, err
	}

	for id := range done {
		if err := s.repo.Correction().MarkProcessed(ctx, userID, id); err != nil {
			return created, goerr.Wrap(err, "mark correction processed", goerr.V("id", id))
		}
	}
	return created, nil
}

// upsertPattern finds an existing active pattern for (type, projectID,
// pattern) and reinforces it, or creates a new one. displayPattern keeps
// the user-facing casing of the first correction in the group; matching
// is always case-insensitive.
func (s *Store) upsertPattern(ctx context.Context, userID model.UserID, typ types.LearningPatternType, projectID model.ProjectID, first *model.Correction, pattern string, support int) error {
	existing, err := s.repo.LearningPattern().ListActive(ctx, userID)
	if err != nil {
		return goerr.Wrap(err, "list active patterns")
	}
	for _, p := range existing {
		if p.Type == typ && p.ProjectID == projectID && strings.EqualFold(p.Pattern, pattern) {
			for i := 0; i < support; i++ {
				if err := s.repo.LearningPattern().IncrementUsage(ctx, userID, p.ID); err != nil {
					return goerr.Wrap(err, "increment pattern usage", goerr.V("id", p.ID))
				}
			}
			return nil
		}
	}

	display := pattern
	switch typ {
	case types.LearningPatternAlias:
		display = first.CorrectedResult.Name
	case types.LearningPatternSenderToProj:
		display = first.CorrectedResult.SenderEmail
	case types.LearningPatternAddrToProj:
		display = first.CorrectedResult.AddressKey
	}

	p := &model.LearningPattern{
		UserID:     userID,
		Type:       typ,
		ProjectID:  projectID,
		Pattern:    display,
		Confidence: confidenceFor(support, s.cfg.MinSupport),
		UsageCount: support,
		Active:     true,
	}
	if err := s.repo.LearningPattern().Put(ctx, p); err != nil {
		return goerr.Wrap(err, "put learning pattern")
	}
	return nil
}

// confidenceFor grows with support above the minimum, capped below 1.0:
// corrections alone never earn the certainty a direct user assertion does.
func confidenceFor(support, minSupport int) float64 {
	c := 0.5 + 0.1*float64(support-minSupport)
	if c > 0.95 {
		c = 0.95
	}
	return c
}
