// Package resolver implements the ProjectResolver (C7): the deterministic,
// signal-weighted matcher that decides which Project a message belongs to.
// It is the one component every other piece of the pipeline (C4/C6 workers)
// calls after extraction; it owns no I/O of its own beyond the Repository
// and EntityExtractor seams it is handed.
package resolver

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"

	"github.com/projectloop/mailgrouper/pkg/domain/interfaces"
	"github.com/projectloop/mailgrouper/pkg/domain/model"
	"github.com/projectloop/mailgrouper/pkg/domain/types"
)

// Weights are the per-signal contributions to a candidate's score.
type Weights struct {
	Address         float64
	JobNumber       float64
	ThreadConsensus float64
	NameAlias       float64
	ClientEmail     float64
	Similarity      float64
}

// DefaultWeights matches the fixed priority order: address > job number >
// thread consensus > name/alias > client email > LLM similarity.
var DefaultWeights = Weights{
	Address:         0.45,
	JobNumber:       0.35,
	ThreadConsensus: 0.30,
	NameAlias:       0.25,
	ClientEmail:     0.15,
	Similarity:      0.10,
}

// Config tunes the resolver's thresholds and signal behavior. Zero-value
// fields are replaced by their defaults in New.
type Config struct {
	Weights Weights

	// LearningBonus is the fixed addition a matching sender- or
	// address-pattern contributes to a candidate's weight.
	LearningBonus float64

	// SimilaritySamples bounds how many recent messages per candidate are
	// compared via the extractor's pairwise Compare (signal 6).
	SimilaritySamples int
	// SimilarityThreshold is the minimum Compare score counted as a match.
	SimilarityThreshold float64

	AutoAssignThreshold float64
	ReviewThreshold     float64
	AmbiguousThreshold  float64
	// AmbiguousTieMargin is how close two candidate scores must be, within
	// the ambiguous band, to be treated as a tie requiring review rather
	// than an assignment.
	AmbiguousTieMargin float64

	AddressNormalizer AddressNormalizer
}

func (c Config) withDefaults() Config {
	zero := Weights{}
	if c.Weights == zero {
		c.Weights = DefaultWeights
	}
	if c.LearningBonus == 0 {
		c.LearningBonus = 0.10
	}
	if c.SimilaritySamples == 0 {
		c.SimilaritySamples = 3
	}
	if c.SimilarityThreshold == 0 {
		c.SimilarityThreshold = 0.8
	}
	if c.AutoAssignThreshold == 0 {
		c.AutoAssignThreshold = 0.80
	}
	if c.ReviewThreshold == 0 {
		c.ReviewThreshold = 0.60
	}
	if c.AmbiguousThreshold == 0 {
		c.AmbiguousThreshold = 0.40
	}
	if c.AmbiguousTieMargin == 0 {
		c.AmbiguousTieMargin = 0.05
	}
	if c.AddressNormalizer == nil {
		c.AddressNormalizer = DefaultAddressNormalizer
	}
	return c
}

// SimilaritySampler supplies recent messages of a candidate project for the
// LLM-similarity signal. Messages are not persisted verbatim (spec §3), so
// this is an optional seam: a nil sampler simply skips signal 6.
type SimilaritySampler interface {
	RecentMessages(ctx context.Context, userID model.UserID, projectID model.ProjectID, limit int) ([]*model.Message, error)
}

// Action is the outcome the resolver reached for a message.
type Action string

const (
	ActionAutoAssign        Action = "auto_assign"
	ActionAssignNeedsReview Action = "assign_needs_review"
	ActionAmbiguousAssign   Action = "ambiguous_assign"
	ActionAmbiguousNoMatch  Action = "ambiguous_no_match"
	ActionNewProject        Action = "new_project"
)

// Result is what the resolver decided, plus the events it wants surfaced.
type Result struct {
	Action               Action
	ProjectID            model.ProjectID
	Score                float64
	SplitFromThread      bool
	MultiProjectDetected bool
	Events               []model.UIEvent
}

// Resolver implements C7 over a Repository and an EntityExtractor.
type Resolver struct {
	repo      interfaces.Repository
	extractor interfaces.EntityExtractor
	sampler   SimilaritySampler
	cfg       Config
	locks     keyMutex
	now       func() time.Time
}

// New builds a Resolver. sampler may be nil (signal 6 is then never scored).
func New(repo interfaces.Repository, extractor interfaces.EntityExtractor, sampler SimilaritySampler, cfg Config) *Resolver {
	return &Resolver{
		repo:      repo,
		extractor: extractor,
		sampler:   sampler,
		cfg:       cfg.withDefaults(),
		now:       time.Now,
	}
}

type candidate struct {
	project           *model.Project
	score             float64
	matchedAddress    bool
	matchedJobNumber  bool
	matchedThread     bool
	matchedName       bool
	matchedClient     bool
	matchedSimilarity bool
}

// Resolve maps one message to a project, persisting the decision and
// enqueueing its side effects. The critical section is keyed per
// (user, thread_id) per spec §4.7: two messages of the same thread never
// resolve concurrently, keeping the thread-consensus signal stable.
func (r *Resolver) Resolve(ctx context.Context, userID model.UserID, msg *model.Message, entities *model.ExtractedEntities) (*Result, error) {
	unlock := r.locks.Lock(string(userID) + "|" + string(msg.ThreadID))
	defer unlock()

	projects, err := r.repo.Project().ListActive(ctx, userID)
	if err != nil {
		return nil, goerr.Wrap(err, "list active projects")
	}
	patterns, err := r.repo.LearningPattern().ListActive(ctx, userID)
	if err != nil {
		return nil, goerr.Wrap(err, "list learning patterns")
	}
	threadMappings, err := r.repo.Mapping().ListByThread(ctx, userID, msg.ThreadID)
	if err != nil {
		return nil, goerr.Wrap(err, "list thread mappings")
	}
	consensusID := threadConsensusProject(threadMappings)

	// Score without the thread-consensus bonus first, to test the split
	// condition: do the message's own signals point ≥0.80 at a project
	// other than the thread's consensus?
	rawCandidates := r.scoreCandidates(ctx, userID, msg, entities, projects, patterns, "")
	if consensusID != "" {
		if best := bestOtherThan(rawCandidates, consensusID); best != nil && best.score >= r.cfg.AutoAssignThreshold {
			res, err := r.assign(ctx, userID, msg, best, ActionAutoAssign, nil, true)
			if err != nil {
				return nil, err
			}
			return res, nil
		}
	}

	candidates := rawCandidates
	if consensusID != "" {
		candidates = r.scoreCandidates(ctx, userID, msg, entities, projects, patterns, consensusID)
	}
	sortCandidates(candidates)

	if len(candidates) == 0 {
		return r.createNew(ctx, userID, msg, entities)
	}

	multiProject := detectIndependentCandidates(candidates)
	top := candidates[0]

	switch {
	case top.score >= r.cfg.AutoAssignThreshold:
		var events []model.UIEvent
		if multiProject {
			events = []model.UIEvent{multiProjectEvent(userID, msg, candidates)}
		}
		return r.assign(ctx, userID, msg, &top, ActionAutoAssign, events, false)

	case top.score >= r.cfg.ReviewThreshold:
		var events []model.UIEvent
		if multiProject {
			events = []model.UIEvent{multiProjectEvent(userID, msg, candidates)}
		}
		return r.assign(ctx, userID, msg, &top, ActionAssignNeedsReview, events, false)

	case top.score >= r.cfg.AmbiguousThreshold:
		if multiProject {
			return r.assign(ctx, userID, msg, &top, ActionAmbiguousAssign, []model.UIEvent{multiProjectEvent(userID, msg, candidates)}, false)
		}
		if len(candidates) >= 2 && candidates[0].score-candidates[1].score <= r.cfg.AmbiguousTieMargin {
			return &Result{
				Action:               ActionAmbiguousNoMatch,
				Score:                top.score,
				MultiProjectDetected: true,
				Events:               []model.UIEvent{multiProjectEvent(userID, msg, candidates)},
			}, nil
		}
		return r.assign(ctx, userID, msg, &top, ActionAmbiguousAssign, []model.UIEvent{lowConfidenceEvent(userID, msg, &top)}, false)

	default:
		return r.createNew(ctx, userID, msg, entities)
	}
}

// scoreCandidates computes a score for every active project that matches at
// least one signal. consensusID is "" when the thread bonus should not be
// applied yet (the pre-split probe).
func (r *Resolver) scoreCandidates(ctx context.Context, userID model.UserID, msg *model.Message, entities *model.ExtractedEntities, projects []*model.Project, patterns []*model.LearningPattern, consensusID model.ProjectID) []candidate {
	addrKey := ""
	if entities.Address != nil {
		addrKey = r.cfg.AddressNormalizer(extractedAddressToModel(entities.Address))
	}

	out := make([]candidate, 0, len(projects))
	for _, p := range projects {
		c := candidate{project: p}
		var weight float64

		if addrKey != "" && p.Address.MatchKey() == addrKey {
			weight += r.cfg.Weights.Address
			c.matchedAddress = true
		}

		for _, jn := range entities.JobNumbers {
			if p.HasJobNumber(jn.Value) {
				weight += r.cfg.Weights.JobNumber
				c.matchedJobNumber = true
				break
			}
		}

		if consensusID != "" && p.ID == consensusID {
			weight += r.cfg.Weights.ThreadConsensus
			c.matchedThread = true
		}

		nameMatched := entities.ProjectName != nil && p.HasAlias(entities.ProjectName.Value)
		if !nameMatched && entities.ProjectName != nil {
			if pat := findPattern(patterns, p.ID, types.LearningPatternAlias); pat != nil && partialMatch(pat.Pattern, entities.ProjectName.Value) {
				nameMatched = true
			}
		}
		if nameMatched {
			weight += r.cfg.Weights.NameAlias
			c.matchedName = true
		}

		if entities.Client.Email != "" && p.Client.Email != "" && strings.EqualFold(entities.Client.Email, p.Client.Email) {
			weight += r.cfg.Weights.ClientEmail
			c.matchedClient = true
		}

		if r.sampler != nil && r.extractor != nil {
			if r.candidateSimilar(ctx, userID, msg, p.ID) {
				weight += r.cfg.Weights.Similarity
				c.matchedSimilarity = true
			}
		}

		for _, pat := range patterns {
			if !pat.Active || pat.ProjectID != p.ID {
				continue
			}
			switch pat.Type {
			case types.LearningPatternSenderToProj:
				if strings.EqualFold(pat.Pattern, entities.Client.Email) {
					weight += r.cfg.LearningBonus
				}
			case types.LearningPatternAddrToProj:
				if addrKey != "" && strings.EqualFold(pat.Pattern, addrKey) {
					weight += r.cfg.LearningBonus
				}
			}
		}

		if weight <= 0 {
			continue
		}
		c.score = weight * entities.OverallConfidence
		out = append(out, c)
	}
	return out
}

// candidateSimilar samples up to SimilaritySamples recent messages of the
// candidate project and asks the extractor whether any is the same project
// as msg, per signal 6.
func (r *Resolver) candidateSimilar(ctx context.Context, userID model.UserID, msg *model.Message, projectID model.ProjectID) bool {
	recent, err := r.sampler.RecentMessages(ctx, userID, projectID, r.cfg.SimilaritySamples)
	if err != nil {
		return false
	}
	for _, other := range recent {
		result, err := r.extractor.Compare(ctx, msg, other)
		if err != nil || result == nil {
			continue
		}
		if result.Score >= r.cfg.SimilarityThreshold {
			return true
		}
	}
	return false
}

func findPattern(patterns []*model.LearningPattern, projectID model.ProjectID, kind types.LearningPatternType) *model.LearningPattern {
	for _, p := range patterns {
		if p.Active && p.ProjectID == projectID && p.Type == kind {
			return p
		}
	}
	return nil
}

func partialMatch(pattern, candidate string) bool {
	p := model.NormalizedName(pattern)
	c := model.NormalizedName(candidate)
	if p == "" || c == "" {
		return false
	}
	return strings.Contains(c, p) || strings.Contains(p, c)
}

// threadConsensusProject returns the single project every active mapping in
// the thread already points to, or "" if the thread has no mappings or
// points at more than one project.
func threadConsensusProject(mappings []*model.EmailProjectMapping) model.ProjectID {
	var id model.ProjectID
	for _, m := range mappings {
		if !m.Active {
			continue
		}
		if id == "" {
			id = m.ProjectID
			continue
		}
		if id != m.ProjectID {
			return ""
		}
	}
	return id
}

func bestOtherThan(candidates []candidate, exclude model.ProjectID) *candidate {
	var best *candidate
	for i := range candidates {
		c := &candidates[i]
		if c.project.ID == exclude {
			continue
		}
		if best == nil || better(*c, *best) {
			best = c
		}
	}
	return best
}

// better reports whether a ranks above b under the documented tie-break
// order: score, then most recent last_email_at, then smaller project_id.
func better(a, b candidate) bool {
	if a.score != b.score {
		return a.score > b.score
	}
	if !a.project.LastEmailAt.Equal(b.project.LastEmailAt) {
		return a.project.LastEmailAt.After(b.project.LastEmailAt)
	}
	return a.project.ID < b.project.ID
}

func sortCandidates(candidates []candidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		return better(candidates[i], candidates[j])
	})
}

// detectIndependentCandidates approximates "multiple independent
// project_name candidates with confidence ≥0.6 each" (spec §4.7) from the
// named signals the extractor reports: if address/job-number/name matches
// land on two or more distinct projects, the message plausibly references
// more than one project.
func detectIndependentCandidates(candidates []candidate) bool {
	distinct := map[model.ProjectID]bool{}
	for _, c := range candidates {
		if c.matchedAddress || c.matchedJobNumber || c.matchedName {
			distinct[c.project.ID] = true
		}
	}
	return len(distinct) >= 2
}

func lowConfidenceEvent(userID model.UserID, msg *model.Message, top *candidate) model.UIEvent {
	return model.UIEvent{
		Kind:       model.UIEventLowConfidence,
		UserID:     userID,
		MessageID:  msg.ID,
		ProjectIDs: []model.ProjectID{top.project.ID},
		Score:      top.score,
		Message:    "low-confidence match assigned for review",
	}
}

func multiProjectEvent(userID model.UserID, msg *model.Message, candidates []candidate) model.UIEvent {
	ids := make([]model.ProjectID, 0, len(candidates))
	for _, c := range candidates {
		ids = append(ids, c.project.ID)
	}
	return model.UIEvent{
		Kind:       model.UIEventMultiProject,
		UserID:     userID,
		MessageID:  msg.ID,
		ProjectIDs: ids,
		Message:    "message plausibly references more than one project",
	}
}

// assign persists a mapping against an existing project and runs the
// documented side effects in order: mapping, project counters, reflection
// enqueue, UI events.
func (r *Resolver) assign(ctx context.Context, userID model.UserID, msg *model.Message, c *candidate, action Action, events []model.UIEvent, splitFromThread bool) (*Result, error) {
	now := r.now()
	needsReview := action == ActionAssignNeedsReview || action == ActionAmbiguousAssign

	method := types.AssociationAuto
	if c.matchedSimilarity && !(c.matchedAddress || c.matchedJobNumber || c.matchedName || c.matchedClient || c.matchedThread) {
		method = types.AssociationSimilarity
	}

	mapping := &model.EmailProjectMapping{
		UserID:            userID,
		MessageID:         msg.ID,
		ThreadID:          msg.ThreadID,
		ProjectID:         c.project.ID,
		Confidence:        c.score,
		AssociationMethod: method,
		Primary:           true,
		Active:            true,
		NeedsReview:       needsReview,
		SplitFromThread:   splitFromThread,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	updated := *c.project
	updated.EmailCount++
	updated.LastEmailAt = now
	updated.UpdatedAt = now

	err := r.repo.ResolveAndPersist(ctx, userID, func(tx interfaces.ResolveTx) error {
		if err := tx.PutMapping(ctx, mapping); err != nil {
			return err
		}
		if err := tx.PutProject(ctx, &updated); err != nil {
			return err
		}
		return tx.EnqueueReflection(ctx, userID, msg.ID, c.project.ID)
	})
	if err != nil {
		return nil, goerr.Wrap(err, "persist resolution")
	}

	for i := range events {
		events[i].UserID = userID
		events[i].MessageID = msg.ID
		events[i].At = now
	}

	return &Result{
		Action:               action,
		ProjectID:            c.project.ID,
		Score:                c.score,
		SplitFromThread:      splitFromThread,
		MultiProjectDetected: len(events) > 0 && events[0].Kind == model.UIEventMultiProject,
		Events:               events,
	}, nil
}

// createNew seeds a Project from extracted entities when no candidate
// cleared the ambiguous threshold.
func (r *Resolver) createNew(ctx context.Context, userID model.UserID, msg *model.Message, entities *model.ExtractedEntities) (*Result, error) {
	now := r.now()

	name := "Untitled project"
	var aliases []string
	if entities.ProjectName != nil && entities.ProjectName.Value != "" {
		name = entities.ProjectName.Value
		aliases = entities.ProjectName.Aliases
	}

	jobNumbers := make([]string, 0, len(entities.JobNumbers))
	for _, jn := range entities.JobNumbers {
		jobNumbers = append(jobNumbers, jn.Value)
	}

	needsReview := entities.OverallConfidence < 0.60

	p := &model.Project{
		ID:         model.ProjectID(uuid.NewString()),
		UserID:     userID,
		Name:       name,
		Aliases:    aliases,
		Address:    extractedAddressToModel(entities.Address),
		JobNumbers: jobNumbers,
		Client: model.ClientContact{
			Name:    entities.Client.Name,
			Email:   entities.Client.Email,
			Phone:   entities.Client.Phone,
			Company: entities.Client.Company,
		},
		Status:             types.ProjectStatusActive,
		EmailCount:         1,
		LastEmailAt:        now,
		CreationConfidence: entities.OverallConfidence,
		NeedsReview:        needsReview,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	mapping := &model.EmailProjectMapping{
		UserID:            userID,
		MessageID:         msg.ID,
		ThreadID:          msg.ThreadID,
		ProjectID:         p.ID,
		Confidence:        entities.OverallConfidence,
		AssociationMethod: types.AssociationAuto,
		Primary:           true,
		Active:            true,
		NeedsReview:       needsReview,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	err := r.repo.ResolveAndPersist(ctx, userID, func(tx interfaces.ResolveTx) error {
		if err := tx.PutProject(ctx, p); err != nil {
			return err
		}
		if err := tx.PutMapping(ctx, mapping); err != nil {
			return err
		}
		return tx.EnqueueReflection(ctx, userID, msg.ID, p.ID)
	})
	if err != nil {
		return nil, goerr.Wrap(err, "persist new project")
	}

	return &Result{
		Action:    ActionNewProject,
		ProjectID: p.ID,
		Score:     entities.OverallConfidence,
		Events: []model.UIEvent{{
			Kind:       model.UIEventNewProject,
			UserID:     userID,
			MessageID:  msg.ID,
			ProjectIDs: []model.ProjectID{p.ID},
			Score:      entities.OverallConfidence,
			Message:    "created new project " + p.Name,
			At:         now,
		}},
	}, nil
}
