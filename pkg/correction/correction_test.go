package correction_test

import (
	"context"
	"testing"
	"time"

	"github.com/m-mizutani/gt"

	"github.com/projectloop/mailgrouper/pkg/correction"
	"github.com/projectloop/mailgrouper/pkg/domain/model"
	"github.com/projectloop/mailgrouper/pkg/domain/types"
	"github.com/projectloop/mailgrouper/pkg/repository/memory"
)

const userID = model.UserID("u1")

func TestRecordAppendsUnprocessedCorrection(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()
	s := correction.New(repo, correction.Config{})

	before := model.Snapshot{ProjectID: "p1", Name: "12 Baker St"}
	after := model.Snapshot{ProjectID: "p2", Name: "14 Baker St"}
	c, err := s.Record(ctx, userID, types.CorrectionAssign, before, after, "m1", "p2", "wrong address match")
	gt.NoError(t, err).Required()
	gt.Value(t, c.Processed).Equal(false)

	unprocessed, err := repo.Correction().ListUnprocessed(ctx, userID, 10)
	gt.NoError(t, err).Required()
	gt.Array(t, unprocessed).Length(1)
}

func TestRecordRejectsInvalidType(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()
	s := correction.New(repo, correction.Config{})

	_, err := s.Record(ctx, userID, types.CorrectionType("bogus"), model.Snapshot{}, model.Snapshot{}, "", "", "")
	gt.Error(t, err)
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
		UserID: userID, MessageID: msgID, ProjectID: projectID, Active: true,
	})).Required()
}

func TestMergeRepointsAndArchivesSource(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()
	s := correction.New(repo, correction.Config{})

	seedProject(t, ctx, repo, "src", "12 Baker St")
	target := seedProject(t, ctx, repo, "dst", "14 Baker St")
	target.Aliases = []string{"Site B"}
	_, err := repo.Project().Update(ctx, userID, target)
	gt.NoError(t, err).Required()

	seedMapping(t, ctx, repo, "m1", "src")
	seedMapping(t, ctx, repo, "m2", "src")
	gt.NoError(t, repo.Attachment().Put(ctx, &model.Attachment{UserID: userID, MessageID: "m1", ProjectID: "src", AttachmentID: "a1"})).Required()

	merged, err := s.Merge(ctx, userID, "src", "dst")
	gt.NoError(t, err).Required()
	gt.Value(t, merged.EmailCount).Equal(2)
	gt.Value(t, len(merged.Aliases)).Equal(2) // "Site B" plus the folded-in source name

	m1, err := repo.Mapping().GetActive(ctx, userID, "m1")
	gt.NoError(t, err).Required()
	gt.Value(t, m1.ProjectID).Equal(model.ProjectID("dst"))

	atts, err := repo.Attachment().ListByMessage(ctx, userID, "m1")
	gt.NoError(t, err).Required()
	gt.Array(t, atts).Length(1)
	gt.Value(t, atts[0].ProjectID).Equal(model.ProjectID("dst"))

	src, err := repo.Project().Get(ctx, userID, "src")
	gt.NoError(t, err).Required()
	gt.Value(t, src.Status).Equal(types.ProjectStatusArchived)
	gt.Value(t, src.EmailCount).Equal(0)

	corrections, err := repo.Correction().ListByProject(ctx, userID, "src")
	gt.NoError(t, err).Required()
	gt.Array(t, corrections).Length(1)
	gt.Value(t, corrections[0].Type).Equal(types.CorrectionMerge)
}

func TestMergeRejectsSelfMerge(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()
	s := correction.New(repo, correction.Config{})
	seedProject(t, ctx, repo, "p1", "Site")

	_, err := s.Merge(ctx, userID, "p1", "p1")
	gt.Error(t, err)
}

func TestSplitCreatesNewProjectAndRepoints(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()
	s := correction.New(repo, correction.Config{})

	src := seedProject(t, ctx, repo, "src", "12 Baker St")
	src.EmailCount = 3
	src.LastEmailAt = time.Now().Add(24 * time.Hour) // deliberately bogus, must be recomputed by Split
	_, err := repo.Project().Update(ctx, userID, src)
	gt.NoError(t, err).Required()

	seedMapping(t, ctx, repo, "m1", "src")
	time.Sleep(time.Millisecond)
	seedMapping(t, ctx, repo, "m2", "src")
	time.Sleep(time.Millisecond)
	seedMapping(t, ctx, repo, "m3", "src")

	newProject, err := s.Split(ctx, userID, "src", []model.MessageID{"m2", "m3"}, "14 Baker St - Unit 2")
	gt.NoError(t, err).Required()
	gt.Value(t, newProject.EmailCount).Equal(2)

	m2, err := repo.Mapping().GetActive(ctx, userID, "m2")
	gt.NoError(t, err).Required()
	gt.Value(t, m2.ProjectID).Equal(newProject.ID)

	m1, err := repo.Mapping().GetActive(ctx, userID, "m1")
	gt.NoError(t, err).Required()

	remaining, err := repo.Project().Get(ctx, userID, "src")
	gt.NoError(t, err).Required()
	gt.Value(t, remaining.EmailCount).Equal(1)
	gt.Value(t, remaining.LastEmailAt).Equal(m1.CreatedAt)

	corrections, err := repo.Correction().ListByProject(ctx, userID, "src")
	gt.NoError(t, err).Required()
	gt.Array(t, corrections).Length(1)
	gt.Value(t, corrections[0].Type).Equal(types.CorrectionSplit)
}

func TestSplitRejectsMessageNotInSourceProject(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()
	s := correction.New(repo, correction.Config{})

	seedProject(t, ctx, repo, "src", "12 Baker St")
	seedProject(t, ctx, repo, "other", "9 Elm St")
	seedMapping(t, ctx, repo, "m1", "other")

	_, err := s.Split(ctx, userID, "src", []model.MessageID{"m1"}, "New Site")
	gt.Error(t, err)
}

func recordAssign(t *testing.T, ctx context.Context, s *correction.Store, name, sender, addrKey string, projectID model.ProjectID) {
	t.Helper()
	after := model.Snapshot{ProjectID: projectID, Name: name, SenderEmail: sender, AddressKey: addrKey}
	_, err := s.Record(ctx, userID, types.CorrectionAssign, model.Snapshot{}, after, "", projectID, "")
	gt.NoError(t, err).Required()
}

func TestLearnDerivesAliasPatternAtMinSupport(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()
	s := correction.New(repo, correction.Config{MinSupport: 3})

	recordAssign(t, ctx, s, "Baker Street Reno", "", "", "p1")
	recordAssign(t, ctx, s, "Baker Street Reno", "", "", "p1")

	n, err := s.Learn(ctx, userID)
	gt.NoError(t, err).Required()
	gt.Value(t, n).Equal(0)

	unprocessed, err := repo.Correction().ListUnprocessed(ctx, userID, 10)
	gt.NoError(t, err).Required()
	gt.Array(t, unprocessed).Length(2) // below min support, left for next run

	recordAssign(t, ctx, s, "Baker Street Reno", "", "", "p1")
	n, err = s.Learn(ctx, userID)
	gt.NoError(t, err).Required()
	gt.Value(t, n).Equal(1)

	patterns, err := repo.LearningPattern().ListActive(ctx, userID)
	gt.NoError(t, err).Required()
	gt.Array(t, patterns).Length(1)
	gt.Value(t, patterns[0].Type).Equal(types.LearningPatternAlias)
	gt.Value(t, patterns[0].ProjectID).Equal(model.ProjectID("p1"))
	gt.Value(t, patterns[0].UsageCount).Equal(3)

	unprocessed, err = repo.Correction().ListUnprocessed(ctx, userID, 10)
	gt.NoError(t, err).Required()
	gt.Array(t, unprocessed).Length(0)
}

func TestLearnDerivesSenderAndAddressPatternsIndependently(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()
	s := correction.New(repo, correction.Config{MinSupport: 2})

	recordAssign(t, ctx, s, "", "client@example.com", "", "p1")
	recordAssign(t, ctx, s, "", "CLIENT@example.com", "", "p1")
	recordAssign(t, ctx, s, "", "", "12-baker-st-2000", "p2")
	recordAssign(t, ctx, s, "", "", "12-baker-st-2000", "p2")

	n, err := s.Learn(ctx, userID)
	gt.NoError(t, err).Required()
	gt.Value(t, n).Equal(2)

	patterns, err := repo.LearningPattern().ListActive(ctx, userID)
	gt.NoError(t, err).Required()
	gt.Array(t, patterns).Length(2)
}

func TestLearnReinforcesExistingPatternAcrossRuns(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()
	s := correction.New(repo, correction.Config{MinSupport: 2})

	recordAssign(t, ctx, s, "Baker Street Reno", "", "", "p1")
	recordAssign(t, ctx, s, "Baker Street Reno", "", "", "p1")
	n, err := s.Learn(ctx, userID)
	gt.NoError(t, err).Required()
	gt.Value(t, n).Equal(1)

	recordAssign(t, ctx, s, "Baker Street Reno", "", "", "p1")
	recordAssign(t, ctx, s, "Baker Street Reno", "", "", "p1")
	n, err = s.Learn(ctx, userID)
	gt.NoError(t, err).Required()
	gt.Value(t, n).Equal(1) // the reinforced existing pattern is counted; no new one is created

	patterns, err := repo.LearningPattern().ListActive(ctx, userID)
	gt.NoError(t, err).Required()
	gt.Array(t, patterns).Length(1)
	gt.Value(t, patterns[0].UsageCount).Equal(4)
}

func TestLearnMarksNonAssignCorrectionsProcessedWithoutPatterns(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()
	s := correction.New(repo, correction.Config{MinSupport: 1})

	_, err := s.Record(ctx, userID, types.CorrectionRename, model.Snapshot{Name: "Old"}, model.Snapshot{Name: "New"}, "", "p1", "")
	gt.NoError(t, err).Required()

	n, err := s.Learn(ctx, userID)
	gt.NoError(t, err).Required()
	gt.Value(t, n).Equal(0)

	unprocessed, err := repo.Correction().ListUnprocessed(ctx, userID, 10)
	gt.NoError(t, err).Required()
	gt.Array(t, unprocessed).Length(0)
}
