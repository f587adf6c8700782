package resolver_test

import (
	"context"
	"testing"
	"time"

	"github.com/m-mizutani/gt"

	"github.com/projectloop/mailgrouper/pkg/domain/interfaces"
	"github.com/projectloop/mailgrouper/pkg/domain/model"
	"github.com/projectloop/mailgrouper/pkg/domain/types"
	"github.com/projectloop/mailgrouper/pkg/extractor/stub"
	"github.com/projectloop/mailgrouper/pkg/repository/memory"
	"github.com/projectloop/mailgrouper/pkg/resolver"
)

const userID = model.UserID("u1")

func newMsg(id, thread, subject, body string) *model.Message {
	return &model.Message{
		ID:       model.MessageID(id),
		ThreadID: model.ThreadID(thread),
		Headers: model.Headers{
			Subject: subject,
			From:    model.AddressPair{Address: "alice@example.com"},
			Date:    time.Now(),
		},
		TextBody: body,
	}
}

func TestResolveAddressMatchWinsOverNameMismatch(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()

	project := &model.Project{
		ID:     "proj-a",
		UserID: userID,
		Name:   "Baker Job",
		Address: model.Address{
			Street:   "12 Baker Street",
			Postcode: "3000",
		},
		JobNumbers: []string{"087"},
		Status:     types.ProjectStatusActive,
	}
	created, err := repo.Project().Create(ctx, userID, project)
	gt.NoError(t, err).Required()

	res := resolver.New(repo, nil, nil, resolver.Config{})

	msg := newMsg("m1", "t1", "Update", "12 Baker Street, postcode 3000, new kitchen")
	entities := &model.ExtractedEntities{
		Address: &model.ExtractedAddress{
			Street:     "12 Baker Street",
			Postcode:   "3000",
			Confidence: 0.9,
		},
		OverallConfidence: 0.9,
	}

	result, err := res.Resolve(ctx, userID, msg, entities)
	gt.NoError(t, err).Required()
	gt.Value(t, result.ProjectID).Equal(created.ID)
	gt.Value(t, result.Action).Equal(resolver.ActionAmbiguousAssign)
}

func TestResolveJobNumberMatchesAcrossNewSender(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()

	created, err := repo.Project().Create(ctx, userID, &model.Project{
		UserID:     userID,
		Name:       "Job 2024-087",
		JobNumbers: []string{"2024-087"},
		Status:     types.ProjectStatusActive,
	})
	gt.NoError(t, err).Required()

	// Alice's earlier message in the thread already resolved to this
	// project; bob's reply carries no prior sender history but still
	// references the same job number, combining with thread consensus.
	gt.NoError(t, repo.Mapping().Put(ctx, userID, &model.EmailProjectMapping{
		UserID:            userID,
		MessageID:         "m2-alice",
		ThreadID:          "t2",
		ProjectID:         created.ID,
		Confidence:        0.9,
		AssociationMethod: types.AssociationAuto,
		Primary:           true,
		Active:            true,
	}))

	res := resolver.New(repo, nil, nil, resolver.Config{})

	msg := newMsg("m2", "t2", "Invoice", "Reference Job 2024-087 please")
	msg.Headers.From = model.AddressPair{Address: "bob@sub.test"}
	entities := &model.ExtractedEntities{
		JobNumbers:        []model.ExtractedJobNumber{{Value: "2024-087", Source: "body", Confidence: 0.9}},
		OverallConfidence: 0.95,
	}

	result, err := res.Resolve(ctx, userID, msg, entities)
	gt.NoError(t, err).Required()
	gt.Value(t, result.ProjectID).Equal(created.ID)

	mapping, err := repo.Mapping().GetActive(ctx, userID, msg.ID)
	gt.NoError(t, err).Required()
	gt.Value(t, mapping.AssociationMethod).Equal(types.AssociationAuto)
}

func TestResolveNoMatchCreatesNewProject(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()
	res := resolver.New(repo, nil, nil, resolver.Config{})

	msg := newMsg("m3", "t3", "Hello", "nothing to see here")
	entities := &model.ExtractedEntities{OverallConfidence: 0.9}

	result, err := res.Resolve(ctx, userID, msg, entities)
	gt.NoError(t, err).Required()
	gt.Value(t, result.Action).Equal(resolver.ActionNewProject)
	gt.Array(t, result.Events).Length(1)
	gt.Value(t, result.Events[0].Kind).Equal(model.UIEventNewProject)
}

func TestResolveLowConfidenceEmitsEvent(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()

	_, err := repo.Project().Create(ctx, userID, &model.Project{
		UserID: userID,
		Name:   "Smith Residence",
		Client: model.ClientContact{Email: "client@example.com"},
		Status: types.ProjectStatusActive,
	})
	gt.NoError(t, err).Required()

	res := resolver.New(repo, nil, nil, resolver.Config{})

	msg := newMsg("m4", "t4", "quick question", "about the renovation")
	entities := &model.ExtractedEntities{
		ProjectName:       &model.ExtractedProjectName{Value: "Smith Residence", Confidence: 0.5},
		Client:            model.ExtractedClient{Email: "client@example.com", Confidence: 0.5},
		OverallConfidence: 1.0,
	}

	result, err := res.Resolve(ctx, userID, msg, entities)
	gt.NoError(t, err).Required()
	gt.Value(t, result.Action).Equal(resolver.ActionAmbiguousAssign)
	gt.Array(t, result.Events).Length(1)
	gt.Value(t, result.Events[0].Kind).Equal(model.UIEventLowConfidence)
}

func TestResolveThreadConsensusSplitsOnStrongDisagreement(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()

	threadProject, err := repo.Project().Create(ctx, userID, &model.Project{
		UserID: userID,
		Name:   "General Inquiries",
		Status: types.ProjectStatusActive,
	})
	gt.NoError(t, err).Required()

	other, err := repo.Project().Create(ctx, userID, &model.Project{
		UserID:     userID,
		Name:       "Big Renovation",
		JobNumbers: []string{"555"},
		Address:    model.Address{Street: "9 High St", Postcode: "3001"},
		Status:     types.ProjectStatusActive,
	})
	gt.NoError(t, err).Required()

	gt.NoError(t, repo.Mapping().Put(ctx, userID, &model.EmailProjectMapping{
		UserID:            userID,
		MessageID:         "m0",
		ThreadID:          "t5",
		ProjectID:         threadProject.ID,
		Confidence:        0.9,
		AssociationMethod: types.AssociationAuto,
		Primary:           true,
		Active:            true,
	}))

	res := resolver.New(repo, nil, nil, resolver.Config{})

	msg := newMsg("m5", "t5", "Re: also job 555", "please see job 555 at 9 High Street postcode 3001")
	entities := &model.ExtractedEntities{
		JobNumbers:        []model.ExtractedJobNumber{{Value: "555", Source: "subject", Confidence: 0.9}},
		Address:           &model.ExtractedAddress{Street: "9 High St", Postcode: "3001", Confidence: 0.9},
		OverallConfidence: 1.0,
	}

	result, err := res.Resolve(ctx, userID, msg, entities)
	gt.NoError(t, err).Required()
	gt.Value(t, result.ProjectID).Equal(other.ID)
	gt.Bool(t, result.SplitFromThread).True()
}

func TestStubExtractorIntegratesWithResolver(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()
	extractor := stub.New()
	res := resolver.New(repo, extractor, nil, resolver.Config{})

	msg := newMsg("m6", "t6", "Smith Residence", "please reference JOB-48213")
	entities, err := extractor.Extract(ctx, msg, interfaces.ExtractionHints{})
	gt.NoError(t, err).Required()

	result, err := res.Resolve(ctx, userID, msg, entities)
	gt.NoError(t, err).Required()
	gt.Value(t, result.Action).Equal(resolver.ActionNewProject)
}
