package analysis_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/m-mizutani/gt"

	"github.com/projectloop/mailgrouper/pkg/analysis"
	"github.com/projectloop/mailgrouper/pkg/domain/interfaces"
	"github.com/projectloop/mailgrouper/pkg/domain/model"
	"github.com/projectloop/mailgrouper/pkg/domain/types"
	"github.com/projectloop/mailgrouper/pkg/extractor/stub"
	"github.com/projectloop/mailgrouper/pkg/queue"
	"github.com/projectloop/mailgrouper/pkg/repository/memory"
	"github.com/projectloop/mailgrouper/pkg/resolver"
)

const userID = model.UserID("u1")

type recordingSink struct {
	mu     sync.Mutex
	events []model.UIEvent
}

func (s *recordingSink) Publish(ctx context.Context, ev model.UIEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return nil
}

// fakeProvider satisfies interfaces.ProviderClient with only the list/fetch
// operations the retroactive scan path calls implemented; pages is consumed
// one ListMessages call at a time.
type fakeProvider struct {
	interfaces.ProviderClient

	mu       sync.Mutex
	pages    []interfaces.ListResult
	messages map[model.MessageID]*model.Message
	listErr  error
}

func (f *fakeProvider) ListMessages(ctx context.Context, userID model.UserID, q interfaces.ListQuery) (*interfaces.ListResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	if len(f.pages) == 0 {
		return &interfaces.ListResult{}, nil
	}
	page := f.pages[0]
	f.pages = f.pages[1:]
	return &page, nil
}

func (f *fakeProvider) FetchMessage(ctx context.Context, userID model.UserID, id model.MessageID, includeBody bool) (*model.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	msg, ok := f.messages[id]
	if !ok {
		return nil, interfaces.ErrNotFound
	}
	return msg, nil
}

func TestAnalysisQueueExtractsAndResolves(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()
	extractor := stub.New()
	cache := analysis.NewCache(3)
	res := resolver.New(repo, extractor, cache, resolver.Config{})
	sink := &recordingSink{}

	q := analysis.New(repo.Queue(), repo.Project(), extractor, res, cache, &fakeProvider{}, queue.Config{
		PollInterval: 5 * time.Millisecond,
		Lease:        time.Second,
	}, analysis.Config{}, sink, repo.Attachment(), nil)

	msg := &model.Message{
		ID:       "m1",
		ThreadID: "t1",
		Headers: model.Headers{
			Subject: "Smith Residence",
			From:    model.AddressPair{Address: "alice@example.com"},
			Date:    time.Now(),
		},
		TextBody: "please reference JOB-48213",
		Attachments: []model.AttachmentDescriptor{
			{Filename: "JOB-48213_2024-01-15_Smith_Residence.pdf", Mime: "application/pdf", Size: 1024, AttachmentID: "a1"},
		},
	}

	gt.NoError(t, q.EnqueueExtract(ctx, userID, msg, 3)).Required()

	runCtx, cancel := context.WithTimeout(ctx, 200*time.Millisecond)
	defer cancel()
	go q.Run(runCtx)
	<-runCtx.Done()

	stats, err := q.Stats(ctx)
	gt.NoError(t, err).Required()
	gt.Value(t, stats.Completed).Equal(1)

	projects, err := repo.Project().ListActive(ctx, userID)
	gt.NoError(t, err).Required()
	gt.Array(t, projects).Length(1)

	attachments, err := repo.Attachment().ListByMessage(ctx, userID, "m1")
	gt.NoError(t, err).Required()
	gt.Array(t, attachments).Length(1)
	gt.Value(t, attachments[0].Category).Equal(types.AttachmentDocument)
	gt.Value(t, attachments[0].ProjectID).Equal(projects[0].ID)
	gt.Array(t, attachments[0].Indicators.JobNumberLike).Length(1)
	gt.Value(t, attachments[0].Indicators.JobNumberLike[0]).Equal("48213")
	gt.Array(t, attachments[0].Indicators.DateLike).Length(1)
}

func TestAnalysisQueueRetroactiveScanChainsPagesAndResolves(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()
	extractor := stub.New()
	cache := analysis.NewCache(3)
	res := resolver.New(repo, extractor, cache, resolver.Config{})
	sink := &recordingSink{}

	msg1 := &model.Message{
		ID:       "m1",
		ThreadID: "t1",
		Headers: model.Headers{
			Subject: "Smith Residence",
			From:    model.AddressPair{Address: "alice@example.com"},
			Date:    time.Now(),
		},
		TextBody: "please reference JOB-48213",
	}
	msg2 := &model.Message{
		ID:       "m2",
		ThreadID: "t2",
		Headers: model.Headers{
			Subject: "Jones Residence",
			From:    model.AddressPair{Address: "bob@example.com"},
			Date:    time.Now(),
		},
		TextBody: "please reference JOB-99001",
	}

	provider := &fakeProvider{
		pages: []interfaces.ListResult{
			{MessageIDs: []model.MessageID{"m1"}, NextPageToken: "page2"},
			{MessageIDs: []model.MessageID{"m2"}},
		},
		messages: map[model.MessageID]*model.Message{"m1": msg1, "m2": msg2},
	}

	q := analysis.New(repo.Queue(), repo.Project(), extractor, res, cache, provider, queue.Config{
		PollInterval: 5 * time.Millisecond,
		Lease:        time.Second,
	}, analysis.Config{ScanPageSize: 1}, sink, repo.Attachment(), nil)

	task := model.ProcessingTask{
		RangeStart: time.Now().Add(-30 * 24 * time.Hour),
		RangeEnd:   time.Now(),
	}
	gt.NoError(t, q.EnqueueRetroactiveScanSlice(ctx, userID, task, 5)).Required()

	runCtx, cancel := context.WithTimeout(ctx, 300*time.Millisecond)
	defer cancel()
	go q.Run(runCtx)
	<-runCtx.Done()

	stats, err := q.Stats(ctx)
	gt.NoError(t, err).Required()
	gt.Value(t, stats.Completed).Equal(2)

	projects, err := repo.Project().ListActive(ctx, userID)
	gt.NoError(t, err).Required()
	gt.Array(t, projects).Length(2)
}

func TestAnalysisQueueRetroactiveScanRequiresProvider(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()
	extractor := stub.New()
	cache := analysis.NewCache(3)
	res := resolver.New(repo, extractor, cache, resolver.Config{})

	q := analysis.New(repo.Queue(), repo.Project(), extractor, res, cache, nil, queue.Config{
		PollInterval: 5 * time.Millisecond,
		Lease:        time.Second,
	}, analysis.Config{}, nil, repo.Attachment(), nil)

	gt.NoError(t, q.EnqueueRetroactiveScanSlice(ctx, userID, model.ProcessingTask{}, 5)).Required()

	runCtx, cancel := context.WithTimeout(ctx, 150*time.Millisecond)
	defer cancel()
	go q.Run(runCtx)
	<-runCtx.Done()

	stats, err := q.Stats(ctx)
	gt.NoError(t, err).Required()
	gt.Value(t, stats.Dead).Equal(1)
}
