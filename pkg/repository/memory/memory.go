// Package memory is an in-process Metastore (C11) backend: maps guarded by
// RWMutex, deep-copied on every read and write so callers can never alias
// internal state. Used for tests and single-node development.
package memory

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/m-mizutani/goerr/v2"
	"github.com/projectloop/mailgrouper/pkg/domain/interfaces"
	"github.com/projectloop/mailgrouper/pkg/domain/model"
)

type Memory struct {
	resolveMu sync.Mutex

	user            *userRepository
	project         *projectRepository
	mapping         *mappingRepository
	attachment      *attachmentRepository
	correction      *correctionRepository
	learningPattern *learningPatternRepository
	watch           *watchRepository
	scanConfig      *scanConfigRepository
	audit           *auditRepository
	queue           *queueRepository
}

var _ interfaces.Repository = &Memory{}

func New() *Memory {
	return &Memory{
		user:            newUserRepository(),
		project:         newProjectRepository(),
		mapping:         newMappingRepository(),
		attachment:      newAttachmentRepository(),
		correction:      newCorrectionRepository(),
		learningPattern: newLearningPatternRepository(),
		watch:           newWatchRepository(),
		scanConfig:      newScanConfigRepository(),
		audit:           newAuditRepository(),
		queue:           newQueueRepository(),
	}
}

func (m *Memory) User() interfaces.UserRepository                       { return m.user }
func (m *Memory) Project() interfaces.ProjectRepository                 { return m.project }
func (m *Memory) Mapping() interfaces.MappingRepository                 { return m.mapping }
func (m *Memory) Attachment() interfaces.AttachmentRepository           { return m.attachment }
func (m *Memory) Correction() interfaces.CorrectionRepository           { return m.correction }
func (m *Memory) LearningPattern() interfaces.LearningPatternRepository { return m.learningPattern }
func (m *Memory) Watch() interfaces.WatchRepository                     { return m.watch }
func (m *Memory) ScanConfig() interfaces.ScanConfigRepository           { return m.scanConfig }
func (m *Memory) Audit() interfaces.AuditRepository                     { return m.audit }
func (m *Memory) Queue() interfaces.QueueRepository                     { return m.queue }

func (m *Memory) Close() error { return nil }

// resolveTx buffers writes issued by the ResolveAndPersist callback and only
// applies them once fn returns nil, giving the in-memory backend the same
// all-or-nothing semantics a real transaction provides.
type resolveTx struct {
	m     *Memory
	ops   []func()
}

func (tx *resolveTx) PutMapping(ctx context.Context, mp *model.EmailProjectMapping) error {
	cp := *mp
	tx.ops = append(tx.ops, func() { tx.m.mapping.putLocked(&cp) })
	return nil
}

func (tx *resolveTx) PutProject(ctx context.Context, p *model.Project) error {
	cp := *p
	tx.ops = append(tx.ops, func() { tx.m.project.putLocked(&cp) })
	return nil
}

func (tx *resolveTx) EnqueueReflection(ctx context.Context, userID model.UserID, messageID model.MessageID, projectID model.ProjectID) error {
	payload, err := json.Marshal(model.ReflectionTask{MessageID: messageID, ProjectID: projectID})
	if err != nil {
		return goerr.Wrap(err, "marshal reflection task")
	}
	tx.ops = append(tx.ops, func() {
		tx.m.queue.enqueueLocked(&model.QueueItem{
			Queue:    model.QueueReflection,
			UserID:   userID,
			DedupKey: "reflect:" + string(messageID),
			Payload:  payload,
		})
	})
	return nil
}

// ResolveAndPersist runs fn under a single process-wide lock covering
// mapping, project and queue state (spec §4.11 atomicity requirement).
func (m *Memory) ResolveAndPersist(ctx context.Context, userID model.UserID, fn func(tx interfaces.ResolveTx) error) error {
	m.resolveMu.Lock()
	defer m.resolveMu.Unlock()

	tx := &resolveTx{m: m}
	if err := fn(tx); err != nil {
		return goerr.Wrap(err, "resolve callback failed")
	}

	m.mapping.mu.Lock()
	m.project.mu.Lock()
	m.queue.mu.Lock()
	defer m.queue.mu.Unlock()
	defer m.project.mu.Unlock()
	defer m.mapping.mu.Unlock()

	for _, op := range tx.ops {
		op()
	}
	return nil
}
