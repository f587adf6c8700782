// Package types holds the small enum-like value types shared across the
// domain model. Each enum follows the same IsValid/Parse/String shape so
// callers at the edges (HTTP, queue payloads, Firestore documents) can
// validate user input the same way everywhere.
package types

import "fmt"

// UserRole is a User's access level.
type UserRole string

const (
	UserRoleAdmin  UserRole = "admin"
	UserRoleUser   UserRole = "user"
	UserRoleViewer UserRole = "viewer"
)

func (r UserRole) IsValid() bool {
	switch r {
	case UserRoleAdmin, UserRoleUser, UserRoleViewer:
		return true
	default:
		return false
	}
}

func (r UserRole) String() string { return string(r) }

func ParseUserRole(s string) (UserRole, error) {
	r := UserRole(s)
	if !r.IsValid() {
		return "", fmt.Errorf("invalid user role: %s", s)
	}
	return r, nil
}

// ProjectStatus is the lifecycle state of a Project.
type ProjectStatus string

const (
	ProjectStatusActive    ProjectStatus = "active"
	ProjectStatusCompleted ProjectStatus = "completed"
	ProjectStatusOnHold    ProjectStatus = "on_hold"
	ProjectStatusArchived  ProjectStatus = "archived"
)

func (s ProjectStatus) IsValid() bool {
	switch s {
	case ProjectStatusActive, ProjectStatusCompleted, ProjectStatusOnHold, ProjectStatusArchived:
		return true
	default:
		return false
	}
}

func (s ProjectStatus) String() string { return string(s) }

func AllProjectStatuses() []ProjectStatus {
	return []ProjectStatus{ProjectStatusActive, ProjectStatusCompleted, ProjectStatusOnHold, ProjectStatusArchived}
}

func ParseProjectStatus(s string) (ProjectStatus, error) {
	v := ProjectStatus(s)
	if !v.IsValid() {
		return "", fmt.Errorf("invalid project status: %s", s)
	}
	return v, nil
}

// AssociationMethod records how a mapping was decided.
type AssociationMethod string

const (
	AssociationAuto       AssociationMethod = "auto"
	AssociationAI         AssociationMethod = "ai"
	AssociationSimilarity AssociationMethod = "similarity"
	AssociationManual     AssociationMethod = "manual"
)

func (m AssociationMethod) IsValid() bool {
	switch m {
	case AssociationAuto, AssociationAI, AssociationSimilarity, AssociationManual:
		return true
	default:
		return false
	}
}

func (m AssociationMethod) String() string { return string(m) }

// AttachmentCategory classifies an attachment by content.
type AttachmentCategory string

const (
	AttachmentDocument   AttachmentCategory = "document"
	AttachmentSpreadsheet AttachmentCategory = "spreadsheet"
	AttachmentImage      AttachmentCategory = "image"
	AttachmentDrawing    AttachmentCategory = "drawing"
	AttachmentArchive    AttachmentCategory = "archive"
	AttachmentOther      AttachmentCategory = "other"
)

func (c AttachmentCategory) IsValid() bool {
	switch c {
	case AttachmentDocument, AttachmentSpreadsheet, AttachmentImage, AttachmentDrawing, AttachmentArchive, AttachmentOther:
		return true
	default:
		return false
	}
}

func (c AttachmentCategory) String() string { return string(c) }

// CategorizeMimeType maps a MIME type to an AttachmentCategory.
func CategorizeMimeType(mime string) AttachmentCategory {
	switch {
	case mime == "application/pdf" || mime == "application/msword" ||
		mime == "application/vnd.openxmlformats-officedocument.wordprocessingml.document" ||
		mime == "text/plain":
		return AttachmentDocument
	case mime == "application/vnd.ms-excel" ||
		mime == "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet" ||
		mime == "text/csv":
		return AttachmentSpreadsheet
	case mime == "image/jpeg" || mime == "image/png" || mime == "image/gif" || mime == "image/webp" || mime == "image/heic":
		return AttachmentImage
	case mime == "application/dwg" || mime == "image/vnd.dwg" || mime == "application/acad" || mime == "image/vnd.dxf":
		return AttachmentDrawing
	case mime == "application/zip" || mime == "application/x-7z-compressed" || mime == "application/x-rar-compressed" ||
		mime == "application/x-tar" || mime == "application/gzip":
		return AttachmentArchive
	default:
		return AttachmentOther
	}
}

// CorrectionType is the kind of user override recorded by the correction store.
type CorrectionType string

const (
	CorrectionAssign   CorrectionType = "assign"
	CorrectionUnassign CorrectionType = "unassign"
	CorrectionMerge    CorrectionType = "merge"
	CorrectionSplit    CorrectionType = "split"
	CorrectionRename   CorrectionType = "rename"
)

func (t CorrectionType) IsValid() bool {
	switch t {
	case CorrectionAssign, CorrectionUnassign, CorrectionMerge, CorrectionSplit, CorrectionRename:
		return true
	default:
		return false
	}
}

func (t CorrectionType) String() string { return string(t) }

// LearningPatternType is the kind of rule a LearningPattern encodes.
type LearningPatternType string

const (
	LearningPatternAlias        LearningPatternType = "alias"
	LearningPatternSenderToProj LearningPatternType = "sender_to_project"
	LearningPatternAddrToProj   LearningPatternType = "address_to_project"
)

func (t LearningPatternType) IsValid() bool {
	switch t {
	case LearningPatternAlias, LearningPatternSenderToProj, LearningPatternAddrToProj:
		return true
	default:
		return false
	}
}

func (t LearningPatternType) String() string { return string(t) }

// WatchKind is the mechanism by which a user's mailbox changes are observed.
type WatchKind string

const (
	WatchKindPush    WatchKind = "push"
	WatchKindPolling WatchKind = "polling"
)

func (k WatchKind) IsValid() bool {
	switch k {
	case WatchKindPush, WatchKindPolling:
		return true
	default:
		return false
	}
}

func (k WatchKind) String() string { return string(k) }

// EventSource records what triggered a MessageEvent.
type EventSource string

const (
	EventSourcePush  EventSource = "push"
	EventSourcePoll  EventSource = "poll"
	EventSourceRetro EventSource = "retro"
)

func (s EventSource) String() string { return string(s) }

// QueueStatus is the lifecycle state of a QueueItem.
type QueueStatus string

const (
	QueueStatusPending    QueueStatus = "pending"
	QueueStatusProcessing QueueStatus = "processing"
	QueueStatusCompleted  QueueStatus = "completed"
	QueueStatusFailed     QueueStatus = "failed"
	QueueStatusDead       QueueStatus = "dead"
)

func (s QueueStatus) IsValid() bool {
	switch s {
	case QueueStatusPending, QueueStatusProcessing, QueueStatusCompleted, QueueStatusFailed, QueueStatusDead:
		return true
	default:
		return false
	}
}

func (s QueueStatus) String() string { return string(s) }

// ProcessingTaskKind is the payload discriminator for AIProcessingQueue items.
type ProcessingTaskKind string

const (
	TaskExtract               ProcessingTaskKind = "extract"
	TaskGroupBatch            ProcessingTaskKind = "group_batch"
	TaskRetroactiveScanSlice  ProcessingTaskKind = "retroactive_scan_slice"
)

func (k ProcessingTaskKind) IsValid() bool {
	switch k {
	case TaskExtract, TaskGroupBatch, TaskRetroactiveScanSlice:
		return true
	default:
		return false
	}
}

func (k ProcessingTaskKind) String() string { return string(k) }

// JobNumberSource records where in a message a job number was found.
type JobNumberSource string

const (
	JobNumberSourceSubject    JobNumberSource = "subject"
	JobNumberSourceBody       JobNumberSource = "body"
	JobNumberSourceSignature  JobNumberSource = "signature"
	JobNumberSourceAttachment JobNumberSource = "attachment-filename"
)

func (s JobNumberSource) String() string { return string(s) }

// PollInterval names the three configurable polling frequencies (spec §4.3, §6).
type PollInterval string

const (
	PollIntervalFast   PollInterval = "fast"
	PollIntervalNormal PollInterval = "normal"
	PollIntervalSlow   PollInterval = "slow"
)

func (p PollInterval) IsValid() bool {
	switch p {
	case PollIntervalFast, PollIntervalNormal, PollIntervalSlow:
		return true
	default:
		return false
	}
}

// Duration returns the default tick interval for a PollInterval.
func (p PollInterval) Duration() (seconds int) {
	switch p {
	case PollIntervalFast:
		return 60
	case PollIntervalSlow:
		return 900
	default:
		return 300
	}
}
