package model

import (
	"time"

	"github.com/projectloop/mailgrouper/pkg/domain/types"
)

// CorrectionID is an opaque identifier for a Correction record.
type CorrectionID string

// Snapshot captures the minimal state needed to reverse a correction
// (spec §8 property 7: round-trip of corrections). SenderEmail and
// AddressKey mirror the resolver's own matching keys (Client.Email,
// Address.MatchKey()) so the learning pass can derive sender- and
// address-to-project patterns directly from a correction without
// re-deriving them from the original message.
type Snapshot struct {
	ProjectID   ProjectID
	MessageIDs  []MessageID
	Name        string
	Aliases     []string
	Status      types.ProjectStatus
	SenderEmail string
	AddressKey  string
}

// Correction is an append-only record of a user override. Never mutated
// once written; the learning pass reads it to derive LearningPatterns.
type Correction struct {
	ID              CorrectionID
	UserID          UserID
	Type            types.CorrectionType
	OriginalResult  Snapshot
	CorrectedResult Snapshot
	MessageID       MessageID // optional, depending on Type
	ProjectID       ProjectID // optional, depending on Type
	Reason          string
	Processed       bool
	CreatedAt       time.Time
}

// LearningPatternID is an opaque identifier for a LearningPattern record.
type LearningPatternID string

// LearningPattern is a derived rule that biases future resolver decisions
// for one user. Derived from Corrections; deactivated but never
// destructively edited.
type LearningPattern struct {
	ID         LearningPatternID
	UserID     UserID
	Type       types.LearningPatternType
	ProjectID  ProjectID
	Pattern    string // e.g. an alias string, a sender domain, an address key
	Confidence float64
	UsageCount int
	Active     bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
