package model

import (
	"time"

	"github.com/projectloop/mailgrouper/pkg/domain/types"
)

// WatchSubscription tracks the push/poll state for one user's mailbox.
type WatchSubscription struct {
	UserID        UserID
	Topic         string // provider push topic, empty for polling-only
	LabelFilter   string
	LastCursor    HistoryCursor
	Kind          types.WatchKind
	ExpiresAt     time.Time
	LastPushEventAt time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// NeedsRenewal reports whether the subscription should be renewed given a
// safety margin before expiry (spec §4.3, default WATCH_RENEWAL_MARGIN_MIN).
func (w WatchSubscription) NeedsRenewal(margin time.Duration, now time.Time) bool {
	if w.Kind != types.WatchKindPush {
		return false
	}
	return w.ExpiresAt.IsZero() || !now.Before(w.ExpiresAt.Add(-margin))
}

// ScanConfig is a per-user scan configuration (SPEC_FULL §11 expansion,
// grounded on original_source/backend/app/services/scan_config.py).
// RetroScanCursor/RetroScanUntil are the checkpoint pkg/scheduler advances
// as it slices a requested retroactive scan into RetroScanSliceDays-wide
// windows (SPEC_FULL §11's incremental_processing.py supplement); a zero
// RetroScanUntil means no scan is currently pending for this user.
type ScanConfig struct {
	UserID          UserID
	IncludedLabels  []string
	ExcludedLabels  []string
	MaxLookbackDays int
	ScanSent        bool
	ScanDrafts      bool
	RetroScanCursor time.Time
	RetroScanUntil  time.Time
	UpdatedAt       time.Time
}

// RetroScanPending reports whether a retroactive scan is still in flight
// for this config's user.
func (c ScanConfig) RetroScanPending() bool {
	return !c.RetroScanUntil.IsZero() && c.RetroScanCursor.Before(c.RetroScanUntil)
}
