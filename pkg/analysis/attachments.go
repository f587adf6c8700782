package analysis

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/projectloop/mailgrouper/pkg/domain/model"
	"github.com/projectloop/mailgrouper/pkg/domain/types"
	"github.com/projectloop/mailgrouper/pkg/utils/logging"
)

// Filename indicator patterns, grounded on
// original_source/backend/app/services/attachment_processing.py's
// _parse_filename_for_project job/date/name regexes and the extractor
// stub's jobNumberRe. Tokens are delimited by any non-alphanumeric
// character, underscores included, since filenames commonly use them as
// separators (and \b treats "_" as a word character).
var (
	jobNumberLikeRe = regexp.MustCompile(`(?i)(?:^|[^a-z0-9])(?:job|jn|prj|quote|q)[-_#]?\s?(\d{3,8})(?:[^a-z0-9]|$)`)
	dateLikeRe      = regexp.MustCompile(`(?:^|[^0-9A-Za-z])(\d{4}[-_]\d{2}[-_]\d{2})(?:[^0-9A-Za-z]|$)`)
	nameLikeRe      = regexp.MustCompile(`[A-Z][a-z]+(?:[_ -][A-Z][a-z]+)+`)
)

// parseFilenameIndicators extracts project-indicator tokens from an
// attachment's filename (spec §3 Attachment.parsed project-indicator
// tokens).
func parseFilenameIndicators(filename string) model.AttachmentIndicators {
	var out model.AttachmentIndicators
	for _, m := range jobNumberLikeRe.FindAllStringSubmatch(filename, -1) {
		out.JobNumberLike = append(out.JobNumberLike, m[1])
	}
	for _, m := range dateLikeRe.FindAllStringSubmatch(filename, -1) {
		out.DateLike = append(out.DateLike, m[1])
	}
	out.NameLike = append(out.NameLike, nameLikeRe.FindAllString(filename, -1)...)
	return out
}

// processAttachments persists a durable model.Attachment record for every
// part msg carried, weak-referencing projectID (spec §3: "project_id is a
// weak reference resolved when the message is resolved"). Failures are
// logged and skipped rather than failing the whole extract task — losing
// one attachment record must never re-queue an already-resolved message.
func (q *Queue) processAttachments(ctx context.Context, userID model.UserID, msg *model.Message, projectID model.ProjectID) {
	if q.attachments == nil {
		return
	}

	for _, desc := range msg.Attachments {
		a := &model.Attachment{
			MessageID:    msg.ID,
			UserID:       userID,
			ProjectID:    projectID,
			AttachmentID: desc.AttachmentID,
			Filename:     desc.Filename,
			Mime:         desc.Mime,
			Size:         desc.Size,
			Category:     types.CategorizeMimeType(desc.Mime),
			Indicators:   parseFilenameIndicators(desc.Filename),
			CreatedAt:    time.Now().UTC(),
		}

		if q.blobs != nil && q.provider != nil && desc.AttachmentID != "" {
			a.BlobRef = q.storeBlob(ctx, userID, msg.ID, desc)
		}

		if err := q.attachments.Put(ctx, a); err != nil {
			logging.From(ctx).Error("persist attachment record failed",
				"error", err.Error(), "message_id", msg.ID, "attachment_id", desc.AttachmentID)
		}
	}
}

// storeBlob fetches an attachment's bytes from the provider and uploads
// them to the blob store, returning the object path to record as BlobRef,
// or "" if either step fails.
func (q *Queue) storeBlob(ctx context.Context, userID model.UserID, messageID model.MessageID, desc model.AttachmentDescriptor) string {
	data, err := q.provider.FetchAttachment(ctx, userID, messageID, desc.AttachmentID)
	if err != nil {
		logging.From(ctx).Error("fetch attachment blob failed",
			"error", err.Error(), "message_id", messageID, "attachment_id", desc.AttachmentID)
		return ""
	}

	objectPath := fmt.Sprintf("%s/%s/%s", userID, messageID, desc.AttachmentID)
	ref, err := q.blobs.Put(ctx, objectPath, data, desc.Mime)
	if err != nil {
		logging.From(ctx).Error("store attachment blob failed",
			"error", err.Error(), "object", objectPath)
		return ""
	}
	return ref
}
