package provider

import (
	"context"
	"strconv"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/api/gmail/v1"

	"github.com/projectloop/mailgrouper/pkg/domain/interfaces"
	"github.com/projectloop/mailgrouper/pkg/domain/model"
	"github.com/projectloop/mailgrouper/pkg/domain/types"
	"github.com/projectloop/mailgrouper/pkg/utils/logging"
)

func (c *Client) Profile(ctx context.Context, userID model.UserID) (string, error) {
	var email string
	err := c.call(ctx, userID, interfaces.RateKindRead, func(ctx context.Context, tr gmailTransport) error {
		p, err := tr.Profile(ctx)
		if err != nil {
			return err
		}
		email = p.EmailAddress
		return nil
	})
	return email, err
}

func (c *Client) ListMessages(ctx context.Context, userID model.UserID, q interfaces.ListQuery) (*interfaces.ListResult, error) {
	var out interfaces.ListResult
	err := c.call(ctx, userID, interfaces.RateKindRead, func(ctx context.Context, tr gmailTransport) error {
		resp, err := tr.List(ctx, q.Q, q.PageToken, int64(q.PageSize))
		if err != nil {
			return err
		}
		out.MessageIDs = make([]model.MessageID, 0, len(resp.Messages))
		for _, m := range resp.Messages {
			out.MessageIDs = append(out.MessageIDs, model.MessageID(m.Id))
		}
		out.NextPageToken = resp.NextPageToken
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) FetchMessage(ctx context.Context, userID model.UserID, id model.MessageID, includeBody bool) (*model.Message, error) {
	format := "metadata"
	if includeBody {
		format = "full"
	}
	var out *model.Message
	err := c.call(ctx, userID, interfaces.RateKindRead, func(ctx context.Context, tr gmailTransport) error {
		gm, err := tr.Get(ctx, string(id), format)
		if err != nil {
			return err
		}
		out = buildMessage(gm, c.reduce)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) FetchAttachment(ctx context.Context, userID model.UserID, messageID model.MessageID, attachmentID string) ([]byte, error) {
	var out []byte
	err := c.call(ctx, userID, interfaces.RateKindRead, func(ctx context.Context, tr gmailTransport) error {
		body, err := tr.Attachment(ctx, string(messageID), attachmentID)
		if err != nil {
			return err
		}
		decoded, err := decodeBody(body.Data)
		if err != nil {
			return goerr.Wrap(err, "decode attachment body")
		}
		out = decoded
		return nil
	})
	if err != nil {
		return nil, err
	}
	// The sender's declared MIME type is untrustworthy, so the bytes are
	// sniffed here; the sniffed type and category are only logged, not
	// returned, and callers receive the bytes alone.
	sniffed := mimetype.Detect(out)
	category := types.CategorizeMimeType(sniffed.String())
	logging.From(ctx).Debug("attachment sniffed",
		"user_id", userID, "message_id", messageID, "attachment_id", attachmentID,
		"sniffed_mime", sniffed.String(), "category", category.String(), "size", len(out))
	return out, nil
}

func (c *Client) ListLabels(ctx context.Context, userID model.UserID) ([]interfaces.Label, error) {
	var out []interfaces.Label
	err := c.call(ctx, userID, interfaces.RateKindRead, func(ctx context.Context, tr gmailTransport) error {
		resp, err := tr.Labels(ctx)
		if err != nil {
			return err
		}
		out = make([]interfaces.Label, 0, len(resp.Labels))
		for _, l := range resp.Labels {
			out = append(out, interfaces.Label{ID: l.Id, Name: l.Name})
		}
		return nil
	})
	return out, err
}

func (c *Client) CreateLabel(ctx context.Context, userID model.UserID, name string) (interfaces.Label, error) {
	var out interfaces.Label
	err := c.call(ctx, userID, interfaces.RateKindWrite, func(ctx context.Context, tr gmailTransport) error {
		l, err := tr.CreateLabel(ctx, name)
		if err != nil {
			return err
		}
		out = interfaces.Label{ID: l.Id, Name: l.Name}
		return nil
	})
	return out, err
}

func (c *Client) ModifyMessage(ctx context.Context, userID model.UserID, id model.MessageID, add, remove []string) error {
	return c.call(ctx, userID, interfaces.RateKindWrite, func(ctx context.Context, tr gmailTransport) error {
		return tr.Modify(ctx, string(id), add, remove)
	})
}

func (c *Client) BatchModify(ctx context.Context, userID model.UserID, ids []model.MessageID, add, remove []string) error {
	raw := make([]string, len(ids))
	for i, id := range ids {
		raw[i] = string(id)
	}
	return c.call(ctx, userID, interfaces.RateKindWrite, func(ctx context.Context, tr gmailTransport) error {
		return tr.BatchModify(ctx, raw, add, remove)
	})
}

func (c *Client) StartWatch(ctx context.Context, userID model.UserID, topic, labelFilter string) (*model.WatchSubscription, error) {
	var out *model.WatchSubscription
	err := c.call(ctx, userID, interfaces.RateKindWrite, func(ctx context.Context, tr gmailTransport) error {
		resp, err := tr.Watch(ctx, topic, labelFilter)
		if err != nil {
			return err
		}
		out = &model.WatchSubscription{
			UserID:      userID,
			Topic:       topic,
			LabelFilter: labelFilter,
			LastCursor:  model.HistoryCursor(strconv.FormatUint(resp.HistoryId, 10)),
			ExpiresAt:   time.UnixMilli(resp.Expiration).UTC(),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) StopWatch(ctx context.Context, userID model.UserID) error {
	return c.call(ctx, userID, interfaces.RateKindWrite, func(ctx context.Context, tr gmailTransport) error {
		return tr.Stop(ctx)
	})
}

// GetHistory pages through Users.history.list from since, collecting the
// ids of every message added, and returns the highest history id seen as
// the next cursor. An empty since bootstraps from the mailbox's current
// history id without enumerating anything, since Gmail has no "history
// since the beginning of time" query (spec §4.3's cursor contract).
func (c *Client) GetHistory(ctx context.Context, userID model.UserID, since model.HistoryCursor) (*interfaces.HistoryResult, error) {
	if since == "" {
		var out interfaces.HistoryResult
		err := c.call(ctx, userID, interfaces.RateKindRead, func(ctx context.Context, tr gmailTransport) error {
			p, err := tr.Profile(ctx)
			if err != nil {
				return err
			}
			out.NextCursor = model.HistoryCursor(strconv.FormatUint(p.HistoryId, 10))
			return nil
		})
		if err != nil {
			return nil, err
		}
		return &out, nil
	}

	startID, err := strconv.ParseUint(string(since), 10, 64)
	if err != nil {
		return nil, goerr.Wrap(interfaces.ErrInvalidInput, "malformed history cursor", goerr.V("cursor", since))
	}

	seen := map[model.MessageID]struct{}{}
	var ids []model.MessageID
	nextCursor := since
	pageToken := ""

	for {
		var resp *gmail.ListHistoryResponse
		err := c.call(ctx, userID, interfaces.RateKindRead, func(ctx context.Context, tr gmailTransport) error {
			r, err := tr.History(ctx, startID, pageToken)
			if err != nil {
				return err
			}
			resp = r
			return nil
		})
		if err != nil {
			return nil, err
		}

		for _, h := range resp.History {
			for _, added := range h.MessagesAdded {
				if added.Message == nil {
					continue
				}
				id := model.MessageID(added.Message.Id)
				if _, dup := seen[id]; dup {
					continue
				}
				seen[id] = struct{}{}
				ids = append(ids, id)
			}
		}
		if resp.HistoryId > startID {
			nextCursor = model.HistoryCursor(strconv.FormatUint(resp.HistoryId, 10))
		}

		if resp.NextPageToken == "" {
			break
		}
		pageToken = resp.NextPageToken
	}

	return &interfaces.HistoryResult{NewMessageIDs: ids, NextCursor: nextCursor}, nil
}
