package provider

import (
	"encoding/base64"
	"strings"

	"google.golang.org/api/gmail/v1"

	"github.com/projectloop/mailgrouper/pkg/domain/model"
)

// bodyParts accumulates the result of a depth-first walk over a message's
// MIME tree (spec §4.2). The richest text body wins: text/plain if any
// part carries one, otherwise the first text/html part reduced to text.
// Every leaf with a filename is treated as an attachment regardless of
// nesting depth.
type bodyParts struct {
	plainText   string
	htmlText    string
	attachments []model.AttachmentDescriptor
	errs        []string
}

func decodeBody(data string) ([]byte, error) {
	if data == "" {
		return nil, nil
	}
	if b, err := base64.URLEncoding.DecodeString(data); err == nil {
		return b, nil
	}
	return base64.RawURLEncoding.DecodeString(data)
}

func walkParts(part *gmail.MessagePart, out *bodyParts) {
	if part == nil {
		return
	}
	if strings.HasPrefix(part.MimeType, "multipart/") {
		for _, child := range part.Parts {
			walkParts(child, out)
		}
		return
	}

	if part.Filename != "" {
		desc := model.AttachmentDescriptor{
			Filename: part.Filename,
			Mime:     part.MimeType,
		}
		if part.Body != nil {
			desc.Size = part.Body.Size
			desc.AttachmentID = part.Body.AttachmentId
		}
		out.attachments = append(out.attachments, desc)
		return
	}

	if part.Body == nil || part.Body.Data == "" {
		return
	}
	switch part.MimeType {
	case "text/plain":
		if out.plainText != "" {
			return
		}
		b, err := decodeBody(part.Body.Data)
		if err != nil {
			out.errs = append(out.errs, "text/plain part "+part.PartId+": "+err.Error())
			return
		}
		out.plainText = string(b)
	case "text/html":
		if out.htmlText != "" {
			return
		}
		b, err := decodeBody(part.Body.Data)
		if err != nil {
			out.errs = append(out.errs, "text/html part "+part.PartId+": "+err.Error())
			return
		}
		out.htmlText = string(b)
	}
}

// buildMessage projects a Gmail message (fetched in "full" format) into
// the pipeline's Message shape, reducing HTML to text only when no
// text/plain part was found (spec §4.2).
func buildMessage(gm *gmail.Message, reducer *htmlReducer) *model.Message {
	msg := &model.Message{
		ID:       model.MessageID(gm.Id),
		ThreadID: model.ThreadID(gm.ThreadId),
		LabelIDs: gm.LabelIds,
		Snippet:  gm.Snippet,
	}
	if gm.Payload == nil {
		return msg
	}
	msg.Headers = parseHeaders(headerSet(gm.Payload.Headers))

	var parts bodyParts
	walkParts(gm.Payload, &parts)
	msg.Attachments = parts.attachments
	msg.PartParseErrors = parts.errs

	switch {
	case parts.plainText != "":
		msg.TextBody = parts.plainText
	case parts.htmlText != "":
		text, err := reducer.reduce(parts.htmlText)
		if err != nil {
			msg.PartParseErrors = append(msg.PartParseErrors, "html reduce: "+err.Error())
			msg.TextBody = parts.htmlText
		} else {
			msg.TextBody = text
		}
	}
	return msg
}
