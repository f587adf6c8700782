package extractor

import (
	"fmt"
	"strings"

	"github.com/projectloop/mailgrouper/pkg/domain/interfaces"
	"github.com/projectloop/mailgrouper/pkg/domain/model"
)

const extractionSystemPrompt = `You extract structured project metadata from a single email message for a
construction/trades project-tracking system. Respond with ONLY a JSON object
matching this shape, no prose, no markdown fences:

{
  "project_name": {"value": string, "confidence": number, "aliases": [string]} | null,
  "address": {"full": string, "street": string, "locality": string, "region": string, "postcode": string, "confidence": number} | null,
  "job_numbers": [{"value": string, "source": "subject"|"body"|"signature"|"attachment-filename", "confidence": number}],
  "client": {"name": string, "email": string, "phone": string, "company": string, "confidence": number},
  "project_type": string,
  "keywords": [string],
  "overall_confidence": number
}

All confidence values are in [0, 1]. Omit fields you cannot infer from the message.`

const reformatPreamble = "Your previous response did not parse as valid JSON matching the required schema. Respond again with ONLY the JSON object, strictly matching the shape, no commentary."

const compareSystemPrompt = `You judge whether two emails belong to the same construction/trades project.
Respond with ONLY a JSON object, no prose:

{
  "same_project": boolean,
  "score": number,
  "matching_indicators": {"project_name": boolean, "address": boolean, "job_number": boolean, "client": boolean, "content": boolean},
  "reason": string
}`

func extractionUserPrompt(msg *model.Message, hints interfaces.ExtractionHints) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Subject: %s\n", msg.Headers.Subject)
	fmt.Fprintf(&b, "From: %s <%s>\n", msg.Headers.From.Name, msg.Headers.From.Address)
	if len(hints.ExistingProjectNames) > 0 {
		fmt.Fprintf(&b, "Known project names for this mailbox: %s\n", strings.Join(hints.ExistingProjectNames, "; "))
	}
	if len(msg.Attachments) > 0 {
		var names []string
		for _, a := range msg.Attachments {
			names = append(names, a.Filename)
		}
		fmt.Fprintf(&b, "Attachment filenames: %s\n", strings.Join(names, ", "))
	}
	b.WriteString("Body:\n")
	b.WriteString(msg.TextBody)
	return b.String()
}

func compareUserPrompt(a, b *model.Message) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Message A subject: %s\nMessage A body:\n%s\n\n", a.Headers.Subject, truncate(a.TextBody, 2000))
	fmt.Fprintf(&sb, "Message B subject: %s\nMessage B body:\n%s\n", b.Headers.Subject, truncate(b.TextBody, 2000))
	return sb.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
