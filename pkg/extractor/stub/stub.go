// Package stub is a deterministic, non-LLM EntityExtractor for tests and
// for running the pipeline without a configured model vendor.
package stub

import (
	"context"
	"regexp"
	"strings"

	"github.com/projectloop/mailgrouper/pkg/domain/interfaces"
	"github.com/projectloop/mailgrouper/pkg/domain/model"
)

type Extractor struct{}

var _ interfaces.EntityExtractor = &Extractor{}

func New() *Extractor { return &Extractor{} }

var jobNumberRe = regexp.MustCompile(`\b(?:JOB|JN|PRJ)[-#]?\s?(\d{3,8})\b`)

// Extract derives entities from surface features only: subject line as a
// candidate project name, a regex over subject+body for job numbers, and
// the sender as the client. Confidence is fixed and low, reflecting that
// no semantic understanding is applied.
func (e *Extractor) Extract(_ context.Context, msg *model.Message, _ interfaces.ExtractionHints) (*model.ExtractedEntities, error) {
	out := &model.ExtractedEntities{
		Client: model.ExtractedClient{
			Name:       msg.Headers.From.Name,
			Email:      msg.Headers.From.Address,
			Confidence: 0.5,
		},
		OverallConfidence: 0.35,
	}

	if subject := strings.TrimSpace(msg.Headers.Subject); subject != "" {
		out.ProjectName = &model.ExtractedProjectName{
			Value:      normalizeSubject(subject),
			Confidence: 0.4,
		}
	}

	haystack := msg.Headers.Subject + "\n" + msg.TextBody
	for _, match := range jobNumberRe.FindAllStringSubmatch(haystack, -1) {
		out.JobNumbers = append(out.JobNumbers, model.ExtractedJobNumber{
			Value:      match[1],
			Source:     "subject",
			Confidence: 0.5,
		})
	}

	return out, nil
}

func (e *Extractor) Compare(_ context.Context, a, b *model.Message) (*model.SimilarityResult, error) {
	sameSubject := normalizeSubject(a.Headers.Subject) == normalizeSubject(b.Headers.Subject)
	score := 0.2
	if sameSubject {
		score = 0.7
	}
	return &model.SimilarityResult{
		SameProject: sameSubject,
		Score:       score,
		MatchingIndicators: model.MatchingIndicators{
			ProjectName: sameSubject,
		},
		Reason: "subject-token comparison (stub extractor, no model call)",
	}, nil
}

var replyPrefixRe = regexp.MustCompile(`(?i)^(re|fwd?):\s*`)

func normalizeSubject(subject string) string {
	s := replyPrefixRe.ReplaceAllString(strings.TrimSpace(subject), "")
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
