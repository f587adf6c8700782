// Package gemini is the m-mizutani/gollem-backed EntityExtractor vendor
// (C5), grounded on the teacher's pkg/usecase/agent.go use of gollem.New +
// Agent.Execute for a single structured-response turn (no tools, no
// multi-turn session — the extractor is stateless between calls per spec
// §4.5).
package gemini

import (
	"context"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gollem"

	"github.com/projectloop/mailgrouper/pkg/domain/interfaces"
	"github.com/projectloop/mailgrouper/pkg/domain/model"
	"github.com/projectloop/mailgrouper/pkg/extractor"
)

type Extractor struct {
	llm gollem.LLMClient
}

var _ interfaces.EntityExtractor = &Extractor{}

func New(llm gollem.LLMClient) *Extractor {
	return &Extractor{llm: llm}
}

func (e *Extractor) Extract(ctx context.Context, msg *model.Message, hints interfaces.ExtractionHints) (*model.ExtractedEntities, error) {
	raw, err := extractor.RunExtraction(ctx, e.call, msg, hints)
	if err != nil {
		return nil, err
	}
	var out model.ExtractedEntities
	if err := extractor.Decode(raw, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (e *Extractor) Compare(ctx context.Context, a, b *model.Message) (*model.SimilarityResult, error) {
	raw, err := extractor.RunCompare(ctx, e.call, a, b)
	if err != nil {
		return nil, err
	}
	var out model.SimilarityResult
	if err := extractor.Decode(raw, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// call adapts a single gollem.Agent turn to extractor.ModelCaller. A fresh
// Agent per call keeps the extractor stateless between invocations.
func (e *Extractor) call(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	agent := gollem.New(e.llm, gollem.WithSystemPrompt(systemPrompt))
	resp, err := agent.Execute(ctx, gollem.Text(userPrompt))
	if err != nil {
		return "", goerr.Wrap(err, "gemini extraction call failed")
	}
	return strings.TrimSpace(strings.Join(resp.Texts, "\n")), nil
}
