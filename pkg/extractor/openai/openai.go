// Package openai is the second EntityExtractor vendor (C5), backed
// directly by github.com/sashabaranov/go-openai rather than through
// gollem, giving the pipeline a vendor that does not depend on the Google
// Cloud project configuration the gemini vendor requires.
package openai

import (
	"context"

	openai "github.com/sashabaranov/go-openai"

	"github.com/m-mizutani/goerr/v2"

	"github.com/projectloop/mailgrouper/pkg/domain/interfaces"
	"github.com/projectloop/mailgrouper/pkg/domain/model"
	"github.com/projectloop/mailgrouper/pkg/extractor"
)

type Extractor struct {
	client *openai.Client
	model  string
}

var _ interfaces.EntityExtractor = &Extractor{}

// New builds an Extractor for the given API key. model defaults to
// gpt-4o-mini when empty.
func New(apiKey, model string) *Extractor {
	if model == "" {
		model = openai.GPT4oMini
	}
	return &Extractor{client: openai.NewClient(apiKey), model: model}
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

func (e *Extractor) call(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	resp, err := e.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: e.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
	})
	if err != nil {
		return "", goerr.Wrap(err, "openai extraction call failed")
	}
	if len(resp.Choices) == 0 {
		return "", goerr.Wrap(interfaces.ErrExtractionParse, "openai returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}
