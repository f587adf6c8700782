package extractor

import (
	"context"
	"encoding/json"

	"github.com/m-mizutani/goerr/v2"

	"github.com/projectloop/mailgrouper/pkg/domain/interfaces"
	"github.com/projectloop/mailgrouper/pkg/domain/model"
)

// ModelCaller is the shape every vendor adapts its SDK client to: one
// system prompt, one user prompt, one text response. Kept deliberately
// narrow so the retry-on-parse-failure logic in this file is vendor-free.
type ModelCaller func(ctx context.Context, systemPrompt, userPrompt string) (string, error)

const maxReformatRetries = 2

// RunExtraction drives the Extract() call through up to maxReformatRetries
// extra attempts with a stricter reformatting preamble on parse failure,
// per spec §4.5. The final raw response is returned only once it validates
// against the extraction schema.
func RunExtraction(ctx context.Context, call ModelCaller, msg *model.Message, hints interfaces.ExtractionHints) ([]byte, error) {
	system := extractionSystemPrompt
	user := extractionUserPrompt(msg, hints)

	var lastErr error
	for attempt := 0; attempt <= maxReformatRetries; attempt++ {
		text, err := call(ctx, system, user)
		if err != nil {
			return nil, goerr.Wrap(err, "extraction model call failed")
		}
		raw := []byte(text)
		if err := ValidateExtraction(raw); err != nil {
			lastErr = err
			system = extractionSystemPrompt + "\n\n" + reformatPreamble
			continue
		}
		return raw, nil
	}
	return nil, goerr.Wrap(lastErr, "extraction failed after retries", goerr.V("attempts", maxReformatRetries+1))
}

// RunCompare drives the Compare() call with the same retry policy.
func RunCompare(ctx context.Context, call ModelCaller, a, b *model.Message) ([]byte, error) {
	system := compareSystemPrompt
	user := compareUserPrompt(a, b)

	var lastErr error
	for attempt := 0; attempt <= maxReformatRetries; attempt++ {
		text, err := call(ctx, system, user)
		if err != nil {
			return nil, goerr.Wrap(err, "compare model call failed")
		}
		raw := []byte(text)
		if err := ValidateSimilarity(raw); err != nil {
			lastErr = err
			system = compareSystemPrompt + "\n\n" + reformatPreamble
			continue
		}
		return raw, nil
	}
	return nil, goerr.Wrap(lastErr, "compare failed after retries", goerr.V("attempts", maxReformatRetries+1))
}

// Decode unmarshals validated raw JSON into dst. Callers only reach this
// after RunExtraction/RunCompare already confirmed raw matches the schema.
func Decode(raw []byte, dst any) error {
	if err := json.Unmarshal(raw, dst); err != nil {
		return goerr.Wrap(interfaces.ErrExtractionParse, "failed to decode validated response")
	}
	return nil
}
