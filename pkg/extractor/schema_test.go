package extractor

import (
	"testing"

	"github.com/m-mizutani/gt"
)

func TestValidateExtractionAcceptsWellFormed(t *testing.T) {
	raw := []byte(`{"overall_confidence": 0.7, "client": {"confidence": 0.5}}`)
	gt.NoError(t, ValidateExtraction(raw))
}

func TestValidateExtractionRejectsOutOfRangeConfidence(t *testing.T) {
	raw := []byte(`{"overall_confidence": 1.5, "client": {}}`)
	gt.Error(t, ValidateExtraction(raw))
}

func TestValidateExtractionRejectsNonJSON(t *testing.T) {
	raw := []byte("not json")
	gt.Error(t, ValidateExtraction(raw))
}

func TestValidateSimilarityRequiresScoreAndSameProject(t *testing.T) {
	gt.NoError(t, ValidateSimilarity([]byte(`{"same_project": true, "score": 0.9}`)))
	gt.Error(t, ValidateSimilarity([]byte(`{"score": 0.9}`)))
}
