package interfaces

import (
	"context"

	"github.com/projectloop/mailgrouper/pkg/domain/model"
)

// ExtractionHints carries context the resolver already knows about, passed
// in explicitly since the extractor is stateless between calls (spec §4.5).
type ExtractionHints struct {
	ExistingProjectNames []string
}

// EntityExtractor is the single seam the resolver depends on for anything
// LLM-backed (spec §1, §9 "dynamic dispatch over LLM vendors"). Concrete
// vendors live in pkg/extractor; the resolver and queue workers only ever
// see this interface.
type EntityExtractor interface {
	// Extract turns a parsed message into structured entities. Implementations
	// MUST return ErrExtractionParse (wrapped) if the underlying model's
	// response cannot be validated against the schema in spec §4.5.
	Extract(ctx context.Context, msg *model.Message, hints ExtractionHints) (*model.ExtractedEntities, error)

	// Compare scores pairwise similarity between two messages (spec §4.5
	// compare()). Used sparingly by the resolver (signal 6, ≤3 sampled
	// messages per candidate).
	Compare(ctx context.Context, a, b *model.Message) (*model.SimilarityResult, error)
}
