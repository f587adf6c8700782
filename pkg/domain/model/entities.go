package model

// ExtractedEntities is the structured output of the EntityExtractor (C5),
// shape fixed by spec §4.5.
type ExtractedEntities struct {
	ProjectName       *ExtractedProjectName `json:"project_name,omitempty"`
	Address           *ExtractedAddress     `json:"address,omitempty"`
	JobNumbers        []ExtractedJobNumber  `json:"job_numbers,omitempty"`
	Client            ExtractedClient       `json:"client"`
	ProjectType       string                `json:"project_type,omitempty"`
	Keywords          []string              `json:"keywords,omitempty"`
	OverallConfidence float64               `json:"overall_confidence"`
}

type ExtractedProjectName struct {
	Value      string   `json:"value"`
	Confidence float64  `json:"confidence"`
	Aliases    []string `json:"aliases,omitempty"`
}

type ExtractedAddress struct {
	Full       string  `json:"full"`
	Street     string  `json:"street,omitempty"`
	Locality   string  `json:"locality,omitempty"`
	Region     string  `json:"region,omitempty"`
	Postcode   string  `json:"postcode,omitempty"`
	Confidence float64 `json:"confidence"`
}

type ExtractedJobNumber struct {
	Value      string  `json:"value"`
	Source     string  `json:"source"` // types.JobNumberSource, kept as string for direct JSON decoding
	Confidence float64 `json:"confidence"`
}

type ExtractedClient struct {
	Name       string  `json:"name,omitempty"`
	Email      string  `json:"email,omitempty"`
	Phone      string  `json:"phone,omitempty"`
	Company    string  `json:"company,omitempty"`
	Confidence float64 `json:"confidence"`
}

// MatchingIndicators records which signals contributed to a similarity
// verdict between two messages (spec §4.5 compare()).
type MatchingIndicators struct {
	ProjectName bool `json:"project_name"`
	Address     bool `json:"address"`
	JobNumber   bool `json:"job_number"`
	Client      bool `json:"client"`
	Content     bool `json:"content"`
}

// SimilarityResult is the pairwise comparison output of the extractor.
type SimilarityResult struct {
	SameProject        bool               `json:"same_project"`
	Score              float64            `json:"score"`
	MatchingIndicators MatchingIndicators `json:"matching_indicators"`
	Reason             string             `json:"reason,omitempty"`
}
