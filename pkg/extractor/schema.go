// Package extractor implements C5: the EntityExtractor seam and its
// concrete LLM-backed and deterministic vendors. Every vendor's raw model
// response is validated against the JSON schemas in this file before it is
// trusted, per spec §4.5 — malformed output fails as ErrExtractionParse
// rather than propagating a half-parsed struct downstream.
package extractor

import (
	"bytes"
	"encoding/json"

	"github.com/m-mizutani/goerr/v2"
	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/projectloop/mailgrouper/pkg/domain/interfaces"
)

const extractionSchemaJSON = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"type": "object",
	"properties": {
		"project_name": {"type": ["object", "null"], "properties": {
			"value": {"type": "string"},
			"confidence": {"type": "number"},
			"aliases": {"type": "array", "items": {"type": "string"}}
		}},
		"address": {"type": ["object", "null"], "properties": {
			"full": {"type": "string"},
			"street": {"type": "string"},
			"locality": {"type": "string"},
			"region": {"type": "string"},
			"postcode": {"type": "string"},
			"confidence": {"type": "number"}
		}},
		"job_numbers": {"type": "array", "items": {"type": "object", "properties": {
			"value": {"type": "string"},
			"source": {"type": "string", "enum": ["subject", "body", "signature", "attachment-filename"]},
			"confidence": {"type": "number"}
		}, "required": ["value", "source"]}},
		"client": {"type": "object", "properties": {
			"name": {"type": "string"},
			"email": {"type": "string"},
			"phone": {"type": "string"},
			"company": {"type": "string"},
			"confidence": {"type": "number"}
		}},
		"project_type": {"type": "string"},
		"keywords": {"type": "array", "items": {"type": "string"}},
		"overall_confidence": {"type": "number", "minimum": 0, "maximum": 1}
	},
	"required": ["overall_confidence"]
}`

const similaritySchemaJSON = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"type": "object",
	"properties": {
		"same_project": {"type": "boolean"},
		"score": {"type": "number", "minimum": 0, "maximum": 1},
		"matching_indicators": {"type": "object", "properties": {
			"project_name": {"type": "boolean"},
			"address": {"type": "boolean"},
			"job_number": {"type": "boolean"},
			"client": {"type": "boolean"},
			"content": {"type": "boolean"}
		}},
		"reason": {"type": "string"}
	},
	"required": ["same_project", "score"]
}`

var (
	extractionSchema *jsonschema.Schema
	similaritySchema *jsonschema.Schema
)

func init() {
	extractionSchema = mustCompile("extraction.json", extractionSchemaJSON)
	similaritySchema = mustCompile("similarity.json", similaritySchemaJSON)
}

func mustCompile(name, schemaJSON string) *jsonschema.Schema {
	c := jsonschema.NewCompiler()
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader([]byte(schemaJSON)))
	if err != nil {
		panic(err)
	}
	if err := c.AddResource(name, doc); err != nil {
		panic(err)
	}
	sch, err := c.Compile(name)
	if err != nil {
		panic(err)
	}
	return sch
}

// ValidateExtraction parses raw as JSON and validates it against the C5
// extraction schema. A schema or JSON failure is wrapped as
// ErrExtractionParse per spec §4.5; the caller unmarshals raw separately
// once validation passes.
func ValidateExtraction(raw []byte) error {
	return validateAgainst(extractionSchema, raw)
}

func ValidateSimilarity(raw []byte) error {
	return validateAgainst(similaritySchema, raw)
}

func validateAgainst(sch *jsonschema.Schema, raw []byte) error {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return goerr.Wrap(interfaces.ErrExtractionParse, "response is not valid JSON", goerr.V("raw", string(raw)))
	}
	if err := sch.Validate(doc); err != nil {
		return goerr.Wrap(interfaces.ErrExtractionParse, "response does not match schema", goerr.V("validation", err.Error()))
	}
	return nil
}
