package enrich

import (
	"encoding/json"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/faucetdb/schemaguard/internal/errs"
)

func mustResolve(s *jsonschema.Schema) *jsonschema.Resolved {
	r, err := s.Resolve(nil)
	if err != nil {
		panic(err)
	}
	return r
}

var reconcileSchema = mustResolve(&jsonschema.Schema{
	Type:     "object",
	Required: []string{"naming_mismatches"},
	Properties: map[string]*jsonschema.Schema{
		"naming_mismatches": {
			Type:                 "object",
			AdditionalProperties: &jsonschema.Schema{Type: "string"},
		},
		"recommendation": {
			Type:  "array",
			Items: &jsonschema.Schema{Type: "string"},
		},
	},
})

var analysisSchema = mustResolve(&jsonschema.Schema{
	Type:     "object",
	Required: []string{"validation_summary"},
	Properties: map[string]*jsonschema.Schema{
		"validation_summary": {
			Type:     "object",
			Required: []string{"status"},
			Properties: map[string]*jsonschema.Schema{
				"status":                 {Type: "string"},
				"details":                {Type: "string"},
				"high_severity_issues":   {Type: "integer"},
				"medium_severity_issues": {Type: "integer"},
				"low_severity_issues":    {Type: "integer"},
			},
		},
		"triage_plan": {Type: "array"},
		"append_upsert_suggestion": {
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"strategy": {Type: "string"},
				"details":  {Type: "string"},
			},
		},
		"schema_drift": {
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"differences": {Type: "array"},
				"analysis":    {Type: "string"},
			},
		},
	},
})

var rulesSchema = mustResolve(&jsonschema.Schema{
	Type: "array",
	Items: &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"column":    {Type: "string"},
			"rule":      {Type: "string"},
			"rationale": {Type: "string"},
		},
	},
})

// stripFences removes a surrounding Markdown code fence, with or without a
// language tag.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	} else {
		s = strings.TrimPrefix(s, "```")
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// decode parses an assistant answer, validates it against schema and
// unmarshals it into out.
func decode(content string, schema *jsonschema.Resolved, out interface{}) error {
	body := stripFences(content)

	var instance interface{}
	if err := json.Unmarshal([]byte(body), &instance); err != nil {
		return errs.Wrap(err, "response is not JSON")
	}
	if err := schema.Validate(instance); err != nil {
		return errs.Wrap(err, "response does not match the expected shape")
	}
	if err := json.Unmarshal([]byte(body), out); err != nil {
		return errs.Wrap(err, "decode response")
	}
	return nil
}
