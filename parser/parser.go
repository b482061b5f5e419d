package parser

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"incident-dispatch/models"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ClassificationSchemaName is the schema name sent with structured-output requests.
const ClassificationSchemaName = "emergency_classification"

// ClassificationSchema returns the strict schema for a Classification: five required
// fields, no additional properties, closed enums for level and trigger. Confidence
// bounds are checked locally because strict structured-output modes do not accept
// numeric range keywords.
func ClassificationSchema() map[string]any {
	levels := make([]string, 0, len(models.Levels))
	for _, l := range models.Levels {
		levels = append(levels, string(l))
	}
	triggers := make([]string, 0, len(models.Triggers))
	for _, t := range models.Triggers {
		triggers = append(triggers, string(t))
	}

	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"level": map[string]any{
				"type":        "string",
				"description": "EMERGENCY, NON_EMERGENCY, or NO_CONCERN",
				"enum":        levels,
			},
			"confidence": map[string]any{
				"type":        "number",
				"description": "Confidence level from 0.0 to 1.0",
			},
			"reasoning": map[string]any{
				"type":        "string",
				"description": "Explanation of why the classification was chosen",
			},
			"recommended_action": map[string]any{
				"type":        "string",
				"description": "Advice for user or system on next steps",
			},
			"trigger": map[string]any{
				"type":        "string",
				"description": "Which service to trigger: '911', '311', or 'NONE'",
				"enum":        triggers,
			},
		},
		"required":             []string{"level", "confidence", "reasoning", "recommended_action", "trigger"},
		"additionalProperties": false,
	}
}

var compiledSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	b, err := json.Marshal(ClassificationSchema())
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("classification.json", bytes.NewReader(b)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	return compiler.Compile("classification.json")
})

// ExtractJSONFromMarkdown extracts JSON from markdown code blocks
func ExtractJSONFromMarkdown(response string) string {
	// Look for JSON code blocks with ``` markers
	const marker = "```"

	startIdx := strings.Index(response, marker)
	if startIdx == -1 {
		// No code block found, try to find JSON object directly
		startIdx = strings.Index(response, "{")
		if startIdx == -1 {
			return response
		}
		endIdx := strings.LastIndex(response, "}")
		if endIdx == -1 || endIdx < startIdx {
			return response
		}
		return strings.TrimSpace(response[startIdx : endIdx+1])
	}

	// Find the end of the first code block
	endIdx := strings.Index(response[startIdx+len(marker):], marker)
	if endIdx == -1 {
		return response
	}
	endIdx += startIdx + len(marker)

	content := response[startIdx+len(marker) : endIdx]

	// Remove the language identifier if present (e.g., "json")
	lines := strings.Split(strings.TrimSpace(content), "\n")
	if len(lines) > 0 && (strings.TrimSpace(lines[0]) == "json" || strings.TrimSpace(lines[0]) == "") {
		content = strings.Join(lines[1:], "\n")
	}

	return strings.TrimSpace(content)
}

// ParseClassification validates a model reply against the classification schema,
// the confidence range and the level/trigger pairing.
func ParseClassification(response string) (*models.Classification, error) {
	// a bare JSON reply is taken as-is; fences inside its strings are content
	jsonContent := strings.TrimSpace(response)
	if !json.Valid([]byte(jsonContent)) {
		jsonContent = ExtractJSONFromMarkdown(jsonContent)
	}
	if jsonContent == "" {
		return nil, errors.New("empty response")
	}

	schema, err := compiledSchema()
	if err != nil {
		return nil, err
	}

	var raw any
	if err := json.Unmarshal([]byte(jsonContent), &raw); err != nil {
		return nil, errors.New("failed to parse JSON response: " + err.Error())
	}
	if err := schema.Validate(raw); err != nil {
		return nil, fmt.Errorf("response does not match schema: %w", err)
	}

	var result models.Classification
	if err := json.Unmarshal([]byte(jsonContent), &result); err != nil {
		return nil, errors.New("failed to parse JSON response: " + err.Error())
	}
	if err := result.Validate(); err != nil {
		return nil, err
	}
	return &result, nil
}
