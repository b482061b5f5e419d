package parser

import (
	"fmt"
	"testing"

	"incident-dispatch/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseClassification(t *testing.T) {
	tests := []struct {
		name     string
		response string
		wantErr  bool
		expected *models.Classification
	}{
		{
			name: "valid emergency",
			response: `{
				"level": "EMERGENCY",
				"confidence": 0.92,
				"reasoning": "Visible flames and smoke from a residential building.",
				"recommended_action": "Call 911 immediately.",
				"trigger": "911"
			}`,
			expected: &models.Classification{
				Level:             models.LevelEmergency,
				Confidence:        0.92,
				Reasoning:         "Visible flames and smoke from a residential building.",
				RecommendedAction: "Call 911 immediately.",
				Trigger:           models.Trigger911,
			},
		},
		{
			name:     "valid json in markdown fence",
			response: "```json\n{\"level\":\"NON_EMERGENCY\",\"confidence\":0.7,\"reasoning\":\"Graffiti on a wall.\",\"recommended_action\":\"File a 311 report.\",\"trigger\":\"311\"}\n```",
			expected: &models.Classification{
				Level:             models.LevelNonEmergency,
				Confidence:        0.7,
				Reasoning:         "Graffiti on a wall.",
				RecommendedAction: "File a 311 report.",
				Trigger:           models.Trigger311,
			},
		},
		{
			name:     "valid json with surrounding prose",
			response: `Here you go: {"level":"NO_CONCERN","confidence":1,"reasoning":"A sunny park.","recommended_action":"None.","trigger":"NONE"} Thanks.`,
			expected: &models.Classification{
				Level:             models.LevelNoConcern,
				Confidence:        1,
				Reasoning:         "A sunny park.",
				RecommendedAction: "None.",
				Trigger:           models.TriggerNone,
			},
		},
		{
			name:     "boundary confidence zero",
			response: `{"level":"NO_CONCERN","confidence":0,"reasoning":"r","recommended_action":"a","trigger":"NONE"}`,
			expected: &models.Classification{Level: models.LevelNoConcern, Reasoning: "r", RecommendedAction: "a", Trigger: models.TriggerNone},
		},
		{name: "invalid JSON", response: `{"level": "EMERGENCY"`, wantErr: true},
		{name: "empty", response: "   ", wantErr: true},
		{name: "missing field", response: `{"level":"EMERGENCY","confidence":0.9,"reasoning":"r","trigger":"911"}`, wantErr: true},
		{name: "additional property", response: `{"level":"EMERGENCY","confidence":0.9,"reasoning":"r","recommended_action":"a","trigger":"911","extra":1}`, wantErr: true},
		{name: "unknown level", response: `{"level":"URGENT","confidence":0.9,"reasoning":"r","recommended_action":"a","trigger":"911"}`, wantErr: true},
		{name: "unknown trigger", response: `{"level":"EMERGENCY","confidence":0.9,"reasoning":"r","recommended_action":"a","trigger":"112"}`, wantErr: true},
		{name: "confidence as string", response: `{"level":"EMERGENCY","confidence":"high","reasoning":"r","recommended_action":"a","trigger":"911"}`, wantErr: true},
		{name: "confidence above one", response: `{"level":"EMERGENCY","confidence":1.2,"reasoning":"r","recommended_action":"a","trigger":"911"}`, wantErr: true},
		{name: "confidence below zero", response: `{"level":"EMERGENCY","confidence":-0.1,"reasoning":"r","recommended_action":"a","trigger":"911"}`, wantErr: true},
		{name: "mismatched trigger", response: `{"level":"EMERGENCY","confidence":0.9,"reasoning":"r","recommended_action":"a","trigger":"311"}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseClassification(tt.response)
			if tt.wantErr {
				assert.Error(t, err)
				assert.Nil(t, got)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestParseClassificationTriggerIsFunctionOfLevel(t *testing.T) {
	for _, level := range models.Levels {
		for _, trigger := range models.Triggers {
			response := fmt.Sprintf(`{"level":%q,"confidence":0.5,"reasoning":"r","recommended_action":"a","trigger":%q}`, level, trigger)
			_, err := ParseClassification(response)
			if trigger == level.Trigger() {
				assert.NoError(t, err, "%s/%s", level, trigger)
			} else {
				assert.Error(t, err, "%s/%s", level, trigger)
			}
		}
	}
}

func TestParseClassificationFenceInsideString(t *testing.T) {
	reply := `{"level":"NON_EMERGENCY","confidence":0.8,"reasoning":"Tag reads ` + "```X```" + ` on the wall","recommended_action":"Report it","trigger":"311"}`

	c, err := ParseClassification(reply)
	require.NoError(t, err)
	assert.Equal(t, models.LevelNonEmergency, c.Level)
	assert.Equal(t, "Tag reads ```X``` on the wall", c.Reasoning)

	fenced, err := ParseClassification("```json\n{\"level\":\"NO_CONCERN\",\"confidence\":0.6,\"reasoning\":\"ok\",\"recommended_action\":\"none\",\"trigger\":\"NONE\"}\n```")
	require.NoError(t, err, "fenced replies still parse")
	assert.Equal(t, models.LevelNoConcern, fenced.Level)
}

func TestExtractJSONFromMarkdown(t *testing.T) {
	assert.Equal(t, `{"a":1}`, ExtractJSONFromMarkdown("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, ExtractJSONFromMarkdown("```\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, ExtractJSONFromMarkdown(`noise {"a":1} noise`))
	assert.Equal(t, "no json here", ExtractJSONFromMarkdown("no json here"))
}

func TestClassificationSchemaShape(t *testing.T) {
	s := ClassificationSchema()
	assert.Equal(t, false, s["additionalProperties"])
	assert.ElementsMatch(t, []string{"level", "confidence", "reasoning", "recommended_action", "trigger"}, s["required"])
	level := s["properties"].(map[string]any)["level"].(map[string]any)
	assert.Equal(t, []string{"EMERGENCY", "NON_EMERGENCY", "NO_CONCERN"}, level["enum"])
}
