package stubllm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"incident-dispatch/llm"
	"incident-dispatch/models"
)

// Client is a deterministic, no-network LLM stub intended for CI and local end-to-end tests.
// It classifies by keyword so the whole evaluate/confirm flow can run offline.
type Client struct{}

func NewClient() *Client { return &Client{} }

func (c *Client) SourceName() string { return "Stub" }

var emergencyKeywords = []string{
	"fire", "smoke", "flame", "explosion", "gun", "shooting", "weapon", "stabbing", "assault",
	"bleeding", "unconscious", "not breathing", "heart attack", "stroke", "overdose",
	"crash", "collision", "drowning", "gas leak", "trapped", "collapsed",
}

var municipalKeywords = []string{
	"graffiti", "pothole", "broken", "damaged", "damage", "litter", "trash", "garbage",
	"streetlight", "street light", "fence", "sidewalk", "dumping", "overflowing",
	"abandoned", "vandal", "leak", "fallen tree", "blocked drain",
}

// guidanceMarker separates the incident facts from retrieved guidance in classification prompts.
const guidanceMarker = "\nGuidance:"

func (c *Client) CompleteJSON(_ context.Context, req llm.StructuredRequest) (string, error) {
	facts := req.Prompt
	if i := strings.Index(facts, guidanceMarker); i >= 0 {
		facts = facts[:i]
	}
	facts = strings.ToLower(facts)

	level, hit := models.LevelNoConcern, ""
	if kw := firstMatch(facts, emergencyKeywords); kw != "" {
		level, hit = models.LevelEmergency, kw
	} else if kw := firstMatch(facts, municipalKeywords); kw != "" {
		level, hit = models.LevelNonEmergency, kw
	}

	var reasoning, action string
	confidence := 0.6
	switch level {
	case models.LevelEmergency:
		reasoning = fmt.Sprintf("Stub classifier matched emergency keyword %q.", hit)
		action = "Contact emergency services."
		confidence = 0.9
	case models.LevelNonEmergency:
		reasoning = fmt.Sprintf("Stub classifier matched municipal keyword %q.", hit)
		action = "File a 311 service request."
		confidence = 0.75
	default:
		reasoning = "Stub classifier found no emergency or municipal keywords."
		action = "No action needed."
	}

	b, err := json.Marshal(models.NewClassification(level, confidence, reasoning, action))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (c *Client) DescribeImage(_ context.Context, imageData []byte, _ string) (string, error) {
	sum := sha256.Sum256(imageData)
	return fmt.Sprintf("Stubbed description of a %d-byte image (%s).", len(imageData), hex.EncodeToString(sum[:4])), nil
}

func firstMatch(s string, keywords []string) string {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return kw
		}
	}
	return ""
}
