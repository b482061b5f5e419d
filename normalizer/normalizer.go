package normalizer

import (
	"strings"
	"unicode/utf8"

	"incident-dispatch/apperrors"
	"incident-dispatch/models"

	"golang.org/x/text/unicode/norm"
)

// Limits bounds the evidence accepted in one submission. Zero means unlimited.
type Limits struct {
	MaxImages     int
	MaxImageBytes int
}

// Normalizer turns raw request fields into an IncidentSubmission.
type Normalizer struct {
	limits Limits
}

func New(limits Limits) *Normalizer {
	return &Normalizer{limits: limits}
}

// Normalize validates and canonicalizes one intake. Image buffers are kept as-is,
// empty parts are dropped and the order of the remaining ones is preserved.
func (n *Normalizer) Normalize(text, location string, images [][]byte) (*models.IncidentSubmission, error) {
	if !utf8.ValidString(text) {
		return nil, apperrors.Validation("text must be valid UTF-8")
	}
	if !utf8.ValidString(location) {
		return nil, apperrors.Validation("location must be valid UTF-8")
	}

	text = clean(text)
	if text == "" {
		return nil, apperrors.Validation("text is required")
	}

	kept := make([][]byte, 0, len(images))
	for i, img := range images {
		if len(img) == 0 {
			continue
		}
		if n.limits.MaxImageBytes > 0 && len(img) > n.limits.MaxImageBytes {
			return nil, apperrors.Validation("image %d is %d bytes, limit is %d", i, len(img), n.limits.MaxImageBytes)
		}
		kept = append(kept, img)
	}
	if n.limits.MaxImages > 0 && len(kept) > n.limits.MaxImages {
		return nil, apperrors.Validation("%d images submitted, limit is %d", len(kept), n.limits.MaxImages)
	}

	return &models.IncidentSubmission{
		Text:     text,
		Location: clean(location),
		Images:   kept,
	}, nil
}

func clean(s string) string {
	return strings.TrimSpace(norm.NFC.String(s))
}
