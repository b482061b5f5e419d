package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectMimeType(t *testing.T) {
	assert.Equal(t, "image/png", DetectMimeType([]byte("\x89PNG\r\n\x1a\n0000")))
	assert.Equal(t, "image/jpeg", DetectMimeType([]byte{0xff, 0xd8, 0xff, 0xe0}))
	assert.Equal(t, "image/jpeg", DetectMimeType([]byte("plain text")))
	assert.Equal(t, "image/jpeg", DetectMimeType(nil))
}
