package gcs

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewValidatesArguments(t *testing.T) {
	t.Parallel()
	_, err := New(nil, Config{Bucket: "archive"})
	assert.ErrorContains(t, err, "storage client is required")
}
