package pubsub

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPublishWithoutTopic(t *testing.T) {
	t.Parallel()
	p := New(nil)
	_, err := p.Publish(context.Background(), "runs", map[string]string{"run_id": "x"})
	assert.ErrorContains(t, err, "not configured")
	p.Stop()
}
