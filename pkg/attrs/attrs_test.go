package attrs

import (
	"testing"

	"github.com/stretchr/testify/assert"

	id "pollworker/pkg/domain"
)

func TestExtractString(t *testing.T) {
	appID := id.NewApplicationID()
	attributes := []any{"application_id", appID, "status", "approved", 42, "ignored", "count", 3}

	assert.Equal(t, appID.String(), ExtractString(attributes, "application_id"))
	assert.Equal(t, "approved", ExtractString(attributes, "status"))
	assert.Empty(t, ExtractString(attributes, "count"))
	assert.Empty(t, ExtractString(attributes, "missing"))
	assert.Empty(t, ExtractString([]any{"dangling"}, "dangling"))
}
