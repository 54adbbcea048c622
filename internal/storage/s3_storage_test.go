package storage

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestObjectKey(t *testing.T) {
	now := time.Date(2026, 3, 9, 12, 0, 0, 0, time.UTC)

	key := ObjectKey("exports/7", "../closed-tabs.xlsx", now)

	assert.True(t, strings.HasPrefix(key, "exports/7/2026/03/"), key)
	assert.True(t, strings.HasSuffix(key, "-closed-tabs.xlsx"), key)
	assert.NotEqual(t, key, ObjectKey("exports/7", "closed-tabs.xlsx", now))
}
