package kafka

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/the-data-sherpa/vanguard-sub000/internal/syncer"
)

func TestSerializeToMessage(t *testing.T) {
	at := time.Date(2026, 3, 14, 10, 7, 0, 0, time.UTC)
	ev := syncer.SyncEvent{
		Kind:     "incidents",
		TenantID: "tenant-a",
		At:       at,
		Created:  3,
		Updated:  1,
		Skipped:  12,
	}

	msg, err := serializeToMessage(ev)
	require.NoError(t, err)

	assert.Equal(t, []byte("tenant-a"), msg.Key)
	assert.Contains(t, string(msg.Value), `"kind":"incidents"`)
	assert.Contains(t, string(msg.Value), `"created":3`)
	require.Len(t, msg.Headers, 2)
	assert.Equal(t, "kind", msg.Headers[0].Key)
	assert.Equal(t, []byte("incidents"), msg.Headers[0].Value)
	assert.Equal(t, "synced_at", msg.Headers[1].Key)
	assert.Equal(t, []byte(at.Format(time.RFC3339)), msg.Headers[1].Value)
}

func TestSerializeToMessage_OmitsEmptyWeatherFields(t *testing.T) {
	ev := syncer.SyncEvent{Kind: "weather", TenantID: "tenant-b", At: time.Now()}

	msg, err := serializeToMessage(ev)
	require.NoError(t, err)

	assert.NotContains(t, string(msg.Value), "expired")
	assert.NotContains(t, string(msg.Value), "posted")
	assert.NotContains(t, string(msg.Value), "errors")
}
