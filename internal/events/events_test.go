package events

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewGroupEvent(t *testing.T) {
	before := time.Now().UTC().Unix()
	event := NewGroupEvent(7, "IP-94", ActionCreate, "vasya092")

	_, err := uuid.Parse(event.EventID)
	assert.NoError(t, err)
	assert.Equal(t, 7, event.GroupID)
	assert.Equal(t, "IP-94", event.Name)
	assert.Equal(t, ActionCreate, event.Action)
	assert.Equal(t, "vasya092", event.Actor)
	assert.GreaterOrEqual(t, event.Timestamp, before)

	other := NewGroupEvent(7, "IP-94", ActionCreate, "vasya092")
	assert.NotEqual(t, event.EventID, other.EventID)
}

func TestDecodeGroupEvent(t *testing.T) {
	event := NewGroupEvent(3, "Third Group", ActionDelete, "fsf1467")
	payload, err := json.Marshal(event)
	require.NoError(t, err)

	decoded, err := DecodeGroupEvent(payload)
	require.NoError(t, err)
	assert.Equal(t, event, decoded)

	_, err = DecodeGroupEvent([]byte("not json"))
	assert.Error(t, err)

	_, err = DecodeGroupEvent([]byte(`{"groupId": 3}`))
	assert.EqualError(t, err, "group event is missing groupId or action")
}

func TestNopNotifier(t *testing.T) {
	var n Notifier = NopNotifier{}
	assert.NoError(t, n.Notify(NewGroupEvent(1, "First Group", ActionUpdate, "")))
	n.Close()
}
