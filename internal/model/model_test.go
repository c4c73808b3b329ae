package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimestamp_EncodesAsMicros(t *testing.T) {
	ts := At(time.Date(2024, 5, 1, 12, 0, 0, 1500, time.UTC))

	b, err := json.Marshal(ts)
	require.NoError(t, err)
	assert.Equal(t, "1714564800000001", string(b))

	var back Timestamp
	require.NoError(t, json.Unmarshal(b, &back))
	assert.True(t, back.Equal(ts.Time))
}

func TestTimestamp_ZeroRoundTrip(t *testing.T) {
	b, err := json.Marshal(Timestamp{})
	require.NoError(t, err)
	assert.Equal(t, "0", string(b))

	var back Timestamp
	require.NoError(t, json.Unmarshal(b, &back))
	assert.True(t, back.IsZero())
}

func TestTimestamp_AcceptsFloatEncoding(t *testing.T) {
	var ts Timestamp
	require.NoError(t, json.Unmarshal([]byte("1.714564800000001e+15"), &ts))
	assert.Equal(t, int64(1714564800000001), ts.Micros())
}

func TestConversation_OtherEmail(t *testing.T) {
	c := Conversation{ParticipantsEmails: []string{"a@x.com", "b@x.com"}}

	assert.Equal(t, "b@x.com", c.OtherEmail("A@x.com"))
	assert.Equal(t, "a@x.com", c.OtherEmail("b@x.com"))
	assert.Equal(t, "", c.OtherEmail("c@x.com"))
}

func TestConversation_HasEmailIgnoresCase(t *testing.T) {
	c := Conversation{ParticipantsEmails: []string{"a@x.com", "b@x.com"}}

	assert.True(t, c.HasEmail("B@X.COM"))
	assert.False(t, c.HasEmail("c@x.com"))
}

func TestMessagesCollection(t *testing.T) {
	assert.Equal(t, "conversations/c1/messages", MessagesCollection("c1"))
}
