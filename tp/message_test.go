package tp

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSerializeDeserializeRoundTrip(t *testing.T) {
	channel := "orders/created"
	payload := []byte("payload-bytes")
	buf := make([]byte, SizeOf(channel, len(payload)))
	n := Serialize(buf, 7, true, channel, payload)
	require.Equal(t, len(buf), n)

	msg, err := Deserialize(buf)
	require.NoError(t, err)
	require.Equal(t, uint64(7), msg.ReaderGen)
	require.True(t, msg.PostToDescendants)
	require.Equal(t, channel, msg.Channel)
	require.Equal(t, payload, msg.Payload)
}

func TestDeserializeRejectsTruncated(t *testing.T) {
	_, err := Deserialize([]byte{1, 2, 3})
	require.ErrorIs(t, err, ErrMalformedMessage)

	buf := make([]byte, SizeOf("x", 0))
	Serialize(buf, 1, false, "x", nil)
	_, err = Deserialize(buf[:len(buf)-2]) // drop the NUL terminator too
	require.ErrorIs(t, err, ErrMalformedMessage)
}

func TestTopicMatchesExact(t *testing.T) {
	require.True(t, TopicMatches("orders/created", false, "orders/created", false))
	require.False(t, TopicMatches("orders/created", false, "orders/updated", false))
}

func TestTopicMatchesDescendants(t *testing.T) {
	// Published on a parent, writer opted subscribers of children in.
	require.True(t, TopicMatches("orders", true, "orders/created", false))
	require.False(t, TopicMatches("orders", false, "orders/created", false))

	// Published on a child, subscriber opted into hearing descendants.
	require.True(t, TopicMatches("orders/created", false, "orders", true))
	require.False(t, TopicMatches("orders/created", false, "orders", false))
}

func TestTopicMatchesPlainPrefixNoSeparatorRequired(t *testing.T) {
	// "orders2" has "orders" as a plain string prefix; descendant delivery
	// does not require a path-separator boundary at the prefix end.
	require.True(t, TopicMatches("orders", true, "orders2", false))
	require.True(t, TopicMatches("orders2", false, "orders", true))
}

func TestTopicMatchesShortPrefixSubscriber(t *testing.T) {
	// A subscriber on "c" with handleDescendants set must be invoked for a
	// message published on "ch".
	require.True(t, TopicMatches("ch", false, "c", true))
	require.False(t, TopicMatches("ch", false, "c", false))
}
