// Package tp implements the topic-addressed layer over rmp: messages are
// tagged with a channel name and a reader-generation, and a Reader
// dispatches each incoming message to every ChannelReader whose channel
// matches by plain string prefix (see TopicMatches).
package tp

import (
	"encoding/binary"
	"errors"
	"strings"
)

const genFieldSize = 8  // uint64 reader generation
const flagFieldSize = 1 // postToDescendants byte

// ErrMalformedMessage is returned when a buffer is too short to contain a
// valid topic message header.
var ErrMalformedMessage = errors.New("tp: malformed topic message")

// Message is a decoded topic-addressed payload.
type Message struct {
	ReaderGen         uint64
	PostToDescendants bool
	Channel           string
	Payload           []byte
}

// SizeOf returns the on-the-wire size of a message with the given channel
// and payload lengths.
func SizeOf(channel string, payloadLen int) int {
	return genFieldSize + flagFieldSize + len(channel) + 1 + payloadLen
}

// Serialize writes msg into buf using the wire layout
// [u64 readerGen][u8 postToDescendants][channel NUL-terminated][payload].
// buf must be at least SizeOf(channel, len(payload)) bytes.
func Serialize(buf []byte, readerGen uint64, postToDescendants bool, channel string, payload []byte) int {
	binary.LittleEndian.PutUint64(buf[0:8], readerGen)
	if postToDescendants {
		buf[8] = 1
	} else {
		buf[8] = 0
	}
	n := 9
	n += copy(buf[n:], channel)
	buf[n] = 0
	n++
	n += copy(buf[n:], payload)
	return n
}

// Deserialize decodes buf into a Message. The reader-generation gate is
// applied per ChannelReader, not here, since one wire message can be
// destined for several subscribers created at different generations.
func Deserialize(buf []byte) (Message, error) {
	if len(buf) < genFieldSize+flagFieldSize+1 {
		return Message{}, ErrMalformedMessage
	}
	gen := binary.LittleEndian.Uint64(buf[0:8])
	postToDescendants := buf[8] != 0

	nameStart := 9
	nulAt := -1
	for i := nameStart; i < len(buf); i++ {
		if buf[i] == 0 {
			nulAt = i
			break
		}
	}
	if nulAt == -1 {
		return Message{}, ErrMalformedMessage
	}
	channel := string(buf[nameStart:nulAt])
	payload := buf[nulAt+1:]

	return Message{
		ReaderGen:         gen,
		PostToDescendants: postToDescendants,
		Channel:           channel,
		Payload:           payload,
	}, nil
}

// TopicMatches reports whether a message published on publishedChannel
// (with the given postToDescendants flag) should be delivered to a
// ChannelReader subscribed to subscriberChannel with handleDescendants.
//
// Matching is plain prefix, not path-segment-aware: the subscriber matches
// exactly, or — if either side opted in to descendant delivery — matches
// any channel name that has the other as a string prefix, regardless of
// where that prefix ends. A subscriber on "c" with handleDescendants set
// is matched by a publish on "ch", not just "c/anything".
func TopicMatches(publishedChannel string, postToDescendants bool, subscriberChannel string, handleDescendants bool) bool {
	if publishedChannel == subscriberChannel {
		return true
	}
	if len(publishedChannel) < len(subscriberChannel) {
		// subscriber channel is longer: only matches if it extends the
		// published channel and the writer opted descendants in.
		return postToDescendants && strings.HasPrefix(subscriberChannel, publishedChannel)
	}
	// published channel is longer: only matches if it extends the
	// subscriber channel and the subscriber opted into descendants.
	return handleDescendants && strings.HasPrefix(publishedChannel, subscriberChannel)
}
