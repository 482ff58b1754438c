package tp

// Handler receives every message dispatched to a ChannelReader: the
// channel the message was actually published on (which may be a
// descendant or ancestor of the subscription channel, depending on the
// postToDescendants/handleDescendants flags) and its payload.
type Handler func(channel string, payload []byte)

// ChannelReader is one topic subscription within a Reader. It is created
// and destroyed through Reader.CreateChannelReader /
// Reader.CloseChannelReader, never directly.
type ChannelReader struct {
	name              string
	handler           Handler
	handleDescendants bool
	readerGen         uint64
}

// Name returns the channel this reader subscribed to.
func (c *ChannelReader) Name() string {
	return c.name
}

func (c *ChannelReader) matches(msg Message) bool {
	if msg.ReaderGen < c.readerGen {
		return false
	}
	return TopicMatches(msg.Channel, msg.PostToDescendants, c.name, c.handleDescendants)
}
