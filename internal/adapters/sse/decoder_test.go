package sse

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

const sampleStream = "event: message\r\n" +
	"data: {\"type\":\"connected\",\"user_id\":7}\r\n\r\n" +
	": keep-alive\n\n" +
	"data: {\"type\":\"mention\",\n" +
	"data: \"reply_id\":42}\n\n" +
	"event: ping\n\n" +
	"data: 你好\n\n" +
	"data: {\"type\":\"pong\"}"

func decodeAll(chunks ...string) []Frame {
	var d FrameDecoder
	var out []Frame
	for _, chunk := range chunks {
		out = append(out, d.Feed([]byte(chunk))...)
	}
	return append(out, d.Flush()...)
}

func TestFrameDecoderWholeStream(t *testing.T) {
	t.Parallel()

	frames := decodeAll(sampleStream)
	assert.Equal(t, []Frame{
		{Event: "message", Data: `{"type":"connected","user_id":7}`},
		{Data: "{\"type\":\"mention\",\n\"reply_id\":42}"},
		{Data: "你好"},
		{Data: `{"type":"pong"}`},
	}, frames)
}

func TestFrameDecoderChunkBoundaryInvariance(t *testing.T) {
	t.Parallel()

	want := decodeAll(sampleStream)
	raw := []byte(sampleStream)

	// every single split point, including ones inside CRLF pairs and
	// multi-byte runes
	for i := 1; i < len(raw); i++ {
		got := decodeAll(string(raw[:i]), string(raw[i:]))
		assert.Equal(t, want, got, "split at %d", i)
	}

	// byte by byte
	chunks := make([]string, 0, len(raw))
	for _, b := range raw {
		chunks = append(chunks, string([]byte{b}))
	}
	assert.Equal(t, want, decodeAll(chunks...))
}

func TestFrameDecoderHoldsIncompleteBlock(t *testing.T) {
	t.Parallel()

	var d FrameDecoder
	assert.Empty(t, d.Feed([]byte("data: {\"a\":1}\n")))
	assert.Equal(t, []Frame{{Data: `{"a":1}`}}, d.Feed([]byte("\n")))
	assert.Empty(t, d.Flush())
}

func TestFrameDecoderFlushIgnoresBlankRemainder(t *testing.T) {
	t.Parallel()

	var d FrameDecoder
	d.Feed([]byte("\n\n  \n"))
	assert.Empty(t, d.Flush())
}
