package sse

import "strings"

// Frame is one blank-line delimited block of the event stream.
type Frame struct {
	// Event is the "event:" field, empty when the block did not carry one.
	Event string
	// Data joins every "data:" line of the block with newlines.
	Data string
}

// FrameDecoder turns arbitrarily split chunks into complete frames. The
// frames produced never depend on where the chunk boundaries fall.
type FrameDecoder struct {
	buf strings.Builder
}

// Feed appends chunk and returns every frame completed by it.
func (d *FrameDecoder) Feed(chunk []byte) []Frame {
	if len(chunk) == 0 {
		return nil
	}
	d.buf.Write(chunk)

	// A CR at the very end may still pair with an LF in the next chunk, so
	// normalization runs over the whole pending buffer.
	pending := strings.ReplaceAll(d.buf.String(), "\r\n", "\n")

	var frames []Frame
	for {
		block, rest, found := strings.Cut(pending, "\n\n")
		if !found {
			break
		}
		if frame, ok := parseBlock(block); ok {
			frames = append(frames, frame)
		}
		pending = rest
	}

	d.buf.Reset()
	d.buf.WriteString(pending)
	return frames
}

// Flush parses whatever is left once the stream ended.
func (d *FrameDecoder) Flush() []Frame {
	pending := strings.ReplaceAll(d.buf.String(), "\r\n", "\n")
	d.buf.Reset()

	if strings.TrimSpace(pending) == "" {
		return nil
	}
	if frame, ok := parseBlock(pending); ok {
		return []Frame{frame}
	}
	return nil
}

// parseBlock reads the event and data fields of a single block. Comment lines
// and unknown fields are skipped; a block without data yields nothing.
func parseBlock(block string) (Frame, bool) {
	var (
		event string
		data  []string
	)
	for _, line := range strings.Split(block, "\n") {
		line = strings.Trim(line, "\r")
		if line == "" || strings.HasPrefix(line, ":") {
			continue
		}

		field, value, _ := strings.Cut(line, ":")
		switch field {
		case "event":
			event = strings.TrimSpace(value)
		case "data":
			data = append(data, strings.TrimLeft(value, " \t"))
		}
	}

	if len(data) == 0 {
		return Frame{}, false
	}
	payload := strings.TrimSpace(strings.Join(data, "\n"))
	if payload == "" {
		return Frame{}, false
	}
	return Frame{Event: event, Data: payload}, true
}
