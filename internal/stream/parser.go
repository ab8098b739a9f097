package stream

import (
	"bytes"
	"encoding/json"

	"github.com/mark3labs/todochat/internal/logger"
)

// Frame is one decoded `event:`/`data:`/blank-line unit from the wire.
// Data holds the raw JSON payload of the frame's first data line.
type Frame struct {
	Event string
	Data  json.RawMessage
}

// Parser incrementally decodes SSE frames from arbitrarily-split byte
// chunks. It buffers at the byte level, so multi-byte UTF-8 sequences cut
// at a chunk boundary are reassembled before any text handling happens.
//
// Framing rules, matching the backend exactly:
//   - `event:` sets the current frame's type
//   - the first `data:` line per frame is the payload; later data lines
//     in the same frame are ignored
//   - a blank line terminates the frame and resets the event type
//   - `:` comment lines are skipped
//   - a data line with no preceding event line in the same frame is
//     dropped with a warning (no default channel)
//   - malformed JSON in a data line skips that line, never the stream
type Parser struct {
	buf      []byte
	event    string
	data     json.RawMessage
	haveData bool
}

// NewParser returns an empty Parser.
func NewParser() *Parser {
	return &Parser{}
}

// Feed appends a chunk and returns every frame completed by it, in wire
// order. The trailing partial line, if any, stays buffered for the next
// call and is never emitted as a frame.
func (p *Parser) Feed(chunk []byte) []Frame {
	p.buf = append(p.buf, chunk...)

	var frames []Frame
	for {
		idx := bytes.IndexByte(p.buf, '\n')
		if idx < 0 {
			break
		}
		line := p.buf[:idx]
		p.buf = p.buf[idx+1:]
		line = bytes.TrimSuffix(line, []byte("\r"))
		p.processLine(line, &frames)
	}
	return frames
}

func (p *Parser) processLine(line []byte, frames *[]Frame) {
	if len(line) == 0 {
		// Frame boundary. Emit if we assembled a complete frame,
		// then reset regardless.
		if p.event != "" && p.haveData {
			*frames = append(*frames, Frame{Event: p.event, Data: p.data})
		} else if p.event != "" {
			logger.Debug("Dropping frame %q with no data line", p.event)
		}
		p.event = ""
		p.data = nil
		p.haveData = false
		return
	}

	if line[0] == ':' {
		return
	}

	if rest, ok := bytes.CutPrefix(line, []byte("event:")); ok {
		p.event = string(bytes.TrimSpace(rest))
		return
	}

	if rest, ok := bytes.CutPrefix(line, []byte("data:")); ok {
		payload := bytes.TrimSpace(rest)
		if p.event == "" {
			logger.Warn("Dropping data line with no event type: %s", truncateForLog(payload))
			return
		}
		if p.haveData {
			// Only the first data line per frame is honored.
			return
		}
		if !json.Valid(payload) {
			logger.Warn("Skipping malformed frame payload for %q: %s", p.event, truncateForLog(payload))
			return
		}
		p.data = append(json.RawMessage(nil), payload...)
		p.haveData = true
		return
	}

	logger.Debug("Ignoring unrecognized stream line: %s", truncateForLog(line))
}

// Pending reports whether bytes of an unterminated line or frame remain
// buffered. Used by tests and by the transport to detect truncated tails.
func (p *Parser) Pending() bool {
	return len(p.buf) > 0 || p.event != "" || p.haveData
}

func truncateForLog(b []byte) string {
	const max = 120
	if len(b) > max {
		return string(b[:max]) + "..."
	}
	return string(b)
}
