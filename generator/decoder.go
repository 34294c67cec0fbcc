package generator

import (
	"bytes"
	"context"
	"io"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

const readBufferSize = 4 * 1024

var (
	dataPrefix = []byte("data: ")
	doneToken  = []byte("[DONE]")
)

// Decoder turns an upstream chat-completion event stream into text fragments.
//
// Bytes are fed in arbitrary chunks; only complete lines are decoded and the
// unterminated tail waits for the next chunk. A malformed frame is skipped,
// never returned as an error.
type Decoder struct {
	pending []byte
	logger  *zap.Logger
}

func NewDecoder(logger *zap.Logger) *Decoder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Decoder{logger: logger}
}

// Feed appends chunk to the pending buffer and returns the fragments decoded
// from every line the chunk completed, in arrival order.
func (d *Decoder) Feed(chunk []byte) []string {
	d.pending = append(d.pending, chunk...)

	var out []string
	start := 0
	for {
		i := bytes.IndexByte(d.pending[start:], '\n')
		if i < 0 {
			break
		}
		if frag, ok := d.decodeLine(d.pending[start : start+i]); ok {
			out = append(out, frag)
		}
		start += i + 1
	}
	d.pending = append(d.pending[:0], d.pending[start:]...)
	return out
}

// Flush ends the stream. An unterminated trailing line is dropped, not decoded.
func (d *Decoder) Flush() {
	if len(d.pending) > 0 {
		d.logger.Debug("discarding incomplete trailing frame", zap.Int("bytes", len(d.pending)))
	}
	d.pending = nil
}

func (d *Decoder) decodeLine(line []byte) (string, bool) {
	if !bytes.HasPrefix(line, dataPrefix) {
		return "", false
	}
	data := bytes.TrimSpace(line[len(dataPrefix):])
	if len(data) == 0 || bytes.Equal(data, doneToken) {
		return "", false
	}
	if !looksLikeJSON(data) {
		d.logger.Warn("invalid JSON data received", zap.ByteString("data", data))
		return "", false
	}
	if !gjson.ValidBytes(data) {
		d.logger.Warn("error parsing JSON frame", zap.ByteString("data", data))
		return "", false
	}
	content := gjson.GetBytes(data, "choices.0.delta.content")
	if content.Type != gjson.String || content.Str == "" {
		return "", false
	}
	return content.Str, true
}

// looksLikeJSON is a cheap shape check run before parsing: an object or array
// on a single line.
func looksLikeJSON(data []byte) bool {
	if len(data) < 2 {
		return false
	}
	first, last := data[0], data[len(data)-1]
	return (first == '{' || first == '[') && (last == '}' || last == ']')
}

// Pipe reads r until EOF and hands every decoded fragment to emit. It stops
// at the first read error, emit error, or context cancellation. On EOF the
// pending tail is flushed and Pipe returns nil.
func (d *Decoder) Pipe(ctx context.Context, r io.Reader, emit func(string) error) error {
	buf := make([]byte, readBufferSize)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := r.Read(buf)
		if n > 0 {
			for _, frag := range d.Feed(buf[:n]) {
				if emitErr := emit(frag); emitErr != nil {
					return emitErr
				}
			}
		}
		if err == io.EOF {
			d.Flush()
			return nil
		}
		if err != nil {
			return err
		}
	}
}
