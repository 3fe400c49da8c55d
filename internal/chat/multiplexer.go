package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
)

// ErrNotInitialized is returned when a Multiplexer is used without having
// been constructed through NewMultiplexer, so its outbound pipe was never
// established.
var ErrNotInitialized = errors.New("controller not properly initialized")

// Source produces the chunks of one provider segment. Read returns io.EOF
// when the segment is exhausted; Close cancels the segment.
type Source interface {
	Read(ctx context.Context) (any, error)
	Close() error
}

// Multiplexer presents a single long-lived byte stream to a consumer while
// letting the producer side be swapped between provider segments. The
// consumer reads from Reader; each adopted source is pumped to exhaustion
// into the same pipe, so a response body can span several provider calls
// without the client observing a seam.
type Multiplexer struct {
	pr *io.PipeReader
	pw *io.PipeWriter

	mu       sync.Mutex
	current  Source
	switches int
}

// NewMultiplexer creates a Multiplexer with an established outbound pipe.
func NewMultiplexer() *Multiplexer {
	pr, pw := io.Pipe()
	return &Multiplexer{pr: pr, pw: pw}
}

// Reader returns the outbound stream consumed by the client.
func (m *Multiplexer) Reader() io.ReadCloser {
	return m.pr
}

// Switches reports how many times the source has been switched. The initial
// source adopted through StartSource does not count.
func (m *Multiplexer) Switches() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.switches
}

// StartSource adopts and pumps the first segment of a response. It behaves
// like SwitchSource but does not increment the switch count.
func (m *Multiplexer) StartSource(ctx context.Context, src Source) error {
	return m.adopt(ctx, src, false)
}

// SwitchSource cancels the active source, if any, adopts src, and pumps it
// to exhaustion. The switch count is incremented only after the pump
// completes without error. A pump failure puts the outbound stream into an
// error state and is returned to the caller.
func (m *Multiplexer) SwitchSource(ctx context.Context, src Source) error {
	return m.adopt(ctx, src, true)
}

func (m *Multiplexer) adopt(ctx context.Context, src Source, counted bool) error {
	if m == nil || m.pw == nil {
		return ErrNotInitialized
	}

	m.mu.Lock()
	if m.current != nil {
		// Best effort: a failure to cancel the prior reader is not
		// propagated.
		_ = m.current.Close()
	}
	m.current = src
	m.mu.Unlock()

	if err := m.pump(ctx, src); err != nil {
		m.pw.CloseWithError(err)
		return err
	}

	if counted {
		m.mu.Lock()
		m.switches++
		m.mu.Unlock()
	}
	return nil
}

// pump drains src chunk-by-chunk into the outbound pipe. The pipe is left
// open on exhaustion so a later SwitchSource can resume producing into it.
func (m *Multiplexer) pump(ctx context.Context, src Source) error {
	for {
		chunk, err := src.Read(ctx)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		encoded := encodeChunk(chunk)
		if len(encoded) == 0 {
			continue
		}
		if _, err := m.pw.Write(encoded); err != nil {
			return err
		}
	}
}

// Close cancels the active source, if any, and terminates the outbound
// stream.
func (m *Multiplexer) Close() error {
	m.dropSource()
	return m.pw.Close()
}

// CloseWithError cancels the active source and puts the outbound stream
// into an error state, so the consumer's next read fails with err.
func (m *Multiplexer) CloseWithError(err error) error {
	m.dropSource()
	return m.pw.CloseWithError(err)
}

func (m *Multiplexer) dropSource() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current != nil {
		_ = m.current.Close()
		m.current = nil
	}
}

// encodeChunk normalizes the heterogeneous chunk shapes emitted by provider
// SDKs into bytes: byte slices pass through, strings are encoded, structured
// values become a JSON line, and remaining primitives are coerced to their
// string form.
func encodeChunk(chunk any) []byte {
	switch v := chunk.(type) {
	case nil:
		return nil
	case []byte:
		return v
	case string:
		return []byte(v)
	case bool, int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return []byte(fmt.Sprintf("%v", v))
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return []byte(fmt.Sprintf("%v", v))
		}
		return append(b, '\n')
	}
}
