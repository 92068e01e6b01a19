package eventlog

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"

	"github.com/3leaps/spoolwatch/pkg/detect"
	"github.com/3leaps/spoolwatch/pkg/monitor"
)

// Writer writes records as newline-delimited JSON to an io.Writer.
//
// Writer is safe for concurrent use. Writes are serialized so lines never
// interleave. It implements monitor.Sink and monitor.LifecycleSink.
type Writer struct {
	w  io.Writer
	mu sync.Mutex

	// sessionID is used when the context carries none.
	sessionID string

	closed bool
}

// NewWriter creates a JSONL writer. sessionID is a fallback for events
// delivered without a session id in their context.
func NewWriter(w io.Writer, sessionID string) *Writer {
	return &Writer{w: w, sessionID: sessionID}
}

// HandleEvent writes e as one record.
func (jw *Writer) HandleEvent(ctx context.Context, e detect.Event) error {
	rec, err := NewRecord(jw.session(ctx), e)
	if err != nil {
		return err
	}
	return jw.WriteRecord(ctx, rec)
}

// SessionStarted writes a session start marker.
func (jw *Writer) SessionStarted(ctx context.Context, info monitor.SessionInfo) error {
	return jw.writeSession(ctx, PhaseStarted, info)
}

// SessionStopped writes a session stop marker carrying final stats.
func (jw *Writer) SessionStopped(ctx context.Context, info monitor.SessionInfo) error {
	return jw.writeSession(ctx, PhaseStopped, info)
}

func (jw *Writer) writeSession(ctx context.Context, phase string, info monitor.SessionInfo) error {
	data, err := json.Marshal(SessionData{Phase: phase, Info: info})
	if err != nil {
		return &WriteError{Op: "marshal_data", Err: err}
	}
	sessionID := info.ID
	if sessionID == "" {
		sessionID = jw.session(ctx)
	}
	return jw.WriteRecord(ctx, Record{
		Type:      TypeSession,
		TS:        time.Now().UTC(),
		SessionID: sessionID,
		Device:    info.Device,
		Data:      data,
	})
}

func (jw *Writer) session(ctx context.Context) string {
	if id := monitor.SessionIDFromContext(ctx); id != "" {
		return id
	}
	return jw.sessionID
}

// WriteRecord writes a prepared envelope.
func (jw *Writer) WriteRecord(ctx context.Context, rec Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	line, err := json.Marshal(rec)
	if err != nil {
		return &WriteError{Op: "marshal_record", Err: err}
	}
	line = append(line, '\n')

	jw.mu.Lock()
	defer jw.mu.Unlock()

	if jw.closed {
		return ErrWriterClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	// io.Writer may return n < len(p) with a nil error; a truncated line
	// would corrupt the log.
	if err := writeAll(jw.w, line); err != nil {
		return &WriteError{Op: "write", Err: err}
	}
	return nil
}

// Close marks the writer as closed. The underlying writer is not closed.
func (jw *Writer) Close() error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	jw.closed = true
	return nil
}

func writeAll(w io.Writer, p []byte) error {
	for len(p) > 0 {
		n, err := w.Write(p)
		if err != nil {
			return err
		}
		if n == 0 {
			return io.ErrShortWrite
		}
		p = p[n:]
	}
	return nil
}

var (
	_ monitor.Sink          = (*Writer)(nil)
	_ monitor.LifecycleSink = (*Writer)(nil)
)
