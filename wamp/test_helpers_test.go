package wamp

import (
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
)

type readResult struct {
	frame *Frame
	err   error
}

// fakeTransport is an in-memory Transport. Reads block like a socket so a
// dispatch loop can run against it; writes are recorded for inspection.
type fakeTransport struct {
	lock        sync.Mutex
	incoming    chan readResult
	written     []*Frame
	writeHook   func(*Frame)
	failWrites  bool
	closeWrites int
	closed      bool
	done        chan struct{}
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		incoming: make(chan readResult, 16),
		done:     make(chan struct{}),
	}
}

func (t *fakeTransport) pushFrame(frame *Frame) {
	t.incoming <- readResult{frame: frame}
}

func (t *fakeTransport) pushReadError(err error) {
	t.incoming <- readResult{err: err}
}

func (t *fakeTransport) pushMessage(tb testing.TB, msg Message, serialization Serialization) {
	tb.Helper()
	frame, err := EncodeMessage(msg, serialization)
	if err != nil {
		tb.Fatalf("could not encode %s: %v", msg.Kind(), err)
	}
	t.pushFrame(frame)
}

func (t *fakeTransport) ReadFrame() (*Frame, error) {
	select {
	case result := <-t.incoming:
		return result.frame, result.err
	case <-t.done:
		return nil, errors.New("transport closed")
	}
}

func (t *fakeTransport) WriteFrame(frame *Frame) error {
	t.lock.Lock()
	if t.closed || t.failWrites {
		t.lock.Unlock()
		return errors.New("write on broken transport")
	}
	copied := &Frame{Kind: frame.Kind, Payload: append([]byte(nil), frame.Payload...)}
	t.written = append(t.written, copied)
	hook := t.writeHook
	t.lock.Unlock()

	if hook != nil {
		hook(copied)
	}
	return nil
}

func (t *fakeTransport) WriteClose() error {
	t.lock.Lock()
	defer t.lock.Unlock()

	t.closeWrites++
	return nil
}

func (t *fakeTransport) Close() error {
	t.lock.Lock()
	defer t.lock.Unlock()

	if !t.closed {
		t.closed = true
		close(t.done)
	}
	return nil
}

func (t *fakeTransport) setFailWrites(fail bool) {
	t.lock.Lock()
	t.failWrites = fail
	t.lock.Unlock()
}

func (t *fakeTransport) setWriteHook(hook func(*Frame)) {
	t.lock.Lock()
	t.writeHook = hook
	t.lock.Unlock()
}

func (t *fakeTransport) writtenFrames() []*Frame {
	t.lock.Lock()
	defer t.lock.Unlock()

	return append([]*Frame(nil), t.written...)
}

func (t *fakeTransport) closeWriteCount() int {
	t.lock.Lock()
	defer t.lock.Unlock()

	return t.closeWrites
}

// writtenMessages decodes everything written so far.
func (t *fakeTransport) writtenMessages(tb testing.TB) []Message {
	tb.Helper()
	frames := t.writtenFrames()
	messages := make([]Message, 0, len(frames))
	for _, frame := range frames {
		msg, err := DecodeFrame(frame)
		if err != nil {
			tb.Fatalf("could not decode written frame: %v", err)
		}
		messages = append(messages, msg)
	}
	return messages
}

func (t *fakeTransport) lastWritten(tb testing.TB) Message {
	tb.Helper()
	messages := t.writtenMessages(tb)
	if len(messages) == 0 {
		tb.Fatalf("no frames were written")
	}
	return messages[len(messages)-1]
}

// newTestSession wires a session and client to a fresh fake transport
// without running a dispatch loop.
func newTestSession(serialization Serialization) (*sessionState, *Client, *fakeTransport) {
	transport := newFakeTransport()
	session := newSessionState(transport, serialization, zap.NewNop())
	client := newClient(session, 1)
	return session, client, transport
}

// waitUntil polls condition until it holds or the deadline passes.
func waitUntil(tb testing.TB, condition func() bool, description string) {
	tb.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	tb.Fatalf("timed out waiting for %s", description)
}

// recordingHandler collects every invocation it receives.
type recordingHandler struct {
	lock  sync.Mutex
	calls []handlerCall
}

type handlerCall struct {
	args   List
	kwargs Dict
}

func (h *recordingHandler) HandleEvent(args List, kwargs Dict) {
	h.lock.Lock()
	defer h.lock.Unlock()

	h.calls = append(h.calls, handlerCall{args: args, kwargs: kwargs})
}

func (h *recordingHandler) callCount() int {
	h.lock.Lock()
	defer h.lock.Unlock()

	return len(h.calls)
}

func (h *recordingHandler) call(index int) handlerCall {
	h.lock.Lock()
	defer h.lock.Unlock()

	return h.calls[index]
}

func (s *sessionState) pendingCount() int {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()

	return len(s.pending)
}

func (s *sessionState) activeCount() int {
	s.activeMu.Lock()
	defer s.activeMu.Unlock()

	return len(s.active)
}
