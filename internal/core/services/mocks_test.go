package services

import (
	"context"
	"sync"

	"duosync/internal/core/domain"
	"duosync/internal/core/ports"
	"duosync/internal/core/protocol"

	"github.com/stretchr/testify/mock"
)

// recordingSender captures every frame handed to SendFrame.
type recordingSender struct {
	mu     sync.Mutex
	frames []recordedFrame
	err    error
}

type recordedFrame struct {
	Type    protocol.MessageType
	Payload interface{}
}

func (r *recordingSender) SendFrame(frameType protocol.MessageType, payload interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.frames = append(r.frames, recordedFrame{Type: frameType, Payload: payload})
	return nil
}

func (r *recordingSender) sent() []recordedFrame {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]recordedFrame(nil), r.frames...)
}

func (r *recordingSender) count(t protocol.MessageType) int {
	n := 0
	for _, f := range r.sent() {
		if f.Type == t {
			n++
		}
	}
	return n
}

// recordingPublisher captures published events.
type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.Event
}

func (r *recordingPublisher) Publish(event domain.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recordingPublisher) ofType(t domain.EventType) []domain.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Event
	for _, e := range r.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

// MockPlaybackController records applied commands.
type MockPlaybackController struct {
	mock.Mock
}

func (m *MockPlaybackController) Apply(ctx context.Context, cmd domain.PlaybackCommand) error {
	args := m.Called(ctx, cmd)
	return args.Error(0)
}

// fakeEngine is a scriptable session engine.
type fakeEngine struct {
	mu        sync.Mutex
	cb        ports.EngineCallbacks
	offerSDP  string
	answerSDP string
	sendOK    bool
	sent      [][]byte
	closed    bool
	quality   int
}

func newFakeEngine(cb ports.EngineCallbacks) *fakeEngine {
	return &fakeEngine{
		cb:        cb,
		offerSDP:  "v=0\r\no=offer\r\n",
		answerSDP: "v=0\r\no=answer\r\n",
		sendOK:    true,
		quality:   DefaultQualityScore,
	}
}

func (e *fakeEngine) CreateOffer(ctx context.Context) (string, error)  { return e.offerSDP, nil }
func (e *fakeEngine) CreateAnswer(ctx context.Context, offerSDP string) (string, error) {
	return e.answerSDP, nil
}
func (e *fakeEngine) SetRemoteAnswer(sdp string) error { return nil }

func (e *fakeEngine) Send(data []byte) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.sendOK {
		return false
	}
	e.sent = append(e.sent, data)
	return true
}

func (e *fakeEngine) sentFrames() []protocol.Frame {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []protocol.Frame
	for _, data := range e.sent {
		if frame, err := protocol.Decode(data); err == nil {
			out = append(out, frame)
		}
	}
	return out
}

func (e *fakeEngine) QualityScore() int { return e.quality }

func (e *fakeEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}

// fakeEngineFactory hands out fakeEngines and remembers the last one.
type fakeEngineFactory struct {
	mu   sync.Mutex
	last *fakeEngine
}

func (f *fakeEngineFactory) NewEngine(cb ports.EngineCallbacks) (ports.SessionEngine, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.last = newFakeEngine(cb)
	return f.last, nil
}

func (f *fakeEngineFactory) lastEngine() *fakeEngine {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.last
}
