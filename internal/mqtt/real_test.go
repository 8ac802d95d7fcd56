package mqtt

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

// doneToken is an already-completed paho token.
type doneToken struct{ err error }

func (t doneToken) Wait() bool                     { return true }
func (t doneToken) WaitTimeout(time.Duration) bool { return true }
func (t doneToken) Error() error                   { return t.err }
func (t doneToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

type sentMsg struct {
	topic    string
	payload  string
	retained bool
}

// stubClient records publishes in broker order. Only Publish and
// IsConnectionOpen are implemented; the embedded interface panics on
// anything else.
type stubClient struct {
	paho.Client

	mu     sync.Mutex
	sent   []sentMsg
	closed bool  // connection down: Publish fails
	fail   error // Publish fails on a live connection

	// hold, if set, blocks the first Publish until it is closed; inFlight
	// is closed when that Publish starts.
	hold     chan struct{}
	inFlight chan struct{}
}

func (c *stubClient) Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token {
	c.mu.Lock()
	hold := c.hold
	c.hold = nil
	c.mu.Unlock()
	if hold != nil {
		close(c.inFlight)
		<-hold
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return doneToken{err: errors.New("not connected")}
	}
	if c.fail != nil {
		return doneToken{err: c.fail}
	}
	c.sent = append(c.sent, sentMsg{topic: topic, payload: string(payload.([]byte)), retained: retained})
	return doneToken{}
}

func (c *stubClient) IsConnectionOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed
}

func (c *stubClient) setClosed(closed bool) {
	c.mu.Lock()
	c.closed = closed
	c.mu.Unlock()
}

func (c *stubClient) messages() []sentMsg {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]sentMsg(nil), c.sent...)
}

func newStubPublisher(c *stubClient) *RealPublisher {
	p := &RealPublisher{
		client: c,
		topics: NewTopics(""),
		log:    zap.NewNop(),
	}
	p.buf = newOutbox(DefaultBufferSize, p.log)
	return p
}

func publishStatus(t *testing.T, p *RealPublisher, text string) {
	t.Helper()
	if err := p.PublishStatus(StatusEvent{Timestamp: time.Unix(0, 0).UTC(), Text: text}); err != nil {
		t.Fatalf("PublishStatus(%q): %v", text, err)
	}
}

func publishSession(t *testing.T, p *RealPublisher, seq int) {
	t.Helper()
	s := testSession()
	s.Seq = seq
	if err := p.PublishSession(SessionEvent{BootID: "boot", Session: s}); err != nil {
		t.Fatalf("PublishSession(%d): %v", seq, err)
	}
}

// lastStatus returns the payload the broker would retain on the status topic.
func lastStatus(msgs []sentMsg, topic string) string {
	var last string
	for _, m := range msgs {
		if m.topic == topic && m.retained {
			last = m.payload
		}
	}
	return last
}

func TestPublishWhileReplayingQueuesBehindOutbox(t *testing.T) {
	c := &stubClient{}
	p := newStubPublisher(c)

	// Offline: everything is buffered.
	publishStatus(t, p, "old-1")
	publishSession(t, p, 1)
	publishStatus(t, p, "old-2")
	if c.messages() != nil {
		t.Fatal("nothing should reach the broker while disconnected")
	}

	c.hold = make(chan struct{})
	c.inFlight = make(chan struct{})
	hold := c.hold

	done := make(chan struct{})
	go func() {
		p.handleConnect(c)
		close(done)
	}()

	<-c.inFlight
	publishStatus(t, p, "new")
	publishSession(t, p, 2)
	close(hold)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("handleConnect did not finish")
	}

	msgs := c.messages()
	if len(msgs) != 4 {
		t.Fatalf("expected 4 messages at the broker, got %d: %+v", len(msgs), msgs)
	}
	wantTopics := []string{p.topics.Sessions, p.topics.Status, p.topics.Status, p.topics.Sessions}
	for i, m := range msgs {
		if m.topic != wantTopics[i] {
			t.Errorf("message %d topic = %s, want %s", i, m.topic, wantTopics[i])
		}
	}
	if !strings.Contains(msgs[1].payload, "old-2") || !strings.Contains(msgs[2].payload, "new") {
		t.Errorf("status order wrong: %s then %s", msgs[1].payload, msgs[2].payload)
	}
	if !strings.Contains(msgs[0].payload, `"seq":1`) || !strings.Contains(msgs[3].payload, `"seq":2`) {
		t.Errorf("sessions out of sequence: %s then %s", msgs[0].payload, msgs[3].payload)
	}
	if got := lastStatus(msgs, p.topics.Status); !strings.Contains(got, "new") {
		t.Errorf("broker retains stale status: %s", got)
	}

	// Replay finished: publishes go straight through again.
	publishStatus(t, p, "after")
	if n := len(c.messages()); n != 5 {
		t.Errorf("expected direct publish after replay, broker has %d messages", n)
	}
	if p.buf.len() != 0 {
		t.Errorf("outbox should be empty, has %d", p.buf.len())
	}
}

func TestReplayInterruptedRequeuesInOrder(t *testing.T) {
	c := &stubClient{}
	p := newStubPublisher(c)

	publishSession(t, p, 1)
	publishSession(t, p, 2)

	// Connection is already gone again when the replay starts.
	c.setClosed(true)
	p.handleConnect(c)
	p.handleConnectionLost(c, errors.New("gone"))

	publishSession(t, p, 3)
	if p.buf.len() != 3 {
		t.Fatalf("expected 3 buffered messages, got %d", p.buf.len())
	}

	c.setClosed(false)
	p.handleConnect(c)

	msgs := c.messages()
	if len(msgs) != 4 {
		t.Fatalf("expected 3 sessions plus RECONNECTED, got %d: %+v", len(msgs), msgs)
	}
	for i, seq := range []string{`"seq":1`, `"seq":2`, `"seq":3`} {
		if !strings.Contains(msgs[i].payload, seq) {
			t.Errorf("message %d = %s, want %s", i, msgs[i].payload, seq)
		}
	}
	if msgs[3].topic != p.topics.System || !strings.Contains(msgs[3].payload, "RECONNECTED") {
		t.Errorf("last message should be RECONNECTED, got %s %s", msgs[3].topic, msgs[3].payload)
	}
}

func TestRequeueKeepsNewerRetained(t *testing.T) {
	o := newOutbox(10, nil)
	o.push(bufferedMsg{topic: "s", payload: []byte("new"), retained: true})
	o.requeue([]bufferedMsg{
		{topic: "x", payload: []byte("sess"), qos: 1},
		{topic: "s", payload: []byte("old"), retained: true},
	})

	got := o.drainAll()
	if len(got) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(got))
	}
	if string(got[0].payload) != "sess" || string(got[1].payload) != "new" {
		t.Errorf("got %s, %s; want sess, new", got[0].payload, got[1].payload)
	}
}

func TestPublishFailureOnLiveConnectionIsDropped(t *testing.T) {
	c := &stubClient{}
	p := newStubPublisher(c)
	p.handleConnect(c)

	c.mu.Lock()
	c.fail = errors.New("broker refused")
	c.mu.Unlock()

	if err := p.PublishSession(SessionEvent{BootID: "boot", Session: testSession()}); err == nil {
		t.Error("expected the send error to be returned")
	}
	if p.buf.len() != 0 {
		t.Errorf("failed send on a live connection must not be buffered, outbox has %d", p.buf.len())
	}
}
