package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/vovakirdan/campus-server/internal/bus"
	"github.com/vovakirdan/campus-server/internal/proto"
	"github.com/vovakirdan/campus-server/internal/store"
	"github.com/vovakirdan/campus-server/internal/store/sqlstore"
)

var errConnClosed = errors.New("conn closed")

// fakeConn is an in-memory transport. Frames pushed to in are read by the
// session; frames written by the session land on out.
type fakeConn struct {
	in      chan []byte
	out     chan []byte
	closed  chan struct{}
	once    sync.Once
	onClose func()

	// ignoreCtx makes Read block until Close, like a socket read that
	// must not be torn down by cancellation.
	ignoreCtx bool

	mu     sync.Mutex
	code   int
	reason string
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		in:     make(chan []byte, 16),
		out:    make(chan []byte, 64),
		closed: make(chan struct{}),
	}
}

func (c *fakeConn) Read(ctx context.Context) ([]byte, error) {
	done := ctx.Done()
	if c.ignoreCtx {
		done = nil
	}
	select {
	case data, ok := <-c.in:
		if !ok {
			return nil, io.EOF
		}
		return data, nil
	case <-done:
		return nil, ctx.Err()
	case <-c.closed:
		return nil, errConnClosed
	}
}

func (c *fakeConn) Write(ctx context.Context, data []byte) error {
	select {
	case <-c.closed:
		return errConnClosed
	default:
	}
	select {
	case c.out <- data:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *fakeConn) Close(code int, reason string) error {
	c.once.Do(func() {
		c.mu.Lock()
		c.code, c.reason = code, reason
		c.mu.Unlock()
		if c.onClose != nil {
			c.onClose()
		}
		close(c.closed)
	})
	return nil
}

func (c *fakeConn) closeCode() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.code
}

func (c *fakeConn) send(t *testing.T, typ string, payload any) {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	frame, err := json.Marshal(proto.Inbound{Type: typ, Payload: data})
	if err != nil {
		t.Fatalf("marshal frame: %v", err)
	}
	c.in <- frame
}

func mustFrame(t *testing.T, c *fakeConn, typ string) proto.Outbound {
	t.Helper()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case data := <-c.out:
			var out proto.Outbound
			if err := json.Unmarshal(data, &out); err != nil {
				t.Fatalf("bad outbound frame %s: %v", data, err)
			}
			if out.Type == typ {
				return out
			}
		case <-deadline:
			t.Fatalf("expected frame %s not received", typ)
			return proto.Outbound{}
		}
	}
}

func noFrame(t *testing.T, c *fakeConn, wait time.Duration) {
	t.Helper()
	select {
	case data := <-c.out:
		t.Fatalf("unexpected frame %s", data)
	case <-time.After(wait):
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

type fakeAuth map[string]Actor

func (a fakeAuth) Authenticate(_ context.Context, token string) (*Actor, error) {
	actor, ok := a[token]
	if !ok {
		return nil, errors.New("invalid token")
	}
	return &actor, nil
}

type harness struct {
	t     *testing.T
	store *sqlstore.Store
	mem   *bus.Memory
	auth  fakeAuth
	chat  *Chat
}

func newHarness(t *testing.T, cfg ChatConfig, wrap func(*bus.Memory) bus.Bus) *harness {
	t.Helper()
	st, err := sqlstore.New(context.Background(), sqlstore.Options{Driver: sqlstore.DriverSQLite, DSN: ":memory:"})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	mem := bus.NewMemory(bus.Options{Buffer: 32})
	var b bus.Bus = mem
	if wrap != nil {
		b = wrap(mem)
	}

	logger := zerolog.New(nil)
	h := &harness{t: t, store: st, mem: mem, auth: fakeAuth{}}
	h.chat = NewChat(cfg, h.auth, st, b, nil, &logger)
	return h
}

// user creates an account and returns a token the fake authenticator accepts.
func (h *harness) user(email string, role store.Role) (string, int64) {
	h.t.Helper()
	u, err := h.store.CreateUser(context.Background(), email, "hash", role)
	if err != nil {
		h.t.Fatalf("create user %s: %v", email, err)
	}
	token := fmt.Sprintf("token-%d", u.ID)
	h.auth[token] = Actor{UserID: u.ID, Role: role}
	return token, u.ID
}

type running struct {
	session *Session
	conn    *fakeConn
	done    chan error
}

func (h *harness) connect(slug, token string) *running {
	h.t.Helper()
	conn := newFakeConn()
	s := h.chat.NewSession(conn, slug, token)
	r := &running{session: s, conn: conn, done: make(chan error, 1)}
	go func() { r.done <- s.Run(context.Background()) }()
	return r
}

func (h *harness) subscribed(r *running) *running {
	h.t.Helper()
	waitFor(h.t, "session subscribed", func() bool { return r.session.State() == StateSubscribed })
	return r
}

func (r *running) wait(t *testing.T) error {
	t.Helper()
	select {
	case err := <-r.done:
		return err
	case <-time.After(3 * time.Second):
		t.Fatalf("session did not finish")
		return nil
	}
}
