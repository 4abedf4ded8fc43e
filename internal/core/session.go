package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/vovakirdan/campus-server/internal/bus"
	"github.com/vovakirdan/campus-server/internal/proto"
	"github.com/vovakirdan/campus-server/internal/store"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// Close codes sent to the client when a session ends.
const (
	CloseNormal        = 1000
	CloseGoingAway     = 1001
	CloseProtocolError = 1007
	ClosePolicy        = 1008
	CloseInternal      = 1011
	CloseAuthFailed    = 4401
)

// State is the lifecycle stage of a session.
type State int32

const (
	StateConnecting State = iota
	StateAuthenticating
	StateSubscribed
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticating:
		return "authenticating"
	case StateSubscribed:
		return "subscribed"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Conn is the client transport of a session.
type Conn interface {
	// Read blocks for the next text frame. A clean close by the peer is io.EOF.
	// Implementations may ignore ctx; the session closes the transport instead.
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, data []byte) error
	Close(code int, reason string) error
}

// Authenticator resolves a bearer token into an actor.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*Actor, error)
}

// Session is one client connection bound to one channel. It is used once:
// Run drives it from connect to close.
type Session struct {
	id    string
	slug  string
	token string

	conn    Conn
	chat    *Chat
	limiter *rate.Limiter
	log     zerolog.Logger

	state     atomic.Int32
	closeOnce sync.Once
}

// ID returns the session identifier used in logs.
func (s *Session) ID() string { return s.id }

// State returns the current lifecycle stage.
func (s *Session) State() State { return State(s.state.Load()) }

func (s *Session) setState(st State) {
	s.state.Store(int32(st))
}

// Run authenticates, subscribes and then serves the session until the client
// leaves or a fatal error occurs. Teardown always runs in order: stop the
// forwarder and wait for it, close the subscription, close the transport.
func (s *Session) Run(ctx context.Context) (err error) {
	c := s.chat
	c.metrics.SessionOpened()
	defer c.metrics.SessionClosed()

	s.setState(StateAuthenticating)
	actor, err := c.auth.Authenticate(ctx, s.token)
	if err != nil {
		s.log.Info().Err(err).Msg("authentication failed")
		s.finish(CloseAuthFailed, "unauthorized")
		return fmt.Errorf("%w: %w", ErrUnauthorized, err)
	}
	s.log = s.log.With().Int64("user_id", actor.UserID).Logger()

	ch, err := c.directory.ResolveOrCreate(ctx, s.slug)
	if err != nil {
		code := CloseInternal
		if errors.Is(err, ErrBadRequest) {
			code = ClosePolicy
		}
		s.log.Warn().Err(err).Msg("resolve channel")
		s.finish(code, "channel unavailable")
		return err
	}

	sub, err := c.bus.Subscribe(ctx, bus.Topic(ch.Slug))
	if err != nil {
		s.log.Error().Err(err).Msg("subscribe")
		s.finish(CloseInternal, "subscribe failed")
		return fmt.Errorf("%w: %w", ErrBus, err)
	}
	s.setState(StateSubscribed)
	s.log.Info().Msg("session subscribed")

	stop := make(chan struct{})
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.forward(gctx, stop, sub)
	})

	// Transports may ignore cancellation in Read; closing them is what
	// unblocks the inbound loop on shutdown or forwarder failure.
	stopClose := context.AfterFunc(gctx, func() {
		s.setState(StateClosing)
		s.closeTransport(closeStatus(context.Cause(gctx)))
	})

	var loopErr error
	defer func() {
		if p := recover(); p != nil {
			loopErr = fmt.Errorf("panic: %v", p)
		}

		stopClose()
		s.setState(StateClosing)
		close(stop)
		fwdErr := g.Wait()
		if cerr := sub.Close(); cerr != nil {
			s.log.Warn().Err(cerr).Msg("close subscription")
		}

		cause := loopErr
		if fwdErr != nil && (cause == nil || gctx.Err() != nil) {
			cause = fwdErr
		}
		code, reason := closeStatus(cause)
		s.finish(code, reason)

		if cause != nil {
			s.log.Warn().Err(cause).Int("code", code).Msg("session closed")
		} else {
			s.log.Info().Msg("session closed")
		}
		err = cause
	}()

	loopErr = s.serve(gctx, *actor, ch)
	return loopErr
}

// serve is the inbound loop. It returns nil when the peer closes cleanly.
func (s *Session) serve(ctx context.Context, actor Actor, ch *store.Channel) error {
	for {
		data, err := s.conn.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}

		var in proto.Inbound
		if err := json.Unmarshal(data, &in); err != nil {
			return fmt.Errorf("%w: %w", ErrProtocol, err)
		}

		log := s.log.With().Str("command", in.Type).Logger()

		if !s.limiter.Allow() {
			s.chat.metrics.Command(in.Type, ErrCodeRateLimited)
			log.Warn().Err(ErrRateLimited).Msg("command dropped")
			continue
		}

		cmd, err := Decode(in)
		if err == nil {
			err = s.chat.dispatcher.Execute(ctx, actor, ch, cmd)
		}
		if err != nil {
			if Recoverable(err) {
				log.Warn().Err(err).Msg("command rejected")
				continue
			}
			return err
		}
	}
}

// forward relays bus events to the client until stop is closed.
func (s *Session) forward(ctx context.Context, stop <-chan struct{}, sub bus.Subscription) error {
	for {
		select {
		case <-stop:
			return nil
		case <-ctx.Done():
			return nil
		case ev, ok := <-sub.Events():
			if !ok {
				return fmt.Errorf("%w: subscription ended", ErrBus)
			}
			// No frame may be written once teardown has begun.
			select {
			case <-stop:
				return nil
			default:
			}
			data, err := json.Marshal(proto.Outbound{Type: ev.Type, Payload: ev.Payload})
			if err != nil {
				s.log.Error().Err(err).Str("event", ev.Type).Msg("encode event")
				continue
			}
			if err := s.write(data); err != nil {
				return fmt.Errorf("write: %w", err)
			}
		}
	}
}

// write uses its own deadline: cancelling the session context must not abort
// a frame half-way.
func (s *Session) write(data []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.chat.cfg.WriteTimeout)
	defer cancel()
	return s.conn.Write(ctx, data)
}

// finish closes the transport and marks the session closed.
func (s *Session) finish(code int, reason string) {
	s.closeTransport(code, reason)
	s.setState(StateClosed)
}

// closeTransport closes the transport exactly once; later codes are ignored.
func (s *Session) closeTransport(code int, reason string) {
	s.closeOnce.Do(func() {
		if err := s.conn.Close(code, reason); err != nil {
			s.log.Debug().Err(err).Msg("close transport")
		}
	})
}

func closeStatus(cause error) (int, string) {
	switch {
	case cause == nil:
		return CloseNormal, "bye"
	case errors.Is(cause, ErrProtocol):
		return CloseProtocolError, "malformed frame"
	case errors.Is(cause, context.Canceled):
		return CloseGoingAway, "server shutting down"
	case errors.Is(cause, ErrBus):
		return CloseInternal, "event bus failure"
	default:
		return CloseInternal, "internal error"
	}
}

func newLimiter(perMinute int) *rate.Limiter {
	if perMinute <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	return rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), perMinute)
}
