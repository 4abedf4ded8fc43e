package core

import (
	"time"

	"github.com/rs/zerolog"
	"github.com/vovakirdan/campus-server/internal/bus"
	"github.com/vovakirdan/campus-server/internal/metrics"
	"github.com/vovakirdan/campus-server/internal/store"
	"github.com/vovakirdan/campus-server/internal/utils"
)

// ChatConfig tunes every session created by a Chat.
type ChatConfig struct {
	// CommandsPerMinute caps inbound commands per session; zero disables the cap.
	CommandsPerMinute int
	// WriteTimeout bounds a single outbound frame.
	WriteTimeout time.Duration
}

// Chat holds the process-wide collaborators shared by all sessions: the
// store, the bus and the authenticator. Sessions borrow them and never own them.
type Chat struct {
	cfg        ChatConfig
	auth       Authenticator
	bus        bus.Bus
	directory  *Directory
	dispatcher *Dispatcher
	metrics    *metrics.Metrics
	log        *zerolog.Logger
}

// NewChat wires the chat subsystem. m may be nil.
func NewChat(cfg ChatConfig, auth Authenticator, st store.Store, b bus.Bus, m *metrics.Metrics, logger *zerolog.Logger) *Chat {
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	return &Chat{
		cfg:        cfg,
		auth:       auth,
		bus:        b,
		directory:  NewDirectory(st, logger),
		dispatcher: NewDispatcher(st, b, m, logger),
		metrics:    m,
		log:        logger,
	}
}

// Directory exposes the channel directory.
func (c *Chat) Directory() *Directory {
	return c.directory
}

// NewSession prepares a session for conn on channel slug. token may be empty,
// in which case Run closes the connection as unauthorized.
func (c *Chat) NewSession(conn Conn, slug, token string) *Session {
	id := utils.NewID()
	s := &Session{
		id:      id,
		slug:    slug,
		token:   token,
		conn:    conn,
		chat:    c,
		limiter: newLimiter(c.cfg.CommandsPerMinute),
		log:     c.log.With().Str("session_id", id).Str("channel", slug).Logger(),
	}
	s.setState(StateConnecting)
	return s
}
