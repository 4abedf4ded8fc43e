package http

import (
	"context"
	"errors"
	"io"
	stdhttp "net/http"

	"github.com/coder/websocket"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/campus-server/internal/core"
)

// WSHandler upgrades HTTP connections and hands them to chat sessions.
type WSHandler struct {
	base            context.Context
	chat            *core.Chat
	maxMessageBytes int64
	log             *zerolog.Logger
}

// NewWSHandler builds a new WebSocket handler. Sessions end when base is cancelled.
func NewWSHandler(base context.Context, chat *core.Chat, maxMessageBytes int64, logger *zerolog.Logger) *WSHandler {
	return &WSHandler{
		base:            base,
		chat:            chat,
		maxMessageBytes: maxMessageBytes,
		log:             logger,
	}
}

// ServeHTTP serves one chat session.
// GET /ws/channels/{slug}
func (h *WSHandler) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	slug := r.PathValue("slug")
	token := r.URL.Query().Get("token")
	if token == "" {
		token, _ = bearerToken(r)
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	if h.maxMessageBytes > 0 {
		conn.SetReadLimit(h.maxMessageBytes)
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	stop := context.AfterFunc(h.base, cancel)
	defer stop()

	session := h.chat.NewSession(&wsConn{conn: conn}, slug, token)
	if err := session.Run(ctx); err != nil {
		h.log.Debug().Err(err).Str("session_id", session.ID()).Msg("chat session ended with error")
	}
}

// wsConn adapts a websocket connection to core.Conn.
type wsConn struct {
	conn *websocket.Conn
}

// Read never aborts on ctx: a cancelled read kills the socket without a close
// frame. The session unblocks it by closing the connection.
func (w *wsConn) Read(ctx context.Context) ([]byte, error) {
	_, data, err := w.conn.Read(context.WithoutCancel(ctx))
	if err != nil {
		switch websocket.CloseStatus(err) {
		case websocket.StatusNormalClosure, websocket.StatusGoingAway:
			return nil, io.EOF
		}
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, err
	}
	return data, nil
}

func (w *wsConn) Write(ctx context.Context, data []byte) error {
	return w.conn.Write(ctx, websocket.MessageText, data)
}

func (w *wsConn) Close(code int, reason string) error {
	return w.conn.Close(websocket.StatusCode(code), reason)
}
