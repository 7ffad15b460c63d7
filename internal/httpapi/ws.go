package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/p-n-ai/pai-courseware/internal/learner"
	"github.com/p-n-ai/pai-courseware/internal/session"
)

const wsWriteTimeout = 10 * time.Second

// inboundMessage is a client frame on the session socket.
type inboundMessage struct {
	Action string          `json:"action"`
	Answer json.RawMessage `json:"answer,omitempty"`
}

// outboundMessage is a server frame. Data is set for every type but "error".
type outboundMessage struct {
	Type  string `json:"type"`
	Data  any    `json:"data,omitempty"`
	Error string `json:"error,omitempty"`
	Code  string `json:"code,omitempty"`
}

// handleSessionSocket drives one session over a websocket. The current status
// is pushed on connect, each inbound action gets exactly one reply, and a
// dropped connection abandons the session if it is still running.
func (s *Server) handleSessionSocket(w http.ResponseWriter, r *http.Request) {
	l, sess, ok := s.session(w, r)
	if !ok {
		return
	}

	c, err := websocket.Accept(w, r, nil)
	if err != nil {
		slog.Warn("websocket accept failed", "session_id", sess.ID(), "error", err)
		return
	}
	defer c.CloseNow()

	ctx := r.Context()
	log := slog.With("learner_id", l.ID(), "session_id", sess.ID())
	log.Info("session socket opened")

	inbound := make(chan inboundMessage)
	done := make(chan struct{})
	defer close(done)
	go readFrames(ctx, c, l, sess, inbound, done, log)

	if err := writeFrame(ctx, c, outboundMessage{Type: replyStatus, Data: sess.Status()}); err != nil {
		log.Warn("websocket write failed", "error", err)
		return
	}

	for msg := range inbound {
		typ, payload, err := apply(ctx, l, sess, msg.Action, msg.Answer)
		out := outboundMessage{Type: typ, Data: payload}
		if err != nil {
			_, code := statusFor(err)
			out = outboundMessage{Type: replyError, Error: err.Error(), Code: code}
		}
		if err := writeFrame(ctx, c, out); err != nil {
			log.Warn("websocket write failed", "error", err)
			return
		}
	}
	log.Info("session socket closed", "phase", sess.Phase())
}

// readFrames feeds inbound until the connection drops, then abandons the
// session unless it already ended.
func readFrames(ctx context.Context, c *websocket.Conn, l *learner.Learner, sess *session.Session, inbound chan<- inboundMessage, done <-chan struct{}, log *slog.Logger) {
	defer close(inbound)
	for {
		var msg inboundMessage
		if err := wsjson.Read(ctx, c, &msg); err != nil {
			if websocket.CloseStatus(err) == -1 {
				log.Debug("websocket read ended", "error", err)
			}
			err := l.Abandon(sess.ID())
			if err != nil && !errors.Is(err, session.ErrPrecondition) && !errors.Is(err, learner.ErrSessionNotFound) {
				log.Warn("failed to abandon session on disconnect", "error", err)
			}
			return
		}
		select {
		case inbound <- msg:
		case <-done:
			return
		}
	}
}

func writeFrame(ctx context.Context, c *websocket.Conn, msg outboundMessage) error {
	ctx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return wsjson.Write(ctx, c, msg)
}
