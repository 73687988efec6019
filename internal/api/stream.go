package api

import (
	"encoding/json"
	"io"
	"log"
	"net"
	"net/http"
	"sync"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/ventline/vent-app/internal/chat"
	"github.com/ventline/vent-app/internal/metrics"
	"github.com/ventline/vent-app/internal/protocol"
	"github.com/ventline/vent-app/internal/ratelimit"
	apperrors "github.com/ventline/vent-app/pkg/errors"
)

// streamConn wraps a WebSocket connection with a write mutex so the NATS
// delivery goroutine and the read loop's pong replies never interleave
// frame bytes.
type streamConn struct {
	conn    net.Conn
	writeMu sync.Mutex
}

func (c *streamConn) writeFrame(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return wsutil.WriteServerMessage(c.conn, ws.OpText, data)
}

func (c *streamConn) writeError(code apperrors.Code, message string) {
	data, err := protocol.NewServerFrame(protocol.TypeError, protocol.ErrorFrame{
		Code: string(code), Message: message,
	})
	if err != nil {
		return
	}
	_ = c.writeFrame(data)
}

// handleStream upgrades to WebSocket and streams a session's messages to
// one participant: the live subscription is attached first, then the full
// ordered history is sent as a single snapshot frame, then live events
// follow. An event published between attach and snapshot can appear in
// both; clients de-duplicate by message id. Taken the other way around the
// stream could miss messages entirely, which is the worse failure.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")
	userID := r.URL.Query().Get("user_id")
	if sessionID == "" || userID == "" {
		writeError(w, apperrors.InvalidArg("session_id and user_id are required"))
		return
	}

	if s.limiter != nil {
		if ok, _ := s.limiter.Allow(r.Context(), userID, ratelimit.RuleStream); !ok {
			writeError(w, apperrors.ErrRateLimited)
			return
		}
	}

	// Validate membership before hijacking so failures are plain HTTP.
	sess, err := s.core.GetSession(r.Context(), sessionID)
	if err != nil {
		writeError(w, err)
		return
	}
	if !sess.IsParticipant(userID) {
		writeError(w, apperrors.ErrNotParticipant)
		return
	}

	conn, _, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		log.Printf("[stream] upgrade session=%s user=%s: %v", sessionID, userID, err)
		return
	}

	sc := &streamConn{conn: conn}
	metrics.StreamSubscribers.Inc()
	log.Printf("[stream] attached session=%s user=%s", sessionID, userID)

	done := make(chan struct{})
	var closeOnce sync.Once
	closeStream := func() {
		closeOnce.Do(func() {
			close(done)
			conn.Close()
			metrics.StreamSubscribers.Dec()
			log.Printf("[stream] detached session=%s user=%s", sessionID, userID)
		})
	}

	// Subscribe before the snapshot so nothing falls in a gap.
	unsubscribe, err := s.core.SubscribeEvents(r.Context(), sessionID, userID, func(ev chat.Event) {
		select {
		case <-done:
			return
		default:
		}

		var data []byte
		var buildErr error
		switch ev.Type {
		case chat.EventMessage:
			if ev.Message == nil {
				return
			}
			data, buildErr = protocol.NewServerFrame(protocol.TypeMessage, protocol.MessageFrame{
				Message: *ev.Message,
			})
		case chat.EventSessionEnded:
			data, buildErr = protocol.NewServerFrame(protocol.TypeSessionEnded, protocol.SessionEndedFrame{
				EndedBy: ev.EndedBy,
			})
		default:
			return
		}
		if buildErr != nil {
			log.Printf("[stream] build frame session=%s: %v", sessionID, buildErr)
			return
		}
		if err := sc.writeFrame(data); err != nil {
			closeStream()
		}
	})
	if err != nil {
		sc.writeError(apperrors.CodeOf(err), err.Error())
		closeStream()
		return
	}

	history, err := s.core.GetMessages(r.Context(), sessionID)
	if err != nil {
		sc.writeError(apperrors.CodeOf(err), err.Error())
		unsubscribe()
		closeStream()
		return
	}
	snapshot, err := protocol.NewServerFrame(protocol.TypeHistory, protocol.HistoryFrame{
		Messages: history,
	})
	if err == nil {
		if err := sc.writeFrame(snapshot); err != nil {
			unsubscribe()
			closeStream()
			return
		}
	}

	// Read loop: the client only sends keepalive pings; anything else is
	// answered with an error frame. EOF or a read error means the client
	// is gone and the subscription must be released.
	go func() {
		defer func() {
			unsubscribe()
			closeStream()
		}()

		for {
			data, err := wsutil.ReadClientText(conn)
			if err != nil {
				if err != io.EOF {
					log.Printf("[stream] read session=%s user=%s: %v", sessionID, userID, err)
				}
				return
			}

			var env protocol.Envelope
			if err := json.Unmarshal(data, &env); err != nil {
				sc.writeError(apperrors.CodeInvalidArgument, "invalid frame")
				continue
			}

			if env.Type == protocol.TypePing {
				pong, err := protocol.NewServerFrame(protocol.TypePong, protocol.PongFrame{})
				if err == nil {
					_ = sc.writeFrame(pong)
				}
				continue
			}

			sc.writeError(apperrors.CodeInvalidArgument, "unsupported frame type")
		}
	}()
}
