package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/knowandlove/classquiz-go/logger"
	"github.com/knowandlove/classquiz-go/models"
	"github.com/knowandlove/classquiz-go/protocol"
)

// Package-level WebSocket upgrader
var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins
	},
}

const writeWait = 10 * time.Second

// conn tracks one admitted connection's game state
type wsConn struct {
	ws        *websocket.Conn
	playerID  string
	sessionID string
}

// WebSocketHandler is the real-time upgrade path: admission check first,
// then ticket validation, then the upgrade itself. Both refusals answer
// the client generically while the specific reason is logged; the caller
// has no business learning which check failed.
func (h *Handler) WebSocketHandler(c *gin.Context) {
	origin := c.ClientIP()

	admitted, reason := h.admission.TryAdmit(origin)
	if !admitted {
		logger.L.Warn("connection refused",
			zap.String("origin", origin),
			zap.String("reason", reason),
		)
		standardResponse(c, http.StatusServiceUnavailable, "error", nil, "connection refused")
		return
	}
	// The slot is released on every exit path from here on
	defer h.admission.Release(origin)

	result := h.tickets.Validate(c.Query("ticket"))
	if !result.Valid {
		logger.L.Warn("upgrade rejected: invalid ticket", zap.String("origin", origin))
		standardResponse(c, http.StatusUnauthorized, "error", nil, "unauthorized")
		return
	}

	ws, err := wsUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.L.Warn("upgrade failed", zap.String("origin", origin), zap.Error(err))
		return
	}
	defer ws.Close()

	conn := &wsConn{
		ws:        ws,
		playerID:  result.SubjectID,
		sessionID: result.SessionID,
	}
	if conn.playerID == "" {
		conn.playerID = uuid.New().String()
	}

	h.readLoop(c.Request.Context(), conn)

	// Transient disconnect: keep the player record so they can reconnect
	if conn.sessionID != "" {
		if err := h.sessions.UpdatePlayer(context.Background(), conn.sessionID, conn.playerID,
			func(p *models.Player) {
				p.Connected = false
				p.LastSeen = time.Now().UTC()
			}); err != nil {
			logger.L.Warn("marking player disconnected failed",
				zap.String("session_id", conn.sessionID),
				zap.String("player_id", conn.playerID),
				zap.Error(err),
			)
		}
	}
}

// readLoop processes inbound messages in arrival order until the client
// goes away or stays idle past the grace period
func (h *Handler) readLoop(ctx context.Context, conn *wsConn) {
	for {
		if err := conn.ws.SetReadDeadline(time.Now().Add(h.idleTimeout)); err != nil {
			return
		}

		_, raw, err := conn.ws.ReadMessage()
		if err != nil {
			return
		}

		msg, err := protocol.Validate(raw)
		if err != nil {
			// Validation failures are user-correctable; report the
			// reason and keep the connection
			h.sendEvent(conn, models.Event{
				Type:    models.EventTypeError,
				Payload: gin.H{"reason": err.Error()},
			})
			continue
		}

		if done := h.dispatch(ctx, conn, msg); done {
			return
		}
	}
}

// dispatch applies one validated message; true means close the connection
func (h *Handler) dispatch(ctx context.Context, conn *wsConn, msg *protocol.Message) bool {
	switch msg.Type {
	case models.MsgJoinGame:
		h.handleJoin(ctx, conn, msg.Payload.(*protocol.JoinGamePayload))
	case models.MsgSubmitAnswer:
		h.handleAnswer(ctx, conn, msg.Payload.(*protocol.SubmitAnswerPayload))
	case models.MsgPlayerReady:
		h.handleReady(ctx, conn)
	case models.MsgStartGame:
		h.handlePhase(ctx, conn, models.MsgStartGame)
	case models.MsgNextQuestion:
		h.handlePhase(ctx, conn, models.MsgNextQuestion)
	case models.MsgLeaveGame:
		h.handleLeave(ctx, conn)
		return true
	case models.MsgHeartbeat:
		// Deadline already pushed forward by the read; nothing else to do
	}
	return false
}

func (h *Handler) handleJoin(ctx context.Context, conn *wsConn, payload *protocol.JoinGamePayload) {
	id, err := h.sessions.ResolveByJoinCode(ctx, payload.GameCode)
	if err != nil {
		h.sendError(conn, "game not found")
		return
	}

	sess, err := h.sessions.Load(ctx, id)
	if err != nil {
		h.sendError(conn, "game not found")
		return
	}

	// Reconnection: a ticket bound to an existing player resumes it
	if existing, ok := sess.Players[conn.playerID]; ok {
		existing.Connected = true
		existing.LastSeen = time.Now().UTC()
	} else {
		if sess.Status != models.StatusLobby {
			h.sendError(conn, models.ErrGameNotJoinable.Error())
			return
		}
		if !sess.AddPlayer(conn.playerID, payload.PlayerName) {
			h.sendError(conn, models.ErrPlayerExists.Error())
			return
		}
	}

	if err := h.sessions.Save(ctx, sess); err != nil {
		logger.L.Error("saving session after join failed",
			zap.String("session_id", sess.ID),
			zap.Error(err),
		)
		h.sendError(conn, "could not join game")
		return
	}

	conn.sessionID = sess.ID

	h.sendEvent(conn, models.Event{Type: models.EventTypeJoined, Payload: sess})
}

func (h *Handler) handleAnswer(ctx context.Context, conn *wsConn, payload *protocol.SubmitAnswerPayload) {
	if conn.sessionID == "" {
		h.sendError(conn, "join a game first")
		return
	}

	// Timestamp at arrival; "who answered first" must never depend on
	// which process's write lands last
	receivedAt := time.Now().UTC()

	sess, err := h.sessions.Load(ctx, conn.sessionID)
	if err != nil {
		h.sendError(conn, models.ErrSessionNotFound.Error())
		return
	}

	if !sess.SubmitAnswer(conn.playerID, payload.QuestionID, payload.AnswerID, receivedAt) {
		h.sendError(conn, "answer not accepted")
		return
	}

	if err := h.sessions.Save(ctx, sess); err != nil {
		logger.L.Error("saving answer failed",
			zap.String("session_id", sess.ID),
			zap.String("player_id", conn.playerID),
			zap.Error(err),
		)
		h.sendError(conn, "could not record answer")
		return
	}

	h.sendEvent(conn, models.Event{
		Type:    models.EventTypeAnswerReceived,
		Payload: gin.H{"questionId": payload.QuestionID},
	})
}

func (h *Handler) handleReady(ctx context.Context, conn *wsConn) {
	if conn.sessionID == "" {
		h.sendError(conn, "join a game first")
		return
	}

	err := h.sessions.UpdatePlayer(ctx, conn.sessionID, conn.playerID, func(p *models.Player) {
		p.Ready = true
		p.LastSeen = time.Now().UTC()
	})
	if err != nil {
		h.sendError(conn, err.Error())
		return
	}

	h.sendEvent(conn, models.Event{Type: models.EventTypePlayerReady})
}

// handlePhase applies host-only phase transitions (start, next question)
func (h *Handler) handlePhase(ctx context.Context, conn *wsConn, msgType string) {
	if conn.sessionID == "" {
		h.sendError(conn, "join a game first")
		return
	}

	sess, err := h.sessions.Load(ctx, conn.sessionID)
	if err != nil {
		h.sendError(conn, models.ErrSessionNotFound.Error())
		return
	}

	// The first player to join hosts the game
	if len(sess.PlayerOrder) == 0 || sess.PlayerOrder[0] != conn.playerID {
		h.sendError(conn, "only the host can do that")
		return
	}

	var (
		ok        bool
		eventType string
	)
	switch msgType {
	case models.MsgStartGame:
		ok = sess.Start()
		eventType = models.EventTypeGameStarted
	case models.MsgNextQuestion:
		ok = sess.Advance()
		eventType = models.EventTypeQuestionAdvanced
	}
	if !ok {
		h.sendError(conn, "invalid phase transition")
		return
	}

	if err := h.sessions.Save(ctx, sess); err != nil {
		logger.L.Error("saving phase transition failed",
			zap.String("session_id", sess.ID),
			zap.Error(err),
		)
		h.sendError(conn, "could not update game")
		return
	}

	h.sendEvent(conn, models.Event{Type: eventType, Payload: gin.H{
		"currentQuestion":   sess.CurrentQuestion,
		"questionStartedAt": sess.QuestionStartedAt,
	}})
}

func (h *Handler) handleLeave(ctx context.Context, conn *wsConn) {
	if conn.sessionID == "" {
		return
	}

	sess, err := h.sessions.Load(ctx, conn.sessionID)
	if err != nil {
		return
	}

	if sess.RemovePlayer(conn.playerID) {
		if len(sess.Players) == 0 {
			sess.Finish()
		}
		if err := h.sessions.Save(ctx, sess); err != nil {
			logger.L.Error("saving session after leave failed",
				zap.String("session_id", sess.ID),
				zap.Error(err),
			)
		}
		// Save republishes only current players; drop the leaver's
		// lookup so it cannot route them back here until TTL
		if err := h.sessions.RemovePlayerMapping(ctx, conn.playerID); err != nil {
			logger.L.Warn("removing player mapping failed",
				zap.String("player_id", conn.playerID),
				zap.Error(err),
			)
		}
	}

	// Explicit leave removes the player; no reconnect expected
	conn.sessionID = ""
}

func (h *Handler) sendEvent(conn *wsConn, event models.Event) {
	_ = conn.ws.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.ws.WriteJSON(event); err != nil {
		logger.L.Debug("write failed", zap.String("player_id", conn.playerID), zap.Error(err))
	}
}

func (h *Handler) sendError(conn *wsConn, reason string) {
	h.sendEvent(conn, models.Event{
		Type:    models.EventTypeError,
		Payload: gin.H{"reason": reason},
	})
}
