package api

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"CandleSense/internal/domain/models"
	"CandleSense/internal/service/metrics"
	xhttp "CandleSense/pkg/http"
	applogger "CandleSense/pkg/logger"
)

const (
	msgConnected     = "CONNECTION_ESTABLISHED"
	msgCandlesUpdate = "CANDLES_UPDATE"
	msgPrediction    = "PREDICTION"
	msgPing          = "PING"
	msgPong          = "PONG"
	msgError         = "ERROR"

	wsReadLimit   = 2 << 20
	wsIdleTimeout = 5 * time.Minute
	wsWriteWait   = 10 * time.Second
)

type wsMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type wsReply struct {
	Type string      `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

type wsError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Stream upgrades to a websocket. Each CANDLES_UPDATE is stored and answered with a
// PREDICTION; PING is answered with PONG. Replies are written by the reading goroutine only.
func (h *Handler) Stream(c echo.Context) error {
	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", applogger.Error(err))
		return nil
	}
	id := uuid.NewString()
	log := h.log.With(applogger.String("conn_id", id))
	h.wsActive.Add(1)
	metrics.WSConnections.Inc()
	defer func() {
		_ = conn.Close()
		h.wsActive.Add(-1)
		metrics.WSConnections.Dec()
		log.Debug("websocket closed")
	}()
	conn.SetReadLimit(wsReadLimit)
	log.Debug("websocket opened", applogger.String("remote", c.RealIP()))

	ctx := c.Request().Context()
	if err := h.write(conn, wsReply{Type: msgConnected, Data: map[string]interface{}{
		"connection_id": id,
		"timestamp":     h.now(),
	}}); err != nil {
		return nil
	}
	for {
		_ = conn.SetReadDeadline(time.Now().Add(wsIdleTimeout))
		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warn("websocket read failed", applogger.Error(err))
			}
			return nil
		}
		if err := h.write(conn, h.handleMessage(ctx, id, msg)); err != nil {
			log.Warn("websocket write failed", applogger.Error(err))
			return nil
		}
	}
}

func (h *Handler) handleMessage(ctx context.Context, connID string, msg wsMessage) wsReply {
	start := time.Now()
	switch msg.Type {
	case msgPing:
		return wsReply{Type: msgPong, Data: map[string]interface{}{"timestamp": h.now()}}
	case msgCandlesUpdate:
		if !h.wsLimiter.Allow(connID) {
			h.track("ws_predict", start, 429)
			e := xhttp.TooManyRequestsError("too many updates")
			return errorReply(e.Code, e.Message)
		}
		req := &models.IngestCandlesRequest{}
		if err := json.Unmarshal(msg.Data, req); err != nil {
			h.track("ws_predict", start, 400)
			return errorReply("ERR_BAD_REQUEST", "malformed candles update")
		}
		if verrs := xhttp.ValidateStruct(ctx, req); len(verrs) > 0 {
			h.track("ws_predict", start, 400)
			return errorReply("ERR_BAD_REQUEST", verrs[0].Message)
		}
		out, err := h.predict(ctx, "ws", req.Symbol, req.Candles, 0)
		if err != nil {
			appErr := toAppError(err)
			h.track("ws_predict", start, appErr.Status)
			return errorReply(appErr.Code, appErr.Message)
		}
		h.track("ws_predict", start, 200)
		return wsReply{Type: msgPrediction, Data: out}
	default:
		return errorReply("ERR_UNKNOWN_TYPE", "unknown message type "+msg.Type)
	}
}

func (h *Handler) write(conn *websocket.Conn, reply wsReply) error {
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return conn.WriteJSON(reply)
}

func errorReply(code, message string) wsReply {
	return wsReply{Type: msgError, Data: wsError{Code: code, Message: message}}
}
