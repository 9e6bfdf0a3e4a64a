package chathub

import (
	"context"
	"time"

	"shelterchat/backend/internal/config"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// wsClient pumps frames between a WebSocket connection and its session.
type wsClient struct {
	conn    *websocket.Conn
	session *Session
	gateway *Gateway
}

// Serve runs a session over conn. It returns once both pumps are
// started; the connection is closed when either side goes away.
func (g *Gateway) Serve(ctx context.Context, conn *websocket.Conn, lang string) {
	s := NewSession(lang, config.SendBufferSize)
	if !g.hub.Register(s) {
		conn.Close()
		return
	}
	c := &wsClient{conn: conn, session: s, gateway: g}

	ctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	go c.writePump()
	go c.readPump(ctx, cancel)
}

func (c *wsClient) readPump(ctx context.Context, cancel context.CancelFunc) {
	defer func() {
		cancel()
		// closes the session; the write pump then closes the connection
		c.gateway.hub.Unregister(c.session)
	}()

	c.conn.SetReadLimit(config.MaxFrameSize)
	c.conn.SetReadDeadline(time.Now().Add(config.PongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(config.PongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.gateway.logger.Warn("websocket read failed", zap.String("session_id", c.session.ID), zap.Error(err))
			}
			return
		}
		if !c.gateway.Handle(ctx, c.session, data) {
			return
		}
	}
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(config.PingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.session.Outbound():
			c.conn.SetWriteDeadline(time.Now().Add(config.WriteWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(config.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
