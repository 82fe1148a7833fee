package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/victornm/quizgrade/internal/domain"
	"github.com/victornm/quizgrade/internal/leaderboard"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// StreamLeaderboard upgrades to a websocket, sends the current ranking of
// the session and then relays every leaderboard update published for it.
// Every frame is a Notification. While the session still hides its scores
// the request is answered with {"openAfter": ...} and not upgraded.
func (a *API) StreamLeaderboard(c *gin.Context) {
	ctx := c.Request.Context()
	name := c.Param("name")

	// Subscribe before the snapshot so no update falls in between.
	ps := a.redis.Subscribe(ctx, a.sessionChannel(name))
	defer ps.Close()

	if _, err := ps.Receive(ctx); err != nil {
		writeError(c, err)
		return
	}

	resp, err := a.ls.GetLeaderboard(ctx, leaderboard.GetLeaderboardRequest{SessionName: name})
	if err != nil {
		writeError(c, err)
		return
	}

	if resp.Pending != nil {
		c.JSON(http.StatusOK, resp.Pending)
		return
	}
	l := resp.Leaderboard

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.WarnContext(ctx, "api: websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	if err := writeJSON(conn, Notification{Event: domain.EventNameLeaderboardUpdated, Data: toLeaderboard(*l)}); err != nil {
		return
	}

	// The client never sends anything we act on; reading only serves to
	// process control frames and to notice the disconnect.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	messages := ps.Channel()
	for {
		select {
		case msg, ok := <-messages:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, []byte(msg.Payload)); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-closed:
			return
		case <-ctx.Done():
			return
		}
	}
}

func writeJSON(conn *websocket.Conn, v any) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(v)
}
