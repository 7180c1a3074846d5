package transcripts

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/killallgit/echonote-api/api/types"
	"github.com/killallgit/echonote-api/internal/models"
	"github.com/killallgit/echonote-api/internal/services/notify"
	"github.com/killallgit/echonote-api/pkg/logging"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	eventBufferLen = 32
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// origin checks are left to CORS and the auth gateway
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Events streams status events of one of the caller's transcripts over a
// websocket. Buffered events after ?since=<seq> are replayed first. The
// socket closes after the terminal event.
// @Summary      Stream transcript status
// @Tags         transcripts
// @Param        X-User-ID header string true "Caller identity"
// @Param        id path string true "Job ID"
// @Param        since query int false "Replay events after this sequence number"
// @Success      101
// @Failure      404 {object} types.ErrorResponse "Not found"
// @Router       /api/v1/transcripts/{id}/events [get]
func Events(deps *types.Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		job, err := deps.JobService.GetUserJob(c.Request.Context(), types.UserID(c), c.Param("id"))
		if err != nil {
			types.SendError(c, err)
			return
		}

		var since int64
		if raw := c.Query("since"); raw != "" {
			since, err = strconv.ParseInt(raw, 10, 64)
			if err != nil || since < 0 {
				types.SendBadRequest(c, "Invalid since")
				return
			}
		}

		// subscribe before replaying so nothing falls in between
		live, unsubscribe := deps.Events.Subscribe(job.ID, eventBufferLen)
		defer unsubscribe()

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logging.Debugf("Websocket upgrade for job %s failed: %v", job.ID, err)
			return
		}
		defer conn.Close()

		closed := readPump(conn)

		last := since
		send := func(e notify.StatusEvent) bool {
			if e.Seq != 0 && e.Seq <= last {
				return true
			}
			if e.Seq > last {
				last = e.Seq
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			return conn.WriteJSON(e) == nil
		}

		for _, e := range deps.Events.Since(job.ID, since) {
			if !send(e) {
				return
			}
			if e.Terminal() {
				closeNormal(conn)
				return
			}
		}

		// the bus may no longer hold the terminal event of an old job
		if job.IsTerminal() {
			send(snapshot(job))
			closeNormal(conn)
			return
		}

		ping := time.NewTicker(pingPeriod)
		defer ping.Stop()

		for {
			select {
			case e, ok := <-live:
				if !ok {
					return
				}
				if !send(e) {
					return
				}
				if e.Terminal() {
					closeNormal(conn)
					return
				}
			case <-ping.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
					return
				}
			case <-closed:
				return
			case <-c.Request.Context().Done():
				return
			}
		}
	}
}

// readPump discards client messages and reports when the peer goes away
func readPump(conn *websocket.Conn) <-chan struct{} {
	closed := make(chan struct{})
	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
	return closed
}

func closeNormal(conn *websocket.Conn) {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "job finished")
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
}

func snapshot(job *models.TranscriptJob) notify.StatusEvent {
	return notify.StatusEvent{
		Timestamp: job.UpdatedAt,
		JobID:     job.ID,
		UserID:    job.UserID,
		Status:    job.Status,
		Progress:  job.Progress,
		Message:   job.Error,
		ErrorKind: job.ErrorKind,
	}
}
