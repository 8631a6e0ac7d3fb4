package httptransport

import (
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
)

const (
	wsWriteWait    = 10 * time.Second
	wsPingInterval = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// StreamProgress godoc
// @Summary Stream job progress over a websocket
// @Description Sends the current snapshot, then every change, and closes after a terminal status.
// @Tags jobs
// @Param id path string true "job id"
// @Success 101
// @Failure 404 {object} apiError
// @Router /jobs/{id}/ws [get]
func (h *Handler) StreamProgress(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := h.jobSvc.Status(id); err != nil {
		writeErr(w, errorStatus(err), "job not found")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[ws] job_id=%s upgrade error=%v", id, err)
		return
	}
	defer conn.Close()

	// subscribe before reading the snapshot so no update falls in between
	sub := h.hub.Subscribe(id)
	defer sub.Close()

	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	job, err := h.jobSvc.Status(id)
	if err != nil {
		closeWS(conn, websocket.CloseNormalClosure, "job not found")
		return
	}
	if !h.send(conn, toProgress(job)) || job.Status.Terminal() {
		closeWS(conn, websocket.CloseNormalClosure, string(job.Status))
		return
	}

	ping := time.NewTicker(wsPingInterval)
	defer ping.Stop()

	for {
		select {
		case <-gone:
			return
		case job := <-sub.C:
			if !h.send(conn, toProgress(job)) {
				return
			}
			if job.Status.Terminal() {
				closeWS(conn, websocket.CloseNormalClosure, string(job.Status))
				return
			}
		case <-ping.C:
			if _, err := h.jobSvc.Status(id); err != nil {
				closeWS(conn, websocket.CloseNormalClosure, "job not found")
				return
			}
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return
			}
		}
	}
}

func (h *Handler) send(conn *websocket.Conn, msg progressResp) bool {
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	if err := conn.WriteJSON(msg); err != nil {
		log.Printf("[ws] job_id=%s write error=%v", msg.JobID, err)
		return false
	}
	return true
}

func closeWS(conn *websocket.Conn, code int, text string) {
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, text), time.Now().Add(wsWriteWait))
}
