package handlers

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/snappy-loop/snippets/internal/models"
)

const (
	progressWSReadLimit = 4 << 10
	progressWSIdle      = 60 * time.Minute
)

var progressWSUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// progressWSMessage is the JSON shape sent to the client.
type progressWSMessage struct {
	Type  string        `json:"type"` // status or event
	Run   *models.Run   `json:"run,omitempty"`
	Event *models.Event `json:"event,omitempty"`
}

// RunProgressWS handles GET /v1/runs/{id}/ws. The first message is the current run status;
// stage events follow until the run finishes or the client goes away.
func (h *Handler) RunProgressWS(w http.ResponseWriter, r *http.Request) {
	runID, ok := parseRunID(w, r)
	if !ok {
		return
	}
	// Subscribe before reading the snapshot so no event is lost in between.
	var events <-chan models.Event
	if h.progress != nil {
		ch, unsubscribe := h.progress.Subscribe(runID)
		defer unsubscribe()
		events = ch
	}

	status, err := h.runs.Get(r.Context(), runID)
	if err != nil {
		writeServiceError(w, err, "Failed to get run")
		return
	}
	if status.Run.Terminal() {
		events = nil
	}

	conn, err := progressWSUpgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("progress ws upgrade failed")
		return
	}
	defer conn.Close()

	if err := writeWSJSON(conn, progressWSMessage{Type: "status", Run: &status.Run}); err != nil {
		return
	}
	if events == nil {
		closeWS(conn)
		return
	}

	gone := make(chan struct{})
	go func() {
		defer close(gone)
		conn.SetReadLimit(progressWSReadLimit)
		conn.SetReadDeadline(time.Now().Add(progressWSIdle))
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
			conn.SetReadDeadline(time.Now().Add(progressWSIdle))
		}
	}()

	for {
		select {
		case <-gone:
			return
		case ev, ok := <-events:
			if !ok {
				closeWS(conn)
				return
			}
			if err := writeWSJSON(conn, progressWSMessage{Type: "event", Event: &ev}); err != nil {
				log.Debug().Err(err).Str("run_id", runID.String()).Msg("progress ws write")
				return
			}
			if ev.Final() {
				closeWS(conn)
				return
			}
		}
	}
}

func writeWSJSON(conn *websocket.Conn, v any) error {
	conn.SetWriteDeadline(time.Now().Add(30 * time.Second))
	return conn.WriteJSON(v)
}

func closeWS(conn *websocket.Conn) {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "done")
	conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(5*time.Second))
}
