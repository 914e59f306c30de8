package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/websocket"

	"github.com/heimgewebe/sichter/internal/eventlog"
	"github.com/heimgewebe/sichter/internal/stream"
)

const (
	defaultReplay    = 50
	defaultHeartbeat = 15 * time.Second
	minHeartbeat     = 3 * time.Second
	tailInterval     = time.Second
	writeTimeout     = 10 * time.Second
)

// handleEventsStream upgrades to a WebSocket and streams event lines as they
// append, surviving daily rotation. Each connection runs on its own handler
// goroutine, so blocking file reads never stall other clients.
func (s *Server) handleEventsStream(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || s.originAllowed(origin)
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		return
	}
	defer conn.Close()

	replay := intParam(r, "replay", defaultReplay)
	if replay < 1 {
		replay = 1
	}
	heartbeat := time.Duration(intParam(r, "heartbeat", int(defaultHeartbeat/time.Second))) * time.Second
	if heartbeat < minHeartbeat {
		heartbeat = minHeartbeat
	}

	// Reader pump: the client never sends data frames; reading surfaces
	// close frames and connection loss.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	send := func(line string) error {
		_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		return conn.WriteMessage(websocket.TextMessage, []byte(line))
	}

	// The tailer's cursor starts at the current end of the newest file;
	// snapshot it before replaying so no line is lost between the replay
	// read and the first loop pass.
	tailer := stream.NewTailer(s.paths.Events)
	if newest := tailer.Cursor().Path; newest != "" {
		for _, line := range eventlog.TailLines(newest, replay) {
			if err := send(line); err != nil {
				return
			}
		}
	}

	ticker := time.NewTicker(tailInterval)
	defer ticker.Stop()
	lastTraffic := time.Now()

	for {
		select {
		case <-done:
			return
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}

		lines, err := tailer.ReadNew()
		if err != nil {
			// Report to the client, then retry on the next tick.
			fmt.Fprintf(os.Stderr, "stream: %v\n", err)
			detail, _ := json.Marshal(map[string]string{
				"ts":     time.Now().UTC().Format(time.RFC3339),
				"type":   "error",
				"detail": err.Error(),
			})
			if send(string(detail)) != nil {
				return
			}
			lastTraffic = time.Now()
			continue
		}

		for _, line := range lines {
			if send(line) != nil {
				return
			}
		}
		if len(lines) > 0 {
			lastTraffic = time.Now()
		}

		if time.Since(lastTraffic) >= heartbeat {
			hb, _ := json.Marshal(map[string]string{
				"ts":   time.Now().UTC().Format(time.RFC3339),
				"type": "heartbeat",
			})
			if send(string(hb)) != nil {
				return
			}
			lastTraffic = time.Now()
		}
	}
}

