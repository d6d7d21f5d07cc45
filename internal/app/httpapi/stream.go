package httpapi

import (
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/dasudiy/scratchpadsharp/internal/scratch/runner"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// The scratchpad UI and the API are served from one origin.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// streamMessage is one frame on the execution stream.
type streamMessage struct {
	Type   string       `json:"type"` // "output", "value", or "result"
	Text   string       `json:"text,omitempty"`
	Label  string       `json:"label,omitempty"`
	Value  interface{}  `json:"value,omitempty"`
	Result *runResponse `json:"result,omitempty"`
}

// wsWriter serializes frames onto one connection. Fragments arrive on the
// execution's goroutine while the final result is written from the handler's,
// so every write goes through the mutex.
type wsWriter struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (w *wsWriter) send(msg streamMessage) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.conn.WriteJSON(msg)
}

// streamExecution upgrades to WebSocket, reads a single run request, and
// streams output fragments as they are produced, closing with the final
// result frame. Output appears incrementally during long-running scripts;
// that is the endpoint's reason to exist.
func (h *handler) streamExecution(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Warn("websocket upgrade failed")
		return
	}
	defer conn.Close()
	writer := &wsWriter{conn: conn}

	var payload runRequest
	if err := conn.ReadJSON(&payload); err != nil {
		_ = writer.send(streamMessage{Type: "result", Result: &runResponse{
			Success: false,
			Error:   "malformed run request: " + err.Error(),
		}})
		return
	}

	obs := runner.Observers{
		OnOutputFragment: func(text string) {
			_ = writer.send(streamMessage{Type: "output", Text: text})
		},
		OnStructuredValue: func(value interface{}, label string) {
			_ = writer.send(streamMessage{Type: "value", Value: value, Label: label})
		},
	}

	res, rec, err := h.svc.Run(r.Context(), r.RemoteAddr, payload.toDomain(), obs)
	if err != nil {
		_ = writer.send(streamMessage{Type: "result", Result: &runResponse{
			Success: false,
			Error:   err.Error(),
		}})
		return
	}

	_ = writer.send(streamMessage{Type: "result", Result: &runResponse{
		ID:          rec.ID,
		Success:     res.Success,
		Output:      res.Output,
		ReturnValue: res.ReturnValue,
		Error:       res.Error,
		Diagnostics: res.Diagnostics,
		DurationMS:  res.Duration.Milliseconds(),
	}})
}
