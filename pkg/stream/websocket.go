package stream

import (
	"fmt"
	"io"
	"time"

	"github.com/gorilla/websocket"

	"github.com/anirudhbiyani/ping-service/pkg/probe"
)

const writeWait = 10 * time.Second

// WriteWebSocket sends each result as one text frame, in arrival order,
// then closes the stream with a normal closure. It returns the number of
// records sent.
func WriteWebSocket(conn *websocket.Conn, results <-chan probe.Result, opts ...Option) (int, error) {
	e := NewEncoder(io.Discard, opts...)
	n := 0
	for r := range results {
		line := e.line(r)
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteMessage(websocket.TextMessage, line[:len(line)-1]); err != nil {
			return n, fmt.Errorf("write frame: %w", err)
		}
		n++
	}

	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "done")
	if err := conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait)); err != nil {
		return n, fmt.Errorf("write close: %w", err)
	}
	return n, nil
}
