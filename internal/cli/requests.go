package cli

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/roach88/khatm/internal/engine"
	"github.com/roach88/khatm/internal/mutation"
)

// maxLineBytes bounds one JSON-lines request.
const maxLineBytes = 1 << 20

// wireRequest is one decoded JSON line. ID is the optional "request_id"
// field; producers that may resend a line set it so the engine can drop the
// repeat.
type wireRequest struct {
	Line int
	ID   string
	Req  mutation.Request
}

// scanRequests calls fn for every non-blank, non-comment line of r. A line
// that fails to decode is passed with a nil request and its error.
func scanRequests(r io.Reader, fn func(w wireRequest, err error) error) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	n := 0
	for sc.Scan() {
		n++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}

		w, err := decodeLine(n, []byte(text))
		if err := fn(w, err); err != nil {
			return err
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("read requests: %w", err)
	}
	return nil
}

func decodeLine(n int, data []byte) (wireRequest, error) {
	w := wireRequest{Line: n}

	var id struct {
		RequestID string `json:"request_id"`
	}
	if err := json.Unmarshal(data, &id); err != nil {
		return w, fmt.Errorf("line %d: %w", n, err)
	}
	w.ID = id.RequestID

	req, err := mutation.Decode(data)
	if err != nil {
		return w, fmt.Errorf("line %d: %w", n, err)
	}
	w.Req = req
	return w, nil
}

// enqueue queues w, under its own request ID when it carries one.
func enqueue(e *engine.Engine, w wireRequest) (*engine.Ticket, error) {
	if w.ID != "" {
		return e.EnqueueWithID(w.Req, w.ID)
	}
	return e.Enqueue(w.Req)
}
