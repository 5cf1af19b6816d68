package e2e

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/refinehq/refinery/pkg/events"
)

// SSEStream is an open streaming refinement request. Events are read
// one frame at a time; Abort drops the connection mid-run the way a
// disconnecting client would.
type SSEStream struct {
	resp   *http.Response
	reader *bufio.Reader
	cancel context.CancelFunc
}

// OpenStream posts to the streaming endpoint and returns the open
// stream once response headers arrive. Closing is registered via
// t.Cleanup; tests that abandon the run early call Abort themselves.
func (app *TestApp) OpenStream(t *testing.T, body interface{}) *SSEStream {
	t.Helper()

	data, err := json.Marshal(body)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		app.BaseURL+"/api/refine-requirements/stream", bytes.NewReader(data))
	if err != nil {
		cancel()
		require.NoError(t, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		cancel()
		require.NoError(t, err)
	}
	require.Equal(t, http.StatusOK, resp.StatusCode, "stream request rejected")
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	s := &SSEStream{
		resp:   resp,
		reader: bufio.NewReader(resp.Body),
		cancel: cancel,
	}
	t.Cleanup(s.Abort)
	return s
}

// StreamRefine posts to the streaming endpoint and collects every event
// until the server closes the stream.
func (app *TestApp) StreamRefine(t *testing.T, body interface{}) []events.Event {
	t.Helper()
	s := app.OpenStream(t, body)
	defer s.Abort()
	return s.Collect(t)
}

// Next reads one event frame. It fails the test if the frame does not
// arrive within 10 seconds.
func (s *SSEStream) Next(t *testing.T) events.Event {
	t.Helper()

	type frame struct {
		ev  events.Event
		err error
	}
	ch := make(chan frame, 1)
	go func() {
		ev, err := s.readEvent()
		ch <- frame{ev, err}
	}()

	select {
	case f := <-ch:
		require.NoError(t, f.err, "reading SSE frame")
		return f.ev
	case <-time.After(10 * time.Second):
		t.Fatal("timed out waiting for SSE frame")
		return events.Event{}
	}
}

// Collect reads event frames until the server ends the stream.
func (s *SSEStream) Collect(t *testing.T) []events.Event {
	t.Helper()
	var out []events.Event
	for {
		ev, err := s.readEvent()
		if err == io.EOF {
			return out
		}
		require.NoError(t, err, "reading SSE frame (collected %d)", len(out))
		out = append(out, ev)
	}
}

// Abort cancels the request and closes the response body, simulating a
// client that walked away mid-stream. Safe to call more than once.
func (s *SSEStream) Abort() {
	s.cancel()
	_ = s.resp.Body.Close()
}

// readEvent parses one "data: <json>" frame, skipping blank separator
// lines. io.EOF means the server closed the stream cleanly.
func (s *SSEStream) readEvent() (events.Event, error) {
	for {
		line, err := s.reader.ReadString('\n')
		if err != nil {
			if err == io.EOF && strings.TrimSpace(line) == "" {
				return events.Event{}, io.EOF
			}
			return events.Event{}, err
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			continue
		}
		payload, ok := strings.CutPrefix(line, "data: ")
		if !ok {
			return events.Event{}, fmt.Errorf("unexpected SSE line %q", line)
		}
		var ev events.Event
		if err := json.Unmarshal([]byte(payload), &ev); err != nil {
			return events.Event{}, fmt.Errorf("decoding SSE payload: %w", err)
		}
		return ev, nil
	}
}
