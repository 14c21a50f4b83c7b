package sse

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPipeRelaysFramesAsEvents(t *testing.T) {
	frames := make(chan []byte, 2)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = Pipe(w, r, frames, time.Hour)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	frames <- []byte(`{"type":"notification","data":{"id":1}}`)
	frames <- []byte(`{"data":2}`)
	close(frames)

	sc := bufio.NewScanner(resp.Body)
	var lines []string
	for sc.Scan() {
		if line := sc.Text(); line != "" {
			lines = append(lines, line)
		}
	}
	require.Len(t, lines, 4)
	assert.Equal(t, "event: notification", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], `data: {"type":"notification"`))
	assert.Equal(t, "event: message", lines[2])
	assert.Equal(t, `data: {"data":2}`, lines[3])
}

func TestEventName(t *testing.T) {
	assert.Equal(t, "message", eventName([]byte("not json")))
	assert.Equal(t, "error", eventName([]byte(`{"type":"error"}`)))
}
