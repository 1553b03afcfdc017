package realtime

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Transport opens a one-way server-to-client stream for a set of channels.
// It exists as an interface so the reconnect loop can be tested against a
// scripted fake instead of a live SSE endpoint.
type Transport interface {
	Open(ctx context.Context, channels []string, token string) (Stream, error)
}

// Stream yields raw event frames until the underlying connection closes.
type Stream interface {
	// Recv blocks until the next frame or a transport error. io.EOF and any
	// other error both mean the stream is finished.
	Recv() ([]byte, error)
	Close() error
}

// SSETransport consumes the upstream server-sent-events push endpoint:
// GET {baseURL}/api/transmit?channels=<comma-separated>&token=<bearer>.
type SSETransport struct {
	BaseURL string
	Client  *http.Client
}

func NewSSETransport(baseURL string) *SSETransport {
	return &SSETransport{
		BaseURL: strings.TrimRight(baseURL, "/"),
		// No overall timeout: the stream is long-lived.
		Client: &http.Client{Timeout: 0},
	}
}

func (t *SSETransport) Open(ctx context.Context, channels []string, token string) (Stream, error) {
	q := url.Values{}
	q.Set("channels", strings.Join(channels, ","))
	q.Set("token", token)
	endpoint := t.BaseURL + "/api/transmit?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build push channel request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := t.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("open push channel: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("push channel returned status %d", resp.StatusCode)
	}

	return &sseStream{body: resp.Body, scanner: bufio.NewScanner(resp.Body)}, nil
}

// sseStream parses the text/event-stream framing: one or more "data:" lines
// terminated by a blank line form a single event.
type sseStream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
}

func (s *sseStream) Recv() ([]byte, error) {
	var data []string
	for s.scanner.Scan() {
		line := s.scanner.Text()
		switch {
		case line == "":
			if len(data) > 0 {
				return []byte(strings.Join(data, "\n")), nil
			}
			// Blank line with no pending data: heartbeat separator, keep reading.
		case strings.HasPrefix(line, "data:"):
			data = append(data, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		case strings.HasPrefix(line, ":"):
			// SSE comment line, ignored.
		default:
			// Field lines other than data (event:, id:, retry:) are not used
			// by the upstream; ignore them.
		}
	}
	if err := s.scanner.Err(); err != nil {
		return nil, err
	}
	if len(data) > 0 {
		return []byte(strings.Join(data, "\n")), nil
	}
	return nil, io.EOF
}

func (s *sseStream) Close() error {
	return s.body.Close()
}

// sleeper abstracts timer waits so backoff can be tested without real delays.
type sleeper func(ctx context.Context, d time.Duration) error

func realSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
