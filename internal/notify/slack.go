package notify

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/pkg/errors"
)

// SlackSink posts to an incoming webhook.
type SlackSink struct {
	webhook string
	http    *http.Client
}

func NewSlack(webhook string) *SlackSink {
	return &SlackSink{
		webhook: webhook,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

func (s *SlackSink) Send(ctx context.Context, msg string) error {
	body, err := sonic.Marshal(map[string]string{"text": msg})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhook, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "slack request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		return errors.Wrap(err, "slack post")
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("slack webhook: http %d: %s", resp.StatusCode, b)
	}
	return nil
}
