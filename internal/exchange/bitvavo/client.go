package bitvavo

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"scalper/internal/models"
)

const (
	defaultRESTURL = "https://api.bitvavo.com/v2"
	defaultWSURL   = "wss://ws.bitvavo.com/v2/"

	accessWindowMs = 10000
)

// HTTPTimeout bounds every REST call and the websocket handshake.
const HTTPTimeout = 10 * time.Second

type Config struct {
	RESTURL   string
	WSURL     string
	APIKey    string
	APISecret string
}

// Client talks to the Bitvavo REST and WebSocket APIs.
type Client struct {
	http     *http.Client
	wsDialer *websocket.Dialer

	restURL    string
	signPrefix string // path part of restURL, part of the signed message
	wsURL      string
	apiKey     string
	apiSecret  string

	log *zap.Logger
	now func() time.Time

	mu      sync.RWMutex
	markets map[string]models.Constraints

	onConn func(connected bool)
}

func NewClient(cfg Config, log *zap.Logger) (*Client, error) {
	if cfg.RESTURL == "" {
		cfg.RESTURL = defaultRESTURL
	}
	if cfg.WSURL == "" {
		cfg.WSURL = defaultWSURL
	}
	u, err := url.Parse(strings.TrimRight(cfg.RESTURL, "/"))
	if err != nil {
		return nil, errors.Wrap(err, "parse rest url")
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		http:       &http.Client{Timeout: HTTPTimeout},
		wsDialer:   &websocket.Dialer{HandshakeTimeout: HTTPTimeout},
		restURL:    u.String(),
		signPrefix: u.Path,
		wsURL:      cfg.WSURL,
		apiKey:     cfg.APIKey,
		apiSecret:  cfg.APISecret,
		log:        log,
		now:        time.Now,
		markets:    make(map[string]models.Constraints),
	}, nil
}

// OnConnectionChange registers a callback for the ticker stream state.
func (c *Client) OnConnectionChange(fn func(connected bool)) { c.onConn = fn }

func (c *Client) setConnected(v bool) {
	if c.onConn != nil {
		c.onConn(v)
	}
}

// sign returns hex(HMAC-SHA256(secret, timestamp+method+path+body)).
func (c *Client) sign(ts, method, path, body string) string {
	h := hmac.New(sha256.New, []byte(c.apiSecret))
	h.Write([]byte(ts + method + path + body))
	return hex.EncodeToString(h.Sum(nil))
}

func (c *Client) generateRequest(ctx context.Context, method, requestPath string, body []byte) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.restURL+requestPath, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	if c.apiKey != "" {
		ts := strconv.FormatInt(c.now().UnixMilli(), 10)
		req.Header.Set("Bitvavo-Access-Key", c.apiKey)
		req.Header.Set("Bitvavo-Access-Signature", c.sign(ts, method, c.signPrefix+requestPath, string(body)))
		req.Header.Set("Bitvavo-Access-Timestamp", ts)
		req.Header.Set("Bitvavo-Access-Window", strconv.Itoa(accessWindowMs))
	}
	return req, nil
}

// do sends the request and decodes a 2xx body into out.
func (c *Client) do(ctx context.Context, method, requestPath string, body []byte, out any) error {
	req, err := c.generateRequest(ctx, method, requestPath, body)
	if err != nil {
		return errors.Wrap(err, "build request")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrapf(err, "%s %s", method, requestPath)
	}
	defer resp.Body.Close()

	rb, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(err, "read body")
	}
	if resp.StatusCode/100 != 2 {
		apiErr := &APIError{Status: resp.StatusCode}
		if sonic.Unmarshal(rb, apiErr) != nil || apiErr.Message == "" {
			apiErr.Message = string(rb)
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	return errors.Wrap(sonic.Unmarshal(rb, out), "decode response")
}

func parseFloat(s string) (float64, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.ParseFloat(s, 64)
}
