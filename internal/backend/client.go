package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/cloudwego/hertz/pkg/app/client"
	"github.com/cloudwego/hertz/pkg/protocol"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	codeOK           = 200
	codeUnauthorized = 401

	RequestIDHeader = "X-Request-Id"
)

type Config struct {
	BaseURL   string
	APIPrefix string
	Timeout   time.Duration
}

// Client talks to the CryptoRate backend. Every call is bounded by Config.Timeout.
type Client struct {
	baseURL   string
	apiPrefix string
	timeout   time.Duration
	hc        *client.Client
	logger    *zap.Logger
}

type envelope struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

// New builds a client; mws run around every request in order (the auth guard goes here).
func New(cfg Config, logger *zap.Logger, mws ...client.Middleware) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("backend base url is empty")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	hc, err := client.NewClient(
		client.WithDialTimeout(cfg.Timeout),
		client.WithClientReadTimeout(cfg.Timeout),
	)
	if err != nil {
		return nil, fmt.Errorf("build http client: %w", err)
	}
	if len(mws) > 0 {
		hc.Use(mws...)
	}
	return &Client{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		apiPrefix: "/" + strings.Trim(cfg.APIPrefix, "/"),
		timeout:   cfg.Timeout,
		hc:        hc,
		logger:    logger,
	}, nil
}

// apiURL builds a URL under the versioned data prefix.
func (c *Client) apiURL(path string, query url.Values) string {
	prefix := c.apiPrefix
	if prefix == "/" {
		prefix = ""
	}
	return c.rootURL(prefix+path, query)
}

// rootURL builds a URL directly under the base (user endpoints live there).
func (c *Client) rootURL(path string, query url.Values) string {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

func (c *Client) get(ctx context.Context, op, uri string, out any) error {
	return c.do(ctx, op, consts.MethodGet, uri, nil, out)
}

func (c *Client) post(ctx context.Context, op, uri string, body, out any) error {
	return c.do(ctx, op, consts.MethodPost, uri, body, out)
}

func (c *Client) delete(ctx context.Context, op, uri string) error {
	return c.do(ctx, op, consts.MethodDelete, uri, nil, nil)
}

// do performs one round trip and decodes the {code,msg,data} envelope into out.
// A nil out accepts any payload, including null.
func (c *Client) do(ctx context.Context, op, method, uri string, body, out any) error {
	req := protocol.AcquireRequest()
	resp := protocol.AcquireResponse()
	defer protocol.ReleaseRequest(req)
	defer protocol.ReleaseResponse(resp)

	req.SetMethod(method)
	req.SetRequestURI(uri)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(RequestIDHeader, uuid.NewString())
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return &Error{Kind: KindBusiness, Op: op, Msg: "encode request", Err: err}
		}
		req.SetBody(payload)
	}

	if err := c.hc.DoTimeout(ctx, req, resp, c.timeout); err != nil {
		c.logger.Debug("backend request failed", zap.String("op", op), zap.Error(err))
		return &Error{Kind: KindNetwork, Op: op, Err: err}
	}

	status := resp.StatusCode()
	raw := resp.Body()
	if status == consts.StatusUnauthorized {
		return &Error{Kind: KindAuth, Op: op, Code: codeUnauthorized, Msg: envelopeMsg(raw)}
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return &Error{Kind: KindNetwork, Op: op, Code: status, Err: fmt.Errorf("decode envelope: %w", err)}
	}
	switch env.Code {
	case codeOK:
	case codeUnauthorized:
		return &Error{Kind: KindAuth, Op: op, Code: env.Code, Msg: env.Msg}
	default:
		return &Error{Kind: KindBusiness, Op: op, Code: env.Code, Msg: env.Msg}
	}

	if out == nil {
		return nil
	}
	if isNull(env.Data) {
		return &Error{Kind: KindEmpty, Op: op}
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return &Error{Kind: KindNetwork, Op: op, Err: fmt.Errorf("decode data: %w", err)}
	}
	return nil
}

func isNull(data json.RawMessage) bool {
	trimmed := bytes.TrimSpace(data)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

func envelopeMsg(raw []byte) string {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return ""
	}
	return env.Msg
}

// IsUnauthorized applies the logout rule to a raw response: HTTP 401 or an
// envelope whose business code is 401.
func IsUnauthorized(status int, body []byte) bool {
	if status == consts.StatusUnauthorized {
		return true
	}
	if len(body) == 0 {
		return false
	}
	var env struct {
		Code *int `json:"code"`
	}
	if err := json.Unmarshal(body, &env); err != nil || env.Code == nil {
		return false
	}
	return *env.Code == codeUnauthorized
}
