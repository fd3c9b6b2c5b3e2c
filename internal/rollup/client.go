package rollup

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"physdapp/internal/logging"
	"physdapp/internal/protocol"
)

type Options struct {
	// MaxRetries applies to transport failures and 5xx answers. Zero sends
	// every request exactly once.
	MaxRetries   int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
	// HTTPClient overrides the underlying client (tests, custom transports).
	HTTPClient *http.Client
	Logger     zerolog.Logger
}

// Client talks to the rollup host's HTTP API.
type Client struct {
	base string
	hc   *retryablehttp.Client
	log  zerolog.Logger
}

func New(baseURL string, opts Options) (*Client, error) {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return nil, errors.New("rollup server url is required")
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, errors.Wrap(err, "parse rollup server url")
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, errors.Errorf("invalid rollup server url: %s", baseURL)
	}

	hc := retryablehttp.NewClient()
	hc.RetryMax = opts.MaxRetries
	if opts.RetryWaitMin > 0 {
		hc.RetryWaitMin = opts.RetryWaitMin
	}
	if opts.RetryWaitMax > 0 {
		hc.RetryWaitMax = opts.RetryWaitMax
	}
	hc.Logger = logging.RetryLogger{L: opts.Logger}
	hc.ErrorHandler = retryablehttp.PassthroughErrorHandler
	if opts.HTTPClient != nil {
		hc.HTTPClient = opts.HTTPClient
	}
	return &Client{
		base: strings.TrimRight(u.String(), "/"),
		hc:   hc,
		log:  opts.Logger,
	}, nil
}

func (c *Client) BaseURL() string { return c.base }

// Finish reports the previous status and returns the next pending request,
// or nil when the host answers 202 (nothing pending).
func (c *Client) Finish(ctx context.Context, status string) (*protocol.RollupRequest, error) {
	c.log.Debug().Str("status", status).Msg("sending finish")
	resp, err := c.post(ctx, "/finish", protocol.FinishRequest{Status: status})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "read finish response")
	}
	c.log.Debug().Int("code", resp.StatusCode).Msg("received finish status")

	switch resp.StatusCode {
	case http.StatusAccepted:
		return nil, nil
	case http.StatusOK:
		req, err := protocol.DecodeRollupRequest(body)
		if err != nil {
			return nil, errors.Wrap(err, "decode rollup request")
		}
		return &req, nil
	default:
		return nil, errors.Wrapf(protocol.ErrUnexpectedStatus, "finish: %d %s", resp.StatusCode, snippet(body))
	}
}

func (c *Client) AddNotice(ctx context.Context, payload string) error {
	return c.publish(ctx, "/notice", payload)
}

func (c *Client) AddReport(ctx context.Context, payload string) error {
	return c.publish(ctx, "/report", payload)
}

// publish only fails on transport errors; the host's answer is logged.
func (c *Client) publish(ctx context.Context, path, payload string) error {
	resp, err := c.post(ctx, path, protocol.PayloadMsg{Payload: payload})
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	ev := c.log.Info()
	if resp.StatusCode/100 != 2 {
		ev = c.log.Warn()
	}
	ev.Str("path", path).Int("code", resp.StatusCode).Str("body", snippet(body)).Msg("host answered")
	return nil
}

func (c *Client) post(ctx context.Context, path string, v any) (*http.Response, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, errors.Wrapf(err, "encode %s", path)
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, c.base+path, b)
	if err != nil {
		return nil, errors.Wrapf(err, "build %s request", path)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "POST %s", path)
	}
	return resp, nil
}

func snippet(b []byte) string {
	const max = 256
	s := strings.TrimSpace(string(b))
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}
