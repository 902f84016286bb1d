package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-turns/core"
)

const (
	MethodPostMessage        = "chat.postMessage"
	MethodOAuthAccess        = "oauth.access"
	MethodAuthTest           = "auth.test"
	MethodViewsOpen          = "views.open"
	MethodStepCompleted      = "workflows.stepCompleted"
	MethodStepFailed         = "workflows.stepFailed"
	MethodUpdateStep         = "workflows.updateStep"
	defaultResponseBodyLimit = int64(2 << 20)
)

var ErrPrivateReplyUnavailable = errors.New("transport: message can't be private without a response url")

type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

type Option func(*Client)

func WithHTTPClient(client HTTPDoer) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

func WithBackoff(factory core.BackoffFactory) Option {
	return func(c *Client) {
		if factory != nil {
			c.backoff = factory
		}
	}
}

func WithResponseBodyLimit(limit int64) Option {
	return func(c *Client) {
		if limit > 0 {
			c.bodyLimit = limit
		}
	}
}

func WithLogger(logger core.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

func WithMetricsRecorder(recorder core.MetricsRecorder) Option {
	return func(c *Client) {
		if recorder != nil {
			c.metrics = recorder
		}
	}
}

// Client posts to the platform Web API. A Client bound with WithAuth fills
// in the tenant token and the payload channel and response url.
type Client struct {
	baseURL    string
	maxRetries int
	bodyLimit  int64
	httpClient HTTPDoer
	backoff    core.BackoffFactory
	logger     core.Logger
	metrics    core.MetricsRecorder

	token       string
	channel     string
	responseURL string
	webhookURL  string
}

func NewClient(cfg core.APIConfig, opts ...Option) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = core.DefaultAPITimeout
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = core.DefaultAPIBaseURL
	}
	client := &Client{
		baseURL:    baseURL,
		maxRetries: cfg.MaxRetries,
		bodyLimit:  defaultResponseBodyLimit,
		httpClient: &http.Client{Timeout: timeout},
		backoff:    defaultBackoff,
		metrics:    core.NopMetricsRecorder{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	_, client.logger = glog.Resolve("turns.transport", nil, client.logger)
	client.logger = glog.Ensure(client.logger)
	return client
}

func defaultBackoff() backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 200 * time.Millisecond
	bo.MaxInterval = 2 * time.Second
	bo.MaxElapsedTime = 10 * time.Second
	return bo
}

// WithAuth returns a copy bound to the tenant auth and the payload being
// handled. Either may be nil.
func (c *Client) WithAuth(tenant *core.TenantRecord, payload core.Payload) *Client {
	bound := *c
	bound.token, bound.webhookURL = "", ""
	if tenant != nil {
		bound.token = tenant.AccessToken()
		bound.webhookURL = tenant.IncomingWebhookURL()
	}
	bound.channel = ChannelOf(payload)
	bound.responseURL = strings.TrimSpace(payload.String("response_url"))
	return &bound
}

// SenderFactory adapts the client to core.SenderFactory.
func (c *Client) SenderFactory() core.SenderFactory {
	return func(tenant *core.TenantRecord, payload core.Payload) core.MessageSender {
		return c.WithAuth(tenant, payload)
	}
}

func (c *Client) Token() string       { return c.token }
func (c *Client) Channel() string     { return c.channel }
func (c *Client) ResponseURL() string { return c.responseURL }

// ChannelOf finds the conversation a payload came from: channel_id (slash
// commands), channel.id (interactive messages), event.channel or
// event.item.channel (Events API).
func ChannelOf(payload core.Payload) string {
	if id := payload.String("channel_id"); id != "" {
		return id
	}
	if id := payload.String("channel", "id"); id != "" {
		return id
	}
	if id := payload.String("event", "channel"); id != "" {
		return id
	}
	return payload.String("event", "item", "channel")
}

// Reply answers in the conversation of the bound payload. Ephemeral replies
// need a response url.
func (c *Client) Reply(ctx context.Context, message map[string]any, ephemeral bool) (map[string]any, error) {
	message = copyMessage(message)
	switch {
	case c.responseURL != "":
		if !ephemeral {
			message["response_type"] = "in_channel"
		}
		return c.Send(ctx, c.responseURL, message)
	case ephemeral:
		return nil, transportWrapError(
			ErrPrivateReplyUnavailable,
			goerrors.CategoryBadInput,
			ErrPrivateReplyUnavailable.Error(),
			http.StatusBadRequest,
			nil,
		)
	case c.webhookURL != "" && c.channel == "" && message["channel"] == nil:
		return c.Send(ctx, c.webhookURL, message)
	default:
		return c.Say(ctx, message)
	}
}

func (c *Client) ReplyPrivate(ctx context.Context, message map[string]any) (map[string]any, error) {
	return c.Reply(ctx, message, true)
}

func (c *Client) Say(ctx context.Context, message map[string]any) (map[string]any, error) {
	return c.Send(ctx, MethodPostMessage, message)
}

// Text builds the simplest message body.
func Text(text string) map[string]any {
	return map[string]any{"text": text}
}

// Send posts message as JSON to an API method or an absolute URL and returns
// the response data without the ok flag. A message token overrides the
// bound token; a missing channel defaults to the bound channel.
func (c *Client) Send(ctx context.Context, endpoint string, message map[string]any) (map[string]any, error) {
	message = copyMessage(message)
	token := c.token
	if explicit, ok := message["token"].(string); ok {
		token = strings.TrimSpace(explicit)
		delete(message, "token")
	}
	if _, ok := message["channel"]; !ok && c.channel != "" {
		message["channel"] = c.channel
	}
	body, err := json.Marshal(message)
	if err != nil {
		return nil, transportWrapError(err, goerrors.CategoryBadInput, "transport: encode message", http.StatusBadRequest, map[string]any{
			"endpoint": endpoint,
		})
	}
	return c.post(ctx, endpoint, "application/json; charset=utf-8", body, token)
}

// SendForm posts values form-encoded; the OAuth methods only accept this
// encoding.
func (c *Client) SendForm(ctx context.Context, endpoint string, values map[string]string) (map[string]any, error) {
	form := url.Values{}
	for key, value := range values {
		if strings.TrimSpace(value) != "" {
			form.Set(key, value)
		}
	}
	return c.post(ctx, endpoint, "application/x-www-form-urlencoded", []byte(form.Encode()), "")
}

func (c *Client) post(ctx context.Context, endpoint, contentType string, body []byte, token string) (map[string]any, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	target, method, err := c.resolve(endpoint)
	if err != nil {
		return nil, err
	}

	startedAt := time.Now()
	var data map[string]any
	operation := func() error {
		req, reqErr := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
		if reqErr != nil {
			return backoff.Permanent(transportWrapError(reqErr, goerrors.CategoryBadInput, "transport: create http request", http.StatusBadRequest, map[string]any{
				"method": method,
			}))
		}
		req.Header.Set("Content-Type", contentType)
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		res, doErr := c.httpClient.Do(req)
		if doErr != nil {
			return transportWrapError(doErr, goerrors.CategoryExternal, "transport: execute http request", http.StatusBadGateway, map[string]any{
				"method": method,
			})
		}
		defer res.Body.Close()

		raw, readErr := io.ReadAll(io.LimitReader(res.Body, c.bodyLimit+1))
		if readErr != nil {
			return transportWrapError(readErr, goerrors.CategoryExternal, "transport: read response body", http.StatusBadGateway, map[string]any{
				"method":      method,
				"status_code": res.StatusCode,
			})
		}
		if int64(len(raw)) > c.bodyLimit {
			return backoff.Permanent(transportError(
				fmt.Sprintf("transport: response body exceeds limit of %d bytes", c.bodyLimit),
				goerrors.CategoryExternal,
				http.StatusBadGateway,
				map[string]any{"method": method, "status_code": res.StatusCode},
			))
		}
		if res.StatusCode == http.StatusTooManyRequests || res.StatusCode >= http.StatusInternalServerError {
			return transportError(
				fmt.Sprintf("transport: %s returned status %d", method, res.StatusCode),
				goerrors.CategoryExternal,
				http.StatusBadGateway,
				map[string]any{"method": method, "status_code": res.StatusCode},
			)
		}

		parsed, parseErr := getData(method, res.StatusCode, raw)
		if parseErr != nil {
			return backoff.Permanent(parseErr)
		}
		data = parsed
		return nil
	}

	var policy backoff.BackOff = &backoff.StopBackOff{}
	if c.maxRetries > 0 {
		policy = backoff.WithMaxRetries(c.backoff(), uint64(c.maxRetries))
	}
	err = backoff.Retry(operation, backoff.WithContext(policy, ctx))

	status := "success"
	if err != nil {
		status = "failure"
	}
	c.metrics.IncCounter(ctx, core.MetricOutboundTotal, 1, map[string]string{"method": method, "status": status})
	fields := map[string]any{
		"method":      method,
		"status":      status,
		"duration_ms": time.Since(startedAt).Milliseconds(),
	}
	if err != nil {
		fields["error"] = err.Error()
		core.LogWithLevel(ctx, c.logger, "error", "platform call failed", fields)
		return nil, err
	}
	core.LogWithLevel(ctx, c.logger, "debug", "platform call succeeded", fields)
	return data, nil
}

// resolve maps a method name to baseURL/method; absolute URLs are used as
// given and logged by host only.
func (c *Client) resolve(endpoint string) (string, string, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return "", "", transportError("transport: endpoint is required", goerrors.CategoryBadInput, http.StatusBadRequest, nil)
	}
	if strings.HasPrefix(strings.ToLower(endpoint), "http://") || strings.HasPrefix(strings.ToLower(endpoint), "https://") {
		parsed, err := url.Parse(endpoint)
		if err != nil {
			return "", "", transportWrapError(err, goerrors.CategoryBadInput, "transport: invalid endpoint url", http.StatusBadRequest, nil)
		}
		return endpoint, parsed.Host, nil
	}
	return c.baseURL + "/" + strings.TrimLeft(endpoint, "/"), endpoint, nil
}

// getData unwraps the {ok, error, ...} envelope. Plain "ok" bodies (as
// returned by response urls and incoming webhooks) count as success.
func getData(method string, statusCode int, raw []byte) (map[string]any, error) {
	trimmed := bytes.TrimSpace(raw)
	if statusCode < http.StatusBadRequest && (len(trimmed) == 0 || string(trimmed) == "ok") {
		return map[string]any{}, nil
	}
	var data map[string]any
	if err := json.Unmarshal(trimmed, &data); err != nil {
		return nil, transportWrapError(err, goerrors.CategoryExternal, "transport: decode response body", http.StatusBadGateway, map[string]any{
			"method":      method,
			"status_code": statusCode,
		})
	}
	if ok, _ := data["ok"].(bool); ok {
		delete(data, "ok")
		return data, nil
	}
	remote, _ := data["error"].(string)
	if remote == "" {
		remote = fmt.Sprintf("http_%d", statusCode)
	}
	return nil, newAPIError(method, statusCode, remote, data)
}

func copyMessage(message map[string]any) map[string]any {
	out := make(map[string]any, len(message)+1)
	for key, value := range message {
		out[key] = value
	}
	return out
}

var _ core.MessageSender = (*Client)(nil)
