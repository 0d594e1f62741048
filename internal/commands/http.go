package commands

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-resty/resty/v2"
	"github.com/rendis/stepwise/pkg/schema"
	"github.com/tidwall/gjson"
)

// HTTPConfig configures the RestApi command.
type HTTPConfig struct {
	Timeout         time.Duration
	RetryCount      int
	MaxResponseBody int64
}

const (
	defaultMaxResponseBody = 10 * 1024 * 1024 // 10MB
	defaultHTTPTimeout     = 30 * time.Second

	restAPIName = "RestApi"
)

var supportedMethods = map[string]bool{
	"GET": true, "POST": true, "PUT": true, "PATCH": true, "DELETE": true, "HEAD": true,
}

type restAPICommand struct {
	cfg    HTTPConfig
	client *resty.Client
}

// NewRestAPICommand creates the RestApi command backed by a shared resty client.
func NewRestAPICommand(cfg HTTPConfig) Command {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultHTTPTimeout
	}
	if cfg.MaxResponseBody <= 0 {
		cfg.MaxResponseBody = defaultMaxResponseBody
	}
	client := resty.New().
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.RetryCount)
	return &restAPICommand{cfg: cfg, client: client}
}

func (c *restAPICommand) Name() string { return restAPIName }

func (c *restAPICommand) Describe() Descriptor {
	return Descriptor{
		Name:        restAPIName,
		Description: "Send an HTTP request and bind the status code and response body",
		Required:    []string{"method", "url"},
		Optional:    []string{"body", "headers", "query", "username", "password", "token", "json_path"},
		Outputs:     []string{"status", "response", "extract", "success", "error"},
	}
}

func (c *restAPICommand) Execute(ctx context.Context, inv Invocation) (Outputs, error) {
	method, err := inv.RequireString(ctx, "method")
	if err != nil {
		return nil, err
	}
	method = strings.ToUpper(strings.TrimSpace(method))
	if !supportedMethods[method] {
		return nil, schema.NewErrorf(schema.ErrCodeInvalidInput, "unsupported HTTP method %q", method)
	}

	url, err := inv.RequireString(ctx, "url")
	if err != nil {
		return nil, err
	}
	body, err := inv.OptionalString(ctx, "body", "")
	if err != nil {
		return nil, err
	}
	headers, err := inv.OptionalMap(ctx, "headers")
	if err != nil {
		return nil, err
	}
	query, err := inv.OptionalMap(ctx, "query")
	if err != nil {
		return nil, err
	}
	username, err := inv.OptionalString(ctx, "username", "")
	if err != nil {
		return nil, err
	}
	password, err := inv.OptionalString(ctx, "password", "")
	if err != nil {
		return nil, err
	}
	token, err := inv.OptionalString(ctx, "token", "")
	if err != nil {
		return nil, err
	}
	jsonPath, err := inv.OptionalString(ctx, "json_path", "")
	if err != nil {
		return nil, err
	}

	req := c.client.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		SetHeaders(headers).
		SetQueryParams(query)
	if body != "" {
		req.SetBody(body)
	}
	switch {
	case token != "":
		req.SetAuthToken(token)
	case username != "":
		req.SetBasicAuth(username, password)
	}

	base := Outputs{"status": 0, "response": "", "extract": ""}
	resp, err := req.Execute(method, url)
	if resp != nil && resp.RawBody() != nil {
		defer resp.RawBody().Close()
	}
	if err != nil {
		return failure(err, base), nil
	}

	data, err := readLimited(resp.RawBody(), c.cfg.MaxResponseBody)
	if err != nil {
		base["status"] = resp.StatusCode()
		return failure(fmt.Errorf("read response: %w", err), base), nil
	}
	text := string(data)
	out := Outputs{
		"status":   resp.StatusCode(),
		"response": text,
		"extract":  extract(text, jsonPath),
	}
	if !resp.IsSuccess() {
		return failure(fmt.Errorf("%s %s: %s", method, url, resp.Status()), out), nil
	}
	return success(out), nil
}

// readLimited reads at most limit bytes of body. A body cut at the limit
// is shortened further to end on a rune boundary.
func readLimited(body io.Reader, limit int64) ([]byte, error) {
	if body == nil {
		return nil, nil
	}
	data, err := io.ReadAll(io.LimitReader(body, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) <= limit {
		return data, nil
	}
	n := int(limit)
	for n > 0 && !utf8.RuneStart(data[n]) {
		n--
	}
	return data[:n], nil
}

// extract projects a gjson path out of a JSON response. Objects and arrays
// are returned as raw JSON text.
func extract(body, path string) any {
	if path == "" {
		return ""
	}
	res := gjson.Get(body, path)
	switch {
	case !res.Exists():
		return nil
	case res.IsObject(), res.IsArray():
		return res.Raw
	default:
		return res.Value()
	}
}
