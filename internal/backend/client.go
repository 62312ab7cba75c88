package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/insites-io/module-ai/internal/logx"
	"github.com/insites-io/module-ai/internal/metrics"
)

// maxDiagnostic bounds upstream bodies quoted in error messages.
const maxDiagnostic = 200

// Credentials identify one CRM instance on the execution service.
type Credentials struct {
	InstanceURL    string
	InstanceAPIKey string
	ConsoleEmail   string
}

// Kind classifies a backend failure.
type Kind int

const (
	// KindNetwork covers transport errors and timeouts.
	KindNetwork Kind = iota
	// KindStatus covers non-success HTTP statuses.
	KindStatus
	// KindPayload covers well-delivered but undecodable responses.
	KindPayload
	// KindUpstream covers failures the service itself reported.
	KindUpstream
)

// Error is the structured failure returned by every client operation.
type Error struct {
	Kind   Kind
	Status int
	Detail string
	Err    error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindStatus:
		return fmt.Sprintf("HTTP %d: %s", e.Status, e.Detail)
	case KindPayload:
		return fmt.Sprintf("Invalid JSON response from server: %s", e.Detail)
	case KindUpstream:
		return e.Detail
	default:
		return fmt.Sprintf("Request failed: %v", e.Err)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// ToolResult is the outcome of one tool invocation in MCP shape.
type ToolResult struct {
	Content json.RawMessage `json:"content"`
	IsError bool            `json:"isError"`
}

// Client calls the CRM execution service over REST. Every operation is
// bounded by the configured timeout.
type Client struct {
	baseURL string
	hc      *http.Client
	timeout time.Duration
}

// New builds a client for the service at baseURL.
func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		hc:      &http.Client{},
		timeout: timeout,
	}
}

// ListTools fetches the tool catalogue for the given instance and returns the
// raw tools array.
func (c *Client) ListTools(ctx context.Context, creds Credentials) (json.RawMessage, error) {
	body := map[string]string{
		"instance_url":     creds.InstanceURL,
		"instance_api_key": creds.InstanceAPIKey,
	}
	raw, err := c.post(ctx, "tools/list", "/mcp/tools/list", nil, body)
	if err != nil {
		return nil, err
	}

	var wrapped struct {
		Tools json.RawMessage `json:"tools"`
	}
	if jsonErr := json.Unmarshal(raw, &wrapped); jsonErr == nil && len(wrapped.Tools) > 0 {
		return wrapped.Tools, nil
	}
	var bare []json.RawMessage
	if jsonErr := json.Unmarshal(raw, &bare); jsonErr == nil {
		return raw, nil
	}
	return json.RawMessage("[]"), nil
}

// CallTool invokes one named tool with the given arguments.
func (c *Client) CallTool(ctx context.Context, name string, args map[string]any, creds Credentials) (*ToolResult, error) {
	if args == nil {
		args = map[string]any{}
	}
	q := url.Values{}
	q.Set("instance_url", creds.InstanceURL)
	q.Set("instance_api_key", creds.InstanceAPIKey)
	body := map[string]any{"name": name, "arguments": args}
	raw, err := c.post(ctx, "tools/call", "/mcp/tools/call", q, body)
	if err != nil {
		return nil, err
	}

	var res ToolResult
	if jsonErr := json.Unmarshal(raw, &res); jsonErr == nil && len(res.Content) > 0 {
		return &res, nil
	}
	// Non-MCP payloads are wrapped as a single text content block.
	var pretty bytes.Buffer
	if jsonErr := json.Indent(&pretty, raw, "", "  "); jsonErr != nil {
		pretty.Write(raw)
	}
	content, _ := json.Marshal([]mcp.TextContent{mcp.NewTextContent(pretty.String())})
	var flags struct {
		IsError bool `json:"isError"`
	}
	_ = json.Unmarshal(raw, &flags)
	return &ToolResult{Content: content, IsError: flags.IsError}, nil
}

// RunAgentTurn submits one prompt to the agent and returns its final answer.
func (c *Client) RunAgentTurn(ctx context.Context, prompt string, creds Credentials) (string, error) {
	q := url.Values{}
	q.Set("instance_url", creds.InstanceURL)
	q.Set("instance_api_key", creds.InstanceAPIKey)
	raw, err := c.post(ctx, "agent/turn", "/query", q, map[string]string{"prompt": prompt})
	if err != nil {
		return "", err
	}

	var res struct {
		Success  bool   `json:"success"`
		Response string `json:"response"`
		Error    string `json:"error"`
	}
	if jsonErr := json.Unmarshal(raw, &res); jsonErr != nil {
		return "", &Error{Kind: KindPayload, Detail: truncate(string(raw))}
	}
	if !res.Success {
		detail := res.Error
		if detail == "" {
			detail = "agent reported failure"
		}
		return "", &Error{Kind: KindUpstream, Detail: truncate(detail)}
	}
	return res.Response, nil
}

func (c *Client) post(ctx context.Context, op, path string, query url.Values, body any) (json.RawMessage, *Error) {
	start := time.Now()
	raw, err := c.doPost(ctx, path, query, body)
	metrics.ObserveBackendCall(op, err == nil, time.Since(start))
	if err != nil {
		logx.Log.Warn().Str("op", op).Err(err).Msg("backend call failed")
		return nil, err
	}
	return raw, nil
}

func (c *Client) doPost(ctx context.Context, path string, query url.Values, body any) (json.RawMessage, *Error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, &Error{Kind: KindPayload, Detail: err.Error(), Err: err}
	}
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(payload))
	if err != nil {
		return nil, &Error{Kind: KindNetwork, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-Id", uuid.NewString())

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, &Error{Kind: KindNetwork, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		return nil, &Error{Kind: KindNetwork, Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &Error{Kind: KindStatus, Status: resp.StatusCode, Detail: truncate(buf.String())}
	}
	if !json.Valid(buf.Bytes()) {
		return nil, &Error{Kind: KindPayload, Detail: truncate(buf.String())}
	}
	return buf.Bytes(), nil
}

func truncate(s string) string {
	if len(s) > maxDiagnostic {
		return s[:maxDiagnostic]
	}
	return s
}
