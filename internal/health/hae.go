package health

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// HAESource queries the Health Auto Export TCP server (JSON-RPC 2.0).
// Each call opens a new TCP connection; the HAE server closes the socket
// after sending the response.
type HAESource struct {
	host     string
	port     int
	timeout  time.Duration
	maxTries uint
	log      *slog.Logger
}

type jsonRPCRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
}

type callToolParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

type jsonRPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int             `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *jsonRPCError   `json:"error,omitempty"`
}

type jsonRPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *jsonRPCError) Error() string {
	return fmt.Sprintf("HAE error %d: %s", e.Code, e.Message)
}

// metricsResult is the health_metrics tool result.
type metricsResult struct {
	Data struct {
		Metrics []struct {
			Name  string            `json:"name"`
			Units string            `json:"units"`
			Data  []json.RawMessage `json:"data"`
		} `json:"metrics"`
	} `json:"data"`
}

// HAE date format: yyyy-MM-dd HH:mm:ss Z
const haeDateFormat = "2006-01-02 15:04:05 -0700"

// NewHAESource creates a source for the HAE server at host:port.
// A zero timeout defaults to 30s.
func NewHAESource(host string, port int, timeout time.Duration, log *slog.Logger) *HAESource {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HAESource{
		host:     host,
		port:     port,
		timeout:  timeout,
		maxTries: 3,
		log:      log,
	}
}

// QueryAggregate queries one metric aggregated over [start, end] and reduces
// its points per the metric's aggregation.
func (s *HAESource) QueryAggregate(ctx context.Context, m Metric, start, end time.Time) (float64, error) {
	args := map[string]any{
		"start":     start.Format(haeDateFormat),
		"end":       end.Format(haeDateFormat),
		"metrics":   m.Name,
		"aggregate": true,
	}

	attempt := 0
	result, err := backoff.Retry(ctx, func() (json.RawMessage, error) {
		attempt++
		res, err := s.callTool(ctx, "health_metrics", args)
		if err == nil {
			return res, nil
		}
		var rpcErr *jsonRPCError
		if errors.As(err, &rpcErr) || ctx.Err() != nil {
			return nil, backoff.Permanent(err)
		}
		s.log.Warn("HAE query failed, will retry", "metric", m.Name, "attempt", attempt, "error", err)
		return nil, err
	},
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(s.maxTries),
	)
	if err != nil {
		var rpcErr *jsonRPCError
		if errors.As(err, &rpcErr) && strings.Contains(strings.ToLower(rpcErr.Message), "authoriz") {
			return 0, fmt.Errorf("%s: %w", m.Name, ErrNotAuthorized)
		}
		return 0, fmt.Errorf("querying %s: %w", m.Name, err)
	}

	values, err := parseQuantities(result, m.Name)
	if err != nil {
		return 0, err
	}
	return reduce(m.Aggregation, values)
}

// parseQuantities extracts the qty of every point of the named metric.
func parseQuantities(result json.RawMessage, name string) ([]float64, error) {
	trimmed := strings.TrimSpace(string(result))
	if trimmed == "" || trimmed == "null" {
		return nil, ErrNoData
	}

	var res metricsResult
	if err := json.Unmarshal(result, &res); err != nil {
		return nil, fmt.Errorf("parsing %s result: %w", name, err)
	}

	var values []float64
	for _, metric := range res.Data.Metrics {
		if metric.Name != name {
			continue
		}
		for _, raw := range metric.Data {
			var point struct {
				Qty *float64 `json:"qty"`
			}
			if err := json.Unmarshal(raw, &point); err != nil || point.Qty == nil {
				continue
			}
			values = append(values, *point.Qty)
		}
	}
	return values, nil
}

// callTool sends a JSON-RPC callTool request and returns the result.
func (s *HAESource) callTool(ctx context.Context, toolName string, args map[string]any) (json.RawMessage, error) {
	req := jsonRPCRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "callTool",
		Params: callToolParams{
			Name:      toolName,
			Arguments: args,
		},
	}

	reqData, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	addr := net.JoinHostPort(s.host, strconv.Itoa(s.port))
	dialer := net.Dialer{Timeout: s.timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", addr, err)
	}
	defer conn.Close() //nolint:errcheck

	// Unblock the read below if the caller gives up.
	stop := context.AfterFunc(ctx, func() { conn.Close() }) //nolint:errcheck
	defer stop()

	deadline := time.Now().Add(s.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return nil, fmt.Errorf("setting deadline: %w", err)
	}

	// HAE server uses newline-delimited JSON-RPC framing.
	reqData = append(reqData, '\n')

	if _, err := conn.Write(reqData); err != nil {
		return nil, fmt.Errorf("writing request: %w", err)
	}

	// HAE server closes the connection after sending the response, so read until EOF.
	respData, err := io.ReadAll(conn)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if len(respData) == 0 {
		return nil, fmt.Errorf("empty response from %s", addr)
	}

	var resp jsonRPCResponse
	if err := json.Unmarshal(respData, &resp); err != nil {
		return nil, fmt.Errorf("parsing response: %w", err)
	}

	if resp.Error != nil {
		return nil, resp.Error
	}

	return resp.Result, nil
}
