package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/izzyreal/nodeagent/internal/protocol"
	"github.com/izzyreal/nodeagent/internal/retry"
)

const maxLoggedBody = 512

// LookupResult is the validated lookup response body. Numbers are kept as
// json.Number so values reach the caller exactly as the service sent them.
type LookupResult map[string]any

// Node returns the node object of the response.
func (r LookupResult) Node() map[string]any {
	node, _ := r["node"].(map[string]any)
	return node
}

func (r LookupResult) NodeUUID() string {
	uuid, _ := r.Node()["uuid"].(string)
	return uuid
}

// HeartbeatTimeout returns heartbeat_timeout in seconds when it is numeric.
func (r LookupResult) HeartbeatTimeout() (float64, bool) {
	switch v := r["heartbeat_timeout"].(type) {
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case float64:
		return v, true
	default:
		return 0, false
	}
}

// LookupNode asks the service who this machine is, retrying every failure with
// doubling backoff starting at startingInterval. It fails with *LookupNodeError
// once the next backoff would push the total time spent waiting past timeout.
func (c *Client) LookupNode(ctx context.Context, hardwareInfo any, timeout, startingInterval time.Duration) (LookupResult, error) {
	attempt := 0
	work := func(ctx context.Context) retry.Outcome[LookupResult] {
		attempt++
		result, err := c.lookupOnce(ctx, hardwareInfo)
		if err != nil {
			c.log.Warn("node lookup attempt failed", "attempt", attempt, "error", err)
			return retry.Continue[LookupResult]()
		}
		c.log.Info("node lookup succeeded", "attempt", attempt, "node_uuid", result.NodeUUID())
		return retry.Done(result)
	}

	result, err := retry.Run(ctx, work, timeout, startingInterval, c.retryOpts...)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("node lookup interrupted: %w", ctxErr)
		}
		return nil, &LookupNodeError{Err: err}
	}
	return result, nil
}

func (c *Client) lookupOnce(ctx context.Context, hardwareInfo any) (LookupResult, error) {
	resp, err := c.transport.Do(ctx, http.MethodPost, protocol.LookupPath(), protocol.LookupRequest{Hardware: hardwareInfo})
	if err != nil {
		return nil, fmt.Errorf("POST failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &ProtocolError{StatusCode: resp.StatusCode, Msg: fmt.Sprintf("invalid status code: %d", resp.StatusCode)}
	}

	var content LookupResult
	dec := json.NewDecoder(bytes.NewReader(resp.Body))
	dec.UseNumber()
	if err := dec.Decode(&content); err != nil {
		return nil, &ProtocolError{StatusCode: resp.StatusCode, Msg: "error decoding response", Err: err}
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			err = errors.New("unexpected data after JSON document")
		}
		return nil, &ProtocolError{StatusCode: resp.StatusCode, Msg: "error decoding response", Err: err}
	}
	if content == nil {
		return nil, &ProtocolError{StatusCode: resp.StatusCode, Msg: "error decoding response: empty document"}
	}

	node, ok := content["node"].(map[string]any)
	if !ok {
		return nil, &ProtocolError{StatusCode: resp.StatusCode, Msg: "got invalid node data from the API: " + snippet(resp.Body)}
	}
	if _, ok := node["uuid"]; !ok {
		return nil, &ProtocolError{StatusCode: resp.StatusCode, Msg: "got invalid node data from the API: " + snippet(resp.Body)}
	}
	if _, ok := content["heartbeat_timeout"]; !ok {
		return nil, &ProtocolError{StatusCode: resp.StatusCode, Msg: "got invalid heartbeat from the API: " + snippet(resp.Body)}
	}
	return content, nil
}

func snippet(body []byte) string {
	body = bytes.TrimSpace(body)
	if len(body) > maxLoggedBody {
		return string(body[:maxLoggedBody]) + "..."
	}
	return string(body)
}
