package apiclient

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/izzyreal/nodeagent/internal/protocol"
)

// AdvertiseAddress is the host and port the agent's own API listens on.
type AdvertiseAddress struct {
	Host string
	Port int
}

// AgentURL formats addr as http://host:port. The parts are not validated.
func AgentURL(addr AdvertiseAddress) string {
	return fmt.Sprintf("http://%s:%d", addr.Host, addr.Port)
}

// Heartbeat tells the service the agent on node nodeUUID is alive and returns the
// Heartbeat-Before value from the response. Every failure is a *HeartbeatError;
// nothing is retried here.
func (c *Client) Heartbeat(ctx context.Context, nodeUUID string, advertise AdvertiseAddress) (float64, error) {
	req := protocol.HeartbeatRequest{AgentURL: AgentURL(advertise)}
	resp, err := c.transport.Do(ctx, http.MethodPost, protocol.HeartbeatPath(nodeUUID), req)
	if err != nil {
		return 0, &HeartbeatError{Err: err}
	}

	if resp.StatusCode != http.StatusNoContent {
		return 0, &HeartbeatError{Err: &ProtocolError{
			StatusCode: resp.StatusCode,
			Msg:        fmt.Sprintf("invalid status code: %d", resp.StatusCode),
		}}
	}

	values, ok := resp.Header[http.CanonicalHeaderKey(protocol.HeartbeatBeforeHeader)]
	if !ok || len(values) == 0 {
		return 0, &HeartbeatError{Err: &ProtocolError{
			StatusCode: resp.StatusCode,
			Msg:        "missing " + protocol.HeartbeatBeforeHeader + " header",
		}}
	}
	// Repeated headers arrive joined as one list, which is never a single number.
	raw := strings.TrimSpace(strings.Join(values, ", "))
	before, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, &HeartbeatError{Err: &ProtocolError{
			StatusCode: resp.StatusCode,
			Msg:        "invalid " + protocol.HeartbeatBeforeHeader + " header",
			Err:        err,
		}}
	}
	return before, nil
}
