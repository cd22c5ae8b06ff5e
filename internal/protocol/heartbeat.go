package protocol

import "net/url"

// HeartbeatBeforeHeader carries the deadline for the next heartbeat, in seconds.
const HeartbeatBeforeHeader = "Heartbeat-Before"

type HeartbeatRequest struct {
	AgentURL string `json:"agent_url"`
}

func HeartbeatPath(nodeUUID string) string {
	return "/" + APIVersion + "/nodes/" + url.PathEscape(nodeUUID) + "/vendor_passthru/heartbeat"
}
