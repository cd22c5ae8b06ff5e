package protocol

import "time"

// APIVersion is the fixed version segment of every management API path.
const APIVersion = "v1"

// LookupDriver is the driver whose vendor passthru serves node lookups.
const LookupDriver = "teeth"

type LookupRequest struct {
	Hardware any `json:"hardware"`
}

// LookupResponse is what the management service sends back for a successful lookup.
// Clients read it as a generic object so unknown fields pass through untouched.
type LookupResponse struct {
	Node             Node    `json:"node"`
	HeartbeatTimeout float64 `json:"heartbeat_timeout"`
}

type Node struct {
	UUID             string    `json:"uuid"`
	Name             string    `json:"name,omitempty"`
	MACAddresses     []string  `json:"mac_addresses,omitempty"`
	AgentURL         string    `json:"agent_url,omitempty"`
	CreatedUTC       time.Time `json:"created_utc"`
	LastHeartbeatUTC time.Time `json:"last_heartbeat_utc,omitzero"`
}

type ListNodesResponse struct {
	Nodes []Node `json:"nodes"`
}

func LookupPath() string {
	return "/" + APIVersion + "/drivers/" + LookupDriver + "/vendor_passthru/lookup"
}
