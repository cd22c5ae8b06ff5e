package mockapi

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"golang.org/x/mod/semver"

	"github.com/izzyreal/nodeagent/internal/hardware"
	"github.com/izzyreal/nodeagent/internal/httpx"
	"github.com/izzyreal/nodeagent/internal/protocol"
	"github.com/izzyreal/nodeagent/internal/store"
	"github.com/izzyreal/nodeagent/internal/version"
)

type lookupPayload struct {
	Hardware hardware.Inventory `json:"hardware"`
}

func (s *server) healthzHandler(w http.ResponseWriter, _ *http.Request) {
	if err := s.store.Ping(); err != nil {
		s.log.Warn("node registry unhealthy", "error", err)
		httpx.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status":  "unavailable",
			"version": version.Current(),
		})
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": version.Current(),
	})
}

func (s *server) lookupHandler(w http.ResponseWriter, r *http.Request) {
	var payload lookupPayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	macs := payload.Hardware.MACAddresses()
	if len(macs) == 0 {
		httpx.WriteError(w, http.StatusBadRequest, "hardware must include at least one interface mac_address")
		return
	}

	node, found, err := s.store.FindNodeByMAC(macs)
	if err != nil {
		s.log.Error("node lookup failed", "error", err)
		httpx.WriteError(w, http.StatusInternalServerError, "node lookup failed")
		return
	}
	if !found {
		node, err = s.store.EnrollNode(s.newUUID(), payload.Hardware.Hostname, macs)
		if err != nil {
			s.log.Error("node enrollment failed", "error", err)
			httpx.WriteError(w, http.StatusInternalServerError, "node enrollment failed")
			return
		}
		s.log.Info("node enrolled", "uuid", node.UUID, "hostname", node.Name, "macs", strings.Join(node.MACAddresses, ","))
	}

	httpx.WriteJSON(w, http.StatusOK, protocol.LookupResponse{
		Node:             node,
		HeartbeatTimeout: s.heartbeatTimeout.Seconds(),
	})
}

func (s *server) heartbeatHandler(w http.ResponseWriter, r *http.Request) {
	nodeUUID := chi.URLParam(r, "uuid")
	var req protocol.HeartbeatRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.AgentURL) == "" {
		httpx.WriteError(w, http.StatusBadRequest, "agent_url is required")
		return
	}

	now := s.now()
	if err := s.store.RecordHeartbeat(nodeUUID, req.AgentURL, now); err != nil {
		if errors.Is(err, store.ErrNodeNotFound) {
			httpx.WriteError(w, http.StatusNotFound, "node not found")
			return
		}
		s.log.Error("record heartbeat failed", "uuid", nodeUUID, "error", err)
		httpx.WriteError(w, http.StatusInternalServerError, "record heartbeat failed")
		return
	}
	s.log.Debug("heartbeat received", "uuid", nodeUUID, "agent_url", req.AgentURL)

	deadline := now.Add(s.heartbeatTimeout)
	w.Header().Set(protocol.HeartbeatBeforeHeader, formatUnixSeconds(deadline.UnixMilli()))
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) listNodesHandler(w http.ResponseWriter, _ *http.Request) {
	nodes, err := s.store.ListNodes()
	if err != nil {
		s.log.Error("list nodes failed", "error", err)
		httpx.WriteError(w, http.StatusInternalServerError, "list nodes failed")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, protocol.ListNodesResponse{Nodes: nodes})
}

// requireAgentVersion rejects agents that report a semantic version older than the
// configured minimum. Agents without a parseable version pass through.
func (s *server) requireAgentVersion(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		minVersion := strings.TrimSpace(s.minAgentVersion)
		if minVersion != "" {
			v := version.FromUserAgent(r.UserAgent())
			if semver.IsValid(v) && semver.Compare(v, minVersion) < 0 {
				httpx.WriteError(w, http.StatusUpgradeRequired, fmt.Sprintf("agent version %s is older than required %s", v, minVersion))
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func formatUnixSeconds(ms int64) string {
	return strconv.FormatFloat(float64(ms)/1000, 'f', 3, 64)
}
