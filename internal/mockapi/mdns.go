package mockapi

import (
	"log/slog"
	"net"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/hashicorp/mdns"

	"github.com/izzyreal/nodeagent/internal/config"
	"github.com/izzyreal/nodeagent/internal/protocol"
	"github.com/izzyreal/nodeagent/internal/version"
)

const defaultListenPort = 6385

// startMDNSAdvertiser announces the API on the local network. The returned func stops it.
func startMDNSAdvertiser(cfg config.MDNS, listenAddr string, logger *slog.Logger) func() {
	if !cfg.Enabled {
		return func() {}
	}
	port, ok := listenPortFromAddr(listenAddr)
	if !ok {
		logger.Warn("mdns advertise skipped, cannot determine listen port", "addr", listenAddr)
		return func() {}
	}

	instance := strings.TrimSpace(cfg.Instance)
	if instance == "" {
		host, _ := os.Hostname()
		instance = "nodeagent-mockapi"
		if host = strings.TrimSpace(host); host != "" {
			instance += "-" + host
		}
	}

	service, err := mdns.NewMDNSService(instance, cfg.Service, "", "", port, discoverAdvertiseIPs(), advertiseMeta())
	if err != nil {
		logger.Error("mdns advertise service setup failed", "error", err)
		return func() {}
	}
	server, err := mdns.NewServer(&mdns.Config{Zone: service})
	if err != nil {
		logger.Error("mdns advertise start failed", "error", err)
		return func() {}
	}
	logger.Info("mdns advertising enabled", "service", cfg.Service, "instance", instance, "port", port)

	return func() {
		_ = server.Shutdown()
	}
}

func advertiseMeta() []string {
	return []string{
		"name=nodeagent-mockapi",
		"protocol=http",
		"api_version=" + protocol.APIVersion,
		"version=" + version.Current(),
	}
}

func discoverAdvertiseIPs() []net.IP {
	ifAddrs, err := net.InterfaceAddrs()
	if err != nil {
		return nil
	}
	return filterAdvertiseIPs(ifAddrs)
}

// filterAdvertiseIPs keeps routable unicast addresses, IPv4 first.
func filterAdvertiseIPs(addrs []net.Addr) []net.IP {
	seen := map[string]struct{}{}
	var out []net.IP
	for _, addr := range addrs {
		ipNet, ok := addr.(*net.IPNet)
		if !ok || ipNet == nil || ipNet.IP == nil {
			continue
		}
		ip := ipNet.IP
		if ip.IsLoopback() || ip.IsUnspecified() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() {
			continue
		}
		key := ip.String()
		if _, exists := seen[key]; exists {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, ip.To16())
	}
	sort.Slice(out, func(i, j int) bool {
		ai := out[i].To4() != nil
		aj := out[j].To4() != nil
		if ai != aj {
			return ai
		}
		return out[i].String() < out[j].String()
	})
	return out
}

func listenPortFromAddr(addr string) (int, bool) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return defaultListenPort, true
	}
	port := addr
	if strings.Contains(addr, ":") {
		_, p, err := net.SplitHostPort(addr)
		if err != nil {
			return 0, false
		}
		port = p
	}
	n, err := strconv.Atoi(port)
	if err != nil || n <= 0 || n > 65535 {
		return 0, false
	}
	return n, true
}
