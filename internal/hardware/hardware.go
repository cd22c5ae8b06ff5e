// Package hardware collects the inventory the agent submits on node lookup.
package hardware

import (
	"fmt"
	"net"
	"os"
	"runtime"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

type Inventory struct {
	Hostname   string             `json:"hostname"`
	Interfaces []NetworkInterface `json:"interfaces"`
	CPU        CPU                `json:"cpu"`
	Memory     Memory             `json:"memory"`
	System     System             `json:"system"`
}

type NetworkInterface struct {
	Name        string `json:"name"`
	MACAddress  string `json:"mac_address"`
	IPv4Address string `json:"ipv4_address,omitempty"`
}

type CPU struct {
	Count        int    `json:"count"`
	Architecture string `json:"architecture"`
}

type Memory struct {
	TotalBytes uint64 `json:"total_bytes,omitempty"`
}

type System struct {
	OS            string `json:"os"`
	KernelRelease string `json:"kernel_release,omitempty"`
	Machine       string `json:"machine,omitempty"`
}

type Options struct {
	// InterfaceGlobs selects interfaces by name. Empty keeps every interface.
	InterfaceGlobs []string
}

// MACAddresses lists the MAC address of every collected interface.
func (inv Inventory) MACAddresses() []string {
	out := make([]string, 0, len(inv.Interfaces))
	for _, iface := range inv.Interfaces {
		if iface.MACAddress != "" {
			out = append(out, iface.MACAddress)
		}
	}
	return out
}

// FirstIPv4 returns the first interface IPv4 address, or "".
func (inv Inventory) FirstIPv4() string {
	for _, iface := range inv.Interfaces {
		if iface.IPv4Address != "" {
			return iface.IPv4Address
		}
	}
	return ""
}

func Collect(opts Options) (Inventory, error) {
	for _, pattern := range opts.InterfaceGlobs {
		if !doublestar.ValidatePattern(pattern) {
			return Inventory{}, fmt.Errorf("invalid interface glob %q", pattern)
		}
	}

	ifaces, err := net.Interfaces()
	if err != nil {
		return Inventory{}, fmt.Errorf("list network interfaces: %w", err)
	}
	interfaces := collectInterfaces(ifaces, interfaceAddrs, opts.InterfaceGlobs)

	hostname, _ := os.Hostname()
	sys, mem := platformInfo()
	sys.OS = runtime.GOOS

	return Inventory{
		Hostname:   hostname,
		Interfaces: interfaces,
		CPU: CPU{
			Count:        runtime.NumCPU(),
			Architecture: runtime.GOARCH,
		},
		Memory: mem,
		System: sys,
	}, nil
}

func interfaceAddrs(iface net.Interface) ([]net.Addr, error) {
	return iface.Addrs()
}

func collectInterfaces(ifaces []net.Interface, addrs func(net.Interface) ([]net.Addr, error), globs []string) []NetworkInterface {
	out := make([]NetworkInterface, 0, len(ifaces))
	for _, iface := range ifaces {
		if iface.Flags&net.FlagLoopback != 0 || len(iface.HardwareAddr) == 0 {
			continue
		}
		if !matchesAny(iface.Name, globs) {
			continue
		}
		entry := NetworkInterface{
			Name:       iface.Name,
			MACAddress: strings.ToLower(iface.HardwareAddr.String()),
		}
		if list, err := addrs(iface); err == nil {
			entry.IPv4Address = firstIPv4(list)
		}
		out = append(out, entry)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Name < out[j].Name
	})
	return out
}

func matchesAny(name string, globs []string) bool {
	if len(globs) == 0 {
		return true
	}
	for _, pattern := range globs {
		if ok, err := doublestar.Match(pattern, name); err == nil && ok {
			return true
		}
	}
	return false
}

func firstIPv4(addrs []net.Addr) string {
	for _, addr := range addrs {
		ipNet, ok := addr.(*net.IPNet)
		if !ok || ipNet == nil {
			continue
		}
		ip := ipNet.IP.To4()
		if ip == nil || ip.IsLoopback() || ip.IsLinkLocalUnicast() {
			continue
		}
		return ip.String()
	}
	return ""
}
