// Package discovery finds the management API endpoint over mDNS.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/mdns"
)

// ErrNotFound is returned when no usable service answers before the timeout.
var ErrNotFound = errors.New("management api not found via mdns")

type queryFunc func(*mdns.QueryParam) error

type Discoverer struct {
	query queryFunc
}

func New() *Discoverer {
	return &Discoverer{query: mdns.Query}
}

// Lookup browses for service and returns the endpoint URL of the first usable answer.
func Lookup(ctx context.Context, service string, timeout time.Duration) (string, error) {
	return New().Lookup(ctx, service, timeout)
}

func (d *Discoverer) Lookup(ctx context.Context, service string, timeout time.Duration) (string, error) {
	service = strings.TrimSpace(service)
	if service == "" {
		return "", fmt.Errorf("mdns service name is required")
	}
	if timeout <= 0 {
		timeout = time.Second
	}

	entries := make(chan *mdns.ServiceEntry, 16)
	params := mdns.DefaultParams(service)
	params.Entries = entries
	params.Timeout = timeout

	errCh := make(chan error, 1)
	go func() {
		errCh <- d.query(params)
	}()

	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case entry := <-entries:
			if endpoint, ok := entryURL(entry); ok {
				return endpoint, nil
			}
		case err := <-errCh:
			if err != nil {
				return "", fmt.Errorf("mdns query %s: %w", service, err)
			}
			// The query may have queued answers just before returning.
			for {
				select {
				case entry := <-entries:
					if endpoint, ok := entryURL(entry); ok {
						return endpoint, nil
					}
				default:
					return "", ErrNotFound
				}
			}
		}
	}
}

func entryURL(entry *mdns.ServiceEntry) (string, bool) {
	if entry == nil || entry.Port <= 0 {
		return "", false
	}
	addr := entry.AddrV4
	if addr == nil {
		addr = entry.AddrV6
	}
	if addr == nil {
		return "", false
	}
	scheme := "http"
	for _, field := range entry.InfoFields {
		if strings.EqualFold(strings.TrimSpace(field), "protocol=https") {
			scheme = "https"
		}
	}
	return scheme + "://" + net.JoinHostPort(addr.String(), strconv.Itoa(entry.Port)), true
}
