package discovery

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/hashicorp/mdns"
)

func TestLookupReturnsFirstUsableEntry(t *testing.T) {
	t.Parallel()
	var gotParams *mdns.QueryParam
	d := &Discoverer{query: func(p *mdns.QueryParam) error {
		gotParams = p
		p.Entries <- &mdns.ServiceEntry{Name: "no-addr", Port: 6385}
		p.Entries <- &mdns.ServiceEntry{Name: "api", AddrV4: net.ParseIP("10.0.0.2"), Port: 6385}
		return nil
	}}

	endpoint, err := d.Lookup(context.Background(), "_nodeagent-api._tcp", 2*time.Second)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if endpoint != "http://10.0.0.2:6385" {
		t.Fatalf("unexpected endpoint %q", endpoint)
	}
	if gotParams.Service != "_nodeagent-api._tcp" || gotParams.Timeout != 2*time.Second {
		t.Fatalf("unexpected query params %+v", gotParams)
	}
}

func TestLookupNotFound(t *testing.T) {
	t.Parallel()
	d := &Discoverer{query: func(*mdns.QueryParam) error { return nil }}
	if _, err := d.Lookup(context.Background(), "_nodeagent-api._tcp", time.Second); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestLookupQueryError(t *testing.T) {
	t.Parallel()
	boom := errors.New("no multicast")
	d := &Discoverer{query: func(*mdns.QueryParam) error { return boom }}
	if _, err := d.Lookup(context.Background(), "_nodeagent-api._tcp", time.Second); !errors.Is(err, boom) {
		t.Fatalf("expected query error, got %v", err)
	}
	if _, err := d.Lookup(context.Background(), " ", time.Second); err == nil {
		t.Fatalf("expected error for empty service")
	}
}

func TestLookupHonoursContext(t *testing.T) {
	t.Parallel()
	release := make(chan struct{})
	defer close(release)
	d := &Discoverer{query: func(*mdns.QueryParam) error {
		<-release
		return nil
	}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := d.Lookup(ctx, "_nodeagent-api._tcp", time.Second); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestEntryURL(t *testing.T) {
	tests := []struct {
		name  string
		entry *mdns.ServiceEntry
		want  string
		ok    bool
	}{
		{name: "nil", entry: nil},
		{name: "no port", entry: &mdns.ServiceEntry{AddrV4: net.ParseIP("10.0.0.2")}},
		{name: "v4", entry: &mdns.ServiceEntry{AddrV4: net.ParseIP("10.0.0.2"), Port: 80}, want: "http://10.0.0.2:80", ok: true},
		{name: "v6 fallback", entry: &mdns.ServiceEntry{AddrV6: net.ParseIP("fd00::2"), Port: 6385}, want: "http://[fd00::2]:6385", ok: true},
		{name: "https txt", entry: &mdns.ServiceEntry{AddrV4: net.ParseIP("10.0.0.2"), Port: 443, InfoFields: []string{"name=api", "protocol=https"}}, want: "https://10.0.0.2:443", ok: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := entryURL(tc.entry)
			if ok != tc.ok || got != tc.want {
				t.Fatalf("entryURL()=(%q,%v), want (%q,%v)", got, ok, tc.want, tc.ok)
			}
		})
	}
}
