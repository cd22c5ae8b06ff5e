package protocol

import "testing"

func TestPaths(t *testing.T) {
	if got, want := LookupPath(), "/v1/drivers/teeth/vendor_passthru/lookup"; got != want {
		t.Fatalf("LookupPath()=%q want=%q", got, want)
	}
	if got, want := HeartbeatPath("abc-123"), "/v1/nodes/abc-123/vendor_passthru/heartbeat"; got != want {
		t.Fatalf("HeartbeatPath()=%q want=%q", got, want)
	}
	if got, want := HeartbeatPath("a/b"), "/v1/nodes/a%2Fb/vendor_passthru/heartbeat"; got != want {
		t.Fatalf("expected uuid to be path escaped, got %q want %q", got, want)
	}
}
