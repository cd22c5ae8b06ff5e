package store

import (
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "nodeagent-test.db")
	s, err := Open(dbPath)
	if err != nil {
		t.Fatalf("open test store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})
	return s
}

func TestEnrollAndFindNodeByMAC(t *testing.T) {
	s := openTestStore(t)

	if _, found, err := s.FindNodeByMAC([]string{"aa:bb:cc:00:00:01"}); err != nil || found {
		t.Fatalf("expected empty store lookup to miss, found=%v err=%v", found, err)
	}

	node, err := s.EnrollNode("node-1", "host-a", []string{"AA:BB:CC:00:00:02", " aa:bb:cc:00:00:01 ", "aa:bb:cc:00:00:02"})
	if err != nil {
		t.Fatalf("enroll node: %v", err)
	}
	if node.UUID != "node-1" || node.Name != "host-a" {
		t.Fatalf("unexpected node %+v", node)
	}
	if len(node.MACAddresses) != 2 || node.MACAddresses[0] != "aa:bb:cc:00:00:01" || node.MACAddresses[1] != "aa:bb:cc:00:00:02" {
		t.Fatalf("expected normalized, deduplicated macs, got %v", node.MACAddresses)
	}
	if node.CreatedUTC.IsZero() || !node.LastHeartbeatUTC.IsZero() {
		t.Fatalf("unexpected timestamps %+v", node)
	}

	found, ok, err := s.FindNodeByMAC([]string{"de:ad:be:ef:00:00", "AA:BB:CC:00:00:02"})
	if err != nil || !ok {
		t.Fatalf("expected lookup by second mac to hit, ok=%v err=%v", ok, err)
	}
	if found.UUID != "node-1" {
		t.Fatalf("found wrong node %+v", found)
	}
}

func TestEnrollNodeValidation(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.EnrollNode("", "x", []string{"aa:bb:cc:00:00:01"}); err == nil {
		t.Fatalf("expected missing uuid error")
	}
	if _, err := s.EnrollNode("node-1", "x", []string{" "}); err == nil {
		t.Fatalf("expected missing mac error")
	}
	if _, err := s.EnrollNode("node-1", "x", []string{"aa:bb:cc:00:00:01"}); err != nil {
		t.Fatalf("enroll: %v", err)
	}
	if _, err := s.EnrollNode("node-1", "x", []string{"aa:bb:cc:00:00:09"}); err == nil {
		t.Fatalf("expected duplicate uuid error")
	}
}

func TestEnrollNodeMovesMACOwnership(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.EnrollNode("old", "", []string{"aa:bb:cc:00:00:01"}); err != nil {
		t.Fatalf("enroll old: %v", err)
	}
	if _, err := s.EnrollNode("new", "", []string{"aa:bb:cc:00:00:01"}); err != nil {
		t.Fatalf("enroll new: %v", err)
	}
	node, ok, err := s.FindNodeByMAC([]string{"aa:bb:cc:00:00:01"})
	if err != nil || !ok || node.UUID != "new" {
		t.Fatalf("expected mac to belong to new node, got %+v ok=%v err=%v", node, ok, err)
	}
	old, err := s.GetNode("old")
	if err != nil {
		t.Fatalf("get old: %v", err)
	}
	if len(old.MACAddresses) != 0 {
		t.Fatalf("expected old node to lose its mac, got %v", old.MACAddresses)
	}
}

func TestRecordHeartbeat(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.EnrollNode("node-1", "", []string{"aa:bb:cc:00:00:01"}); err != nil {
		t.Fatalf("enroll: %v", err)
	}
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	if err := s.RecordHeartbeat("node-1", "http://10.0.0.5:9999", at); err != nil {
		t.Fatalf("record heartbeat: %v", err)
	}
	node, err := s.GetNode("node-1")
	if err != nil {
		t.Fatalf("get node: %v", err)
	}
	if node.AgentURL != "http://10.0.0.5:9999" || !node.LastHeartbeatUTC.Equal(at) {
		t.Fatalf("heartbeat not stored: %+v", node)
	}

	if err := s.RecordHeartbeat("missing", "http://x:1", at); !errors.Is(err, ErrNodeNotFound) {
		t.Fatalf("expected ErrNodeNotFound, got %v", err)
	}
	if _, err := s.GetNode("missing"); !errors.Is(err, ErrNodeNotFound) {
		t.Fatalf("expected ErrNodeNotFound from GetNode, got %v", err)
	}
}

func TestListNodes(t *testing.T) {
	s := openTestStore(t)
	nodes, err := s.ListNodes()
	if err != nil {
		t.Fatalf("list empty: %v", err)
	}
	if len(nodes) != 0 {
		t.Fatalf("expected no nodes, got %+v", nodes)
	}
	for _, id := range []string{"node-a", "node-b"} {
		if _, err := s.EnrollNode(id, id, []string{"mac-" + id}); err != nil {
			t.Fatalf("enroll %s: %v", id, err)
		}
	}
	nodes, err = s.ListNodes()
	if err != nil {
		t.Fatalf("list nodes: %v", err)
	}
	if len(nodes) != 2 || nodes[0].UUID != "node-a" || nodes[1].UUID != "node-b" {
		t.Fatalf("unexpected node list %+v", nodes)
	}
	if len(nodes[1].MACAddresses) != 1 || nodes[1].MACAddresses[0] != "mac-node-b" {
		t.Fatalf("expected macs on listed nodes, got %+v", nodes[1])
	}
}

func TestOpenPersistsAcrossReopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "persist.db")
	s, err := Open(dbPath)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := s.EnrollNode("node-1", "", []string{"aa:bb:cc:00:00:01"}); err != nil {
		t.Fatalf("enroll: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	s, err = Open(dbPath)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()
	if _, err := s.GetNode("node-1"); err != nil {
		t.Fatalf("expected node after reopen: %v", err)
	}
}

func TestPingReportsClosedStore(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "ping.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := s.Ping(); err != nil {
		t.Fatalf("ping open store: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := s.Ping(); err == nil {
		t.Fatalf("expected ping error after close")
	}
}
