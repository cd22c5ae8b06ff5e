package store

import (
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/izzyreal/nodeagent/internal/protocol"
)

// ErrNodeNotFound is returned when a node UUID is not registered.
var ErrNodeNotFound = errors.New("node not found")

type Store struct {
	db *sql.DB
}

func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// A single connection keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Ping reports whether the database is still reachable.
func (s *Store) Ping() error {
	if err := s.db.Ping(); err != nil {
		return fmt.Errorf("ping sqlite db: %w", err)
	}
	return nil
}

func (s *Store) migrate() error {
	stmts := []string{
		`PRAGMA journal_mode=WAL;`,
		`PRAGMA foreign_keys=ON;`,
		`CREATE TABLE IF NOT EXISTS nodes (
			uuid TEXT PRIMARY KEY,
			name TEXT NOT NULL DEFAULT '',
			agent_url TEXT NOT NULL DEFAULT '',
			created_utc TEXT NOT NULL,
			last_heartbeat_utc TEXT
		);`,
		`CREATE TABLE IF NOT EXISTS node_macs (
			mac_address TEXT PRIMARY KEY,
			node_uuid TEXT NOT NULL,
			FOREIGN KEY(node_uuid) REFERENCES nodes(uuid) ON DELETE CASCADE
		);`,
		`CREATE INDEX IF NOT EXISTS idx_node_macs_node ON node_macs(node_uuid);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate sqlite db: %w", err)
		}
	}
	return nil
}

// FindNodeByMAC returns the node owning any of macs. found is false when none matches.
func (s *Store) FindNodeByMAC(macs []string) (node protocol.Node, found bool, err error) {
	for _, mac := range normalizeMACs(macs) {
		var uuid string
		err := s.db.QueryRow(`SELECT node_uuid FROM node_macs WHERE mac_address = ?`, mac).Scan(&uuid)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return protocol.Node{}, false, fmt.Errorf("find node by mac: %w", err)
		}
		node, err := s.GetNode(uuid)
		if err != nil {
			return protocol.Node{}, false, err
		}
		return node, true, nil
	}
	return protocol.Node{}, false, nil
}

// EnrollNode registers a new node owning macs. MACs already owned by another node
// are moved to the new one.
func (s *Store) EnrollNode(uuid, name string, macs []string) (protocol.Node, error) {
	macs = normalizeMACs(macs)
	if strings.TrimSpace(uuid) == "" {
		return protocol.Node{}, fmt.Errorf("node uuid is required")
	}
	if len(macs) == 0 {
		return protocol.Node{}, fmt.Errorf("at least one mac address is required")
	}

	tx, err := s.db.Begin()
	if err != nil {
		return protocol.Node{}, fmt.Errorf("begin enroll node: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC().Format(time.RFC3339Nano)
	if _, err := tx.Exec(`INSERT INTO nodes (uuid, name, created_utc) VALUES (?, ?, ?)`, uuid, name, now); err != nil {
		return protocol.Node{}, fmt.Errorf("insert node: %w", err)
	}
	for _, mac := range macs {
		if _, err := tx.Exec(`
			INSERT INTO node_macs (mac_address, node_uuid) VALUES (?, ?)
			ON CONFLICT(mac_address) DO UPDATE SET node_uuid = excluded.node_uuid
		`, mac, uuid); err != nil {
			return protocol.Node{}, fmt.Errorf("insert node mac: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return protocol.Node{}, fmt.Errorf("commit enroll node: %w", err)
	}
	return s.GetNode(uuid)
}

func (s *Store) GetNode(uuid string) (protocol.Node, error) {
	var (
		node          protocol.Node
		createdUTC    string
		lastHeartbeat sql.NullString
	)
	err := s.db.QueryRow(`
		SELECT uuid, name, agent_url, created_utc, last_heartbeat_utc
		FROM nodes WHERE uuid = ?
	`, uuid).Scan(&node.UUID, &node.Name, &node.AgentURL, &createdUTC, &lastHeartbeat)
	if errors.Is(err, sql.ErrNoRows) {
		return protocol.Node{}, ErrNodeNotFound
	}
	if err != nil {
		return protocol.Node{}, fmt.Errorf("get node: %w", err)
	}
	node.CreatedUTC = parseTime(createdUTC)
	if lastHeartbeat.Valid {
		node.LastHeartbeatUTC = parseTime(lastHeartbeat.String)
	}
	macs, err := s.nodeMACs(uuid)
	if err != nil {
		return protocol.Node{}, err
	}
	node.MACAddresses = macs
	return node, nil
}

// RecordHeartbeat stores the agent URL and heartbeat time of a node.
func (s *Store) RecordHeartbeat(uuid, agentURL string, at time.Time) error {
	res, err := s.db.Exec(`
		UPDATE nodes SET agent_url = ?, last_heartbeat_utc = ? WHERE uuid = ?
	`, agentURL, at.UTC().Format(time.RFC3339Nano), uuid)
	if err != nil {
		return fmt.Errorf("record heartbeat: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return ErrNodeNotFound
	}
	return nil
}

func (s *Store) ListNodes() ([]protocol.Node, error) {
	rows, err := s.db.Query(`SELECT uuid FROM nodes ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("list nodes: %w", err)
	}
	var uuids []string
	for rows.Next() {
		var uuid string
		if err := rows.Scan(&uuid); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan node: %w", err)
		}
		uuids = append(uuids, uuid)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	nodes := make([]protocol.Node, 0, len(uuids))
	for _, uuid := range uuids {
		node, err := s.GetNode(uuid)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, node)
	}
	return nodes, nil
}

func (s *Store) nodeMACs(uuid string) ([]string, error) {
	rows, err := s.db.Query(`SELECT mac_address FROM node_macs WHERE node_uuid = ?`, uuid)
	if err != nil {
		return nil, fmt.Errorf("list node macs: %w", err)
	}
	defer rows.Close()
	var macs []string
	for rows.Next() {
		var mac string
		if err := rows.Scan(&mac); err != nil {
			return nil, fmt.Errorf("scan node mac: %w", err)
		}
		macs = append(macs, mac)
	}
	sort.Strings(macs)
	return macs, rows.Err()
}

func normalizeMACs(macs []string) []string {
	seen := map[string]struct{}{}
	out := make([]string, 0, len(macs))
	for _, mac := range macs {
		mac = strings.ToLower(strings.TrimSpace(mac))
		if mac == "" {
			continue
		}
		if _, ok := seen[mac]; ok {
			continue
		}
		seen[mac] = struct{}{}
		out = append(out, mac)
	}
	return out
}

func parseTime(v string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}
	}
	return t
}
