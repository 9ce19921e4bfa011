// Package discovery publishes and resolves the serve.json file that
// tells out-of-process CLIs where the running captain listens.
package discovery

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/renameio/v2"
)

// EnvFlagFile overrides the discovery file location when set.
const EnvFlagFile = "CAPTAIN_FLAG_FILE"

// Record describes a running captain.
type Record struct {
	Host      string `json:"host"`
	Port      int    `json:"port"`
	URL       string `json:"url"`
	PID       int    `json:"pid"`
	StartedAt int64  `json:"started_at"`
}

// Path resolves the discovery file location for a data directory,
// honoring the CAPTAIN_FLAG_FILE override.
func Path(dataDir string) string {
	if p := os.Getenv(EnvFlagFile); p != "" {
		return p
	}
	return filepath.Join(dataDir, "captain", "serve.json")
}

// Write records the listening address atomically. Wildcard hosts are
// rewritten to loopback in the URL so clients on the same machine can
// dial it directly.
func Write(path, addr string) (Record, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return Record{}, fmt.Errorf("bad listen address %q: %w", addr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return Record{}, fmt.Errorf("bad listen port %q: %w", portStr, err)
	}
	urlHost := host
	if host == "" || host == "0.0.0.0" || host == "::" {
		urlHost = "127.0.0.1"
	}
	rec := Record{
		Host:      host,
		Port:      port,
		URL:       "http://" + net.JoinHostPort(urlHost, portStr),
		PID:       os.Getpid(),
		StartedAt: time.Now().Unix(),
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return Record{}, fmt.Errorf("failed to encode discovery record: %w", err)
	}
	if err := renameio.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return Record{}, fmt.Errorf("failed to write discovery file: %w", err)
	}
	return rec, nil
}

// Read loads the discovery record written by a running captain.
func Read(path string) (Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Record{}, fmt.Errorf("failed to read discovery file: %w", err)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, fmt.Errorf("malformed discovery file %s: %w", path, err)
	}
	return rec, nil
}

// Remove deletes the discovery file. A missing file is not an error.
func Remove(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
