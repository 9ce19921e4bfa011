package framework

import (
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"

	"github.com/quarterdeck/captain/pkg/types"
)

// FakeSailor is a scripted sailor daemon. It accepts the captain's
// assign and cancel RPCs and records them for assertions; heartbeats
// are the test's job, driven through the API client.
type FakeSailor struct {
	Name    string
	srv     *httptest.Server
	assigns chan types.AssignRequest
	cancels chan types.CancelRequest
}

// NewFakeSailor starts a fake sailor daemon on a loopback port.
func NewFakeSailor(name string) *FakeSailor {
	f := &FakeSailor{
		Name:    name,
		assigns: make(chan types.AssignRequest, 16),
		cancels: make(chan types.CancelRequest, 16),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/chore", f.handleAssign)
	mux.HandleFunc("/cancel", f.handleCancel)
	f.srv = httptest.NewServer(mux)
	return f
}

// HostPort returns the preregistration address of the daemon.
func (f *FakeSailor) HostPort() (string, int) {
	hostPort := strings.TrimPrefix(f.srv.URL, "http://")
	host, portStr, err := net.SplitHostPort(hostPort)
	if err != nil {
		return hostPort, 0
	}
	port, _ := strconv.Atoi(portStr)
	return host, port
}

// Assigns yields the assign RPCs received, in arrival order.
func (f *FakeSailor) Assigns() <-chan types.AssignRequest { return f.assigns }

// Cancels yields the cancel RPCs received, in arrival order.
func (f *FakeSailor) Cancels() <-chan types.CancelRequest { return f.cancels }

// Close shuts the daemon down.
func (f *FakeSailor) Close() { f.srv.Close() }

func (f *FakeSailor) handleAssign(w http.ResponseWriter, r *http.Request) {
	var req types.AssignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	select {
	case f.assigns <- req:
	default:
	}
	w.WriteHeader(http.StatusOK)
}

func (f *FakeSailor) handleCancel(w http.ResponseWriter, r *http.Request) {
	var req types.CancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	select {
	case f.cancels <- req:
	default:
	}
	w.WriteHeader(http.StatusOK)
}
