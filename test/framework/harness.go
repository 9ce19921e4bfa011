// Package framework holds the in-process harness used by the
// integration tests: a real captain serving its HTTP API on a loopback
// port, condition waiters, and a scripted fake sailor.
package framework

import (
	"context"
	"fmt"
	"time"

	"github.com/quarterdeck/captain/pkg/api"
	"github.com/quarterdeck/captain/pkg/captain"
	"github.com/quarterdeck/captain/pkg/client"
	"github.com/quarterdeck/captain/pkg/config"
)

// Harness is one running captain with a client pointed at it.
type Harness struct {
	Captain *captain.Captain
	API     *api.Server
	Client  *client.Client
	BaseURL string
}

// FastConfig returns a configuration tuned for tests: a scratch data
// directory and a quick control loop.
func FastConfig(dataDir string) *config.Config {
	cfg := config.Default()
	cfg.DataDir = dataDir
	cfg.TickInterval = config.Duration(50 * time.Millisecond)
	cfg.RPCTimeout = config.Duration(2 * time.Second)
	return &cfg
}

// NewHarness starts the captain and its API. The caller owns Stop.
func NewHarness(cfg *config.Config) (*Harness, error) {
	c, err := captain.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to build captain: %w", err)
	}
	c.Start()

	srv := api.NewServer(c)
	if err := srv.Start("127.0.0.1:0"); err != nil {
		c.Stop()
		return nil, fmt.Errorf("failed to start api: %w", err)
	}

	base := "http://" + srv.Addr()
	return &Harness{
		Captain: c,
		API:     srv,
		Client:  client.New(base),
		BaseURL: base,
	}, nil
}

// Stop shuts the API down first so no request races the captain
// teardown.
func (h *Harness) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := h.API.Stop(ctx)
	h.Captain.Stop()
	return err
}
