package integration

import (
	"context"
	"testing"
	"time"

	"github.com/quarterdeck/captain/pkg/captain"
	"github.com/quarterdeck/captain/pkg/types"
	"github.com/quarterdeck/captain/test/framework"
)

func exitCode(code int) *int { return &code }

// TestDirectDispatchLifecycle walks a chore through the full direct
// dispatch path: submit, assign RPC to the sailor, running report,
// completion report.
func TestDirectDispatchLifecycle(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test")
	}

	h, err := framework.NewHarness(framework.FastConfig(t.TempDir()))
	if err != nil {
		t.Fatalf("Failed to start harness: %v", err)
	}
	defer h.Stop()

	sailor := framework.NewFakeSailor("dinghy")
	defer sailor.Close()

	t.Log("Step 1: Preregistering the sailor...")
	host, port := sailor.HostPort()
	if err := h.Client.Prereg(sailor.Name, host, port, nil, ""); err != nil {
		t.Fatalf("Failed to preregister: %v", err)
	}
	if _, err := h.Client.Heartbeat(&types.HeartbeatReport{Name: sailor.Name, CPUs: 4, RAM: 8 << 30}); err != nil {
		t.Fatalf("First heartbeat failed: %v", err)
	}
	t.Log("✓ Sailor ready")

	t.Log("Step 2: Submitting a chore...")
	id, err := h.Client.SubmitChore(captain.SubmitRequest{
		Owner:  "alice",
		Script: "/home/alice/crunch.sh",
	})
	if err != nil {
		t.Fatalf("Failed to submit: %v", err)
	}
	t.Logf("✓ Chore %d submitted", id)

	t.Log("Step 3: Waiting for the assign RPC...")
	select {
	case req := <-sailor.Assigns():
		if req.ChoreID != id {
			t.Fatalf("Assign carried chore %d, want %d", req.ChoreID, id)
		}
		if req.Script != "/home/alice/crunch.sh" {
			t.Fatalf("Assign carried script %q", req.Script)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Assign RPC never arrived")
	}

	waiter := framework.DefaultWaiter()
	ctx := context.Background()
	if err := waiter.WaitForChoreStatus(ctx, h.Client, id, types.ChoreStatusAssigned); err != nil {
		t.Fatal(err)
	}
	t.Log("✓ Chore assigned")

	t.Log("Step 4: Reporting the chore running...")
	if _, err := h.Client.Heartbeat(&types.HeartbeatReport{
		Name: sailor.Name, CPUs: 4, RAM: 8 << 30,
		Running: []types.HeartbeatChore{{ChoreID: id, PID: 4242, Status: "running"}},
	}); err != nil {
		t.Fatalf("Heartbeat failed: %v", err)
	}
	if err := waiter.WaitForChoreStatus(ctx, h.Client, id, types.ChoreStatusRunning); err != nil {
		t.Fatal(err)
	}
	if err := waiter.WaitForSailorStatus(ctx, h.Client, sailor.Name, types.SailorStatusWorking); err != nil {
		t.Fatal(err)
	}
	t.Log("✓ Chore running")

	t.Log("Step 5: Reporting completion...")
	if _, err := h.Client.Heartbeat(&types.HeartbeatReport{
		Name: sailor.Name, CPUs: 4, RAM: 8 << 30,
		Running: []types.HeartbeatChore{{ChoreID: id, Status: "finished", Exit: exitCode(0)}},
	}); err != nil {
		t.Fatalf("Heartbeat failed: %v", err)
	}
	if err := waiter.WaitForChoreStatus(ctx, h.Client, id, types.ChoreStatusCompleted); err != nil {
		t.Fatal(err)
	}
	if err := waiter.WaitForSailorStatus(ctx, h.Client, sailor.Name, types.SailorStatusReady); err != nil {
		t.Fatal(err)
	}
	t.Log("✓ Chore completed, capacity freed")
}

// TestCancelPropagation checks that canceling an assigned chore takes
// effect locally at once, reaches the sailor as an RPC, and is
// re-sent through heartbeat replies while the sailor still reports
// the chore running.
func TestCancelPropagation(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test")
	}

	h, err := framework.NewHarness(framework.FastConfig(t.TempDir()))
	if err != nil {
		t.Fatalf("Failed to start harness: %v", err)
	}
	defer h.Stop()

	sailor := framework.NewFakeSailor("pinnace")
	defer sailor.Close()

	host, port := sailor.HostPort()
	if err := h.Client.Prereg(sailor.Name, host, port, nil, ""); err != nil {
		t.Fatalf("Failed to preregister: %v", err)
	}
	if _, err := h.Client.Heartbeat(&types.HeartbeatReport{Name: sailor.Name, CPUs: 2, RAM: 4 << 30}); err != nil {
		t.Fatalf("First heartbeat failed: %v", err)
	}

	id, err := h.Client.SubmitChore(captain.SubmitRequest{Owner: "bob", Script: "/home/bob/long.sh"})
	if err != nil {
		t.Fatalf("Failed to submit: %v", err)
	}

	waiter := framework.DefaultWaiter()
	ctx := context.Background()
	if err := waiter.WaitForChoreStatus(ctx, h.Client, id, types.ChoreStatusAssigned); err != nil {
		t.Fatal(err)
	}

	t.Log("Step 1: Canceling the chore...")
	if err := h.Client.CancelChore(id, ""); err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}
	chore, err := h.Client.GetChore(id)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if chore.Status != types.ChoreStatusCanceled {
		t.Fatalf("Chore is %s immediately after cancel, want CANCELED", chore.Status)
	}
	t.Log("✓ Canceled locally without waiting for the sailor")

	t.Log("Step 2: Waiting for the cancel RPC...")
	select {
	case req := <-sailor.Cancels():
		if req.ChoreID != id {
			t.Fatalf("Cancel RPC carried chore %d, want %d", req.ChoreID, id)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Cancel RPC never arrived")
	}
	t.Log("✓ Cancel RPC delivered")

	t.Log("Step 3: Heartbeating as if the chore were still running...")
	reply, err := h.Client.Heartbeat(&types.HeartbeatReport{
		Name: sailor.Name, CPUs: 2, RAM: 4 << 30,
		Running: []types.HeartbeatChore{{ChoreID: id, PID: 777, Status: "running"}},
	})
	if err != nil {
		t.Fatalf("Heartbeat failed: %v", err)
	}
	found := false
	for _, cancelID := range reply.Cancel {
		if cancelID == id {
			found = true
		}
	}
	if !found {
		t.Fatalf("Heartbeat reply did not re-issue the cancel, got %v", reply.Cancel)
	}
	t.Log("✓ Cancel re-issued through the heartbeat reply")

	t.Log("Step 4: Heartbeating without the chore...")
	reply, err = h.Client.Heartbeat(&types.HeartbeatReport{Name: sailor.Name, CPUs: 2, RAM: 4 << 30})
	if err != nil {
		t.Fatalf("Heartbeat failed: %v", err)
	}
	if len(reply.Cancel) != 0 {
		t.Fatalf("Cancel list should be empty once the chore is gone, got %v", reply.Cancel)
	}
}

// TestHeartbeatDispatch runs the captain in heartbeat-only dispatch
// mode: assignments ride on heartbeat replies instead of direct RPCs.
func TestHeartbeatDispatch(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test")
	}

	cfg := framework.FastConfig(t.TempDir())
	cfg.AssignViaHeartbeat = true

	h, err := framework.NewHarness(cfg)
	if err != nil {
		t.Fatalf("Failed to start harness: %v", err)
	}
	defer h.Stop()

	if err := h.Client.Prereg("skiff", "203.0.113.40", 8001, nil, ""); err != nil {
		t.Fatalf("Failed to preregister: %v", err)
	}
	if _, err := h.Client.Heartbeat(&types.HeartbeatReport{Name: "skiff", CPUs: 2, RAM: 4 << 30}); err != nil {
		t.Fatalf("First heartbeat failed: %v", err)
	}

	id, err := h.Client.SubmitChore(captain.SubmitRequest{Owner: "carol", Script: "/home/carol/job.sh"})
	if err != nil {
		t.Fatalf("Failed to submit: %v", err)
	}

	t.Log("Waiting for the assignment to ride a heartbeat reply...")
	deadline := time.Now().Add(5 * time.Second)
	for {
		if time.Now().After(deadline) {
			t.Fatal("Assignment never appeared in a heartbeat reply")
		}
		reply, err := h.Client.Heartbeat(&types.HeartbeatReport{Name: "skiff", CPUs: 2, RAM: 4 << 30})
		if err != nil {
			t.Fatalf("Heartbeat failed: %v", err)
		}
		if len(reply.Assign) > 0 {
			if reply.Assign[0].ID != id {
				t.Fatalf("Reply carried chore %d, want %d", reply.Assign[0].ID, id)
			}
			break
		}
		time.Sleep(25 * time.Millisecond)
	}
	t.Log("✓ Assignment delivered via heartbeat")

	chore, err := h.Client.GetChore(id)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if chore.Status != types.ChoreStatusAssigned {
		t.Fatalf("Chore is %s, want ASSIGNED", chore.Status)
	}
	if chore.Sailor != "skiff" {
		t.Fatalf("Chore on %q, want skiff", chore.Sailor)
	}
}
