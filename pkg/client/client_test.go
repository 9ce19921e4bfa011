package client

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quarterdeck/captain/pkg/api"
	"github.com/quarterdeck/captain/pkg/captain"
	"github.com/quarterdeck/captain/pkg/config"
	"github.com/quarterdeck/captain/pkg/types"
)

// startCaptain brings up a captain with its API on a loopback port and
// returns a client pointed at it. The control loop is slowed to an
// hour so nothing reschedules behind the assertions.
func startCaptain(t *testing.T) *Client {
	t.Helper()
	cfg := config.Default()
	cfg.DataDir = t.TempDir()
	cfg.TickInterval = config.Duration(time.Hour)
	cfg.AssignViaHeartbeat = true

	c, err := captain.New(&cfg)
	require.NoError(t, err)
	c.Start()

	srv := api.NewServer(c)
	require.NoError(t, srv.Start("127.0.0.1:0"))

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		require.NoError(t, srv.Stop(ctx))
		c.Stop()
	})
	return New("http://" + srv.Addr())
}

func TestChoreRoundTrip(t *testing.T) {
	c := startCaptain(t)

	require.NoError(t, c.Prereg("bosun", "203.0.113.9", 8700, nil, ""))
	reply, err := c.Heartbeat(&types.HeartbeatReport{Name: "bosun", CPUs: 8, RAM: 32 << 30})
	require.NoError(t, err)
	assert.Empty(t, reply.Assign)
	assert.Empty(t, reply.Cancel)

	id, err := c.SubmitChore(captain.SubmitRequest{Owner: "alice", Script: "/bin/true"})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, id, int64(100000000))

	list, err := c.ListChores()
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, types.ChoreStatusPending, list[0].Status)

	chore, err := c.GetChore(id)
	require.NoError(t, err)
	assert.Equal(t, "alice", chore.Owner)

	require.NoError(t, c.CancelChore(id, ""))
	chore, err = c.GetChore(id)
	require.NoError(t, err)
	assert.Equal(t, types.ChoreStatusCanceled, chore.Status)
	assert.Equal(t, types.ReasonCanceledByUser, chore.Reason)

	archived, err := c.ArchivedChores()
	require.NoError(t, err)
	assert.Empty(t, archived)

	fleet, err := c.ListCrew()
	require.NoError(t, err)
	require.Len(t, fleet, 1)
	assert.Equal(t, "bosun", fleet[0].Name)
	assert.Equal(t, types.SailorStatusReady, fleet[0].Status)

	require.NoError(t, c.RemoveSailor("bosun"))
	fleet, err = c.ListCrew()
	require.NoError(t, err)
	assert.Empty(t, fleet)
}

func TestErrorsCarryStatus(t *testing.T) {
	c := startCaptain(t)

	err := c.CancelChore(424242, "")
	require.Error(t, err)
	ae, ok := AsAPIError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusNotFound, ae.Code)
	assert.NotEmpty(t, ae.Message)

	_, err = c.SubmitChore(captain.SubmitRequest{Script: "/bin/true"})
	require.Error(t, err)
	ae, ok = AsAPIError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusBadRequest, ae.Code)

	err = c.RemoveSailor("ghost")
	require.Error(t, err)
	ae, ok = AsAPIError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusNotFound, ae.Code)
}

func TestSessionFlow(t *testing.T) {
	c := startCaptain(t)

	limit := 10
	require.NoError(t, c.SetUser(captain.UserUpdate{UID: "alice", ChoresLimit: &limit}))

	users, err := c.ListUsers()
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, 10, users[0].ChoresLimit)

	_, err = c.Login("ghost")
	require.Error(t, err)
	ae, ok := AsAPIError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusNotFound, ae.Code)

	token, err := c.Login("alice")
	require.NoError(t, err)
	assert.NotEmpty(t, token.Token)

	mine, err := c.MyChores()
	require.NoError(t, err)
	assert.Empty(t, mine)

	id, err := c.SubmitChore(captain.SubmitRequest{Owner: "alice", Script: "/bin/true"})
	require.NoError(t, err)
	otherID, err := c.SubmitChore(captain.SubmitRequest{Owner: "bob", Script: "/bin/true"})
	require.NoError(t, err)

	mine, err = c.MyChores()
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, id, mine[0].ID)

	err = c.MyCancel(otherID, "")
	require.Error(t, err)
	ae, ok = AsAPIError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusNotFound, ae.Code)

	require.NoError(t, c.MyCancel(id, ""))
	chore, err := c.GetChore(id)
	require.NoError(t, err)
	assert.Equal(t, types.ChoreStatusCanceled, chore.Status)
}

func TestHealthProbe(t *testing.T) {
	c := startCaptain(t)
	assert.NoError(t, c.Health())
}
