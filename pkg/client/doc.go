/*
Package client provides a Go client library for the captain HTTP API.

The client wraps every endpoint of the captain with a typed method,
handles JSON encoding, per-call timeouts, bearer-token sessions, and
turns non-2xx replies into APIError values that preserve the status
code and server-side message.

# Usage

	c := client.New("http://captain.example:8000")

	id, err := c.SubmitChore(captain.SubmitRequest{
	        Owner:  "alice",
	        Script: "/home/alice/run.sh",
	})
	if err != nil {
	        return err
	}

	chores, err := c.ListChores()

Session endpoints need a login first; the token is retained on the
client:

	if _, err := c.Login("alice"); err != nil {
	        return err
	}
	mine, err := c.MyChores()

Sailor implementations can drive their side of the contract with
Prereg and Heartbeat:

	reply, err := c.Heartbeat(&types.HeartbeatReport{
	        Name: "bosun",
	        CPUs: 16,
	        RAM:  64 << 30,
	})
	for _, chore := range reply.Assign {
	        // start the chore locally
	}

# Error handling

Transport failures come back wrapped with %w; API rejections come back
as *APIError:

	if err := c.CancelChore(id, ""); err != nil {
	        if ae, ok := client.AsAPIError(err); ok && ae.Code == http.StatusConflict {
	                // already terminal
	        }
	}

The discovery package resolves a running captain's base URL from its
serve.json file for CLIs that do not want to hard-code an address.
*/
package client
