/*
Package events distributes captain lifecycle events to subscribers.

# Overview

Every state change worth watching is published on a single in-process
broker: chores moving through their lifecycle, sailors joining or
going dark, and quota records changing. The /events websocket
endpoint subscribes here, as can any internal component.

# Usage

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	sub := broker.Subscribe()
	defer broker.Unsubscribe(sub)

	go func() {
		for event := range sub {
			fmt.Printf("%s chore=%d %s\n", event.Type, event.ChoreID, event.Message)
		}
	}()

	broker.PublishChore(types.EventChoreSubmitted, chore, "queued")

# Delivery semantics

Delivery is best-effort fan-out. Each subscriber has a small buffer;
when it is full the subscriber silently misses events rather than
slowing the publisher. Components that need a complete record use the
chore documents and the archive, not the event stream.
*/
package events
