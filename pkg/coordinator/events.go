package coordinator

import (
	"context"
	"log"

	"github.com/hypermesh-online/meshcoord/pkg/model"
)

// publish enqueues a fleet event for the processor. The send never blocks: a
// full channel means the control plane is badly behind, and the caller gets a
// network error instead of a stall.
func (c *Coordinator) publish(evt model.Event) error {
	if evt.Time.IsZero() {
		evt.Time = c.now()
	}
	select {
	case c.events <- evt:
		return nil
	default:
		return &model.NetworkError{Message: "event channel full, dropping " + string(evt.Type)}
	}
}

// HandleEvent injects an externally produced fleet event into the pipeline.
func (c *Coordinator) HandleEvent(evt model.Event) error {
	if evt.Type == "" {
		return &model.NetworkError{Message: "event has no type"}
	}
	return c.publish(evt)
}

// Subscribe registers a fleet event listener. Delivery is best effort: a slow
// subscriber loses events rather than blocking the processor. The returned
// cancel function must be called to release the subscription.
func (c *Coordinator) Subscribe(buffer int) (<-chan model.Event, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan model.Event, buffer)
	c.subsMu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = ch
	c.subsMu.Unlock()
	return ch, func() {
		c.subsMu.Lock()
		delete(c.subs, id)
		c.subsMu.Unlock()
	}
}

// processEvents is the single consumer of the event channel. Running alone
// gives every event a total order: sequence numbers, metric updates and the
// persisted audit log all agree.
func (c *Coordinator) processEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt := <-c.events:
			c.applyEvent(ctx, evt)
		}
	}
}

func (c *Coordinator) applyEvent(ctx context.Context, evt model.Event) {
	evt.Seq = c.seq.Add(1)

	c.metricsMu.Lock()
	c.metrics.EventsProcessed++
	switch evt.Type {
	case model.EventNodeJoined:
		switch {
		case !evt.Rejoin:
			c.metrics.TotalNodes++
			c.metrics.HealthyNodes++
		case evt.PrevStatus == model.StatusFailed:
			// A failed node coming back counts as healthy again; the node
			// itself was never removed from the total.
			decr(&c.metrics.FailedNodes)
			c.metrics.HealthyNodes++
		}
	case model.EventNodeLeft:
		decr(&c.metrics.TotalNodes)
		decr(&c.metrics.HealthyNodes)
	case model.EventNodeFailed:
		decr(&c.metrics.HealthyNodes)
		c.metrics.FailedNodes++
	case model.EventPartitionDetected:
		c.metrics.PartitionsDetected++
	case model.EventPartitionHealed:
		c.metrics.PartitionsHealed++
	case model.EventMigrationCompleted:
		c.metrics.SuccessfulMigrations++
	case model.EventMigrationFailed:
		c.metrics.FailedMigrations++
	case model.EventByzantineDetected:
		c.metrics.ByzantineNodes++
	}
	c.metricsMu.Unlock()

	if c.st != nil {
		if err := c.st.Events().Append(&evt); err != nil {
			log.Printf("coordinator: persist event %d (%s): %v", evt.Seq, evt.Type, err)
		}
	}

	c.subsMu.Lock()
	for _, ch := range c.subs {
		select {
		case ch <- evt:
		default:
		}
	}
	c.subsMu.Unlock()

	if evt.Type == model.EventNodeFailed && c.cfg.AutoRecovery && evt.Node != nil {
		failed := *evt.Node
		// Recovery runs off the processor goroutine: it publishes its own
		// migration events and must not deadlock against a full channel.
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			if err := c.HandleNodeFailure(ctx, failed); err != nil {
				log.Printf("coordinator: recover from failure of %s: %v", failed.ShortKey(), err)
			}
		}()
	}
}

func decr(v *uint64) {
	if *v > 0 {
		*v--
	}
}
