package assign

import (
	"context"
	"fmt"
	"sync"

	"deliverySync/internal/notify"
	"deliverySync/models"
)

// Dialog is an open manual-assignment decision for one delivery. While it is
// open the sweep leaves the delivery alone; a dismissed dialog, or one whose
// delivery changed underneath it, cannot apply its choice.
type Dialog struct {
	c          *Coordinator
	deliveryID int64
	version    int64
	status     models.DeliveryStatus
	agentID    int64

	mu     sync.Mutex
	closed bool
}

// OpenDialog snapshots the delivery and cancels its pending sweep timer.
func (c *Coordinator) OpenDialog(deliveryID int64) (*Dialog, error) {
	d, ok := c.store.Delivery(deliveryID)
	if !ok {
		return nil, fmt.Errorf("delivery %d: %w", deliveryID, models.ErrNotFound)
	}
	c.mu.Lock()
	if st, ok := c.timers[deliveryID]; ok {
		st.t.Stop()
		delete(c.timers, deliveryID)
	}
	c.held[deliveryID]++
	c.mu.Unlock()
	return &Dialog{c: c, deliveryID: deliveryID, version: d.Version, status: d.Status, agentID: d.AgentID()}, nil
}

// DeliveryID returns the delivery the dialog was opened for.
func (d *Dialog) DeliveryID() int64 { return d.deliveryID }

// Confirm assigns agentID and closes the dialog.
func (d *Dialog) Confirm(ctx context.Context, agentID int64) (models.Delivery, error) {
	if !d.close() {
		return models.Delivery{}, ErrDialogClosed
	}
	cur, ok := d.c.store.Delivery(d.deliveryID)
	if !ok {
		return models.Delivery{}, fmt.Errorf("delivery %d: %w", d.deliveryID, models.ErrNotFound)
	}
	if cur.Status != d.status || cur.AgentID() != d.agentID || (d.version != 0 && cur.Version != d.version) {
		d.c.report(notify.Failure("Assignment not applied", ErrStaleDialog))
		return cur, ErrStaleDialog
	}
	return d.c.ManualAssign(ctx, d.deliveryID, agentID)
}

// Dismiss closes the dialog without assigning and lets the sweep resume.
func (d *Dialog) Dismiss() {
	if !d.close() {
		return
	}
	d.c.ScheduleSweep(d.c.store.Deliveries(), d.c.store.Agents())
}

func (d *Dialog) close() bool {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return false
	}
	d.closed = true
	d.mu.Unlock()

	d.c.mu.Lock()
	if d.c.held[d.deliveryID] <= 1 {
		delete(d.c.held, d.deliveryID)
	} else {
		d.c.held[d.deliveryID]--
	}
	d.c.mu.Unlock()
	return true
}
