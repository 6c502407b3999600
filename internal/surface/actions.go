package surface

import (
	"context"
	"errors"
	"fmt"

	"deliverySync/internal/assign"
	"deliverySync/internal/notify"
	"deliverySync/internal/session"
	"deliverySync/internal/status"
	"deliverySync/models"
)

func (s *Surface) requireRole(roles ...session.Role) error {
	if s.isClosed() {
		return ErrClosed
	}
	r := s.sess.Role()
	for _, want := range roles {
		if r == want {
			return nil
		}
	}
	return fmt.Errorf("%s surface cannot do this: %w", r, models.ErrForbidden)
}

// blocked reports a locally refused action.
func (s *Surface) blocked(title string, err error) error {
	n := notify.Failure(title, err)
	n.Kind = notify.KindBlocked
	s.feed.Notify(n)
	return err
}

// AssignDelivery is the administrator's manual assignment.
func (s *Surface) AssignDelivery(ctx context.Context, deliveryID, agentID int64) (models.Delivery, error) {
	if err := s.requireRole(session.RoleAdmin); err != nil {
		return models.Delivery{}, err
	}
	rctx, cancel := s.requestCtx(ctx)
	defer cancel()
	return s.coord.ManualAssign(rctx, deliveryID, agentID)
}

// AutoAssign runs one random pick for deliveryID now.
func (s *Surface) AutoAssign(ctx context.Context, deliveryID int64) (models.Delivery, error) {
	if err := s.requireRole(session.RoleAdmin); err != nil {
		return models.Delivery{}, err
	}
	d, ok := s.store.Delivery(deliveryID)
	if !ok {
		return models.Delivery{}, s.blocked("Auto-assignment failed", fmt.Errorf("delivery %d: %w", deliveryID, models.ErrNotFound))
	}
	rctx, cancel := s.requestCtx(ctx)
	defer cancel()
	return s.coord.AutoAssign(rctx, d)
}

// OpenAssignDialog holds deliveryID out of the sweep while the administrator
// chooses an agent.
func (s *Surface) OpenAssignDialog(deliveryID int64) (*assign.Dialog, error) {
	if err := s.requireRole(session.RoleAdmin); err != nil {
		return nil, err
	}
	return s.coord.OpenDialog(deliveryID)
}

// orderFor returns the order of d from the store, fetching it once if absent.
func (s *Surface) orderFor(ctx context.Context, d models.Delivery) (*models.Order, error) {
	if o, ok := s.store.Order(d.OrderID); ok {
		return &o, nil
	}
	o, err := s.api.GetOrder(ctx, d.OrderID)
	if err != nil {
		return nil, err
	}
	s.store.PutOrders(*o)
	return o, nil
}

// UpdateDeliveryStatus moves a delivery after checking the transition graph and
// the pickup rule locally. A refused change sends nothing.
func (s *Surface) UpdateDeliveryStatus(ctx context.Context, deliveryID int64, to models.DeliveryStatus) (models.Delivery, error) {
	const title = "Delivery update failed"
	if err := s.requireRole(session.RoleAdmin, session.RoleAgent); err != nil {
		return models.Delivery{}, err
	}
	d, ok := s.store.Delivery(deliveryID)
	if !ok {
		return models.Delivery{}, s.blocked(title, fmt.Errorf("delivery %d: %w", deliveryID, models.ErrNotFound))
	}
	rctx, cancel := s.requestCtx(ctx)
	defer cancel()

	order, err := s.orderFor(rctx, d)
	if err != nil {
		s.feed.Notify(notify.Failure(title, err))
		return d, err
	}
	if err := status.ValidateDeliveryChange(&d, order, to); err != nil {
		return d, s.blocked(title, err)
	}

	resp, err := s.api.UpdateDeliveryStatus(rctx, deliveryID, to)
	if err != nil {
		s.feed.Notify(notify.Failure(title, err))
		return d, err
	}
	next := d.Clone()
	next.Status = to
	if resp != nil && resp.ID == deliveryID {
		next = resp.Clone()
	}
	s.store.PutDeliveries(next)

	if implied, ok := status.OrderEffect(to); ok && !order.Status.Terminal() {
		if err := s.applyOrderEffect(rctx, *order, implied); err != nil {
			s.feed.Notify(notify.Failure("Order update failed", err))
			return next, err
		}
	}
	s.feed.Notify(notify.Success("Delivery updated", fmt.Sprintf("Delivery #%d is now %s", deliveryID, to)))
	return next, nil
}

// applyOrderEffect mirrors the implied order status. The service writes it in
// the same transaction; with CascadeOrder the surface sends it as a second
// request instead, and a failure there leaves the two apart until the next poll.
// An invalid_transition answer means the backend already moved the order (or
// refuses the jump), so the surface re-reads the order rather than failing.
func (s *Surface) applyOrderEffect(ctx context.Context, order models.Order, to models.OrderStatus) error {
	if !s.cascade {
		order.Status = to
		s.store.PutOrders(order)
		return nil
	}
	o, err := s.api.UpdateOrderStatus(ctx, order.ID, to)
	if errors.Is(err, models.ErrInvalidTransition) {
		o, err = s.api.GetOrder(ctx, order.ID)
	}
	if err != nil {
		return fmt.Errorf("order %d to %s: %w", order.ID, to, err)
	}
	s.store.PutOrders(*o)
	return nil
}

// AdvanceDelivery moves a delivery to its next status.
func (s *Surface) AdvanceDelivery(ctx context.Context, deliveryID int64) (models.Delivery, error) {
	d, ok := s.store.Delivery(deliveryID)
	if !ok {
		return models.Delivery{}, s.blocked("Delivery update failed", fmt.Errorf("delivery %d: %w", deliveryID, models.ErrNotFound))
	}
	next, ok := status.NextDeliveryStatus(d.Status)
	if !ok {
		return d, s.blocked("Delivery update failed", fmt.Errorf("delivery %d is %s: %w", d.ID, d.Status, models.ErrInvalidTransition))
	}
	return s.UpdateDeliveryStatus(ctx, deliveryID, next)
}

// CanAdvanceDelivery reports whether the action to move deliveryID to to should
// be enabled, judged on local state only.
func (s *Surface) CanAdvanceDelivery(deliveryID int64, to models.DeliveryStatus) bool {
	d, ok := s.store.Delivery(deliveryID)
	if !ok {
		return false
	}
	var order *models.Order
	if o, ok := s.store.Order(d.OrderID); ok {
		order = &o
	}
	return status.CanAdvanceDelivery(&d, order, to)
}

// UpdateOrderStatus is the restaurant moving its order along the graph.
func (s *Surface) UpdateOrderStatus(ctx context.Context, orderID int64, to models.OrderStatus) (models.Order, error) {
	const title = "Order update failed"
	if err := s.requireRole(session.RoleAdmin, session.RoleRestaurant, session.RoleCustomer); err != nil {
		return models.Order{}, err
	}
	o, ok := s.store.Order(orderID)
	if !ok {
		return models.Order{}, s.blocked(title, fmt.Errorf("order %d: %w", orderID, models.ErrNotFound))
	}
	if err := status.ValidateOrderTransition(o.Status, to); err != nil {
		return o, s.blocked(title, err)
	}
	rctx, cancel := s.requestCtx(ctx)
	defer cancel()
	resp, err := s.api.UpdateOrderStatus(rctx, orderID, to)
	if err != nil {
		s.feed.Notify(notify.Failure(title, err))
		return o, err
	}
	next := o
	next.Status = to
	if resp != nil && resp.ID == orderID {
		next = *resp
	}
	s.store.PutOrders(next)
	s.feed.Notify(notify.Success("Order updated", fmt.Sprintf("Order #%d is now %s", orderID, to)))
	return next, nil
}

// AdvanceOrder moves an order to its next status.
func (s *Surface) AdvanceOrder(ctx context.Context, orderID int64) (models.Order, error) {
	o, ok := s.store.Order(orderID)
	if !ok {
		return models.Order{}, s.blocked("Order update failed", fmt.Errorf("order %d: %w", orderID, models.ErrNotFound))
	}
	next, ok := status.NextOrderStatus(o.Status)
	if !ok {
		return o, s.blocked("Order update failed", fmt.Errorf("order %d is %s: %w", o.ID, o.Status, models.ErrInvalidTransition))
	}
	return s.UpdateOrderStatus(ctx, orderID, next)
}

// CanAdvanceOrder reports whether moving orderID to to is a legal step from
// its stored status.
func (s *Surface) CanAdvanceOrder(orderID int64, to models.OrderStatus) bool {
	o, ok := s.store.Order(orderID)
	return ok && status.CanTransitionOrder(o.Status, to)
}

// CreateAgent adds an ACTIVE agent on the administrator's behalf.
func (s *Surface) CreateAgent(ctx context.Context, in models.AgentRequest) (models.Agent, error) {
	const title = "Agent creation failed"
	if err := s.requireRole(session.RoleAdmin); err != nil {
		return models.Agent{}, err
	}
	if err := in.Validate(); err != nil {
		return models.Agent{}, s.blocked(title, err)
	}
	rctx, cancel := s.requestCtx(ctx)
	defer cancel()
	a, err := s.api.CreateAgent(rctx, in)
	if err != nil {
		s.feed.Notify(notify.Failure(title, err))
		return models.Agent{}, err
	}
	s.store.PutAgents(*a)
	s.feed.Notify(notify.Success("Agent created", a.Name+" can now receive deliveries"))
	return *a, nil
}

// ApproveAgent admits a pending registration.
func (s *Surface) ApproveAgent(ctx context.Context, agentID int64) (models.Agent, error) {
	const title = "Approval failed"
	if err := s.requireRole(session.RoleAdmin); err != nil {
		return models.Agent{}, err
	}
	rctx, cancel := s.requestCtx(ctx)
	defer cancel()
	a, err := s.api.ApproveAgent(rctx, agentID)
	if err != nil {
		s.feed.Notify(notify.Failure(title, err))
		return models.Agent{}, err
	}
	s.dropPending(agentID)
	s.store.PutAgents(*a)
	s.feed.Notify(notify.Success("Agent approved", a.Name+" is now active"))
	return *a, nil
}

// RejectAgent refuses a pending registration.
func (s *Surface) RejectAgent(ctx context.Context, agentID int64) error {
	if err := s.requireRole(session.RoleAdmin); err != nil {
		return err
	}
	rctx, cancel := s.requestCtx(ctx)
	defer cancel()
	if err := s.api.RejectAgent(rctx, agentID); err != nil {
		s.feed.Notify(notify.Failure("Rejection failed", err))
		return err
	}
	s.dropPending(agentID)
	s.feed.Notify(notify.Success("Agent rejected", fmt.Sprintf("Registration #%d rejected", agentID)))
	return nil
}

func (s *Surface) dropPending(agentID int64) {
	pending := s.store.PendingAgents()
	keep := pending[:0]
	for _, a := range pending {
		if a.ID != agentID {
			keep = append(keep, a)
		}
	}
	s.store.ReplacePendingAgents(keep)
}

// SetAvailability is the agent reporting ACTIVE, BUSY or OFFLINE for itself.
func (s *Surface) SetAvailability(ctx context.Context, to models.AgentStatus) (models.Agent, error) {
	const title = "Status update failed"
	if err := s.requireRole(session.RoleAgent); err != nil {
		return models.Agent{}, err
	}
	switch to {
	case models.AgentStatusActive, models.AgentStatusBusy, models.AgentStatusOffline:
	default:
		return models.Agent{}, s.blocked(title, fmt.Errorf("agents cannot set %s: %w", to, models.ErrInvalidTransition))
	}
	if a, ok := s.store.Agent(s.sess.SubjectID()); ok && !a.Status.Approved() {
		return a, s.blocked(title, fmt.Errorf("agent %d is %s: %w", a.ID, a.Status, models.ErrAgentNotApproved))
	}
	rctx, cancel := s.requestCtx(ctx)
	defer cancel()
	a, err := s.api.UpdateAgentStatus(rctx, s.sess.SubjectID(), to)
	if err != nil {
		s.feed.Notify(notify.Failure(title, err))
		return models.Agent{}, err
	}
	s.store.PutAgents(*a)
	s.feed.Notify(notify.Success("Status updated", "You are now "+string(to)))
	return *a, nil
}
