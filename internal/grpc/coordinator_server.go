package grpcserver

import (
	"context"
	"errors"
	"log/slog"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"deliverySync/internal/auth"
	"deliverySync/internal/events"
	"deliverySync/internal/service"
	"deliverySync/models"
)

// CoordinatorService adapts the coordination service to gRPC.
type CoordinatorService struct {
	Svc *service.Service
	Hub *events.Hub
	Log *slog.Logger
}

var _ CoordinatorServer = (*CoordinatorService)(nil)

// toStatus maps domain errors to gRPC codes. The message keeps the wire code so
// clients can recover the sentinel with models.ErrorFromCode.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	code := codes.Internal
	switch {
	case errors.Is(err, models.ErrNotFound):
		code = codes.NotFound
	case errors.Is(err, models.ErrInvalidArgument):
		code = codes.InvalidArgument
	case errors.Is(err, models.ErrForbidden):
		code = codes.PermissionDenied
	case errors.Is(err, models.ErrVersionConflict):
		code = codes.Aborted
	case errors.Is(err, models.ErrNoAgentsAvailable):
		code = codes.Unavailable
	case errors.Is(err, models.ErrInvalidTransition),
		errors.Is(err, models.ErrOrderNotReady),
		errors.Is(err, models.ErrAgentNotActive),
		errors.Is(err, models.ErrAgentBusy),
		errors.Is(err, models.ErrAgentNotApproved):
		code = codes.FailedPrecondition
	}
	if code == codes.Internal {
		return status.Error(code, "internal error")
	}
	return status.Errorf(code, "%s: %v", models.ErrorCode(err), err)
}

// AssignDelivery is admin only. ExpectedVersion > 0 makes it a compare-and-swap.
func (s *CoordinatorService) AssignDelivery(ctx context.Context, in *AssignDeliveryRequest) (*models.Delivery, error) {
	if _, err := auth.RequireAdmin(ctx); err != nil {
		return nil, err
	}
	if in.DeliveryID <= 0 || in.AgentID <= 0 {
		return nil, status.Error(codes.InvalidArgument, "deliveryId and agentId are required")
	}
	d, err := s.Svc.AssignDelivery(ctx, in.DeliveryID, in.AgentID, in.ExpectedVersion)
	return d, toStatus(err)
}

func (s *CoordinatorService) AutoAssignDelivery(ctx context.Context, in *AutoAssignDeliveryRequest) (*models.Delivery, error) {
	if _, err := auth.RequireAdmin(ctx); err != nil {
		return nil, err
	}
	d, err := s.Svc.AutoAssignDelivery(ctx, in.DeliveryID)
	return d, toStatus(err)
}

// UpdateDeliveryStatus is for admins and the assigned agent; the service
// enforces ownership.
func (s *CoordinatorService) UpdateDeliveryStatus(ctx context.Context, in *UpdateDeliveryStatusRequest) (*UpdateDeliveryStatusResponse, error) {
	if _, err := auth.RequireKind(ctx, auth.KindAdmin, auth.KindAgent); err != nil {
		return nil, err
	}
	d, o, err := s.Svc.UpdateDeliveryStatus(ctx, in.DeliveryID, in.Status)
	if err != nil {
		return nil, toStatus(err)
	}
	return &UpdateDeliveryStatusResponse{Delivery: d, Order: o}, nil
}

func (s *CoordinatorService) UpdateOrderStatus(ctx context.Context, in *UpdateOrderStatusRequest) (*models.Order, error) {
	if _, err := auth.RequireKind(ctx, auth.KindAdmin, auth.KindRestaurant, auth.KindCustomer); err != nil {
		return nil, err
	}
	o, err := s.Svc.UpdateOrderStatus(ctx, in.OrderID, in.Status)
	return o, toStatus(err)
}

func (s *CoordinatorService) ListDeliveries(ctx context.Context, in *ListDeliveriesRequest) (*ListDeliveriesResponse, error) {
	if _, err := auth.RequirePrincipal(ctx); err != nil {
		return nil, err
	}
	var (
		out []models.Delivery
		err error
	)
	if in.AgentID > 0 {
		out, err = s.Svc.ListDeliveriesByAgent(ctx, in.AgentID)
	} else {
		out, err = s.Svc.ListDeliveries(ctx)
	}
	if err != nil {
		return nil, toStatus(err)
	}
	return &ListDeliveriesResponse{Deliveries: out}, nil
}

// Watch streams committed changes visible to the caller until the client goes
// away or the hub drops the subscription.
func (s *CoordinatorService) Watch(in *WatchRequest, stream Coordinator_WatchServer) error {
	p, err := auth.RequirePrincipal(stream.Context())
	if err != nil {
		return err
	}
	sub := s.Hub.Subscribe(events.OfTypes(events.ForPrincipal(p), in.Types...))
	defer sub.Close()
	s.logger().Info("watch started", "subscription", sub.ID(), "kind", p.Kind, "id", p.ID)
	for {
		select {
		case <-stream.Context().Done():
			return nil
		case e, ok := <-sub.C():
			if !ok {
				return status.Error(codes.Unavailable, "subscription dropped, resubscribe and reconcile")
			}
			if err := stream.Send(&e); err != nil {
				return err
			}
		}
	}
}

func (s *CoordinatorService) logger() *slog.Logger {
	if s.Log == nil {
		return slog.Default()
	}
	return s.Log
}
