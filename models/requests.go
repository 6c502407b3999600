package models

import (
	"fmt"
	"net/mail"
	"strings"
)

// PlaceOrderRequest is a checkout. The service fixes the total from Items.
type PlaceOrderRequest struct {
	RestaurantID          int64       `json:"restaurantId"`
	CustomerID            int64       `json:"customerId"`
	Items                 []OrderItem `json:"items"`
	PickupAddress         string      `json:"pickupAddress"`
	DeliveryAddress       string      `json:"deliveryAddress"`
	EstimatedDeliveryTime int         `json:"estimatedDeliveryTime"`
	Notes                 string      `json:"notes,omitempty"`
}

// Validate reports every problem at once.
func (in *PlaceOrderRequest) Validate() error {
	var problems []string
	if in.RestaurantID <= 0 {
		problems = append(problems, "restaurantId is required")
	}
	if in.CustomerID <= 0 {
		problems = append(problems, "customerId is required")
	}
	if len(in.Items) == 0 {
		problems = append(problems, "at least one item is required")
	}
	valid := true
	for i, it := range in.Items {
		if it.Quantity <= 0 || it.UnitPriceCents < 0 || it.MenuItemID <= 0 {
			problems = append(problems, fmt.Sprintf("item %d is invalid", i))
			valid = false
		}
	}
	if valid {
		if _, err := itemsTotalCents(in.Items); err != nil {
			problems = append(problems, "order total is too large")
		}
	}
	if strings.TrimSpace(in.DeliveryAddress) == "" {
		problems = append(problems, "deliveryAddress is required")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%s: %w", strings.Join(problems, "; "), ErrInvalidArgument)
	}
	return nil
}

// AgentRequest is a self-registration or an administrator-created agent.
type AgentRequest struct {
	Name          string `json:"name"`
	Phone         string `json:"phone"`
	Email         string `json:"email"`
	VehicleType   string `json:"vehicleType"`
	LicenseNumber string `json:"licenseNumber"`
}

func (in *AgentRequest) Validate() error {
	if strings.TrimSpace(in.Name) == "" {
		return fmt.Errorf("name is required: %w", ErrInvalidArgument)
	}
	if _, err := mail.ParseAddress(in.Email); err != nil {
		return fmt.Errorf("email %q: %w", in.Email, ErrInvalidArgument)
	}
	return nil
}
