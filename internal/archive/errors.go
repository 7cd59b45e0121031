package archive

import (
	"fmt"

	"github.com/wichananm65/heladeria-backend/internal/order"
)

type OrderNotFoundError struct {
	OrderID string
}

func (e *OrderNotFoundError) Error() string {
	return fmt.Sprintf("order %s not found", e.OrderID)
}

// MalformedOrderError means the order cannot be deducted as stored.
type MalformedOrderError struct {
	OrderID string
	Reason  string
}

func (e *MalformedOrderError) Error() string {
	return fmt.Sprintf("order %s is malformed: %s", e.OrderID, e.Reason)
}

type FlavorNotFoundError struct {
	FlavorID string
}

func (e *FlavorNotFoundError) Error() string {
	return fmt.Sprintf("flavor %s not found", e.FlavorID)
}

// InsufficientStockError names the first flavor whose stock cannot cover what
// the whole order needs from it.
type InsufficientStockError struct {
	FlavorID  string
	Name      string
	Required  float64
	Available float64
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for flavor %s: required %.2f g, available %.2f g",
		e.Name, e.Required, e.Available)
}

type OrderNotCompletedError struct {
	OrderID string
	Status  order.Status
}

func (e *OrderNotCompletedError) Error() string {
	return fmt.Sprintf("order %s is %s, only completed orders can be archived", e.OrderID, e.Status)
}

// OverrideNotAllowedError is returned when an order still in progress is
// archived without deduction.
type OverrideNotAllowedError struct {
	OrderID string
	Status  order.Status
}

func (e *OverrideNotAllowedError) Error() string {
	return fmt.Sprintf("order %s is %s, only completed or cancelled orders can be archived without deduction", e.OrderID, e.Status)
}
