package model

import (
	"context"
	"errors"
	"time"
)

var (
	ErrOrderNotFound = errors.New("order not found")
	ErrEmptyCart     = errors.New("cart is empty")
	ErrUnknownStatus = errors.New("unknown order status")
)

type OrderStatus int

const (
	OrderPending OrderStatus = iota
	OrderPaid
	OrderPaidUnverified
	OrderPaymentFailed
	OrderPreparing
	OrderOutForDelivery
	OrderDelivered
	OrderCancelled
)

var orderStatusNames = map[OrderStatus]string{
	OrderPending:        "pending",
	OrderPaid:           "paid",
	OrderPaidUnverified: "paid_unverified",
	OrderPaymentFailed:  "payment_failed",
	OrderPreparing:      "preparing",
	OrderOutForDelivery: "out_for_delivery",
	OrderDelivered:      "delivered",
	OrderCancelled:      "cancelled",
}

func (s OrderStatus) String() string {
	if name, ok := orderStatusNames[s]; ok {
		return name
	}
	return "unknown"
}

func ParseOrderStatus(raw string) (OrderStatus, error) {
	for status, name := range orderStatusNames {
		if name == raw {
			return status, nil
		}
	}
	return 0, ErrUnknownStatus
}

type CartItem struct {
	MenuItemID int64
	Name       string
	PriceCents int64
	Quantity   int
}

type Cart struct {
	Items []CartItem
}

func (c Cart) Empty() bool { return len(c.Items) == 0 }

func (c Cart) SubtotalCents() int64 {
	var sum int64
	for _, item := range c.Items {
		sum += item.PriceCents * int64(item.Quantity)
	}
	return sum
}

type ContactInfo struct {
	FullName string
	Phone    string
	Email    string
	Address  string
	City     string
}

type OrderItem struct {
	MenuItemID int64
	Name       string
	PriceCents int64
	Quantity   int
}

type Order struct {
	ID               int64
	CustomerName     string
	Phone            string
	Email            string
	Address          string
	City             string
	Items            []OrderItem
	DeliveryFeeCents int64
	TotalCents       int64
	Status           OrderStatus
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

type OrderRepository interface {
	Create(ctx context.Context, order *Order) error
	Find(ctx context.Context, id int64) (*Order, error)
	FindByPhone(ctx context.Context, phone string) ([]*Order, error)
	UpdateStatus(ctx context.Context, id int64, status OrderStatus) error
}
