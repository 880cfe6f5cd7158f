package service

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"checkout/pkg/checkout/domain/model"
)

const minPhoneDigits = 10

var emailPattern = regexp.MustCompile(`^\S+@\S+\.\S+$`)

// ValidationError blocks submission locally and never reaches the network.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

type OrderService interface {
	Submit(ctx context.Context, cart model.Cart, contact model.ContactInfo) (*model.Order, error)
	Get(ctx context.Context, id int64) (*model.Order, error)
	ListByPhone(ctx context.Context, phone string) ([]*model.Order, error)
	UpdateStatus(ctx context.Context, id int64, status model.OrderStatus) error
}

func NewOrderService(repo model.OrderRepository, dispatcher EventDispatcher, deliveryFeeCents int64) OrderService {
	return &orderService{
		repo:             repo,
		dispatcher:       dispatcher,
		deliveryFeeCents: deliveryFeeCents,
	}
}

type orderService struct {
	repo             model.OrderRepository
	dispatcher       EventDispatcher
	deliveryFeeCents int64
}

func (s *orderService) Submit(ctx context.Context, cart model.Cart, contact model.ContactInfo) (*model.Order, error) {
	if err := ValidateSubmission(cart, contact); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	items := make([]model.OrderItem, 0, len(cart.Items))
	for _, item := range cart.Items {
		items = append(items, model.OrderItem{
			MenuItemID: item.MenuItemID,
			Name:       item.Name,
			PriceCents: item.PriceCents,
			Quantity:   item.Quantity,
		})
	}

	order := &model.Order{
		CustomerName:     contact.FullName,
		Phone:            contact.Phone,
		Email:            contact.Email,
		Address:          contact.Address,
		City:             contact.City,
		Items:            items,
		DeliveryFeeCents: s.deliveryFeeCents,
		TotalCents:       cart.SubtotalCents() + s.deliveryFeeCents,
		Status:           model.OrderPending,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if err := s.repo.Create(ctx, order); err != nil {
		return nil, err
	}

	_ = s.dispatcher.Dispatch(model.OrderPlaced{
		OrderID:    order.ID,
		Phone:      order.Phone,
		TotalCents: order.TotalCents,
	})

	return order, nil
}

func (s *orderService) Get(ctx context.Context, id int64) (*model.Order, error) {
	return s.repo.Find(ctx, id)
}

func (s *orderService) ListByPhone(ctx context.Context, phone string) ([]*model.Order, error) {
	return s.repo.FindByPhone(ctx, phone)
}

func (s *orderService) UpdateStatus(ctx context.Context, id int64, status model.OrderStatus) error {
	order, err := s.repo.Find(ctx, id)
	if err != nil {
		return err
	}

	if order.Status == status {
		return nil
	}

	if err := s.repo.UpdateStatus(ctx, id, status); err != nil {
		return err
	}

	_ = s.dispatcher.Dispatch(model.OrderStatusChanged{
		OrderID:   id,
		OldStatus: order.Status,
		NewStatus: status,
	})

	return nil
}

// ValidateSubmission runs the local checks a checkout form must pass before
// anything is sent to a collaborator.
func ValidateSubmission(cart model.Cart, contact model.ContactInfo) error {
	if cart.Empty() {
		return model.ErrEmptyCart
	}
	if strings.TrimSpace(contact.FullName) == "" {
		return &ValidationError{Field: "fullName", Reason: "is required"}
	}
	phone := strings.TrimSpace(contact.Phone)
	if phone == "" {
		return &ValidationError{Field: "phone", Reason: "is required"}
	}
	if digitCount(phone) < minPhoneDigits {
		return &ValidationError{Field: "phone", Reason: fmt.Sprintf("must be at least %d digits", minPhoneDigits)}
	}
	email := strings.TrimSpace(contact.Email)
	if email == "" {
		return &ValidationError{Field: "email", Reason: "is required"}
	}
	if !emailPattern.MatchString(email) {
		return &ValidationError{Field: "email", Reason: "is invalid"}
	}
	if strings.TrimSpace(contact.Address) == "" {
		return &ValidationError{Field: "address", Reason: "is required"}
	}
	if strings.TrimSpace(contact.City) == "" {
		return &ValidationError{Field: "city", Reason: "is required"}
	}
	return nil
}

func digitCount(s string) int {
	n := 0
	for _, r := range s {
		if r >= '0' && r <= '9' {
			n++
		}
	}
	return n
}
