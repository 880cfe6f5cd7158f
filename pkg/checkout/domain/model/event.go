package model

type OrderPlaced struct {
	OrderID    int64
	Phone      string
	TotalCents int64
}

func (e OrderPlaced) Type() string { return "OrderPlaced" }

type PaymentInitiated struct {
	OrderID       int64
	Reference     string
	TransactionID string
}

func (e PaymentInitiated) Type() string { return "PaymentInitiated" }

type PaymentSucceeded struct {
	OrderID       int64
	TransactionID string
	Verified      bool
}

func (e PaymentSucceeded) Type() string { return "PaymentSucceeded" }

type PaymentFailed struct {
	OrderID int64
	Reason  string
}

func (e PaymentFailed) Type() string { return "PaymentFailed" }

type ManualConfirmationRecorded struct {
	OrderID       int64
	Phone         string
	TransactionID string
}

func (e ManualConfirmationRecorded) Type() string { return "ManualConfirmationRecorded" }

type OrderStatusChanged struct {
	OrderID   int64
	OldStatus OrderStatus
	NewStatus OrderStatus
}

func (e OrderStatusChanged) Type() string { return "OrderStatusChanged" }
