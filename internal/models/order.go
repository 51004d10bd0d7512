package models

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// ErrEmptyOrder is returned when an order has no lines.
var ErrEmptyOrder = errors.New("order must contain at least one line")

// ShippingAddress is the delivery destination embedded in an order.
type ShippingAddress struct {
	ZipCode        string `json:"zip_code" gorm:"type:varchar(20)" validate:"required,max=20"`
	Address        string `json:"address" gorm:"type:varchar(255)" validate:"required,max=255"`
	DetailAddress  string `json:"detail_address" gorm:"type:varchar(255)" validate:"omitempty,max=255"`
	RecipientName  string `json:"recipient_name" gorm:"type:varchar(100)" validate:"required,max=100"`
	RecipientPhone string `json:"recipient_phone" gorm:"type:varchar(30)" validate:"required,max=30"`
}

// OrderLine represents a single product within an order.
// Name and UnitPrice are captured when the order is placed.
type OrderLine struct {
	ID          uint            `json:"-" gorm:"primaryKey"`
	OrderID     string          `json:"-" gorm:"type:varchar(36);index;not null"`
	Position    int             `json:"-" gorm:"not null"`
	ProductID   string          `json:"product_id" gorm:"type:varchar(36);not null"`
	ProductName string          `json:"product_name" gorm:"type:varchar(255)"`
	UnitPrice   decimal.Decimal `json:"unit_price" gorm:"type:numeric(12,2);not null"`
	Quantity    int             `json:"quantity" gorm:"not null"`
}

// Subtotal returns UnitPrice * Quantity.
func (l OrderLine) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Order represents a customer order.
type Order struct {
	ID              string          `json:"id" gorm:"primaryKey;type:varchar(36)"`
	UserID          string          `json:"user_id" gorm:"type:varchar(36);index;not null"`
	Lines           []OrderLine     `json:"lines" gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	TotalAmount     decimal.Decimal `json:"total_amount" gorm:"type:numeric(12,2);not null"`
	Status          OrderStatus     `json:"status" gorm:"type:varchar(20);index;not null"`
	ShippingAddress ShippingAddress `json:"shipping_address" gorm:"embedded;embeddedPrefix:shipping_"`
	IdempotencyKey  *string         `json:"-" gorm:"type:varchar(100);uniqueIndex"`
	Version         int             `json:"version" gorm:"not null"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// AddLine appends a line, keeping insertion order.
func (o *Order) AddLine(line OrderLine) {
	line.OrderID = o.ID
	line.Position = len(o.Lines)
	o.Lines = append(o.Lines, line)
}

// CalculateTotal recomputes TotalAmount from the lines.
func (o *Order) CalculateTotal() {
	total := decimal.Zero
	for _, line := range o.Lines {
		total = total.Add(line.Subtotal())
	}
	o.TotalAmount = total
}

// Validate checks the invariants that must hold before an order is stored.
func (o *Order) Validate() error {
	if len(o.Lines) == 0 {
		return ErrEmptyOrder
	}
	for _, line := range o.Lines {
		if line.Quantity <= 0 {
			return errors.New("order line quantity must be positive")
		}
	}
	return nil
}

// Clone returns a deep copy so callers cannot alias the line slice.
func (o Order) Clone() Order {
	cp := o
	cp.Lines = append([]OrderLine(nil), o.Lines...)
	if o.IdempotencyKey != nil {
		key := *o.IdempotencyKey
		cp.IdempotencyKey = &key
	}
	return cp
}
