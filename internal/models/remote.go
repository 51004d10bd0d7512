package models

import "github.com/shopspring/decimal"

// UserView is the user-service payload for GET /users/{id}.
type UserView struct {
	UserID      string `json:"userId"`
	Email       string `json:"email"`
	Name        string `json:"name"`
	PhoneNumber string `json:"phoneNumber"`
	Status      string `json:"status"`
}

// ProductView is the product-service payload for GET /products/{id}.
type ProductView struct {
	ProductID     string          `json:"productId"`
	Name          string          `json:"name"`
	Price         decimal.Decimal `json:"price"`
	StockQuantity int             `json:"stockQuantity"`
	Status        string          `json:"status"`
}

// StockView is the product-service payload for the stock endpoints.
type StockView struct {
	ProductID     string `json:"productId"`
	Name          string `json:"name"`
	StockQuantity int    `json:"stockQuantity"`
	Available     bool   `json:"available"`
}

// RemoteUserView is what the order service knows about a user for one request.
// Available=false means the lookup degraded and nothing may be inferred from the other fields.
type RemoteUserView struct {
	UserID    string `json:"user_id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Eligible  bool   `json:"eligible"`
	Available bool   `json:"available"`
}

// RemoteProductView is a point-in-time product snapshot.
type RemoteProductView struct {
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Available bool            `json:"available"`
}

// RemoteStockView is a point-in-time stock figure.
type RemoteStockView struct {
	ProductID     string `json:"product_id"`
	StockQuantity int    `json:"stock_quantity"`
	InStock       bool   `json:"in_stock"`
	Available     bool   `json:"available"`
}
