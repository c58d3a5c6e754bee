// Package dto provides Data Transfer Objects for API requests/responses.
package dto

import (
	"time"

	"lotledger/internal/core/id"
	"lotledger/internal/core/types"
)

// IDResponse for create operations.
type IDResponse struct {
	ID string `json:"id"`
}

// NewIDResponse creates ID response.
func NewIDResponse(i id.ID) IDResponse {
	return IDResponse{ID: i.String()}
}

// SuccessResponse for operations without data.
type SuccessResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// ListResponse wraps list results.
type ListResponse struct {
	Items  any `json:"items"`
	Count  int `json:"count"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

// ErrorResponse for error details.
type ErrorResponse struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// BalanceResponse reports a product balance, optionally as-of a point in time.
type BalanceResponse struct {
	ProductID string         `json:"productId"`
	Balance   types.Quantity `json:"balance"`
	At        *time.Time     `json:"at,omitempty"`
}

// ThresholdCheckResponse reports return orders created by a threshold sweep.
type ThresholdCheckResponse struct {
	ReturnOrderIDs []string `json:"returnOrderIds"`
	OrdersCreated  int      `json:"ordersCreated"`
}
