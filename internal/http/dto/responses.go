package dto

import "github.com/freelance-marketplace/backend/internal/models"

type ErrorResponse struct {
	Error         string `json:"error"`
	CurrentStatus string `json:"current_status,omitempty"`
	RequestID     string `json:"request_id,omitempty"`
}

type SuccessResponse struct {
	OK   bool `json:"ok"`
	Data any  `json:"data,omitempty"`
}

type PaymentIntentResponse struct {
	OrderID          string `json:"order_id"`
	GatewayReference string `json:"gateway_reference"`
	ClientSecret     string `json:"client_secret"`
	AmountCents      int64  `json:"amount_cents"`
	Currency         string `json:"currency"`
	Status           string `json:"status"`
}

type EscrowResponse struct {
	Account *models.EscrowAccount `json:"account"`
	Entries []models.EscrowEntry  `json:"entries"`
}
