package dto

import "time"

type MilestoneInput struct {
	Title       string     `json:"title"`
	AmountCents int64      `json:"amount_cents"`
	DueDate     *time.Time `json:"due_date,omitempty"`
}

type CreateOrderRequest struct {
	SellerID         string           `json:"seller_id"`
	PackageID        *string          `json:"package_id,omitempty"`
	ProjectID        *string          `json:"project_id,omitempty"`
	Requirements     *string          `json:"requirements,omitempty"`
	TotalAmountCents int64            `json:"total_amount_cents"`
	Currency         string           `json:"currency,omitempty"`
	RevisionsAllowed int              `json:"revisions_allowed"`
	Milestones       []MilestoneInput `json:"milestones,omitempty"`
}

type DeliverRequest struct {
	Title       string   `json:"title"`
	Description *string  `json:"description,omitempty"`
	FileRefs    []string `json:"file_refs,omitempty"`
}

type RequestRevisionRequest struct {
	Note string `json:"note"`
}

type DisputeRequest struct {
	Reason string `json:"reason"`
}

type ResolveDisputeRequest struct {
	Outcome string `json:"outcome"` // release / refund
	Note    string `json:"note,omitempty"`
}

type DisputeMilestoneRequest struct {
	Reason string `json:"reason"`
}
