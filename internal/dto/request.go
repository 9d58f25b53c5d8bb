package dto

// CreateRequestLine is one requested item in a new supply request.
type CreateRequestLine struct {
	SupplyID string `json:"supply_id"`
	Quantity int    `json:"quantity"`
}

// CreateRequestInput is the POST /office-requests payload.
type CreateRequestInput struct {
	Lines []CreateRequestLine `json:"lines"`
	Note  string              `json:"note"`
}

// RejectRequestInput carries the mandatory rejection reason. The field name
// matches the legacy client contract.
type RejectRequestInput struct {
	Reason string `json:"alasan_penolakan"`
}

// RequestQuery mirrors supported listing filters.
type RequestQuery struct {
	Status     []string
	Department string
	Page       int
	PageSize   int
}
