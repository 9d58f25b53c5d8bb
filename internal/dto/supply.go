package dto

// CreateSupplyInput is the POST /supplies payload.
type CreateSupplyInput struct {
	Name         string `json:"name"`
	Unit         string `json:"unit"`
	InitialStock int    `json:"initial_stock"`
}

// UpdateSupplyInput renames a supply or changes its unit. Stock is never
// edited directly; it only moves through the mutation ledger.
type UpdateSupplyInput struct {
	Name string `json:"name"`
	Unit string `json:"unit"`
}

// AdjustStockInput is shared by the deduct and restock endpoints.
type AdjustStockInput struct {
	Quantity int    `json:"quantity"`
	Note     string `json:"note"`
}
