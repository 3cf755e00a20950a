package models

// APIResponse is the standard JSON envelope for all API responses.
type APIResponse struct {
	Data interface{} `json:"data"`
	Meta *Meta       `json:"meta,omitempty"`
}

// Meta carries pagination metadata.
type Meta struct {
	Total int `json:"total"`
	Page  int `json:"page"`
	Limit int `json:"limit"`
}

// Supplier is a canvassed vendor.
type Supplier struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Address       string `json:"address"`
	ContactPerson string `json:"contact_person"`
	ContactNumber string `json:"contact_number"`
	TIN           string `json:"tin"`
	Status        string `json:"status"`
	CreatedAt     string `json:"created_at"`
}

// PurchaseRequest is the root procurement document.
type PurchaseRequest struct {
	ID                 string                `json:"id"`
	Purpose            string                `json:"purpose"`
	Department         string                `json:"department"`
	ModeProcurement    string                `json:"mode_procurement"`
	Status             string                `json:"status"`
	RFQBatch           int                   `json:"rfq_batch"`
	TotalEstimatedCost float64               `json:"total_estimated_cost"`
	StatusTimestamps   map[string]string     `json:"status_timestamps,omitempty"`
	CreatedBy          string                `json:"created_by"`
	CreatedAt          string                `json:"created_at"`
	UpdatedAt          string                `json:"updated_at"`
	Items              []PurchaseRequestItem `json:"items,omitempty"`
}

// PurchaseRequestItem is one requested line. Seq fixes the print order;
// AwardedToID is set exactly once per canvassing cycle by the award step.
type PurchaseRequestItem struct {
	ID            int     `json:"id"`
	PRID          string  `json:"pr_id"`
	Seq           int     `json:"seq"`
	Description   string  `json:"description"`
	Unit          string  `json:"unit"`
	Qty           float64 `json:"qty"`
	UnitCost      float64 `json:"unit_cost"`
	EstimatedCost float64 `json:"estimated_cost"`
	AwardedToID   *string `json:"awarded_to_id"`
}

// RequestQuotation is a per-supplier canvassing document tied to one PR batch.
type RequestQuotation struct {
	ID               string                 `json:"id"`
	PRID             string                 `json:"pr_id"`
	Batch            int                    `json:"batch"`
	SupplierID       *string                `json:"supplier_id"`
	SupplierName     string                 `json:"supplier_name,omitempty"`
	Status           string                 `json:"status"`
	Canvassers       []string               `json:"canvassers"`
	StatusTimestamps map[string]string      `json:"status_timestamps,omitempty"`
	CreatedBy        string                 `json:"created_by"`
	CreatedAt        string                 `json:"created_at"`
	UpdatedAt        string                 `json:"updated_at"`
	Items            []RequestQuotationItem `json:"items,omitempty"`
}

// RequestQuotationItem is one PR line offered for quotation on an RFQ.
type RequestQuotationItem struct {
	ID         int     `json:"id"`
	RFQID      string  `json:"rfq_id"`
	PRItemID   int     `json:"pr_item_id"`
	Included   bool    `json:"included"`
	UnitCost   float64 `json:"unit_cost"`
	TotalCost  float64 `json:"total_cost"`
	BrandModel string  `json:"brand_model"`
}

// AbstractQuotation consolidates the completed RFQs of one batch.
type AbstractQuotation struct {
	ID               string                  `json:"id"`
	PRID             string                  `json:"pr_id"`
	Batch            int                     `json:"batch"`
	Status           string                  `json:"status"`
	StatusTimestamps map[string]string       `json:"status_timestamps,omitempty"`
	CreatedBy        string                  `json:"created_by"`
	CreatedAt        string                  `json:"created_at"`
	UpdatedAt        string                  `json:"updated_at"`
	Items            []AbstractQuotationItem `json:"items,omitempty"`
}

// AbstractQuotationItem is one PR line under comparison, with one detail
// per supplier who quoted it and the chosen awardee once decided.
type AbstractQuotationItem struct {
	ID           int                       `json:"id"`
	AOQID        string                    `json:"aoq_id"`
	PRItemID     int                       `json:"pr_item_id"`
	Included     bool                      `json:"included"`
	DocumentType string                    `json:"document_type"`
	AwardeeID    *string                   `json:"awardee_id"`
	Details      []AbstractQuotationDetail `json:"details,omitempty"`
}

// AbstractQuotationDetail is one supplier's quote for one item.
type AbstractQuotationDetail struct {
	ID           int     `json:"id"`
	AOQItemID    int     `json:"aoq_item_id"`
	SupplierID   string  `json:"supplier_id"`
	SupplierName string  `json:"supplier_name,omitempty"`
	UnitCost     float64 `json:"unit_cost"`
	TotalCost    float64 `json:"total_cost"`
	BrandModel   string  `json:"brand_model"`
}

// PurchaseOrder is the document issued to one awarded supplier. One PO
// exists per (supplier, document_type) pair discovered during an award.
type PurchaseOrder struct {
	ID               string              `json:"id"`
	PRID             string              `json:"pr_id"`
	SupplierID       string              `json:"supplier_id"`
	SupplierName     string              `json:"supplier_name,omitempty"`
	DocumentType     string              `json:"document_type"`
	ModeProcurement  string              `json:"mode_procurement"`
	Status           string              `json:"status"`
	StatusTimestamps map[string]string   `json:"status_timestamps,omitempty"`
	CreatedBy        string              `json:"created_by"`
	CreatedAt        string              `json:"created_at"`
	UpdatedAt        string              `json:"updated_at"`
	Items            []PurchaseOrderItem `json:"items,omitempty"`
}

// PurchaseOrderItem traces back to exactly one PurchaseRequestItem.
type PurchaseOrderItem struct {
	ID          int     `json:"id"`
	POID        string  `json:"po_id"`
	PRItemID    int     `json:"pr_item_id"`
	Description string  `json:"description"`
	Unit        string  `json:"unit"`
	Qty         float64 `json:"qty"`
	UnitCost    float64 `json:"unit_cost"`
	TotalCost   float64 `json:"total_cost"`
	BrandModel  string  `json:"brand_model"`
}

// AuditEntry is one row of the audit trail.
type AuditEntry struct {
	ID        int    `json:"id"`
	UserID    int    `json:"user_id"`
	Username  string `json:"username"`
	Action    string `json:"action"`
	Module    string `json:"module"`
	RecordID  string `json:"record_id"`
	Summary   string `json:"summary"`
	Payload   string `json:"payload"`
	IsError   bool   `json:"is_error"`
	CreatedAt string `json:"created_at"`
}

// Notification is a stored user-facing event.
type Notification struct {
	ID        int     `json:"id"`
	Type      string  `json:"type"`
	Title     string  `json:"title"`
	Message   string  `json:"message"`
	RecordID  string  `json:"record_id"`
	Module    string  `json:"module"`
	ReadAt    *string `json:"read_at"`
	CreatedAt string  `json:"created_at"`
}

// User is an account able to operate the workflow.
type User struct {
	ID          int    `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	Role        string `json:"role"`
	Active      bool   `json:"active"`
	CreatedAt   string `json:"created_at"`
}
