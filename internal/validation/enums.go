package validation

// Status whitelists - these MUST match the DB CHECK constraints in the
// database package.
var (
	ValidPRStatuses = []string{
		"draft", "pending", "approved_cash_available", "approved",
		"for_canvassing", "for_recanvassing", "for_abstract",
		"partially_awarded", "awarded", "completed", "disapproved", "cancelled",
	}
	ValidRFQStatuses      = []string{"draft", "canvassing", "completed", "cancelled"}
	ValidAOQStatuses      = []string{"draft", "approved", "awarded"}
	ValidPOStatuses       = []string{"draft", "pending", "approved", "issued", "for_delivery", "delivered", "cancelled"}
	ValidDocumentTypes    = []string{"po", "jo"}
	ValidSupplierStatuses = []string{"active", "inactive", "blacklisted"}
	ValidProcurementModes = []string{"small_value", "shopping", "public_bidding", "direct_contracting"}
)
