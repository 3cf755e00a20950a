package procurement

import (
	"fmt"
	"net/http"

	"procuro/internal/database"
	"procuro/internal/models"
	"procuro/internal/notify"
	"procuro/internal/response"
)

// ListPOs returns purchase and job orders, optionally scoped to one PR.
func (h *Handler) ListPOs(w http.ResponseWriter, r *http.Request) {
	query := `SELECT o.id, o.pr_id, o.supplier_id, COALESCE(s.name, ''), o.document_type, o.mode_procurement, o.status, o.created_by, o.created_at, o.updated_at
		FROM purchase_orders o LEFT JOIN suppliers s ON s.id = o.supplier_id`
	var args []interface{}
	if prID := r.URL.Query().Get("pr_id"); prID != "" {
		query += " WHERE o.pr_id=?"
		args = append(args, prID)
	}
	query += " ORDER BY o.created_at DESC"

	rows, err := h.DB.Query(query, args...)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	defer rows.Close()

	items := []models.PurchaseOrder{}
	for rows.Next() {
		var po models.PurchaseOrder
		rows.Scan(&po.ID, &po.PRID, &po.SupplierID, &po.SupplierName, &po.DocumentType,
			&po.ModeProcurement, &po.Status, &po.CreatedBy, &po.CreatedAt, &po.UpdatedAt)
		items = append(items, po)
	}
	response.JSON(w, items)
}

// GetPO returns one order with its lines.
func (h *Handler) GetPO(w http.ResponseWriter, r *http.Request, id string) {
	po, err := h.loadPO(id)
	if err != nil {
		response.Err(w, "not found", 404)
		return
	}
	response.JSON(w, po)
}

func (h *Handler) loadPO(id string) (models.PurchaseOrder, error) {
	var po models.PurchaseOrder
	var ledgerRaw string
	err := h.DB.QueryRow(`SELECT o.id, o.pr_id, o.supplier_id, COALESCE(s.name, ''), o.document_type, o.mode_procurement, o.status, o.status_timestamps, o.created_by, o.created_at, o.updated_at
		FROM purchase_orders o LEFT JOIN suppliers s ON s.id = o.supplier_id WHERE o.id=?`, id).
		Scan(&po.ID, &po.PRID, &po.SupplierID, &po.SupplierName, &po.DocumentType,
			&po.ModeProcurement, &po.Status, &ledgerRaw, &po.CreatedBy, &po.CreatedAt, &po.UpdatedAt)
	if err != nil {
		return po, err
	}
	po.StatusTimestamps = ParseLedger(ledgerRaw)

	rows, err := h.DB.Query(`SELECT id, po_id, pr_item_id, description, unit, qty, unit_cost, total_cost, brand_model
		FROM purchase_order_items WHERE po_id=? ORDER BY id`, id)
	if err != nil {
		return po, err
	}
	defer rows.Close()
	for rows.Next() {
		var it models.PurchaseOrderItem
		rows.Scan(&it.ID, &it.POID, &it.PRItemID, &it.Description, &it.Unit, &it.Qty, &it.UnitCost, &it.TotalCost, &it.BrandModel)
		po.Items = append(po.Items, it)
	}
	return po, nil
}

// transitionPO applies one lifecycle command to an order. Delivering
// the last outstanding order of a fully awarded PR completes the PR.
func (h *Handler) transitionPO(w http.ResponseWriter, r *http.Request, id string, cmd Command) {
	var status, ledgerRaw, prID string
	err := h.DB.QueryRow("SELECT status, status_timestamps, pr_id FROM purchase_orders WHERE id=?", id).
		Scan(&status, &ledgerRaw, &prID)
	if err != nil {
		response.Err(w, "not found", 404)
		return
	}

	next, ok := NextPOState(status, cmd)
	if !ok {
		msg := fmt.Sprintf("cannot %s a purchase order in %s status", cmd, status)
		h.LogAudit(r, string(cmd), "purchase_orders", id, msg, nil, true)
		response.Err(w, msg, 409)
		return
	}

	now := database.Now()
	ledger := ParseLedger(ledgerRaw).Record(next+"_at", now)
	res, err := h.DB.Exec(`UPDATE purchase_orders SET status=?, status_timestamps=?, updated_at=? WHERE id=? AND status=?`,
		next, ledger.String(), now, id, status)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	if n, _ := res.RowsAffected(); n == 0 {
		response.Err(w, ErrInvalidTransition.Error(), 409)
		return
	}

	summary := fmt.Sprintf("PO %s: %s -> %s", id, status, next)
	h.LogAudit(r, string(cmd), "purchase_orders", id, summary, nil, false)

	if next == "delivered" {
		h.completePRIfDelivered(prID)
	}

	po, _ := h.loadPO(id)
	response.JSON(w, map[string]interface{}{"message": summary, "purchase_order": po})
}

// completePRIfDelivered closes a fully awarded PR once every
// non-cancelled order on it has been delivered.
func (h *Handler) completePRIfDelivered(prID string) {
	var prStatus, prLedgerRaw string
	err := h.DB.QueryRow("SELECT status, status_timestamps FROM purchase_requests WHERE id=?", prID).Scan(&prStatus, &prLedgerRaw)
	if err != nil || prStatus != PRAwarded {
		return
	}

	var outstanding int
	h.DB.QueryRow(`SELECT COUNT(*) FROM purchase_orders WHERE pr_id=? AND status NOT IN ('delivered','cancelled')`, prID).Scan(&outstanding)
	if outstanding > 0 {
		return
	}

	now := database.Now()
	ledger := ParseLedger(prLedgerRaw).Record("completed_at", now)
	res, err := h.DB.Exec(`UPDATE purchase_requests SET status=?, status_timestamps=?, updated_at=? WHERE id=? AND status=?`,
		PRCompleted, ledger.String(), now, prID, PRAwarded)
	if err != nil {
		return
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return
	}
	h.notify(notify.EventPRCompleted, "purchase_requests", prID, "Purchase Request "+prID,
		"All orders delivered; "+prID+" completed")
}

// SubmitPO submits a draft order for approval.
func (h *Handler) SubmitPO(w http.ResponseWriter, r *http.Request, id string) {
	h.transitionPO(w, r, id, CmdSubmit)
}

// ApprovePO approves a pending order.
func (h *Handler) ApprovePO(w http.ResponseWriter, r *http.Request, id string) {
	h.transitionPO(w, r, id, CmdApprove)
}

// IssuePO releases an approved order to its supplier.
func (h *Handler) IssuePO(w http.ResponseWriter, r *http.Request, id string) {
	h.transitionPO(w, r, id, CmdIssue)
}

// ForDeliveryPO marks an issued order as accepted by the supplier.
func (h *Handler) ForDeliveryPO(w http.ResponseWriter, r *http.Request, id string) {
	h.transitionPO(w, r, id, CmdForDelivery)
}

// DeliverPO records delivery of the order.
func (h *Handler) DeliverPO(w http.ResponseWriter, r *http.Request, id string) {
	h.transitionPO(w, r, id, CmdDeliver)
}

// CancelPO cancels an order in any non-terminal state.
func (h *Handler) CancelPO(w http.ResponseWriter, r *http.Request, id string) {
	h.transitionPO(w, r, id, CmdCancel)
}
