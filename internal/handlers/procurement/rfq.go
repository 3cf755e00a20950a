package procurement

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"

	"procuro/internal/audit"
	"procuro/internal/database"
	"procuro/internal/models"
	"procuro/internal/response"
)

// ListRFQs returns request for quotations, optionally scoped to one PR.
func (h *Handler) ListRFQs(w http.ResponseWriter, r *http.Request) {
	query := `SELECT q.id, q.pr_id, q.batch, q.supplier_id, COALESCE(s.name, ''), q.status, q.canvassers, q.created_by, q.created_at, q.updated_at
		FROM request_quotations q LEFT JOIN suppliers s ON s.id = q.supplier_id`
	var args []interface{}
	if prID := r.URL.Query().Get("pr_id"); prID != "" {
		query += " WHERE q.pr_id=?"
		args = append(args, prID)
	}
	query += " ORDER BY q.created_at DESC"

	rows, err := h.DB.Query(query, args...)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	defer rows.Close()

	items := []models.RequestQuotation{}
	for rows.Next() {
		var rfq models.RequestQuotation
		var supplierID sql.NullString
		var canvassers string
		rows.Scan(&rfq.ID, &rfq.PRID, &rfq.Batch, &supplierID, &rfq.SupplierName,
			&rfq.Status, &canvassers, &rfq.CreatedBy, &rfq.CreatedAt, &rfq.UpdatedAt)
		rfq.SupplierID = database.SP(supplierID)
		rfq.Canvassers = parseCanvassers(canvassers)
		items = append(items, rfq)
	}
	response.JSON(w, items)
}

// GetRFQ returns one RFQ with its quotation lines.
func (h *Handler) GetRFQ(w http.ResponseWriter, r *http.Request, id string) {
	rfq, err := h.loadRFQ(id)
	if err != nil {
		response.Err(w, "not found", 404)
		return
	}
	response.JSON(w, rfq)
}

func (h *Handler) loadRFQ(id string) (models.RequestQuotation, error) {
	var rfq models.RequestQuotation
	var supplierID sql.NullString
	var canvassers, ledgerRaw string
	err := h.DB.QueryRow(`SELECT q.id, q.pr_id, q.batch, q.supplier_id, COALESCE(s.name, ''), q.status, q.canvassers, q.status_timestamps, q.created_by, q.created_at, q.updated_at
		FROM request_quotations q LEFT JOIN suppliers s ON s.id = q.supplier_id WHERE q.id=?`, id).
		Scan(&rfq.ID, &rfq.PRID, &rfq.Batch, &supplierID, &rfq.SupplierName,
			&rfq.Status, &canvassers, &ledgerRaw, &rfq.CreatedBy, &rfq.CreatedAt, &rfq.UpdatedAt)
	if err != nil {
		return rfq, err
	}
	rfq.SupplierID = database.SP(supplierID)
	rfq.Canvassers = parseCanvassers(canvassers)
	rfq.StatusTimestamps = ParseLedger(ledgerRaw)

	rows, err := h.DB.Query(`SELECT id, rfq_id, pr_item_id, included, unit_cost, total_cost, brand_model
		FROM request_quotation_items WHERE rfq_id=? ORDER BY id`, id)
	if err != nil {
		return rfq, err
	}
	defer rows.Close()
	for rows.Next() {
		var it models.RequestQuotationItem
		rows.Scan(&it.ID, &it.RFQID, &it.PRItemID, &it.Included, &it.UnitCost, &it.TotalCost, &it.BrandModel)
		rfq.Items = append(rfq.Items, it)
	}
	return rfq, nil
}

func parseCanvassers(raw string) []string {
	out := []string{}
	json.Unmarshal([]byte(raw), &out)
	return out
}

type rfqPayload struct {
	PRID       string   `json:"pr_id"`
	SupplierID *string  `json:"supplier_id"`
	Canvassers []string `json:"canvassers"`
	ItemIDs    []int    `json:"item_ids"`
}

// hasActiveRFQ reports whether a non-cancelled RFQ already exists for
// the supplier in the PR's current batch.
func hasActiveRFQ(q database.Queryer, prID string, batch int, supplierID string) bool {
	var n int
	q.QueryRow(`SELECT COUNT(*) FROM request_quotations
		WHERE pr_id=? AND batch=? AND supplier_id=? AND status != 'cancelled'`,
		prID, batch, supplierID).Scan(&n)
	return n > 0
}

// CreateRFQ creates a draft RFQ in the PR's current canvassing batch.
// At most one non-cancelled RFQ per supplier may exist in a batch. When
// the body names no items, all PR items are offered for quotation.
func (h *Handler) CreateRFQ(w http.ResponseWriter, r *http.Request) {
	var body rfqPayload
	if err := response.DecodeBody(r, &body); err != nil {
		response.Err(w, "invalid body", 400)
		return
	}
	if body.PRID == "" {
		response.Err(w, "pr_id is required", 400)
		return
	}

	var prStatus string
	var batch int
	err := h.DB.QueryRow("SELECT status, rfq_batch FROM purchase_requests WHERE id=?", body.PRID).Scan(&prStatus, &batch)
	if err != nil {
		response.Err(w, "purchase request not found", 404)
		return
	}
	if _, ok := NextState(prStatus, CmdIssueCanvass); !ok {
		response.Err(w, "purchase request is not open for canvassing", 409)
		return
	}

	if body.SupplierID != nil && hasActiveRFQ(h.DB, body.PRID, batch, *body.SupplierID) {
		h.LogAudit(r, audit.ActionCreate, "request_quotations", body.PRID, ErrDuplicateSupplier.Error(), body, true)
		failWorkflow(w, ErrDuplicateSupplier)
		return
	}

	tx, err := h.DB.Begin()
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	defer tx.Rollback()

	id := h.NextIDFunc(tx, "RFQ", "request_quotations", 4)
	now := database.Now()
	ledger := Ledger{}.Record("draft_at", now)
	canvassers, _ := json.Marshal(append([]string{}, body.Canvassers...))

	_, err = tx.Exec(`INSERT INTO request_quotations (id, pr_id, batch, supplier_id, status, canvassers, status_timestamps, created_by, created_at, updated_at)
		VALUES (?, ?, ?, ?, 'draft', ?, ?, ?, ?, ?)`,
		id, body.PRID, batch, database.NS(body.SupplierID), string(canvassers), ledger.String(), h.GetUsername(r), now, now)
	if err != nil {
		// Concurrent creates for the same supplier both pass the count
		// check; the unique index catches the loser here.
		if database.IsUniqueViolation(err) {
			failWorkflow(w, ErrDuplicateSupplier)
			return
		}
		response.Err(w, err.Error(), 500)
		return
	}

	itemQuery := "SELECT id FROM purchase_request_items WHERE pr_id=? ORDER BY seq"
	itemRows, err := tx.Query(itemQuery, body.PRID)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	var prItemIDs []int
	for itemRows.Next() {
		var itemID int
		itemRows.Scan(&itemID)
		prItemIDs = append(prItemIDs, itemID)
	}
	itemRows.Close()

	wanted := map[int]bool{}
	for _, itemID := range body.ItemIDs {
		wanted[itemID] = true
	}
	inserted := 0
	for _, itemID := range prItemIDs {
		if len(wanted) > 0 && !wanted[itemID] {
			continue
		}
		if _, err := tx.Exec(`INSERT INTO request_quotation_items (rfq_id, pr_item_id) VALUES (?, ?)`, id, itemID); err != nil {
			response.Err(w, err.Error(), 500)
			return
		}
		inserted++
	}
	if inserted == 0 {
		response.Err(w, "no purchase request items to quote", 400)
		return
	}

	if err := tx.Commit(); err != nil {
		response.Err(w, err.Error(), 500)
		return
	}

	h.LogAudit(r, audit.ActionCreate, "request_quotations", id, "Created RFQ "+id+" for "+body.PRID, body, false)
	rfq, _ := h.loadRFQ(id)
	w.WriteHeader(201)
	response.JSON(w, rfq)
}

// UpdateRFQ edits a draft RFQ's supplier and canvassers.
func (h *Handler) UpdateRFQ(w http.ResponseWriter, r *http.Request, id string) {
	var status, prID string
	var batch int
	err := h.DB.QueryRow("SELECT status, pr_id, batch FROM request_quotations WHERE id=?", id).Scan(&status, &prID, &batch)
	if err != nil {
		response.Err(w, "not found", 404)
		return
	}
	if status != "draft" {
		response.Err(w, "only draft request for quotations can be edited", 409)
		return
	}

	var body rfqPayload
	if err := response.DecodeBody(r, &body); err != nil {
		response.Err(w, "invalid body", 400)
		return
	}

	if body.SupplierID != nil {
		var n int
		h.DB.QueryRow(`SELECT COUNT(*) FROM request_quotations
			WHERE pr_id=? AND batch=? AND supplier_id=? AND status != 'cancelled' AND id != ?`,
			prID, batch, *body.SupplierID, id).Scan(&n)
		if n > 0 {
			failWorkflow(w, ErrDuplicateSupplier)
			return
		}
	}

	canvassers, _ := json.Marshal(append([]string{}, body.Canvassers...))
	_, err = h.DB.Exec(`UPDATE request_quotations SET supplier_id=?, canvassers=?, updated_at=? WHERE id=?`,
		database.NS(body.SupplierID), string(canvassers), database.Now(), id)
	if err != nil {
		if database.IsUniqueViolation(err) {
			failWorkflow(w, ErrDuplicateSupplier)
			return
		}
		response.Err(w, err.Error(), 500)
		return
	}

	h.LogAudit(r, audit.ActionUpdate, "request_quotations", id, "Updated RFQ "+id, body, false)
	rfq, _ := h.loadRFQ(id)
	response.JSON(w, rfq)
}

// IssueAllDraft moves every draft RFQ of the PR's current batch into
// canvassing and records the canvass round on the PR, in one
// transaction. Calling it with no draft RFQs outstanding is an error,
// so a double-issue fails loudly instead of silently re-entering the
// canvass state.
func (h *Handler) IssueAllDraft(w http.ResponseWriter, r *http.Request, prID string) {
	var prStatus, prLedgerRaw string
	var batch int
	err := h.DB.QueryRow("SELECT status, rfq_batch, status_timestamps FROM purchase_requests WHERE id=?", prID).
		Scan(&prStatus, &batch, &prLedgerRaw)
	if err != nil {
		response.Err(w, "not found", 404)
		return
	}
	next, ok := NextState(prStatus, CmdIssueCanvass)
	if !ok {
		response.Err(w, "purchase request is not open for canvassing", 409)
		return
	}

	rows, err := h.DB.Query(`SELECT id, status_timestamps FROM request_quotations
		WHERE pr_id=? AND batch=? AND status='draft'`, prID, batch)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	type draftRFQ struct{ id, ledger string }
	var drafts []draftRFQ
	for rows.Next() {
		var d draftRFQ
		rows.Scan(&d.id, &d.ledger)
		drafts = append(drafts, d)
	}
	rows.Close()

	if len(drafts) == 0 {
		h.LogAudit(r, audit.ActionIssue, "request_quotations", prID, ErrNothingToIssue.Error(), nil, true)
		failWorkflow(w, ErrNothingToIssue)
		return
	}

	tx, err := h.DB.Begin()
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	defer tx.Rollback()

	now := database.Now()
	for _, d := range drafts {
		ledger := ParseLedger(d.ledger).Record("canvassing_at", now)
		if _, err := tx.Exec(`UPDATE request_quotations SET status='canvassing', status_timestamps=?, updated_at=? WHERE id=? AND status='draft'`,
			ledger.String(), now, d.id); err != nil {
			response.Err(w, err.Error(), 500)
			return
		}
	}

	prLedger := ParseLedger(prLedgerRaw).Record(next+"_at", now)
	res, err := tx.Exec(`UPDATE purchase_requests SET status=?, status_timestamps=?, updated_at=? WHERE id=? AND status=?`,
		next, prLedger.String(), now, prID, prStatus)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	if n, _ := res.RowsAffected(); n == 0 {
		response.Err(w, ErrInvalidTransition.Error(), 409)
		return
	}

	if err := tx.Commit(); err != nil {
		response.Err(w, err.Error(), 500)
		return
	}

	summary := fmt.Sprintf("Issued %d RFQs for canvassing on %s", len(drafts), prID)
	h.LogAudit(r, audit.ActionIssue, "request_quotations", prID, summary, nil, false)
	response.JSON(w, map[string]interface{}{"message": summary, "issued": len(drafts), "pr_status": next})
}

type rfqCompletePayload struct {
	SupplierID *string `json:"supplier_id"`
	Items      []struct {
		ID         int     `json:"id"`
		Included   *bool   `json:"included"`
		UnitCost   float64 `json:"unit_cost"`
		BrandModel string  `json:"brand_model"`
	} `json:"items"`
}

// CompleteRFQ records the supplier's quoted prices and closes the RFQ.
// A supplier must be on record before completion; quotes that omit it
// here and on the document are rejected.
func (h *Handler) CompleteRFQ(w http.ResponseWriter, r *http.Request, id string) {
	var status, prID, ledgerRaw string
	var batch int
	var supplierID sql.NullString
	err := h.DB.QueryRow("SELECT status, pr_id, batch, supplier_id, status_timestamps FROM request_quotations WHERE id=?", id).
		Scan(&status, &prID, &batch, &supplierID, &ledgerRaw)
	if err != nil {
		response.Err(w, "not found", 404)
		return
	}
	if status != "canvassing" {
		response.Err(w, "only a canvassing request for quotation can be completed", 409)
		return
	}

	var body rfqCompletePayload
	if err := response.DecodeBody(r, &body); err != nil {
		response.Err(w, "invalid body", 400)
		return
	}

	if body.SupplierID != nil {
		supplierID = database.NS(body.SupplierID)
	}
	if !supplierID.Valid || supplierID.String == "" {
		h.LogAudit(r, audit.ActionComplete, "request_quotations", id, ErrSupplierNotSet.Error(), nil, true)
		failWorkflow(w, ErrSupplierNotSet)
		return
	}

	// A supplier set at completion time must still be unique in the
	// batch. The unique index backs this against races.
	var dup int
	h.DB.QueryRow(`SELECT COUNT(*) FROM request_quotations
		WHERE pr_id=? AND batch=? AND supplier_id=? AND status != 'cancelled' AND id != ?`,
		prID, batch, supplierID.String, id).Scan(&dup)
	if dup > 0 {
		h.LogAudit(r, audit.ActionComplete, "request_quotations", id, ErrDuplicateSupplier.Error(), body, true)
		failWorkflow(w, ErrDuplicateSupplier)
		return
	}

	tx, err := h.DB.Begin()
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	defer tx.Rollback()

	now := database.Now()
	if body.SupplierID != nil {
		if _, err := tx.Exec("UPDATE request_quotations SET supplier_id=? WHERE id=?", supplierID, id); err != nil {
			if database.IsUniqueViolation(err) {
				failWorkflow(w, ErrDuplicateSupplier)
				return
			}
			response.Err(w, err.Error(), 500)
			return
		}
	}

	for _, quote := range body.Items {
		var qty float64
		err := tx.QueryRow(`SELECT p.qty FROM request_quotation_items i
			JOIN purchase_request_items p ON p.id = i.pr_item_id
			WHERE i.id=? AND i.rfq_id=?`, quote.ID, id).Scan(&qty)
		if err != nil {
			response.Err(w, "quotation item not found", 400)
			return
		}
		included := 1
		if quote.Included != nil && !*quote.Included {
			included = 0
		}
		_, err = tx.Exec(`UPDATE request_quotation_items SET included=?, unit_cost=?, total_cost=?, brand_model=? WHERE id=?`,
			included, quote.UnitCost, qty*quote.UnitCost, quote.BrandModel, quote.ID)
		if err != nil {
			response.Err(w, err.Error(), 500)
			return
		}
	}

	ledger := ParseLedger(ledgerRaw).Record("completed_at", now)
	res, err := tx.Exec(`UPDATE request_quotations SET status='completed', status_timestamps=?, updated_at=? WHERE id=? AND status='canvassing'`,
		ledger.String(), now, id)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	if n, _ := res.RowsAffected(); n == 0 {
		response.Err(w, ErrInvalidTransition.Error(), 409)
		return
	}

	if err := tx.Commit(); err != nil {
		response.Err(w, err.Error(), 500)
		return
	}

	h.LogAudit(r, audit.ActionComplete, "request_quotations", id, "Completed RFQ "+id, body, false)
	rfq, _ := h.loadRFQ(id)
	response.JSON(w, rfq)
}

// CancelRFQ cancels a draft or canvassing RFQ, freeing its supplier
// slot in the batch.
func (h *Handler) CancelRFQ(w http.ResponseWriter, r *http.Request, id string) {
	var status, ledgerRaw string
	err := h.DB.QueryRow("SELECT status, status_timestamps FROM request_quotations WHERE id=?", id).Scan(&status, &ledgerRaw)
	if err != nil {
		response.Err(w, "not found", 404)
		return
	}
	if status != "draft" && status != "canvassing" {
		response.Err(w, "only draft or canvassing request for quotations can be cancelled", 409)
		return
	}

	now := database.Now()
	ledger := ParseLedger(ledgerRaw).Record("cancelled_at", now)
	res, err := h.DB.Exec(`UPDATE request_quotations SET status='cancelled', status_timestamps=?, updated_at=? WHERE id=? AND status=?`,
		ledger.String(), now, id, status)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	if n, _ := res.RowsAffected(); n == 0 {
		response.Err(w, ErrInvalidTransition.Error(), 409)
		return
	}

	h.LogAudit(r, audit.ActionCancel, "request_quotations", id, "Cancelled RFQ "+id, nil, false)
	response.JSON(w, map[string]string{"message": "RFQ " + id + " cancelled"})
}
