package procurement

import (
	"database/sql"
	"fmt"
	"net/http"

	"procuro/internal/audit"
	"procuro/internal/database"
	"procuro/internal/models"
	"procuro/internal/notify"
	"procuro/internal/response"
	"procuro/internal/validation"
)

// ListAOQs returns abstract of quotations, optionally scoped to one PR.
func (h *Handler) ListAOQs(w http.ResponseWriter, r *http.Request) {
	query := `SELECT id, pr_id, batch, status, created_by, created_at, updated_at FROM abstract_quotations`
	var args []interface{}
	if prID := r.URL.Query().Get("pr_id"); prID != "" {
		query += " WHERE pr_id=?"
		args = append(args, prID)
	}
	query += " ORDER BY created_at DESC"

	rows, err := h.DB.Query(query, args...)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	defer rows.Close()

	items := []models.AbstractQuotation{}
	for rows.Next() {
		var aoq models.AbstractQuotation
		rows.Scan(&aoq.ID, &aoq.PRID, &aoq.Batch, &aoq.Status, &aoq.CreatedBy, &aoq.CreatedAt, &aoq.UpdatedAt)
		items = append(items, aoq)
	}
	response.JSON(w, items)
}

// GetAOQ returns one abstract with its comparison grid: per item, every
// supplier quote collected from the batch's completed RFQs.
func (h *Handler) GetAOQ(w http.ResponseWriter, r *http.Request, id string) {
	aoq, err := h.loadAOQ(id)
	if err != nil {
		response.Err(w, "not found", 404)
		return
	}
	response.JSON(w, aoq)
}

func (h *Handler) loadAOQ(id string) (models.AbstractQuotation, error) {
	var aoq models.AbstractQuotation
	var ledgerRaw string
	err := h.DB.QueryRow(`SELECT id, pr_id, batch, status, status_timestamps, created_by, created_at, updated_at
		FROM abstract_quotations WHERE id=?`, id).
		Scan(&aoq.ID, &aoq.PRID, &aoq.Batch, &aoq.Status, &ledgerRaw, &aoq.CreatedBy, &aoq.CreatedAt, &aoq.UpdatedAt)
	if err != nil {
		return aoq, err
	}
	aoq.StatusTimestamps = ParseLedger(ledgerRaw)

	rows, err := h.DB.Query(`SELECT id, aoq_id, pr_item_id, included, document_type, awardee_id
		FROM abstract_quotation_items WHERE aoq_id=? ORDER BY id`, id)
	if err != nil {
		return aoq, err
	}
	defer rows.Close()
	for rows.Next() {
		var it models.AbstractQuotationItem
		var awardee sql.NullString
		rows.Scan(&it.ID, &it.AOQID, &it.PRItemID, &it.Included, &it.DocumentType, &awardee)
		it.AwardeeID = database.SP(awardee)
		aoq.Items = append(aoq.Items, it)
	}

	for i := range aoq.Items {
		detailRows, err := h.DB.Query(`SELECT d.id, d.aoq_item_id, d.supplier_id, COALESCE(s.name, ''), d.unit_cost, d.total_cost, d.brand_model
			FROM abstract_quotation_details d LEFT JOIN suppliers s ON s.id = d.supplier_id
			WHERE d.aoq_item_id=? ORDER BY d.unit_cost, d.supplier_id`, aoq.Items[i].ID)
		if err != nil {
			return aoq, err
		}
		for detailRows.Next() {
			var d models.AbstractQuotationDetail
			detailRows.Scan(&d.ID, &d.AOQItemID, &d.SupplierID, &d.SupplierName, &d.UnitCost, &d.TotalCost, &d.BrandModel)
			aoq.Items[i].Details = append(aoq.Items[i].Details, d)
		}
		detailRows.Close()
	}
	return aoq, nil
}

// BuildAbstract consolidates the completed RFQs of the PR's current
// batch into a draft abstract of quotation. The batch must have no RFQ
// still in draft or canvassing and at least one completed one. Items
// already awarded in an earlier round are carried excluded so a
// recanvass abstract only re-opens the unawarded remainder. Closing the
// batch bumps rfq_batch, so any later canvass starts a fresh round.
func (h *Handler) BuildAbstract(w http.ResponseWriter, r *http.Request, prID string) {
	var prStatus, prLedgerRaw string
	var batch int
	err := h.DB.QueryRow("SELECT status, rfq_batch, status_timestamps FROM purchase_requests WHERE id=?", prID).
		Scan(&prStatus, &batch, &prLedgerRaw)
	if err != nil {
		response.Err(w, "not found", 404)
		return
	}
	next, ok := NextState(prStatus, CmdBuildAbstract)
	if !ok {
		msg := fmt.Sprintf("cannot build an abstract for a purchase request in %s status", prStatus)
		h.LogAudit(r, audit.ActionCreate, "abstract_quotations", prID, msg, nil, true)
		response.Err(w, msg, 409)
		return
	}

	var pending, completed int
	h.DB.QueryRow(`SELECT COUNT(*) FROM request_quotations WHERE pr_id=? AND batch=? AND status IN ('draft','canvassing')`,
		prID, batch).Scan(&pending)
	h.DB.QueryRow(`SELECT COUNT(*) FROM request_quotations WHERE pr_id=? AND batch=? AND status='completed'`,
		prID, batch).Scan(&completed)
	if pending > 0 {
		h.LogAudit(r, audit.ActionCreate, "abstract_quotations", prID, ErrPendingCanvassers.Error(), nil, true)
		failWorkflow(w, ErrPendingCanvassers)
		return
	}
	if completed == 0 {
		h.LogAudit(r, audit.ActionCreate, "abstract_quotations", prID, ErrNoCompletedRFQ.Error(), nil, true)
		failWorkflow(w, ErrNoCompletedRFQ)
		return
	}

	tx, err := h.DB.Begin()
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	defer tx.Rollback()

	now := database.Now()
	username := h.GetUsername(r)

	// Rebuild into an existing draft abstract if one survives from an
	// aborted round, otherwise reserve a new document number.
	var aoqID string
	err = tx.QueryRow(`SELECT id FROM abstract_quotations WHERE pr_id=? AND status='draft'`, prID).Scan(&aoqID)
	if err == sql.ErrNoRows {
		aoqID = h.NextIDFunc(tx, "AOQ", "abstract_quotations", 4)
		ledger := Ledger{}.Record("draft_at", now)
		_, err = tx.Exec(`INSERT INTO abstract_quotations (id, pr_id, batch, status, status_timestamps, created_by, created_at, updated_at)
			VALUES (?, ?, ?, 'draft', ?, ?, ?, ?)`, aoqID, prID, batch, ledger.String(), username, now, now)
		if err != nil {
			response.Err(w, err.Error(), 500)
			return
		}
	} else if err != nil {
		response.Err(w, err.Error(), 500)
		return
	} else {
		if _, err := tx.Exec("DELETE FROM abstract_quotation_items WHERE aoq_id=?", aoqID); err != nil {
			response.Err(w, err.Error(), 500)
			return
		}
		if _, err := tx.Exec("UPDATE abstract_quotations SET batch=?, updated_at=? WHERE id=?", batch, now, aoqID); err != nil {
			response.Err(w, err.Error(), 500)
			return
		}
	}

	itemRows, err := tx.Query(`SELECT id, qty, awarded_to_id FROM purchase_request_items WHERE pr_id=? ORDER BY seq`, prID)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	type prItem struct {
		id      int
		qty     float64
		awarded bool
	}
	var prItems []prItem
	for itemRows.Next() {
		var it prItem
		var awardee sql.NullString
		itemRows.Scan(&it.id, &it.qty, &awardee)
		it.awarded = awardee.Valid
		prItems = append(prItems, it)
	}
	itemRows.Close()

	for _, it := range prItems {
		included := 1
		if it.awarded {
			included = 0
		}
		res, err := tx.Exec(`INSERT INTO abstract_quotation_items (aoq_id, pr_item_id, included, document_type) VALUES (?, ?, ?, 'po')`,
			aoqID, it.id, included)
		if err != nil {
			response.Err(w, err.Error(), 500)
			return
		}
		if included == 0 {
			continue
		}
		aoqItemID, _ := res.LastInsertId()

		quoteRows, err := tx.Query(`SELECT q.supplier_id, i.unit_cost, i.total_cost, i.brand_model
			FROM request_quotation_items i
			JOIN request_quotations q ON q.id = i.rfq_id
			WHERE q.pr_id=? AND q.batch=? AND q.status='completed' AND q.supplier_id IS NOT NULL
			  AND i.pr_item_id=? AND i.included=1 AND i.unit_cost > 0`, prID, batch, it.id)
		if err != nil {
			response.Err(w, err.Error(), 500)
			return
		}
		type quote struct {
			supplierID string
			unitCost   float64
			totalCost  float64
			brandModel string
		}
		var quotes []quote
		for quoteRows.Next() {
			var qt quote
			quoteRows.Scan(&qt.supplierID, &qt.unitCost, &qt.totalCost, &qt.brandModel)
			quotes = append(quotes, qt)
		}
		quoteRows.Close()

		for _, qt := range quotes {
			_, err := tx.Exec(`INSERT INTO abstract_quotation_details (aoq_item_id, supplier_id, unit_cost, total_cost, brand_model)
				VALUES (?, ?, ?, ?, ?)`, aoqItemID, qt.supplierID, qt.unitCost, qt.totalCost, qt.brandModel)
			if err != nil {
				response.Err(w, err.Error(), 500)
				return
			}
		}
	}

	prLedger := ParseLedger(prLedgerRaw).Record(next+"_at", now)
	res, err := tx.Exec(`UPDATE purchase_requests SET status=?, rfq_batch=rfq_batch+1, status_timestamps=?, updated_at=? WHERE id=? AND status=?`,
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

	h.LogAudit(r, audit.ActionCreate, "abstract_quotations", aoqID, "Built abstract "+aoqID+" for "+prID, nil, false)
	h.notify(notify.EventPRForAbstract, "abstract_quotations", aoqID, "Abstract of Quotation "+aoqID,
		"Abstract built for "+prID)

	aoq, _ := h.loadAOQ(aoqID)
	w.WriteHeader(201)
	response.JSON(w, aoq)
}

// ApproveAOQ approves a draft abstract, opening it for awarding.
func (h *Handler) ApproveAOQ(w http.ResponseWriter, r *http.Request, id string) {
	h.transitionAOQ(w, r, id, "draft", "approved", audit.ActionApprove)
}

// DisapproveAOQ sends an approved abstract back to draft so its awardee
// choices can be revised.
func (h *Handler) DisapproveAOQ(w http.ResponseWriter, r *http.Request, id string) {
	h.transitionAOQ(w, r, id, "approved", "draft", audit.ActionDisapprove)
}

func (h *Handler) transitionAOQ(w http.ResponseWriter, r *http.Request, id, from, to, action string) {
	var status, ledgerRaw string
	err := h.DB.QueryRow("SELECT status, status_timestamps FROM abstract_quotations WHERE id=?", id).Scan(&status, &ledgerRaw)
	if err != nil {
		response.Err(w, "not found", 404)
		return
	}
	if status != from {
		msg := fmt.Sprintf("cannot %s an abstract of quotation in %s status", action, status)
		h.LogAudit(r, action, "abstract_quotations", id, msg, nil, true)
		response.Err(w, msg, 409)
		return
	}

	now := database.Now()
	ledger := ParseLedger(ledgerRaw).Record(to+"_at", now)
	res, err := h.DB.Exec(`UPDATE abstract_quotations SET status=?, status_timestamps=?, updated_at=? WHERE id=? AND status=?`,
		to, ledger.String(), now, id, from)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	if n, _ := res.RowsAffected(); n == 0 {
		response.Err(w, ErrInvalidTransition.Error(), 409)
		return
	}

	summary := fmt.Sprintf("AOQ %s: %s -> %s", id, from, to)
	h.LogAudit(r, action, "abstract_quotations", id, summary, nil, false)
	aoq, _ := h.loadAOQ(id)
	response.JSON(w, map[string]interface{}{"message": summary, "abstract_quotation": aoq})
}

type awardeePayload struct {
	ItemID       int     `json:"item_id"`
	AwardeeID    *string `json:"awardee_id"`
	DocumentType string  `json:"document_type"`
}

// SetAwardee records the chosen supplier and document type for one
// abstract item. The choice must match a collected quote; an awarded
// abstract is frozen.
func (h *Handler) SetAwardee(w http.ResponseWriter, r *http.Request, id string) {
	var status string
	err := h.DB.QueryRow("SELECT status FROM abstract_quotations WHERE id=?", id).Scan(&status)
	if err != nil {
		response.Err(w, "not found", 404)
		return
	}
	if status == "awarded" {
		response.Err(w, "an awarded abstract of quotation can no longer change awardees", 409)
		return
	}

	var body awardeePayload
	if err := response.DecodeBody(r, &body); err != nil {
		response.Err(w, "invalid body", 400)
		return
	}

	if body.DocumentType == "" {
		body.DocumentType = "po"
	}
	ve := &validation.ValidationErrors{}
	validation.ValidateEnum(ve, "document_type", body.DocumentType, validation.ValidDocumentTypes)
	if ve.HasErrors() {
		response.Err(w, ve.Error(), 400)
		return
	}

	var included int
	err = h.DB.QueryRow("SELECT included FROM abstract_quotation_items WHERE id=? AND aoq_id=?", body.ItemID, id).Scan(&included)
	if err != nil {
		response.Err(w, "abstract item not found", 404)
		return
	}
	if included == 0 {
		response.Err(w, "item is not part of this abstract", 409)
		return
	}

	if body.AwardeeID != nil {
		var n int
		h.DB.QueryRow("SELECT COUNT(*) FROM abstract_quotation_details WHERE aoq_item_id=? AND supplier_id=?",
			body.ItemID, *body.AwardeeID).Scan(&n)
		if n == 0 {
			h.LogAudit(r, audit.ActionUpdate, "abstract_quotations", id, ErrAwardDetailMissing.Error(), body, true)
			failWorkflow(w, ErrAwardDetailMissing)
			return
		}
	}

	_, err = h.DB.Exec(`UPDATE abstract_quotation_items SET awardee_id=?, document_type=? WHERE id=?`,
		database.NS(body.AwardeeID), body.DocumentType, body.ItemID)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}

	h.LogAudit(r, audit.ActionUpdate, "abstract_quotations", id,
		fmt.Sprintf("Set awardee on abstract item %d", body.ItemID), body, false)
	aoq, _ := h.loadAOQ(id)
	response.JSON(w, aoq)
}
