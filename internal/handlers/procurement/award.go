package procurement

import (
	"database/sql"
	"fmt"
	"net/http"
	"sort"

	"procuro/internal/audit"
	"procuro/internal/database"
	"procuro/internal/notify"
	"procuro/internal/response"
)

// awardLine is one abstract item resolved against its winning quote.
type awardLine struct {
	prItemID     int
	awardeeID    string
	documentType string
	unitCost     float64
	brandModel   string
}

// Award consumes every approved abstract of the PR and turns its
// awardee decisions into purchase or job orders. Items whose awardee
// was left unset stay open for a recanvass round. One order is created
// per (supplier, document_type) pair, its lines written in the same
// transaction. A decision pointing at a supplier who never quoted the
// item aborts the whole award. Afterwards the PR lands on awarded when
// every item has a winner and partially_awarded otherwise; an item once
// awarded is never taken back here.
func (h *Handler) Award(w http.ResponseWriter, r *http.Request, prID string) {
	var prStatus, prLedgerRaw, modeProcurement string
	err := h.DB.QueryRow("SELECT status, status_timestamps, mode_procurement FROM purchase_requests WHERE id=?", prID).
		Scan(&prStatus, &prLedgerRaw, &modeProcurement)
	if err != nil {
		response.Err(w, "not found", 404)
		return
	}
	if !Awardable(prStatus) {
		h.LogAudit(r, audit.ActionAward, "purchase_requests", prID, ErrNotAwardable.Error(), nil, true)
		failWorkflow(w, ErrNotAwardable)
		return
	}

	aoqRows, err := h.DB.Query(`SELECT id, status_timestamps FROM abstract_quotations WHERE pr_id=? AND status='approved' ORDER BY id`, prID)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	type approvedAOQ struct{ id, ledger string }
	var aoqs []approvedAOQ
	for aoqRows.Next() {
		var a approvedAOQ
		aoqRows.Scan(&a.id, &a.ledger)
		aoqs = append(aoqs, a)
	}
	aoqRows.Close()

	if len(aoqs) == 0 {
		h.LogAudit(r, audit.ActionAward, "purchase_requests", prID, ErrNothingToAward.Error(), nil, true)
		failWorkflow(w, ErrNothingToAward)
		return
	}

	tx, err := h.DB.Begin()
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	defer tx.Rollback()

	var lines []awardLine
	for _, aoq := range aoqs {
		itemRows, err := tx.Query(`SELECT i.pr_item_id, i.awardee_id, i.document_type
			FROM abstract_quotation_items i
			JOIN purchase_request_items p ON p.id = i.pr_item_id
			WHERE i.aoq_id=? AND i.included=1 AND i.awardee_id IS NOT NULL AND p.awarded_to_id IS NULL
			ORDER BY p.seq`, aoq.id)
		if err != nil {
			response.Err(w, err.Error(), 500)
			return
		}
		type decision struct {
			prItemID     int
			awardeeID    string
			documentType string
		}
		var decisions []decision
		for itemRows.Next() {
			var d decision
			itemRows.Scan(&d.prItemID, &d.awardeeID, &d.documentType)
			decisions = append(decisions, d)
		}
		itemRows.Close()

		for _, d := range decisions {
			var unitCost float64
			var brandModel string
			err := tx.QueryRow(`SELECT d.unit_cost, d.brand_model
				FROM abstract_quotation_details d
				JOIN abstract_quotation_items i ON i.id = d.aoq_item_id
				WHERE i.aoq_id=? AND i.pr_item_id=? AND d.supplier_id=?`,
				aoq.id, d.prItemID, d.awardeeID).Scan(&unitCost, &brandModel)
			if err == sql.ErrNoRows {
				tx.Rollback()
				h.LogAudit(r, audit.ActionAward, "purchase_requests", prID, ErrAwardDetailMissing.Error(), nil, true)
				failWorkflow(w, ErrAwardDetailMissing)
				return
			}
			if err != nil {
				response.Err(w, err.Error(), 500)
				return
			}
			lines = append(lines, awardLine{
				prItemID:     d.prItemID,
				awardeeID:    d.awardeeID,
				documentType: d.documentType,
				unitCost:     unitCost,
				brandModel:   brandModel,
			})
		}
	}

	now := database.Now()
	username := h.GetUsername(r)

	for _, line := range lines {
		res, err := tx.Exec(`UPDATE purchase_request_items SET awarded_to_id=? WHERE id=? AND awarded_to_id IS NULL`,
			line.awardeeID, line.prItemID)
		if err != nil {
			response.Err(w, err.Error(), 500)
			return
		}
		if n, _ := res.RowsAffected(); n == 0 {
			// Awarded by a concurrent command since we read it.
			response.Err(w, ErrInvalidTransition.Error(), 409)
			return
		}
	}

	// One order per (supplier, document_type) pair, in a stable order so
	// repeated awards over the same decisions number documents the same
	// way.
	type orderKey struct{ supplierID, documentType string }
	groups := map[orderKey][]awardLine{}
	for _, line := range lines {
		key := orderKey{line.awardeeID, line.documentType}
		groups[key] = append(groups[key], line)
	}
	keys := make([]orderKey, 0, len(groups))
	for key := range groups {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].supplierID != keys[j].supplierID {
			return keys[i].supplierID < keys[j].supplierID
		}
		return keys[i].documentType < keys[j].documentType
	})

	var orderIDs []string
	for _, key := range keys {
		prefix := "PO"
		if key.documentType == "jo" {
			prefix = "JO"
		}
		poID := h.NextIDFunc(tx, prefix, "purchase_orders", 4)
		ledger := Ledger{}.Record("draft_at", now)
		_, err := tx.Exec(`INSERT INTO purchase_orders (id, pr_id, supplier_id, document_type, mode_procurement, status, status_timestamps, created_by, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, 'draft', ?, ?, ?, ?)`,
			poID, prID, key.supplierID, key.documentType, modeProcurement, ledger.String(), username, now, now)
		if err != nil {
			response.Err(w, err.Error(), 500)
			return
		}

		for _, line := range groups[key] {
			var description, unit string
			var qty float64
			err := tx.QueryRow("SELECT description, unit, qty FROM purchase_request_items WHERE id=?", line.prItemID).
				Scan(&description, &unit, &qty)
			if err != nil {
				response.Err(w, err.Error(), 500)
				return
			}
			_, err = tx.Exec(`INSERT INTO purchase_order_items (po_id, pr_item_id, description, unit, qty, unit_cost, total_cost, brand_model)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
				poID, line.prItemID, description, unit, qty, line.unitCost, qty*line.unitCost, line.brandModel)
			if err != nil {
				response.Err(w, err.Error(), 500)
				return
			}
		}
		orderIDs = append(orderIDs, poID)
	}

	for _, aoq := range aoqs {
		ledger := ParseLedger(aoq.ledger).Record("awarded_at", now)
		res, err := tx.Exec(`UPDATE abstract_quotations SET status='awarded', status_timestamps=?, updated_at=? WHERE id=? AND status='approved'`,
			ledger.String(), now, aoq.id)
		if err != nil {
			response.Err(w, err.Error(), 500)
			return
		}
		if n, _ := res.RowsAffected(); n == 0 {
			response.Err(w, ErrInvalidTransition.Error(), 409)
			return
		}
	}

	var countItems, countAwarded int
	tx.QueryRow("SELECT COUNT(*) FROM purchase_request_items WHERE pr_id=?", prID).Scan(&countItems)
	tx.QueryRow("SELECT COUNT(*) FROM purchase_request_items WHERE pr_id=? AND awarded_to_id IS NOT NULL", prID).Scan(&countAwarded)

	nextStatus := PRPartiallyAwarded
	if countAwarded == countItems {
		nextStatus = PRAwarded
	}
	prLedger := ParseLedger(prLedgerRaw).Record(nextStatus+"_at", now)
	res, err := tx.Exec(`UPDATE purchase_requests SET status=?, status_timestamps=?, updated_at=? WHERE id=? AND status=?`,
		nextStatus, prLedger.String(), now, prID, prStatus)
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

	summary := fmt.Sprintf("Awarded %d of %d items on %s; created %d orders", countAwarded, countItems, prID, len(orderIDs))
	h.LogAudit(r, audit.ActionAward, "purchase_requests", prID, summary, map[string]interface{}{"orders": orderIDs}, false)

	event := notify.EventPRPartiallyAwarded
	if nextStatus == PRAwarded {
		event = notify.EventPRAwarded
	}
	h.notify(event, "purchase_requests", prID, "Purchase Request "+prID, summary)

	response.JSON(w, map[string]interface{}{
		"message":   summary,
		"pr_status": nextStatus,
		"orders":    orderIDs,
	})
}
