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

// ListPRs returns all purchase requests, optionally filtered by status.
func (h *Handler) ListPRs(w http.ResponseWriter, r *http.Request) {
	query := `SELECT id, purpose, department, mode_procurement, status, rfq_batch, total_estimated_cost, created_by, created_at, updated_at
		FROM purchase_requests`
	var args []interface{}
	if status := r.URL.Query().Get("status"); status != "" {
		query += " WHERE status=?"
		args = append(args, status)
	}
	query += " ORDER BY created_at DESC"

	rows, err := h.DB.Query(query, args...)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	defer rows.Close()

	items := []models.PurchaseRequest{}
	for rows.Next() {
		var pr models.PurchaseRequest
		rows.Scan(&pr.ID, &pr.Purpose, &pr.Department, &pr.ModeProcurement, &pr.Status,
			&pr.RFQBatch, &pr.TotalEstimatedCost, &pr.CreatedBy, &pr.CreatedAt, &pr.UpdatedAt)
		items = append(items, pr)
	}
	response.JSON(w, items)
}

// GetPR returns a single purchase request with its items and status history.
func (h *Handler) GetPR(w http.ResponseWriter, r *http.Request, id string) {
	pr, err := h.loadPR(id)
	if err != nil {
		response.Err(w, "not found", 404)
		return
	}
	response.JSON(w, pr)
}

func (h *Handler) loadPR(id string) (models.PurchaseRequest, error) {
	var pr models.PurchaseRequest
	var ledgerRaw string
	err := h.DB.QueryRow(`SELECT id, purpose, department, mode_procurement, status, rfq_batch, total_estimated_cost, status_timestamps, created_by, created_at, updated_at
		FROM purchase_requests WHERE id=?`, id).
		Scan(&pr.ID, &pr.Purpose, &pr.Department, &pr.ModeProcurement, &pr.Status,
			&pr.RFQBatch, &pr.TotalEstimatedCost, &ledgerRaw, &pr.CreatedBy, &pr.CreatedAt, &pr.UpdatedAt)
	if err != nil {
		return pr, err
	}
	pr.StatusTimestamps = ParseLedger(ledgerRaw)
	pr.Items, err = h.loadPRItems(id)
	return pr, err
}

func (h *Handler) loadPRItems(prID string) ([]models.PurchaseRequestItem, error) {
	rows, err := h.DB.Query(`SELECT id, pr_id, seq, description, unit, qty, unit_cost, estimated_cost, awarded_to_id
		FROM purchase_request_items WHERE pr_id=? ORDER BY seq`, prID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []models.PurchaseRequestItem{}
	for rows.Next() {
		var it models.PurchaseRequestItem
		var awardedTo sql.NullString
		rows.Scan(&it.ID, &it.PRID, &it.Seq, &it.Description, &it.Unit, &it.Qty, &it.UnitCost, &it.EstimatedCost, &awardedTo)
		it.AwardedToID = database.SP(awardedTo)
		items = append(items, it)
	}
	return items, nil
}

type prPayload struct {
	Purpose         string `json:"purpose"`
	Department      string `json:"department"`
	ModeProcurement string `json:"mode_procurement"`
	Items           []struct {
		Description string  `json:"description"`
		Unit        string  `json:"unit"`
		Qty         float64 `json:"qty"`
		UnitCost    float64 `json:"unit_cost"`
	} `json:"items"`
}

func validatePRPayload(ve *validation.ValidationErrors, body prPayload) {
	validation.RequireField(ve, "purpose", body.Purpose)
	validation.ValidateEnum(ve, "mode_procurement", body.ModeProcurement, validation.ValidProcurementModes)
	if len(body.Items) == 0 {
		ve.Add("items", "at least one item is required")
	}
	for i, it := range body.Items {
		validation.RequireField(ve, fmt.Sprintf("items[%d].description", i), it.Description)
		validation.ValidatePositiveFloat(ve, fmt.Sprintf("items[%d].qty", i), it.Qty)
		validation.ValidateMaxQuantity(ve, fmt.Sprintf("items[%d].qty", i), it.Qty)
		validation.ValidateNonNegativeFloat(ve, fmt.Sprintf("items[%d].unit_cost", i), it.UnitCost)
		validation.ValidateMaxPrice(ve, fmt.Sprintf("items[%d].unit_cost", i), it.UnitCost)
	}
}

// CreatePR creates a purchase request in draft with its items. The item
// rows and the header are written in one transaction so a created PR can
// never be read back without its items.
func (h *Handler) CreatePR(w http.ResponseWriter, r *http.Request) {
	var body prPayload
	if err := response.DecodeBody(r, &body); err != nil {
		response.Err(w, "invalid body", 400)
		return
	}

	ve := &validation.ValidationErrors{}
	validatePRPayload(ve, body)
	if ve.HasErrors() {
		response.Err(w, ve.Error(), 400)
		return
	}
	if body.ModeProcurement == "" {
		body.ModeProcurement = "small_value"
	}

	tx, err := h.DB.Begin()
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	defer tx.Rollback()

	id := h.NextIDFunc(tx, "PR", "purchase_requests", 4)
	now := database.Now()
	createdBy := h.GetUsername(r)
	ledger := Ledger{}.Record("draft_at", now)

	total := 0.0
	for _, it := range body.Items {
		total += it.Qty * it.UnitCost
	}

	_, err = tx.Exec(`INSERT INTO purchase_requests (id, purpose, department, mode_procurement, status, rfq_batch, total_estimated_cost, status_timestamps, created_by, created_at, updated_at)
		VALUES (?, ?, ?, ?, 'draft', 1, ?, ?, ?, ?, ?)`,
		id, body.Purpose, body.Department, body.ModeProcurement, total, ledger.String(), createdBy, now, now)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}

	for i, it := range body.Items {
		unit := it.Unit
		if unit == "" {
			unit = "pc"
		}
		_, err = tx.Exec(`INSERT INTO purchase_request_items (pr_id, seq, description, unit, qty, unit_cost, estimated_cost)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			id, i+1, it.Description, unit, it.Qty, it.UnitCost, it.Qty*it.UnitCost)
		if err != nil {
			response.Err(w, err.Error(), 500)
			return
		}
	}

	if err := tx.Commit(); err != nil {
		response.Err(w, err.Error(), 500)
		return
	}

	h.LogAudit(r, audit.ActionCreate, "purchase_requests", id, "Created PR "+id, body, false)
	pr, _ := h.loadPR(id)
	w.WriteHeader(201)
	response.JSON(w, pr)
}

// UpdatePR edits a purchase request's content. Only legal while the PR
// is in draft or disapproved; editing always resets the status to draft
// and recomputes the estimated total from the replaced items.
func (h *Handler) UpdatePR(w http.ResponseWriter, r *http.Request, id string) {
	var status, ledgerRaw string
	err := h.DB.QueryRow("SELECT status, status_timestamps FROM purchase_requests WHERE id=?", id).Scan(&status, &ledgerRaw)
	if err != nil {
		response.Err(w, "not found", 404)
		return
	}
	if _, ok := NextState(status, CmdUpdate); !ok {
		h.LogAudit(r, audit.ActionUpdate, "purchase_requests", id, ErrAlreadyProcessing.Error(), nil, true)
		failWorkflow(w, ErrAlreadyProcessing)
		return
	}

	var body prPayload
	if err := response.DecodeBody(r, &body); err != nil {
		response.Err(w, "invalid body", 400)
		return
	}
	ve := &validation.ValidationErrors{}
	validatePRPayload(ve, body)
	if ve.HasErrors() {
		response.Err(w, ve.Error(), 400)
		return
	}
	if body.ModeProcurement == "" {
		body.ModeProcurement = "small_value"
	}

	tx, err := h.DB.Begin()
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	defer tx.Rollback()

	now := database.Now()
	total := 0.0
	for _, it := range body.Items {
		total += it.Qty * it.UnitCost
	}
	ledger := ParseLedger(ledgerRaw).Record("draft_at", now)

	res, err := tx.Exec(`UPDATE purchase_requests SET purpose=?, department=?, mode_procurement=?, status='draft', total_estimated_cost=?, status_timestamps=?, updated_at=?
		WHERE id=? AND status=?`,
		body.Purpose, body.Department, body.ModeProcurement, total, ledger.String(), now, id, status)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	if n, _ := res.RowsAffected(); n == 0 {
		failWorkflow(w, ErrAlreadyProcessing)
		return
	}

	if _, err := tx.Exec("DELETE FROM purchase_request_items WHERE pr_id=?", id); err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	for i, it := range body.Items {
		unit := it.Unit
		if unit == "" {
			unit = "pc"
		}
		_, err = tx.Exec(`INSERT INTO purchase_request_items (pr_id, seq, description, unit, qty, unit_cost, estimated_cost)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			id, i+1, it.Description, unit, it.Qty, it.UnitCost, it.Qty*it.UnitCost)
		if err != nil {
			response.Err(w, err.Error(), 500)
			return
		}
	}

	if err := tx.Commit(); err != nil {
		response.Err(w, err.Error(), 500)
		return
	}

	h.LogAudit(r, audit.ActionUpdate, "purchase_requests", id, "Updated PR "+id, body, false)
	pr, _ := h.loadPR(id)
	response.JSON(w, pr)
}

// transitionEvents maps PR states entered via simple transitions to the
// notification they emit.
var transitionEvents = map[string]string{
	PRPending:     notify.EventPRPending,
	PRApproved:    notify.EventPRApproved,
	PRDisapproved: notify.EventPRDisapproved,
	PRCancelled:   notify.EventPRCancelled,
}

// transitionPR applies a simple status-only command to a PR: look up the
// transition table, then write the new status and ledger entry guarded
// by the status the decision was made against.
func (h *Handler) transitionPR(w http.ResponseWriter, r *http.Request, id string, cmd Command) {
	var status, ledgerRaw string
	err := h.DB.QueryRow("SELECT status, status_timestamps FROM purchase_requests WHERE id=?", id).Scan(&status, &ledgerRaw)
	if err != nil {
		response.Err(w, "not found", 404)
		return
	}

	next, ok := NextState(status, cmd)
	if !ok {
		msg := fmt.Sprintf("cannot %s a purchase request in %s status", cmd, status)
		h.LogAudit(r, string(cmd), "purchase_requests", id, msg, nil, true)
		response.Err(w, msg, 409)
		return
	}

	now := database.Now()
	ledger := ParseLedger(ledgerRaw).Record(next+"_at", now)
	res, err := h.DB.Exec(`UPDATE purchase_requests SET status=?, status_timestamps=?, updated_at=? WHERE id=? AND status=?`,
		next, ledger.String(), now, id, status)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// Lost the race against a concurrent command.
		response.Err(w, ErrInvalidTransition.Error(), 409)
		return
	}

	summary := fmt.Sprintf("PR %s: %s -> %s", id, status, next)
	h.LogAudit(r, string(cmd), "purchase_requests", id, summary, nil, false)
	if evt, ok := transitionEvents[next]; ok {
		h.notify(evt, "purchase_requests", id, "Purchase Request "+id, summary)
	}

	pr, _ := h.loadPR(id)
	response.JSON(w, map[string]interface{}{"message": summary, "purchase_request": pr})
}

// SubmitPR submits a draft or disapproved PR for approval.
func (h *Handler) SubmitPR(w http.ResponseWriter, r *http.Request, id string) {
	h.transitionPR(w, r, id, CmdSubmit)
}

// ApproveCashPR certifies cash availability for a pending PR.
func (h *Handler) ApproveCashPR(w http.ResponseWriter, r *http.Request, id string) {
	h.transitionPR(w, r, id, CmdApproveCash)
}

// ApprovePR approves a PR whose cash availability is certified.
func (h *Handler) ApprovePR(w http.ResponseWriter, r *http.Request, id string) {
	h.transitionPR(w, r, id, CmdApprove)
}

// DisapprovePR rejects a PR; it can be edited back to draft and resubmitted.
func (h *Handler) DisapprovePR(w http.ResponseWriter, r *http.Request, id string) {
	h.transitionPR(w, r, id, CmdDisapprove)
}

// CancelPR permanently cancels a PR from any non-terminal state.
func (h *Handler) CancelPR(w http.ResponseWriter, r *http.Request, id string) {
	h.transitionPR(w, r, id, CmdCancel)
}
