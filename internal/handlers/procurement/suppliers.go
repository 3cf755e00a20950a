package procurement

import (
	"net/http"
	"strings"

	"procuro/internal/audit"
	"procuro/internal/database"
	"procuro/internal/models"
	"procuro/internal/response"
	"procuro/internal/validation"
)

// ListSuppliers returns suppliers, optionally filtered by status or a
// name search.
func (h *Handler) ListSuppliers(w http.ResponseWriter, r *http.Request) {
	query := "SELECT id, name, address, contact_person, contact_number, tin, status, created_at FROM suppliers WHERE 1=1"
	var args []interface{}
	if status := r.URL.Query().Get("status"); status != "" {
		query += " AND status=?"
		args = append(args, status)
	}
	if search := r.URL.Query().Get("search"); search != "" {
		query += " AND name LIKE ?"
		args = append(args, "%"+search+"%")
	}
	query += " ORDER BY name"

	rows, err := h.DB.Query(query, args...)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	defer rows.Close()

	items := []models.Supplier{}
	for rows.Next() {
		var s models.Supplier
		rows.Scan(&s.ID, &s.Name, &s.Address, &s.ContactPerson, &s.ContactNumber, &s.TIN, &s.Status, &s.CreatedAt)
		items = append(items, s)
	}
	response.JSON(w, items)
}

// GetSupplier returns one supplier.
func (h *Handler) GetSupplier(w http.ResponseWriter, r *http.Request, id string) {
	var s models.Supplier
	err := h.DB.QueryRow("SELECT id, name, address, contact_person, contact_number, tin, status, created_at FROM suppliers WHERE id=?", id).
		Scan(&s.ID, &s.Name, &s.Address, &s.ContactPerson, &s.ContactNumber, &s.TIN, &s.Status, &s.CreatedAt)
	if err != nil {
		response.Err(w, "not found", 404)
		return
	}
	response.JSON(w, s)
}

type supplierPayload struct {
	Name          string `json:"name"`
	Address       string `json:"address"`
	ContactPerson string `json:"contact_person"`
	ContactNumber string `json:"contact_number"`
	TIN           string `json:"tin"`
	Status        string `json:"status"`
}

// CreateSupplier registers a supplier for canvassing.
func (h *Handler) CreateSupplier(w http.ResponseWriter, r *http.Request) {
	var body supplierPayload
	if err := response.DecodeBody(r, &body); err != nil {
		response.Err(w, "invalid body", 400)
		return
	}
	if body.Status == "" {
		body.Status = "active"
	}

	ve := &validation.ValidationErrors{}
	validation.RequireField(ve, "name", body.Name)
	validation.ValidateEnum(ve, "status", body.Status, validation.ValidSupplierStatuses)
	if ve.HasErrors() {
		response.Err(w, ve.Error(), 400)
		return
	}

	var dup int
	h.DB.QueryRow("SELECT COUNT(*) FROM suppliers WHERE LOWER(name)=?", strings.ToLower(body.Name)).Scan(&dup)
	if dup > 0 {
		response.Err(w, "a supplier with this name already exists", 409)
		return
	}

	id := h.NextIDFunc(h.DB, "SUP", "suppliers", 4)
	_, err := h.DB.Exec(`INSERT INTO suppliers (id, name, address, contact_person, contact_number, tin, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, body.Name, body.Address, body.ContactPerson, body.ContactNumber, body.TIN, body.Status, database.Now())
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}

	h.LogAudit(r, audit.ActionCreate, "suppliers", id, "Created supplier "+body.Name, body, false)
	w.WriteHeader(201)
	response.JSON(w, map[string]string{"id": id})
}

// UpdateSupplier edits a supplier's contact details or status. Moving a
// supplier to inactive or blacklisted does not touch documents already
// issued to it.
func (h *Handler) UpdateSupplier(w http.ResponseWriter, r *http.Request, id string) {
	var exists int
	h.DB.QueryRow("SELECT COUNT(*) FROM suppliers WHERE id=?", id).Scan(&exists)
	if exists == 0 {
		response.Err(w, "not found", 404)
		return
	}

	var body supplierPayload
	if err := response.DecodeBody(r, &body); err != nil {
		response.Err(w, "invalid body", 400)
		return
	}
	if body.Status == "" {
		body.Status = "active"
	}

	ve := &validation.ValidationErrors{}
	validation.RequireField(ve, "name", body.Name)
	validation.ValidateEnum(ve, "status", body.Status, validation.ValidSupplierStatuses)
	if ve.HasErrors() {
		response.Err(w, ve.Error(), 400)
		return
	}

	_, err := h.DB.Exec(`UPDATE suppliers SET name=?, address=?, contact_person=?, contact_number=?, tin=?, status=? WHERE id=?`,
		body.Name, body.Address, body.ContactPerson, body.ContactNumber, body.TIN, body.Status, id)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}

	h.LogAudit(r, audit.ActionUpdate, "suppliers", id, "Updated supplier "+body.Name, body, false)
	response.JSON(w, map[string]string{"id": id})
}
