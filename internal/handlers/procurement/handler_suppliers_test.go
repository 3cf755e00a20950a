package procurement_test

import (
	"net/http/httptest"
	"strings"
	"testing"
)

func TestCreateSupplier(t *testing.T) {
	testDB := setupTestDB(t)
	defer testDB.Close()
	h := newTestHandler(testDB)

	body := `{"name":"Acme Trading","address":"123 Rizal Ave","contact_person":"J. Cruz","tin":"123-456-789"}`
	req := httptest.NewRequest("POST", "/api/v1/suppliers", strings.NewReader(body))
	w := httptest.NewRecorder()
	h.CreateSupplier(w, req)
	if w.Code != 201 {
		t.Fatalf("Expected 201, got %d: %s", w.Code, w.Body.String())
	}

	var status string
	testDB.QueryRow("SELECT status FROM suppliers WHERE name='Acme Trading'").Scan(&status)
	if status != "active" {
		t.Errorf("Expected default status active, got %s", status)
	}

	// Duplicate names are rejected case-insensitively.
	req = httptest.NewRequest("POST", "/api/v1/suppliers", strings.NewReader(`{"name":"ACME TRADING"}`))
	w = httptest.NewRecorder()
	h.CreateSupplier(w, req)
	if w.Code != 409 {
		t.Errorf("Expected 409 for duplicate name, got %d", w.Code)
	}
}

func TestCreateSupplier_Validation(t *testing.T) {
	testDB := setupTestDB(t)
	defer testDB.Close()
	h := newTestHandler(testDB)

	cases := []string{
		`{"name":""}`,
		`{"name":"Acme","status":"bogus"}`,
	}
	for _, body := range cases {
		req := httptest.NewRequest("POST", "/api/v1/suppliers", strings.NewReader(body))
		w := httptest.NewRecorder()
		h.CreateSupplier(w, req)
		if w.Code != 400 {
			t.Errorf("%s: expected 400, got %d", body, w.Code)
		}
	}
}

func TestListSuppliers_Filters(t *testing.T) {
	testDB := setupTestDB(t)
	defer testDB.Close()
	h := newTestHandler(testDB)

	insertTestSupplier(t, testDB, "SUP-2026-0001", "Acme Trading")
	insertTestSupplier(t, testDB, "SUP-2026-0002", "Beta Supplies")
	testDB.Exec("UPDATE suppliers SET status='blacklisted' WHERE id='SUP-2026-0002'")

	req := httptest.NewRequest("GET", "/api/v1/suppliers?status=active", nil)
	w := httptest.NewRecorder()
	h.ListSuppliers(w, req)
	list := decodeData(t, w).([]interface{})
	if len(list) != 1 {
		t.Errorf("Expected 1 active supplier, got %d", len(list))
	}

	req = httptest.NewRequest("GET", "/api/v1/suppliers?search=beta", nil)
	w = httptest.NewRecorder()
	h.ListSuppliers(w, req)
	list = decodeData(t, w).([]interface{})
	if len(list) != 1 {
		t.Errorf("Expected 1 supplier matching search, got %d", len(list))
	}
}

func TestUpdateSupplier(t *testing.T) {
	testDB := setupTestDB(t)
	defer testDB.Close()
	h := newTestHandler(testDB)

	insertTestSupplier(t, testDB, "SUP-2026-0001", "Acme Trading")

	body := `{"name":"Acme Trading Corp","status":"inactive"}`
	req := httptest.NewRequest("PUT", "/api/v1/suppliers/SUP-2026-0001", strings.NewReader(body))
	w := httptest.NewRecorder()
	h.UpdateSupplier(w, req, "SUP-2026-0001")
	if w.Code != 200 {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var name, status string
	testDB.QueryRow("SELECT name, status FROM suppliers WHERE id='SUP-2026-0001'").Scan(&name, &status)
	if name != "Acme Trading Corp" || status != "inactive" {
		t.Errorf("Expected updated name and status, got %s / %s", name, status)
	}

	w = httptest.NewRecorder()
	h.UpdateSupplier(w, httptest.NewRequest("PUT", "/api/v1/suppliers/SUP-2026-9999", strings.NewReader(body)), "SUP-2026-9999")
	if w.Code != 404 {
		t.Errorf("Expected 404, got %d", w.Code)
	}
}
