package procurement_test

import (
	"database/sql"
	"net/http/httptest"
	"testing"
)

func insertTestPO(t *testing.T, db *sql.DB, id, prID, supplierID, docType, status string) {
	t.Helper()
	_, err := db.Exec(
		"INSERT INTO purchase_orders (id, pr_id, supplier_id, document_type, status, created_by) VALUES (?, ?, ?, ?, ?, ?)",
		id, prID, supplierID, docType, status, "testuser",
	)
	if err != nil {
		t.Fatalf("Failed to insert test PO: %v", err)
	}
}

func poStatus(t *testing.T, db *sql.DB, id string) string {
	t.Helper()
	var status string
	if err := db.QueryRow("SELECT status FROM purchase_orders WHERE id=?", id).Scan(&status); err != nil {
		t.Fatalf("Failed to read PO status: %v", err)
	}
	return status
}

func TestPOLifecycle(t *testing.T) {
	testDB := setupTestDB(t)
	defer testDB.Close()
	h := newTestHandler(testDB)

	insertTestSupplier(t, testDB, "SUP-2026-0001", "Acme Trading")
	insertTestPR(t, testDB, "PR-2026-0001", "awarded", 2)
	insertTestPO(t, testDB, "PO-2026-0001", "PR-2026-0001", "SUP-2026-0001", "po", "draft")

	steps := []struct {
		call func(*httptest.ResponseRecorder)
		want string
	}{
		{func(w *httptest.ResponseRecorder) {
			h.SubmitPO(w, httptest.NewRequest("POST", "/api/v1/orders/PO-2026-0001/submit", nil), "PO-2026-0001")
		}, "pending"},
		{func(w *httptest.ResponseRecorder) {
			h.ApprovePO(w, httptest.NewRequest("POST", "/api/v1/orders/PO-2026-0001/approve", nil), "PO-2026-0001")
		}, "approved"},
		{func(w *httptest.ResponseRecorder) {
			h.IssuePO(w, httptest.NewRequest("POST", "/api/v1/orders/PO-2026-0001/issue", nil), "PO-2026-0001")
		}, "issued"},
		{func(w *httptest.ResponseRecorder) {
			h.ForDeliveryPO(w, httptest.NewRequest("POST", "/api/v1/orders/PO-2026-0001/for-delivery", nil), "PO-2026-0001")
		}, "for_delivery"},
		{func(w *httptest.ResponseRecorder) {
			h.DeliverPO(w, httptest.NewRequest("POST", "/api/v1/orders/PO-2026-0001/deliver", nil), "PO-2026-0001")
		}, "delivered"},
	}
	for _, step := range steps {
		w := httptest.NewRecorder()
		step.call(w)
		if w.Code != 200 {
			t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
		}
		if got := poStatus(t, testDB, "PO-2026-0001"); got != step.want {
			t.Fatalf("Expected %s, got %s", step.want, got)
		}
	}
}

func TestPOTransition_Rejected(t *testing.T) {
	testDB := setupTestDB(t)
	defer testDB.Close()
	h := newTestHandler(testDB)

	insertTestSupplier(t, testDB, "SUP-2026-0001", "Acme Trading")
	insertTestPR(t, testDB, "PR-2026-0001", "awarded", 2)
	insertTestPO(t, testDB, "PO-2026-0001", "PR-2026-0001", "SUP-2026-0001", "po", "draft")

	// A draft order cannot be issued directly.
	w := httptest.NewRecorder()
	h.IssuePO(w, httptest.NewRequest("POST", "/api/v1/orders/PO-2026-0001/issue", nil), "PO-2026-0001")
	if w.Code != 409 {
		t.Errorf("Expected 409, got %d", w.Code)
	}
	if got := poStatus(t, testDB, "PO-2026-0001"); got != "draft" {
		t.Errorf("Expected status unchanged, got %s", got)
	}
}

func TestDeliverLastPO_CompletesPR(t *testing.T) {
	testDB := setupTestDB(t)
	defer testDB.Close()
	h := newTestHandler(testDB)

	insertTestSupplier(t, testDB, "SUP-2026-0001", "Acme Trading")
	insertTestSupplier(t, testDB, "SUP-2026-0002", "Beta Supplies")
	insertTestPR(t, testDB, "PR-2026-0001", "awarded", 2)
	insertTestPO(t, testDB, "PO-2026-0001", "PR-2026-0001", "SUP-2026-0001", "po", "for_delivery")
	insertTestPO(t, testDB, "PO-2026-0002", "PR-2026-0001", "SUP-2026-0002", "po", "for_delivery")
	insertTestPO(t, testDB, "PO-2026-0003", "PR-2026-0001", "SUP-2026-0002", "po", "cancelled")

	w := httptest.NewRecorder()
	h.DeliverPO(w, httptest.NewRequest("POST", "/api/v1/orders/PO-2026-0001/deliver", nil), "PO-2026-0001")
	if w.Code != 200 {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	if got := prStatus(t, testDB, "PR-2026-0001"); got != "awarded" {
		t.Errorf("Expected PR still awarded with one order outstanding, got %s", got)
	}

	// Delivering the last live order completes the PR; the cancelled
	// order does not count.
	w = httptest.NewRecorder()
	h.DeliverPO(w, httptest.NewRequest("POST", "/api/v1/orders/PO-2026-0002/deliver", nil), "PO-2026-0002")
	if w.Code != 200 {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	if got := prStatus(t, testDB, "PR-2026-0001"); got != "completed" {
		t.Errorf("Expected PR completed, got %s", got)
	}
}

func TestDeliverPO_PartiallyAwardedPRNotCompleted(t *testing.T) {
	testDB := setupTestDB(t)
	defer testDB.Close()
	h := newTestHandler(testDB)

	insertTestSupplier(t, testDB, "SUP-2026-0001", "Acme Trading")
	insertTestPR(t, testDB, "PR-2026-0001", "partially_awarded", 2)
	insertTestPO(t, testDB, "PO-2026-0001", "PR-2026-0001", "SUP-2026-0001", "po", "for_delivery")

	w := httptest.NewRecorder()
	h.DeliverPO(w, httptest.NewRequest("POST", "/api/v1/orders/PO-2026-0001/deliver", nil), "PO-2026-0001")
	if w.Code != 200 {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	// Items are still open for recanvassing; the PR must not close.
	if got := prStatus(t, testDB, "PR-2026-0001"); got != "partially_awarded" {
		t.Errorf("Expected PR still partially_awarded, got %s", got)
	}
}

func TestListPOs_FilterByPR(t *testing.T) {
	testDB := setupTestDB(t)
	defer testDB.Close()
	h := newTestHandler(testDB)

	insertTestSupplier(t, testDB, "SUP-2026-0001", "Acme Trading")
	insertTestPR(t, testDB, "PR-2026-0001", "awarded", 2)
	insertTestPR(t, testDB, "PR-2026-0002", "awarded", 2)
	insertTestPO(t, testDB, "PO-2026-0001", "PR-2026-0001", "SUP-2026-0001", "po", "draft")
	insertTestPO(t, testDB, "PO-2026-0002", "PR-2026-0002", "SUP-2026-0001", "po", "draft")

	req := httptest.NewRequest("GET", "/api/v1/orders?pr_id=PR-2026-0001", nil)
	w := httptest.NewRecorder()
	h.ListPOs(w, req)
	if w.Code != 200 {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	list := decodeData(t, w).([]interface{})
	if len(list) != 1 {
		t.Errorf("Expected 1 order for PR-2026-0001, got %d", len(list))
	}
}
