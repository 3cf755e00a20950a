package procurement_test

import (
	"net/http/httptest"
	"strings"
	"testing"
)

func TestCreateRFQ_DefaultsToAllItems(t *testing.T) {
	testDB := setupTestDB(t)
	defer testDB.Close()
	h := newTestHandler(testDB)

	insertTestSupplier(t, testDB, "SUP-2026-0001", "Acme Trading")
	insertTestPR(t, testDB, "PR-2026-0001", "for_canvassing", 1)
	insertTestPRItem(t, testDB, "PR-2026-0001", 1, "Bond paper", 10, 250)
	insertTestPRItem(t, testDB, "PR-2026-0001", 2, "Stapler", 2, 150)

	body := `{"pr_id":"PR-2026-0001","supplier_id":"SUP-2026-0001","canvassers":["Cruz","Reyes"]}`
	req := httptest.NewRequest("POST", "/api/v1/rfqs", strings.NewReader(body))
	w := httptest.NewRecorder()
	h.CreateRFQ(w, req)
	if w.Code != 201 {
		t.Fatalf("Expected 201, got %d: %s", w.Code, w.Body.String())
	}

	data := decodeData(t, w).(map[string]interface{})
	if data["status"] != "draft" {
		t.Errorf("Expected status draft, got %v", data["status"])
	}
	if data["batch"].(float64) != 1 {
		t.Errorf("Expected batch 1, got %v", data["batch"])
	}
	items := data["items"].([]interface{})
	if len(items) != 2 {
		t.Errorf("Expected all 2 PR items offered, got %d", len(items))
	}
	canvassers := data["canvassers"].([]interface{})
	if len(canvassers) != 2 {
		t.Errorf("Expected 2 canvassers, got %d", len(canvassers))
	}
}

func TestCreateRFQ_DuplicateSupplierInBatch(t *testing.T) {
	testDB := setupTestDB(t)
	defer testDB.Close()
	h := newTestHandler(testDB)

	insertTestSupplier(t, testDB, "SUP-2026-0001", "Acme Trading")
	insertTestPR(t, testDB, "PR-2026-0001", "for_canvassing", 1)
	insertTestPRItem(t, testDB, "PR-2026-0001", 1, "Bond paper", 10, 250)
	insertTestRFQ(t, testDB, "RFQ-2026-0001", "PR-2026-0001", 1, "SUP-2026-0001", "canvassing")

	body := `{"pr_id":"PR-2026-0001","supplier_id":"SUP-2026-0001"}`
	req := httptest.NewRequest("POST", "/api/v1/rfqs", strings.NewReader(body))
	w := httptest.NewRecorder()
	h.CreateRFQ(w, req)
	if w.Code != 409 {
		t.Fatalf("Expected 409, got %d: %s", w.Code, w.Body.String())
	}

	var count int
	testDB.QueryRow("SELECT COUNT(*) FROM request_quotations WHERE pr_id='PR-2026-0001'").Scan(&count)
	if count != 1 {
		t.Errorf("Expected the duplicate to not be persisted, got %d RFQs", count)
	}
}

func TestCreateRFQ_CancelledSlotIsFree(t *testing.T) {
	testDB := setupTestDB(t)
	defer testDB.Close()
	h := newTestHandler(testDB)

	insertTestSupplier(t, testDB, "SUP-2026-0001", "Acme Trading")
	insertTestPR(t, testDB, "PR-2026-0001", "for_canvassing", 1)
	insertTestPRItem(t, testDB, "PR-2026-0001", 1, "Bond paper", 10, 250)
	insertTestRFQ(t, testDB, "RFQ-2026-0001", "PR-2026-0001", 1, "SUP-2026-0001", "cancelled")

	body := `{"pr_id":"PR-2026-0001","supplier_id":"SUP-2026-0001"}`
	req := httptest.NewRequest("POST", "/api/v1/rfqs", strings.NewReader(body))
	w := httptest.NewRecorder()
	h.CreateRFQ(w, req)
	if w.Code != 201 {
		t.Errorf("Expected 201 after cancellation freed the slot, got %d: %s", w.Code, w.Body.String())
	}
}

func TestCreateRFQ_SameSupplierNextBatch(t *testing.T) {
	testDB := setupTestDB(t)
	defer testDB.Close()
	h := newTestHandler(testDB)

	insertTestSupplier(t, testDB, "SUP-2026-0001", "Acme Trading")
	insertTestPR(t, testDB, "PR-2026-0001", "for_recanvassing", 2)
	insertTestPRItem(t, testDB, "PR-2026-0001", 1, "Bond paper", 10, 250)
	insertTestRFQ(t, testDB, "RFQ-2026-0001", "PR-2026-0001", 1, "SUP-2026-0001", "completed")

	body := `{"pr_id":"PR-2026-0001","supplier_id":"SUP-2026-0001"}`
	req := httptest.NewRequest("POST", "/api/v1/rfqs", strings.NewReader(body))
	w := httptest.NewRecorder()
	h.CreateRFQ(w, req)
	if w.Code != 201 {
		t.Fatalf("Expected 201 in a new batch, got %d: %s", w.Code, w.Body.String())
	}
	data := decodeData(t, w).(map[string]interface{})
	if data["batch"].(float64) != 2 {
		t.Errorf("Expected batch 2, got %v", data["batch"])
	}
}

func TestCreateRFQ_PRNotOpenForCanvassing(t *testing.T) {
	testDB := setupTestDB(t)
	defer testDB.Close()
	h := newTestHandler(testDB)

	insertTestPR(t, testDB, "PR-2026-0001", "pending", 1)
	insertTestPRItem(t, testDB, "PR-2026-0001", 1, "Bond paper", 10, 250)

	body := `{"pr_id":"PR-2026-0001"}`
	req := httptest.NewRequest("POST", "/api/v1/rfqs", strings.NewReader(body))
	w := httptest.NewRecorder()
	h.CreateRFQ(w, req)
	if w.Code != 409 {
		t.Errorf("Expected 409, got %d", w.Code)
	}
}

func TestIssueAllDraft_MovesDraftsAndPR(t *testing.T) {
	testDB := setupTestDB(t)
	defer testDB.Close()
	h := newTestHandler(testDB)

	insertTestSupplier(t, testDB, "SUP-2026-0001", "Acme Trading")
	insertTestSupplier(t, testDB, "SUP-2026-0002", "Beta Supplies")
	insertTestPR(t, testDB, "PR-2026-0001", "approved", 1)
	insertTestPRItem(t, testDB, "PR-2026-0001", 1, "Bond paper", 10, 250)
	insertTestRFQ(t, testDB, "RFQ-2026-0001", "PR-2026-0001", 1, "SUP-2026-0001", "draft")
	insertTestRFQ(t, testDB, "RFQ-2026-0002", "PR-2026-0001", 1, "SUP-2026-0002", "draft")

	w := httptest.NewRecorder()
	h.IssueAllDraft(w, httptest.NewRequest("POST", "/api/v1/requests/PR-2026-0001/issue", nil), "PR-2026-0001")
	if w.Code != 200 {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var canvassing int
	testDB.QueryRow("SELECT COUNT(*) FROM request_quotations WHERE pr_id='PR-2026-0001' AND status='canvassing'").Scan(&canvassing)
	if canvassing != 2 {
		t.Errorf("Expected 2 canvassing RFQs, got %d", canvassing)
	}
	if got := prStatus(t, testDB, "PR-2026-0001"); got != "for_canvassing" {
		t.Errorf("Expected PR for_canvassing, got %s", got)
	}
}

func TestIssueAllDraft_NothingToIssue(t *testing.T) {
	testDB := setupTestDB(t)
	defer testDB.Close()
	h := newTestHandler(testDB)

	insertTestSupplier(t, testDB, "SUP-2026-0001", "Acme Trading")
	insertTestPR(t, testDB, "PR-2026-0001", "approved", 1)
	insertTestRFQ(t, testDB, "RFQ-2026-0001", "PR-2026-0001", 1, "SUP-2026-0001", "draft")

	w := httptest.NewRecorder()
	h.IssueAllDraft(w, httptest.NewRequest("POST", "/api/v1/requests/PR-2026-0001/issue", nil), "PR-2026-0001")
	if w.Code != 200 {
		t.Fatalf("Expected 200 on first issue, got %d", w.Code)
	}

	// Issuing again with no drafts left must fail, not silently
	// re-enter the canvass state.
	w = httptest.NewRecorder()
	h.IssueAllDraft(w, httptest.NewRequest("POST", "/api/v1/requests/PR-2026-0001/issue", nil), "PR-2026-0001")
	if w.Code != 409 {
		t.Errorf("Expected 409 on second issue, got %d: %s", w.Code, w.Body.String())
	}
	if got := prStatus(t, testDB, "PR-2026-0001"); got != "for_canvassing" {
		t.Errorf("Expected PR still for_canvassing, got %s", got)
	}
}

func TestCompleteRFQ_ComputesTotals(t *testing.T) {
	testDB := setupTestDB(t)
	defer testDB.Close()
	h := newTestHandler(testDB)

	insertTestSupplier(t, testDB, "SUP-2026-0001", "Acme Trading")
	insertTestPR(t, testDB, "PR-2026-0001", "for_canvassing", 1)
	itemID := insertTestPRItem(t, testDB, "PR-2026-0001", 1, "Bond paper", 10, 250)
	insertTestRFQ(t, testDB, "RFQ-2026-0001", "PR-2026-0001", 1, "SUP-2026-0001", "canvassing")
	rfqItemID := insertTestRFQItem(t, testDB, "RFQ-2026-0001", itemID, 1, 0, 0)

	body := `{"items":[{"id":` + itoa(rfqItemID) + `,"unit_cost":240,"brand_model":"PaperOne A4"}]}`
	req := httptest.NewRequest("POST", "/api/v1/rfqs/RFQ-2026-0001/complete", strings.NewReader(body))
	w := httptest.NewRecorder()
	h.CompleteRFQ(w, req, "RFQ-2026-0001")
	if w.Code != 200 {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var status string
	var totalCost float64
	testDB.QueryRow("SELECT status FROM request_quotations WHERE id='RFQ-2026-0001'").Scan(&status)
	testDB.QueryRow("SELECT total_cost FROM request_quotation_items WHERE id=?", rfqItemID).Scan(&totalCost)
	if status != "completed" {
		t.Errorf("Expected completed, got %s", status)
	}
	if totalCost != 2400 {
		t.Errorf("Expected total_cost 2400 (10 x 240), got %v", totalCost)
	}
}

func TestCompleteRFQ_SupplierRequired(t *testing.T) {
	testDB := setupTestDB(t)
	defer testDB.Close()
	h := newTestHandler(testDB)

	insertTestPR(t, testDB, "PR-2026-0001", "for_canvassing", 1)
	itemID := insertTestPRItem(t, testDB, "PR-2026-0001", 1, "Bond paper", 10, 250)
	insertTestRFQ(t, testDB, "RFQ-2026-0001", "PR-2026-0001", 1, "", "canvassing")
	insertTestRFQItem(t, testDB, "RFQ-2026-0001", itemID, 1, 0, 0)

	req := httptest.NewRequest("POST", "/api/v1/rfqs/RFQ-2026-0001/complete", strings.NewReader(`{"items":[]}`))
	w := httptest.NewRecorder()
	h.CompleteRFQ(w, req, "RFQ-2026-0001")
	if w.Code != 409 {
		t.Errorf("Expected 409 without supplier, got %d", w.Code)
	}

	var status string
	testDB.QueryRow("SELECT status FROM request_quotations WHERE id='RFQ-2026-0001'").Scan(&status)
	if status != "canvassing" {
		t.Errorf("Expected status unchanged, got %s", status)
	}
}

func TestCompleteRFQ_OnlyFromCanvassing(t *testing.T) {
	testDB := setupTestDB(t)
	defer testDB.Close()
	h := newTestHandler(testDB)

	insertTestSupplier(t, testDB, "SUP-2026-0001", "Acme Trading")
	insertTestPR(t, testDB, "PR-2026-0001", "for_canvassing", 1)
	insertTestRFQ(t, testDB, "RFQ-2026-0001", "PR-2026-0001", 1, "SUP-2026-0001", "draft")

	req := httptest.NewRequest("POST", "/api/v1/rfqs/RFQ-2026-0001/complete", strings.NewReader(`{"items":[]}`))
	w := httptest.NewRecorder()
	h.CompleteRFQ(w, req, "RFQ-2026-0001")
	if w.Code != 409 {
		t.Errorf("Expected 409 for draft RFQ, got %d", w.Code)
	}
}

func TestCancelRFQ_TerminalStatesRejected(t *testing.T) {
	testDB := setupTestDB(t)
	defer testDB.Close()
	h := newTestHandler(testDB)

	insertTestSupplier(t, testDB, "SUP-2026-0001", "Acme Trading")
	insertTestSupplier(t, testDB, "SUP-2026-0002", "Beta Supplies")
	insertTestPR(t, testDB, "PR-2026-0001", "for_canvassing", 1)
	insertTestRFQ(t, testDB, "RFQ-2026-0001", "PR-2026-0001", 1, "SUP-2026-0001", "canvassing")
	insertTestRFQ(t, testDB, "RFQ-2026-0002", "PR-2026-0001", 1, "SUP-2026-0002", "completed")

	w := httptest.NewRecorder()
	h.CancelRFQ(w, httptest.NewRequest("POST", "/api/v1/rfqs/RFQ-2026-0001/cancel", nil), "RFQ-2026-0001")
	if w.Code != 200 {
		t.Errorf("Expected 200 cancelling a canvassing RFQ, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	h.CancelRFQ(w, httptest.NewRequest("POST", "/api/v1/rfqs/RFQ-2026-0002/cancel", nil), "RFQ-2026-0002")
	if w.Code != 409 {
		t.Errorf("Expected 409 cancelling a completed RFQ, got %d", w.Code)
	}
}

func TestCompleteRFQ_DuplicateSupplierRejected(t *testing.T) {
	testDB := setupTestDB(t)
	defer testDB.Close()
	h := newTestHandler(testDB)

	insertTestSupplier(t, testDB, "SUP-2026-0001", "Acme Trading")
	insertTestPR(t, testDB, "PR-2026-0001", "for_canvassing", 1)
	itemID := insertTestPRItem(t, testDB, "PR-2026-0001", 1, "Bond paper", 10, 250)
	insertTestRFQ(t, testDB, "RFQ-2026-0001", "PR-2026-0001", 1, "SUP-2026-0001", "canvassing")
	insertTestRFQItem(t, testDB, "RFQ-2026-0001", itemID, 1, 0, 0)
	insertTestRFQ(t, testDB, "RFQ-2026-0002", "PR-2026-0001", 1, "", "canvassing")
	rfqItemID := insertTestRFQItem(t, testDB, "RFQ-2026-0002", itemID, 1, 0, 0)

	// Completing the second RFQ with the first one's supplier would put
	// two active quotations for the same supplier in the batch.
	body := `{"supplier_id":"SUP-2026-0001","items":[{"id":` + itoa(rfqItemID) + `,"unit_cost":240}]}`
	req := httptest.NewRequest("POST", "/api/v1/rfqs/RFQ-2026-0002/complete", strings.NewReader(body))
	w := httptest.NewRecorder()
	h.CompleteRFQ(w, req, "RFQ-2026-0002")
	if w.Code != 409 {
		t.Fatalf("Expected 409, got %d: %s", w.Code, w.Body.String())
	}

	var status string
	testDB.QueryRow("SELECT status FROM request_quotations WHERE id='RFQ-2026-0002'").Scan(&status)
	if status != "canvassing" {
		t.Errorf("Expected status unchanged, got %s", status)
	}
	var count int
	testDB.QueryRow(`SELECT COUNT(*) FROM request_quotations
		WHERE pr_id='PR-2026-0001' AND batch=1 AND supplier_id='SUP-2026-0001' AND status != 'cancelled'`).Scan(&count)
	if count != 1 {
		t.Errorf("Expected 1 active RFQ for the supplier in batch 1, got %d", count)
	}
}

func TestActiveRFQUniquePerSupplierAndBatch(t *testing.T) {
	testDB := setupTestDB(t)
	defer testDB.Close()

	insertTestSupplier(t, testDB, "SUP-2026-0001", "Acme Trading")
	insertTestPR(t, testDB, "PR-2026-0001", "for_canvassing", 1)
	insertTestRFQ(t, testDB, "RFQ-2026-0001", "PR-2026-0001", 1, "SUP-2026-0001", "draft")

	_, err := testDB.Exec(`INSERT INTO request_quotations (id, pr_id, batch, supplier_id, status)
		VALUES ('RFQ-2026-0002', 'PR-2026-0001', 1, 'SUP-2026-0001', 'draft')`)
	if err == nil {
		t.Fatal("Expected a second active RFQ for the same supplier and batch to be rejected")
	}

	// A cancelled RFQ frees the slot.
	testDB.Exec("UPDATE request_quotations SET status='cancelled' WHERE id='RFQ-2026-0001'")
	_, err = testDB.Exec(`INSERT INTO request_quotations (id, pr_id, batch, supplier_id, status)
		VALUES ('RFQ-2026-0002', 'PR-2026-0001', 1, 'SUP-2026-0001', 'draft')`)
	if err != nil {
		t.Fatalf("Expected insert after cancellation to succeed, got %v", err)
	}
}
