package procurement_test

import (
	"database/sql"
	"encoding/json"
	"net/http/httptest"
	"strconv"
	"testing"

	"procuro/internal/database"
	"procuro/internal/handlers/procurement"
	"procuro/internal/models"
	"procuro/internal/notify"
	"procuro/internal/websocket"

	_ "modernc.org/sqlite"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	testDB, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open test DB: %v", err)
	}
	testDB.SetMaxOpenConns(1)

	if _, err := testDB.Exec("PRAGMA foreign_keys = ON"); err != nil {
		t.Fatalf("Failed to enable foreign keys: %v", err)
	}
	if err := database.Migrate(testDB); err != nil {
		t.Fatalf("Failed to migrate test DB: %v", err)
	}
	return testDB
}

func newTestHandler(testDB *sql.DB) *procurement.Handler {
	hub := websocket.NewHub()
	return procurement.New(testDB, hub, notify.New(testDB, hub))
}

func insertTestSupplier(t *testing.T, db *sql.DB, id, name string) {
	t.Helper()
	_, err := db.Exec("INSERT INTO suppliers (id, name) VALUES (?, ?)", id, name)
	if err != nil {
		t.Fatalf("Failed to insert test supplier: %v", err)
	}
}

func insertTestPR(t *testing.T, db *sql.DB, id, status string, batch int) {
	t.Helper()
	_, err := db.Exec(
		"INSERT INTO purchase_requests (id, purpose, status, rfq_batch, created_by) VALUES (?, ?, ?, ?, ?)",
		id, "Test purpose", status, batch, "testuser",
	)
	if err != nil {
		t.Fatalf("Failed to insert test PR: %v", err)
	}
}

func insertTestPRItem(t *testing.T, db *sql.DB, prID string, seq int, description string, qty, unitCost float64) int {
	t.Helper()
	res, err := db.Exec(
		"INSERT INTO purchase_request_items (pr_id, seq, description, qty, unit_cost, estimated_cost) VALUES (?, ?, ?, ?, ?, ?)",
		prID, seq, description, qty, unitCost, qty*unitCost,
	)
	if err != nil {
		t.Fatalf("Failed to insert test PR item: %v", err)
	}
	id, _ := res.LastInsertId()
	return int(id)
}

func insertTestRFQ(t *testing.T, db *sql.DB, id, prID string, batch int, supplierID, status string) {
	t.Helper()
	var supplier interface{}
	if supplierID != "" {
		supplier = supplierID
	}
	_, err := db.Exec(
		"INSERT INTO request_quotations (id, pr_id, batch, supplier_id, status, created_by) VALUES (?, ?, ?, ?, ?, ?)",
		id, prID, batch, supplier, status, "testuser",
	)
	if err != nil {
		t.Fatalf("Failed to insert test RFQ: %v", err)
	}
}

func insertTestRFQItem(t *testing.T, db *sql.DB, rfqID string, prItemID int, included int, unitCost, totalCost float64) int {
	t.Helper()
	res, err := db.Exec(
		"INSERT INTO request_quotation_items (rfq_id, pr_item_id, included, unit_cost, total_cost) VALUES (?, ?, ?, ?, ?)",
		rfqID, prItemID, included, unitCost, totalCost,
	)
	if err != nil {
		t.Fatalf("Failed to insert test RFQ item: %v", err)
	}
	id, _ := res.LastInsertId()
	return int(id)
}

func insertTestAOQ(t *testing.T, db *sql.DB, id, prID string, batch int, status string) {
	t.Helper()
	_, err := db.Exec(
		"INSERT INTO abstract_quotations (id, pr_id, batch, status, created_by) VALUES (?, ?, ?, ?, ?)",
		id, prID, batch, status, "testuser",
	)
	if err != nil {
		t.Fatalf("Failed to insert test AOQ: %v", err)
	}
}

func insertTestAOQItem(t *testing.T, db *sql.DB, aoqID string, prItemID, included int, docType, awardeeID string) int {
	t.Helper()
	var awardee interface{}
	if awardeeID != "" {
		awardee = awardeeID
	}
	res, err := db.Exec(
		"INSERT INTO abstract_quotation_items (aoq_id, pr_item_id, included, document_type, awardee_id) VALUES (?, ?, ?, ?, ?)",
		aoqID, prItemID, included, docType, awardee,
	)
	if err != nil {
		t.Fatalf("Failed to insert test AOQ item: %v", err)
	}
	id, _ := res.LastInsertId()
	return int(id)
}

func insertTestAOQDetail(t *testing.T, db *sql.DB, aoqItemID int, supplierID string, unitCost, totalCost float64) {
	t.Helper()
	_, err := db.Exec(
		"INSERT INTO abstract_quotation_details (aoq_item_id, supplier_id, unit_cost, total_cost) VALUES (?, ?, ?, ?)",
		aoqItemID, supplierID, unitCost, totalCost,
	)
	if err != nil {
		t.Fatalf("Failed to insert test AOQ detail: %v", err)
	}
}

// decodeData decodes the response envelope and returns its data field.
func decodeData(t *testing.T, w *httptest.ResponseRecorder) interface{} {
	t.Helper()
	var resp models.APIResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	return resp.Data
}

func itoa(n int) string {
	return strconv.Itoa(n)
}

func prStatus(t *testing.T, db *sql.DB, id string) string {
	t.Helper()
	var status string
	if err := db.QueryRow("SELECT status FROM purchase_requests WHERE id=?", id).Scan(&status); err != nil {
		t.Fatalf("Failed to read PR status: %v", err)
	}
	return status
}
