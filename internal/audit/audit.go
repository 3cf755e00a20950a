package audit

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"procuro/internal/models"
	"procuro/internal/websocket"
)

// Action constants. Workflow transitions log their command string
// directly, so only actions logged outside a transition are named here.
const (
	ActionCreate     = "create"
	ActionUpdate     = "update"
	ActionApprove    = "approve"
	ActionDisapprove = "disapprove"
	ActionCancel     = "cancel"
	ActionIssue      = "issue"
	ActionComplete   = "complete"
	ActionAward      = "award"
	ActionExport     = "export"
	ActionLogin      = "login"
	ActionLogout     = "logout"
)

// Entry is one record written to the audit trail. Payload, when set, is
// stored as a JSON snapshot of the document after the operation.
type Entry struct {
	UserID   int
	Username string
	Action   string
	Module   string
	RecordID string
	Summary  string
	Payload  interface{}
}

// Record writes an audit row on a success or failure path and broadcasts
// the event to connected clients. It never fails the calling operation.
func Record(db *sql.DB, hub *websocket.Hub, e Entry, isError bool) {
	var payload []byte
	if e.Payload != nil {
		payload, _ = json.Marshal(e.Payload)
	}
	if payload == nil {
		payload = []byte("{}")
	}
	if e.Username == "" {
		e.Username = "system"
	}

	errFlag := 0
	if isError {
		errFlag = 1
	}
	_, err := db.Exec(`INSERT INTO audit_log (user_id, username, action, module, record_id, summary, payload, is_error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.UserID, e.Username, e.Action, e.Module, e.RecordID, e.Summary, string(payload), errFlag)
	if err != nil {
		fmt.Printf("audit log error: %v\n", err)
	}

	if hub != nil && !isError {
		hub.Broadcast(websocket.Event{
			Type:     e.Module + "_" + e.Action,
			RecordID: e.RecordID,
			Module:   e.Module,
			Message:  e.Summary,
		})
	}
}

// GetUsername extracts the username from a session cookie.
func GetUsername(db *sql.DB, r *http.Request) string {
	cookie, err := r.Cookie("procuro_session")
	if err != nil {
		return "system"
	}
	var username string
	err = db.QueryRow("SELECT u.username FROM users u JOIN sessions s ON u.id = s.user_id WHERE s.token = ?", cookie.Value).Scan(&username)
	if err != nil {
		return "system"
	}
	return username
}

// GetUserContext extracts user id and username from the request session.
func GetUserContext(r *http.Request, db *sql.DB) (userID int, username string) {
	cookie, err := r.Cookie("procuro_session")
	if err != nil {
		return 0, "system"
	}
	err = db.QueryRow("SELECT u.id, u.username FROM users u JOIN sessions s ON u.id = s.user_id WHERE s.token = ?", cookie.Value).
		Scan(&userID, &username)
	if err != nil {
		return 0, "system"
	}
	return userID, username
}

// GetClientIP extracts the real client IP from the request (handles proxies).
func GetClientIP(r *http.Request) string {
	xff := r.Header.Get("X-Forwarded-For")
	if xff != "" {
		ips := strings.Split(xff, ",")
		return strings.TrimSpace(ips[0])
	}
	xri := r.Header.Get("X-Real-IP")
	if xri != "" {
		return strings.TrimSpace(xri)
	}
	ip := r.RemoteAddr
	if idx := strings.LastIndex(ip, ":"); idx != -1 {
		ip = ip[:idx]
	}
	return ip
}

// List returns the most recent audit entries, newest first.
func List(db *sql.DB, limit int) ([]models.AuditEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.Query(`SELECT id, COALESCE(user_id,0), username, action, module, record_id, COALESCE(summary,''), COALESCE(payload,'{}'), is_error, created_at
		FROM audit_log ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []models.AuditEntry{}
	for rows.Next() {
		var e models.AuditEntry
		var isErr int
		rows.Scan(&e.ID, &e.UserID, &e.Username, &e.Action, &e.Module, &e.RecordID, &e.Summary, &e.Payload, &isErr, &e.CreatedAt)
		e.IsError = isErr == 1
		entries = append(entries, e)
	}
	return entries, nil
}
