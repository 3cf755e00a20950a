package notify

import (
	"database/sql"
	"log"

	"procuro/internal/models"
	"procuro/internal/websocket"
)

// Event types emitted after successful workflow transitions.
const (
	EventPRPending          = "pr_pending"
	EventPRApproved         = "pr_approved"
	EventPRDisapproved      = "pr_disapproved"
	EventPRCancelled        = "pr_cancelled"
	EventPRForAbstract      = "pr_for_abstract"
	EventPRPartiallyAwarded = "pr_partially_awarded"
	EventPRAwarded          = "pr_awarded"
	EventPRCompleted        = "pr_completed"
)

// Notifier stores notifications and pushes them to connected clients.
// Delivery is fire-and-forget: a notify failure never fails the workflow
// transition that triggered it.
type Notifier struct {
	DB  *sql.DB
	Hub *websocket.Hub
}

// New creates a Notifier.
func New(db *sql.DB, hub *websocket.Hub) *Notifier {
	return &Notifier{DB: db, Hub: hub}
}

// Notify records an event and broadcasts it. Errors are logged, never
// returned.
func (n *Notifier) Notify(eventType, module, recordID, title, message string) {
	if n == nil || n.DB == nil {
		return
	}
	_, err := n.DB.Exec(`INSERT INTO notifications (type, title, message, record_id, module) VALUES (?, ?, ?, ?, ?)`,
		eventType, title, message, recordID, module)
	if err != nil {
		log.Printf("notify: store error: %v", err)
	}
	if n.Hub != nil {
		n.Hub.Broadcast(websocket.Event{
			Type:     eventType,
			RecordID: recordID,
			Module:   module,
			Message:  message,
		})
	}
}

// List returns notifications, newest first.
func (n *Notifier) List(limit int) ([]models.Notification, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := n.DB.Query(`SELECT id, type, title, COALESCE(message,''), COALESCE(record_id,''), COALESCE(module,''), read_at, created_at
		FROM notifications ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []models.Notification{}
	for rows.Next() {
		var m models.Notification
		var readAt sql.NullString
		rows.Scan(&m.ID, &m.Type, &m.Title, &m.Message, &m.RecordID, &m.Module, &readAt, &m.CreatedAt)
		if readAt.Valid {
			s := readAt.String
			m.ReadAt = &s
		}
		items = append(items, m)
	}
	return items, nil
}

// MarkRead marks one notification as read.
func (n *Notifier) MarkRead(id int) error {
	_, err := n.DB.Exec("UPDATE notifications SET read_at = CURRENT_TIMESTAMP WHERE id = ? AND read_at IS NULL", id)
	return err
}
