package procurement

import (
	"database/sql"
	"net/http"

	"procuro/internal/audit"
	"procuro/internal/database"
	"procuro/internal/notify"
	"procuro/internal/websocket"
)

// Handler holds dependencies for the procurement workflow handlers.
type Handler struct {
	DB       *sql.DB
	Hub      *websocket.Hub
	Notifier *notify.Notifier

	// OfficeName and OfficeHead appear on exported documents as the
	// requesting office and its signatory.
	OfficeName string
	OfficeHead string

	// NextIDFunc reserves the next document number. It takes a Queryer so
	// numbers issued inside a command transaction see rows written by
	// that same transaction.
	NextIDFunc func(q database.Queryer, prefix, table string, digits int) string
}

// New creates a Handler with the production ID generator.
func New(db *sql.DB, hub *websocket.Hub, notifier *notify.Notifier) *Handler {
	return &Handler{
		DB:         db,
		Hub:        hub,
		Notifier:   notifier,
		NextIDFunc: database.NextID,
	}
}

// GetUsername resolves the requesting user from the session cookie.
func (h *Handler) GetUsername(r *http.Request) string {
	return audit.GetUsername(h.DB, r)
}

// LogAudit writes one audit trail entry for this request.
func (h *Handler) LogAudit(r *http.Request, action, module, recordID, summary string, payload interface{}, isError bool) {
	userID, username := audit.GetUserContext(r, h.DB)
	audit.Record(h.DB, h.Hub, audit.Entry{
		UserID:   userID,
		Username: username,
		Action:   action,
		Module:   module,
		RecordID: recordID,
		Summary:  summary,
		Payload:  payload,
	}, isError)
}

func (h *Handler) notify(eventType, module, recordID, title, message string) {
	if h.Notifier != nil {
		h.Notifier.Notify(eventType, module, recordID, title, message)
	}
}
