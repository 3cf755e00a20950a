package admin

import (
	"database/sql"
	"net/http"
	"strconv"
	"time"

	"procuro/internal/audit"
	"procuro/internal/auth"
	"procuro/internal/models"
	"procuro/internal/notify"
	"procuro/internal/response"
	"procuro/internal/validation"
	"procuro/internal/websocket"
)

// Handler serves authentication, user management, and the audit and
// notification feeds.
type Handler struct {
	DB       *sql.DB
	Hub      *websocket.Hub
	Notifier *notify.Notifier
}

func New(db *sql.DB, hub *websocket.Hub, notifier *notify.Notifier) *Handler {
	return &Handler{DB: db, Hub: hub, Notifier: notifier}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Login authenticates a user and sets the session cookie.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := response.DecodeBody(r, &req); err != nil {
		response.Err(w, "invalid body", 400)
		return
	}

	token, err := auth.Login(h.DB, req.Username, req.Password)
	if err != nil {
		audit.Record(h.DB, h.Hub, audit.Entry{
			Username: req.Username,
			Action:   audit.ActionLogin,
			Module:   "auth",
			RecordID: req.Username,
			Summary:  "Failed login from " + audit.GetClientIP(r),
		}, true)
		response.Err(w, auth.ErrBadCredentials.Error(), 401)
		return
	}

	// Drop expired sessions opportunistically.
	h.DB.Exec("DELETE FROM sessions WHERE expires_at < CURRENT_TIMESTAMP")

	http.SetCookie(w, &http.Cookie{
		Name:     auth.SessionCookie,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Expires:  time.Now().Add(auth.SessionTTL),
	})

	audit.Record(h.DB, h.Hub, audit.Entry{
		Username: req.Username,
		Action:   audit.ActionLogin,
		Module:   "auth",
		RecordID: req.Username,
		Summary:  "Logged in from " + audit.GetClientIP(r),
	}, false)

	user, _ := h.currentUser(r, req.Username)
	response.JSON(w, user)
}

// Logout deletes the session and clears the cookie.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	username := audit.GetUsername(h.DB, r)
	if cookie, err := r.Cookie(auth.SessionCookie); err == nil {
		auth.Logout(h.DB, cookie.Value)
	}
	if username != "" && username != "system" {
		audit.Record(h.DB, h.Hub, audit.Entry{
			Username: username,
			Action:   audit.ActionLogout,
			Module:   "auth",
			RecordID: username,
			Summary:  "Logged out",
		}, false)
	}
	http.SetCookie(w, &http.Cookie{
		Name:   auth.SessionCookie,
		Value:  "",
		Path:   "/",
		MaxAge: -1,
	})
	response.JSON(w, map[string]string{"message": "logged out"})
}

// Me returns the authenticated user.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	username := audit.GetUsername(h.DB, r)
	if username == "" || username == "system" {
		response.Err(w, "not authenticated", 401)
		return
	}
	user, err := h.currentUser(r, username)
	if err != nil {
		response.Err(w, "not authenticated", 401)
		return
	}
	response.JSON(w, user)
}

func (h *Handler) currentUser(r *http.Request, username string) (models.User, error) {
	var u models.User
	var active int
	err := h.DB.QueryRow("SELECT id, username, COALESCE(display_name,''), role, active FROM users WHERE username=?", username).
		Scan(&u.ID, &u.Username, &u.DisplayName, &u.Role, &active)
	u.Active = active != 0
	return u, err
}

// ListUsers returns all accounts.
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	rows, err := h.DB.Query("SELECT id, username, COALESCE(display_name,''), role, active, created_at FROM users ORDER BY username")
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	defer rows.Close()

	users := []models.User{}
	for rows.Next() {
		var u models.User
		var active int
		rows.Scan(&u.ID, &u.Username, &u.DisplayName, &u.Role, &active, &u.CreatedAt)
		u.Active = active != 0
		users = append(users, u)
	}
	response.JSON(w, users)
}

type userPayload struct {
	Username    string `json:"username"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
	Role        string `json:"role"`
	Active      *bool  `json:"active"`
}

var validRoles = []string{"admin", "approver", "user"}

// CreateUser registers an account.
func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var body userPayload
	if err := response.DecodeBody(r, &body); err != nil {
		response.Err(w, "invalid body", 400)
		return
	}
	if body.Role == "" {
		body.Role = "user"
	}

	ve := &validation.ValidationErrors{}
	validation.RequireField(ve, "username", body.Username)
	validation.RequireField(ve, "password", body.Password)
	validation.ValidateEnum(ve, "role", body.Role, validRoles)
	if ve.HasErrors() {
		response.Err(w, ve.Error(), 400)
		return
	}

	hash, err := auth.HashPassword(body.Password)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}

	res, err := h.DB.Exec("INSERT INTO users (username, password_hash, display_name, role) VALUES (?, ?, ?, ?)",
		body.Username, hash, body.DisplayName, body.Role)
	if err != nil {
		response.Err(w, "username already taken", 409)
		return
	}
	id, _ := res.LastInsertId()

	audit.Record(h.DB, h.Hub, audit.Entry{
		Username: audit.GetUsername(h.DB, r),
		Action:   audit.ActionCreate,
		Module:   "users",
		RecordID: body.Username,
		Summary:  "Created user " + body.Username,
	}, false)

	w.WriteHeader(201)
	response.JSON(w, map[string]interface{}{"id": id, "username": body.Username})
}

// UpdateUser edits an account's display name, role, password, or
// active flag.
func (h *Handler) UpdateUser(w http.ResponseWriter, r *http.Request, id string) {
	userID, err := strconv.Atoi(id)
	if err != nil {
		response.Err(w, "invalid user id", 400)
		return
	}

	var body userPayload
	if err := response.DecodeBody(r, &body); err != nil {
		response.Err(w, "invalid body", 400)
		return
	}

	if body.Role != "" {
		ve := &validation.ValidationErrors{}
		validation.ValidateEnum(ve, "role", body.Role, validRoles)
		if ve.HasErrors() {
			response.Err(w, ve.Error(), 400)
			return
		}
		h.DB.Exec("UPDATE users SET role=? WHERE id=?", body.Role, userID)
	}
	if body.DisplayName != "" {
		h.DB.Exec("UPDATE users SET display_name=? WHERE id=?", body.DisplayName, userID)
	}
	if body.Password != "" {
		hash, err := auth.HashPassword(body.Password)
		if err != nil {
			response.Err(w, err.Error(), 500)
			return
		}
		h.DB.Exec("UPDATE users SET password_hash=? WHERE id=?", hash, userID)
	}
	if body.Active != nil {
		active := 0
		if *body.Active {
			active = 1
		}
		h.DB.Exec("UPDATE users SET active=? WHERE id=?", active, userID)
		if active == 0 {
			h.DB.Exec("DELETE FROM sessions WHERE user_id=?", userID)
		}
	}

	audit.Record(h.DB, h.Hub, audit.Entry{
		Username: audit.GetUsername(h.DB, r),
		Action:   audit.ActionUpdate,
		Module:   "users",
		RecordID: id,
		Summary:  "Updated user " + id,
	}, false)
	response.JSON(w, map[string]string{"message": "user updated"})
}

// ListAudit returns the most recent audit trail entries.
func (h *Handler) ListAudit(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 1000 {
			limit = n
		}
	}
	entries, err := audit.List(h.DB, limit)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	var total int
	h.DB.QueryRow("SELECT COUNT(*) FROM audit_log").Scan(&total)
	response.JSONMeta(w, entries, total, 1, limit)
}

// ListNotifications returns the most recent notifications.
func (h *Handler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}
	items, err := h.Notifier.List(limit)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	response.JSON(w, items)
}

// MarkNotificationRead marks one notification as read.
func (h *Handler) MarkNotificationRead(w http.ResponseWriter, r *http.Request, id string) {
	n, err := strconv.Atoi(id)
	if err != nil {
		response.Err(w, "invalid notification id", 400)
		return
	}
	if err := h.Notifier.MarkRead(n); err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	response.JSON(w, map[string]string{"message": "marked read"})
}
