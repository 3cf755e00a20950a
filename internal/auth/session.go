package auth

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// SessionCookie is the cookie name carrying the session token.
const SessionCookie = "procuro_session"

// SessionTTL is how long a session stays valid without re-login.
const SessionTTL = 24 * time.Hour

// Login verifies credentials and creates a session, returning the token.
func Login(db *sql.DB, username, password string) (string, error) {
	var userID int
	var hash string
	var active int
	err := db.QueryRow("SELECT id, password_hash, active FROM users WHERE username = ?", username).
		Scan(&userID, &hash, &active)
	if err != nil || active == 0 || !CheckPassword(hash, password) {
		return "", ErrBadCredentials
	}

	token := uuid.NewString()
	expiresAt := time.Now().Add(SessionTTL)
	_, err = db.Exec("INSERT INTO sessions (token, user_id, expires_at) VALUES (?, ?, ?)",
		token, userID, expiresAt.Format("2006-01-02 15:04:05"))
	if err != nil {
		return "", err
	}
	db.Exec("UPDATE users SET last_login = CURRENT_TIMESTAMP WHERE id = ?", userID)
	return token, nil
}

// Logout deletes a session token.
func Logout(db *sql.DB, token string) {
	db.Exec("DELETE FROM sessions WHERE token = ?", token)
}

// ValidSession reports whether a token maps to an unexpired session and
// returns the owning user's role.
func ValidSession(db *sql.DB, token string) (role string, ok bool) {
	err := db.QueryRow(`SELECT u.role FROM users u
		JOIN sessions s ON u.id = s.user_id
		WHERE s.token = ? AND s.expires_at > datetime('now')`, token).Scan(&role)
	if err != nil {
		return "", false
	}
	db.Exec("UPDATE sessions SET last_activity = CURRENT_TIMESTAMP WHERE token = ?", token)
	return role, true
}
