package auth

import (
	"database/sql"
	"sync"
	"time"
)

// Permission modules correspond to the workflow document types.
const (
	ModulePRs       = "purchase_requests"
	ModuleRFQs      = "request_quotations"
	ModuleAOQs      = "abstract_quotations"
	ModulePOs       = "purchase_orders"
	ModuleSuppliers = "suppliers"
	ModuleAdmin     = "admin"
)

// Permission actions.
const (
	PermView    = "view"
	PermCreate  = "create"
	PermEdit    = "edit"
	PermApprove = "approve"
	PermAward   = "award"
)

// AllModules lists every module.
var AllModules = []string{ModulePRs, ModuleRFQs, ModuleAOQs, ModulePOs, ModuleSuppliers, ModuleAdmin}

// AllActions lists every action.
var AllActions = []string{PermView, PermCreate, PermEdit, PermApprove, PermAward}

// PermCache caches role→permissions for fast middleware lookups. The
// capability decision happens here, before a workflow command executes;
// the workflow package never checks permissions itself.
type PermCache struct {
	mu      sync.RWMutex
	data    map[string]map[string]map[string]bool // role → module → action
	updated time.Time
}

// NewPermCache creates an empty permission cache.
func NewPermCache() *PermCache {
	return &PermCache{data: make(map[string]map[string]map[string]bool)}
}

// Load refreshes the cache from the role_permissions table.
func (pc *PermCache) Load(db *sql.DB) error {
	rows, err := db.Query("SELECT role, module, action FROM role_permissions")
	if err != nil {
		return err
	}
	defer rows.Close()

	data := make(map[string]map[string]map[string]bool)
	for rows.Next() {
		var role, module, action string
		if err := rows.Scan(&role, &module, &action); err != nil {
			continue
		}
		if data[role] == nil {
			data[role] = make(map[string]map[string]bool)
		}
		if data[role][module] == nil {
			data[role][module] = make(map[string]bool)
		}
		data[role][module][action] = true
	}

	pc.mu.Lock()
	pc.data = data
	pc.updated = time.Now()
	pc.mu.Unlock()
	return nil
}

// Can reports whether a role may perform an action on a module. The
// admin role can do everything.
func (pc *PermCache) Can(role, module, action string) bool {
	if role == "admin" {
		return true
	}
	pc.mu.RLock()
	defer pc.mu.RUnlock()
	return pc.data[role][module][action]
}

// SeedDefaults installs the default role grants if none exist.
func SeedDefaults(db *sql.DB) error {
	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM role_permissions").Scan(&count); err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	grants := []struct{ role, module, action string }{
		{"user", ModulePRs, PermView}, {"user", ModulePRs, PermCreate}, {"user", ModulePRs, PermEdit},
		{"user", ModuleRFQs, PermView}, {"user", ModuleRFQs, PermCreate}, {"user", ModuleRFQs, PermEdit},
		{"user", ModuleAOQs, PermView},
		{"user", ModulePOs, PermView},
		{"user", ModuleSuppliers, PermView},
		{"approver", ModulePRs, PermView}, {"approver", ModulePRs, PermApprove}, {"approver", ModulePRs, PermAward},
		{"approver", ModuleRFQs, PermView}, {"approver", ModuleRFQs, PermApprove},
		{"approver", ModuleAOQs, PermView}, {"approver", ModuleAOQs, PermEdit}, {"approver", ModuleAOQs, PermApprove},
		{"approver", ModulePOs, PermView}, {"approver", ModulePOs, PermApprove},
		{"approver", ModuleSuppliers, PermView},
	}
	for _, g := range grants {
		if _, err := db.Exec("INSERT OR IGNORE INTO role_permissions (role, module, action) VALUES (?, ?, ?)",
			g.role, g.module, g.action); err != nil {
			return err
		}
	}
	return nil
}
