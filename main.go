package main

import (
	"flag"
	"fmt"
	"log"
	"net/http"
	"strings"

	"procuro/internal/auth"
	"procuro/internal/config"
	"procuro/internal/database"
	"procuro/internal/handlers/admin"
	"procuro/internal/handlers/procurement"
	"procuro/internal/notify"
	"procuro/internal/server"
	"procuro/internal/websocket"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML config file")
	port := flag.Int("port", 0, "HTTP port (overrides config)")
	dbPath := flag.String("db", "", "SQLite database path (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal("config load failed: ", err)
	}
	if *port != 0 {
		cfg.Port = *port
	}
	if *dbPath != "" {
		cfg.DBPath = *dbPath
	}

	db, err := database.Open(cfg.DBPath)
	if err != nil {
		log.Fatal("DB init failed: ", err)
	}
	defer db.Close()

	if err := database.SeedAdmin(db); err != nil {
		log.Fatal("seed admin failed: ", err)
	}
	if err := auth.SeedDefaults(db); err != nil {
		log.Fatal("seed permissions failed: ", err)
	}

	permCache := auth.NewPermCache()
	if err := permCache.Load(db); err != nil {
		log.Fatal("load permissions failed: ", err)
	}

	hub := websocket.NewHub()
	notifier := notify.New(db, hub)

	app := &server.App{DB: db, Hub: hub, Notifier: notifier, PermCache: permCache}
	proc := procurement.New(db, hub, notifier)
	proc.OfficeName = cfg.OfficeName
	proc.OfficeHead = cfg.OfficeHead
	adm := admin.New(db, hub, notifier)

	mux := http.NewServeMux()

	mux.HandleFunc("/ws", hub.Serve)

	mux.HandleFunc("/auth/login", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == "POST" {
			adm.Login(w, r)
		} else {
			http.Error(w, "Method not allowed", 405)
		}
	})
	mux.HandleFunc("/auth/logout", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == "POST" {
			adm.Logout(w, r)
		} else {
			http.Error(w, "Method not allowed", 405)
		}
	})
	mux.HandleFunc("/auth/me", adm.Me)

	mux.HandleFunc("/api/v1/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		path := strings.TrimPrefix(r.URL.Path, "/api/v1/")
		path = strings.TrimSuffix(path, "/")
		parts := strings.Split(path, "/")

		switch {
		// Purchase requests
		case parts[0] == "requests" && len(parts) == 1 && r.Method == "GET":
			proc.ListPRs(w, r)
		case parts[0] == "requests" && len(parts) == 1 && r.Method == "POST":
			proc.CreatePR(w, r)
		case parts[0] == "requests" && len(parts) == 2 && r.Method == "GET":
			proc.GetPR(w, r, parts[1])
		case parts[0] == "requests" && len(parts) == 2 && r.Method == "PUT":
			proc.UpdatePR(w, r, parts[1])
		case parts[0] == "requests" && len(parts) == 3 && parts[2] == "submit" && r.Method == "POST":
			proc.SubmitPR(w, r, parts[1])
		case parts[0] == "requests" && len(parts) == 3 && parts[2] == "approve-cash" && r.Method == "POST":
			proc.ApproveCashPR(w, r, parts[1])
		case parts[0] == "requests" && len(parts) == 3 && parts[2] == "approve" && r.Method == "POST":
			proc.ApprovePR(w, r, parts[1])
		case parts[0] == "requests" && len(parts) == 3 && parts[2] == "disapprove" && r.Method == "POST":
			proc.DisapprovePR(w, r, parts[1])
		case parts[0] == "requests" && len(parts) == 3 && parts[2] == "cancel" && r.Method == "POST":
			proc.CancelPR(w, r, parts[1])
		case parts[0] == "requests" && len(parts) == 3 && parts[2] == "issue" && r.Method == "POST":
			proc.IssueAllDraft(w, r, parts[1])
		case parts[0] == "requests" && len(parts) == 3 && parts[2] == "abstract" && r.Method == "POST":
			proc.BuildAbstract(w, r, parts[1])
		case parts[0] == "requests" && len(parts) == 3 && parts[2] == "award" && r.Method == "POST":
			proc.Award(w, r, parts[1])

		// Request for quotations
		case parts[0] == "rfqs" && len(parts) == 1 && r.Method == "GET":
			proc.ListRFQs(w, r)
		case parts[0] == "rfqs" && len(parts) == 1 && r.Method == "POST":
			proc.CreateRFQ(w, r)
		case parts[0] == "rfqs" && len(parts) == 2 && r.Method == "GET":
			proc.GetRFQ(w, r, parts[1])
		case parts[0] == "rfqs" && len(parts) == 2 && r.Method == "PUT":
			proc.UpdateRFQ(w, r, parts[1])
		case parts[0] == "rfqs" && len(parts) == 3 && parts[2] == "complete" && r.Method == "POST":
			proc.CompleteRFQ(w, r, parts[1])
		case parts[0] == "rfqs" && len(parts) == 3 && parts[2] == "cancel" && r.Method == "POST":
			proc.CancelRFQ(w, r, parts[1])

		// Abstract of quotations
		case parts[0] == "abstracts" && len(parts) == 1 && r.Method == "GET":
			proc.ListAOQs(w, r)
		case parts[0] == "abstracts" && len(parts) == 2 && r.Method == "GET":
			proc.GetAOQ(w, r, parts[1])
		case parts[0] == "abstracts" && len(parts) == 3 && parts[2] == "approve" && r.Method == "POST":
			proc.ApproveAOQ(w, r, parts[1])
		case parts[0] == "abstracts" && len(parts) == 3 && parts[2] == "disapprove" && r.Method == "POST":
			proc.DisapproveAOQ(w, r, parts[1])
		case parts[0] == "abstracts" && len(parts) == 3 && parts[2] == "awardee" && r.Method == "PUT":
			proc.SetAwardee(w, r, parts[1])
		case parts[0] == "abstracts" && len(parts) == 3 && parts[2] == "export" && r.Method == "GET":
			proc.ExportAOQ(w, r, parts[1])

		// Purchase and job orders
		case parts[0] == "orders" && len(parts) == 1 && r.Method == "GET":
			proc.ListPOs(w, r)
		case parts[0] == "orders" && len(parts) == 2 && r.Method == "GET":
			proc.GetPO(w, r, parts[1])
		case parts[0] == "orders" && len(parts) == 3 && parts[2] == "submit" && r.Method == "POST":
			proc.SubmitPO(w, r, parts[1])
		case parts[0] == "orders" && len(parts) == 3 && parts[2] == "approve" && r.Method == "POST":
			proc.ApprovePO(w, r, parts[1])
		case parts[0] == "orders" && len(parts) == 3 && parts[2] == "issue" && r.Method == "POST":
			proc.IssuePO(w, r, parts[1])
		case parts[0] == "orders" && len(parts) == 3 && parts[2] == "for-delivery" && r.Method == "POST":
			proc.ForDeliveryPO(w, r, parts[1])
		case parts[0] == "orders" && len(parts) == 3 && parts[2] == "deliver" && r.Method == "POST":
			proc.DeliverPO(w, r, parts[1])
		case parts[0] == "orders" && len(parts) == 3 && parts[2] == "cancel" && r.Method == "POST":
			proc.CancelPO(w, r, parts[1])

		// Suppliers
		case parts[0] == "suppliers" && len(parts) == 1 && r.Method == "GET":
			proc.ListSuppliers(w, r)
		case parts[0] == "suppliers" && len(parts) == 1 && r.Method == "POST":
			proc.CreateSupplier(w, r)
		case parts[0] == "suppliers" && len(parts) == 2 && r.Method == "GET":
			proc.GetSupplier(w, r, parts[1])
		case parts[0] == "suppliers" && len(parts) == 2 && r.Method == "PUT":
			proc.UpdateSupplier(w, r, parts[1])

		// Admin
		case parts[0] == "audit" && len(parts) == 1 && r.Method == "GET":
			adm.ListAudit(w, r)
		case parts[0] == "users" && len(parts) == 1 && r.Method == "GET":
			adm.ListUsers(w, r)
		case parts[0] == "users" && len(parts) == 1 && r.Method == "POST":
			adm.CreateUser(w, r)
		case parts[0] == "users" && len(parts) == 2 && r.Method == "PUT":
			adm.UpdateUser(w, r, parts[1])
		case parts[0] == "notifications" && len(parts) == 1 && r.Method == "GET":
			adm.ListNotifications(w, r)
		case parts[0] == "notifications" && len(parts) == 3 && parts[2] == "read" && r.Method == "POST":
			adm.MarkNotificationRead(w, r, parts[1])

		default:
			http.Error(w, `{"error":"not found"}`, 404)
		}
	})

	handler := server.LoggingMiddleware(
		server.SecurityHeaders(
			server.RequireAuth(app.DB, app.PermCache)(
				server.GzipMiddleware(mux))))

	addr := fmt.Sprintf(":%d", cfg.Port)
	log.Printf("%s listening on %s (db: %s)", cfg.OfficeName, addr, cfg.DBPath)
	log.Fatal(http.ListenAndServe(addr, handler))
}
