package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"chat-server/internal/auth"
	"chat-server/internal/chat"
	"chat-server/internal/config"
	"chat-server/internal/database"
	"chat-server/internal/dispatch"
	"chat-server/internal/handlers"
	"chat-server/internal/ws"
	"chat-server/pkg/logger"
)

func main() {
	cfg := config.Load()

	db, err := openDatabase(cfg)
	if err != nil {
		logger.Fatal("Failed to connect to database: %v", err)
	}
	defer db.Close()

	// Core components
	registry := ws.NewRegistry()
	privateManager := chat.NewPrivateManager(db, registry)
	groupManager := chat.NewGroupManager(db, registry)
	dispatcher := dispatch.New(db, privateManager, groupManager)

	authService := auth.NewService(db, cfg)

	// Handlers
	authHandlers := handlers.NewAuthHandlers(authService)
	groupHandlers := handlers.NewGroupHandlers(db, groupManager)
	wsHandlers := handlers.NewWebSocketHandlers(authService, registry, dispatcher)

	mux := http.NewServeMux()
	setupRoutes(mux, authHandlers, groupHandlers, wsHandlers)

	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      corsMiddleware(mux),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	logger.Info("Server started on http://localhost%s", cfg.Server.Port)
	logger.Info("WebSocket endpoint: ws://localhost%s/ws", cfg.Server.Port)

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server error: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Server shutting down...")
}

// openDatabase picks the store from DATABASE_URL; "memory" runs without
// Postgres.
func openDatabase(cfg *config.Config) (database.Database, error) {
	if cfg.Database.URL == "memory" {
		logger.Info("Using in-memory database")
		return database.NewMemoryDB(), nil
	}

	db, err := database.NewPostgresDB(context.Background(), cfg.Database.URL)
	if err != nil {
		return nil, err
	}
	if err := db.EnsureSchema(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func setupRoutes(mux *http.ServeMux, authHandlers *handlers.AuthHandlers, groupHandlers *handlers.GroupHandlers, wsHandlers *handlers.WebSocketHandlers) {
	// Auth routes
	mux.HandleFunc("/register", methodHandler(http.MethodPost, authHandlers.Register))
	mux.HandleFunc("/login", methodHandler(http.MethodPost, authHandlers.Login))
	mux.HandleFunc("/refresh", methodHandler(http.MethodPost, authHandlers.Refresh))
	mux.HandleFunc("/logout", methodHandler(http.MethodGet, authHandlers.Logout))

	// Directory routes
	mux.HandleFunc("/users", methodHandler(http.MethodGet, groupHandlers.ListUsers))
	mux.HandleFunc("/groups", methodHandler(http.MethodGet, groupHandlers.ListGroups))
	mux.HandleFunc("/group_create", methodHandler(http.MethodPost, groupHandlers.CreateGroup))

	// Group sub-routes:
	//   GET    /group/{name}/members
	//   GET    /group/{name}/admin/{user}
	//   DELETE /group/{name}/delete/{admin}
	mux.HandleFunc("/group/", func(w http.ResponseWriter, r *http.Request) {
		parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
		if len(parts) < 3 || parts[1] == "" {
			http.Error(w, "invalid path", http.StatusBadRequest)
			return
		}
		groupName := parts[1]

		if len(parts) == 3 && parts[2] == "members" && r.Method == http.MethodGet {
			groupHandlers.GetMembers(w, r, groupName)
			return
		}
		if len(parts) == 4 && parts[2] == "admin" && r.Method == http.MethodGet {
			groupHandlers.CheckAdmin(w, r, groupName, parts[3])
			return
		}
		if len(parts) == 4 && parts[2] == "delete" && r.Method == http.MethodDelete {
			groupHandlers.DeleteGroup(w, r, groupName, parts[3])
			return
		}

		http.Error(w, "endpoint not found", http.StatusNotFound)
	})

	// WebSocket route
	mux.HandleFunc("/ws", wsHandlers.HandleWebSocket)
}

func methodHandler(method string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != method {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		next(w, r)
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
