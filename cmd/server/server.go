// Package server implements the streaming API: plan synthesis, execution
// launch, status polling and SSE event delivery.
package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"plan-agent/internal/app"
	"plan-agent/internal/config"
	"plan-agent/pkg/logger"
)

// ServerCmd represents the server command
var ServerCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the streaming API server",
	Long: `Start the API server that plans and executes queries over HTTP, with
Server-Sent Events (SSE) for real-time event streaming.

The server provides:
- Plan synthesis endpoint (POST /api/plan)
- Execution launch and status endpoints
- SSE event streams with replay for late subscribers
- Cooperative stop for running executions

Examples:
  plan-agent server                      # Start with default settings
  plan-agent server --port 8000          # Start on custom port
  plan-agent server --cors-origins "*"   # Enable CORS for all origins`,
	Run: runServer,
}

// ServerConfig holds the HTTP surface settings; engine settings come from
// the environment through internal/config.
type ServerConfig struct {
	Port        int      `json:"port"`
	Host        string   `json:"host"`
	CORSOrigins []string `json:"cors_origins"`
}

func init() {
	ServerCmd.Flags().Int("port", 8080, "server port")
	ServerCmd.Flags().String("host", "0.0.0.0", "server host")
	ServerCmd.Flags().StringSlice("cors-origins", []string{"http://localhost:3000"}, "allowed CORS origins")

	viper.BindPFlag("port", ServerCmd.Flags().Lookup("port"))
	viper.BindPFlag("host", ServerCmd.Flags().Lookup("host"))
	viper.BindPFlag("cors-origins", ServerCmd.Flags().Lookup("cors-origins"))
}

func runServer(cmd *cobra.Command, args []string) {
	serverConfig := ServerConfig{
		Port:        viper.GetInt("port"),
		Host:        viper.GetString("host"),
		CORSOrigins: viper.GetStringSlice("cors-origins"),
	}

	logFile, _ := cmd.Flags().GetString("log-file")
	logLevel, _ := cmd.Flags().GetString("log-level")
	logFormat, _ := cmd.Flags().GetString("log-format")

	log, err := logger.CreateLogger(logFile, logLevel, logFormat, true)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Close()

	cfg := config.Load()
	engine, err := app.New(cfg, log)
	if err != nil {
		log.Errorf("Failed to initialize engine: %v", err)
		os.Exit(1)
	}

	fmt.Printf("🚀 Starting Plan Agent API Server\n")
	fmt.Printf("📡 Host: %s:%d\n", serverConfig.Host, serverConfig.Port)
	fmt.Printf("🤖 Model: %s\n", cfg.Model)
	fmt.Printf("🌐 CORS Origins: %v\n", serverConfig.CORSOrigins)

	api := &API{
		config: serverConfig,
		engine: engine,
		logger: log,
	}

	router := mux.NewRouter()
	router.Use(api.corsMiddleware)

	apiRouter := router.PathPrefix("/api").Subrouter()
	apiRouter.HandleFunc("/health", api.handleHealth).Methods("GET")
	apiRouter.HandleFunc("/tools", api.handleGetTools).Methods("GET")
	apiRouter.HandleFunc("/plan", api.handlePlan).Methods("POST", "OPTIONS")
	apiRouter.HandleFunc("/execute", api.handleExecute).Methods("POST", "OPTIONS")
	apiRouter.HandleFunc("/executions", api.handleListExecutions).Methods("GET")
	apiRouter.HandleFunc("/executions/{id}", api.handleGetExecution).Methods("GET")
	apiRouter.HandleFunc("/executions/{id}/events", api.handleStreamEvents).Methods("GET")
	apiRouter.HandleFunc("/executions/{id}/stop", api.handleStopExecution).Methods("POST", "OPTIONS")

	srv := &http.Server{
		Addr: fmt.Sprintf("%s:%d", serverConfig.Host, serverConfig.Port),
		// WriteTimeout stays 0: SSE streams outlive any fixed deadline.
		ReadTimeout: time.Second * 30,
		IdleTimeout: time.Second * 300,
		Handler:     router,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorf("Server failed: %v", err)
			os.Exit(1)
		}
	}()

	fmt.Printf("✅ Server started on %s:%d\n", serverConfig.Host, serverConfig.Port)
	fmt.Printf("🔗 Plan endpoint: http://%s:%d/api/plan\n", serverConfig.Host, serverConfig.Port)
	fmt.Printf("📡 Event stream: http://%s:%d/api/executions/{id}/events\n", serverConfig.Host, serverConfig.Port)

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c

	fmt.Println("\n🛑 Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := engine.Executions.Shutdown(ctx); err != nil {
		log.Warnf("Executions did not drain in time: %v", err)
	}
	if err := srv.Shutdown(ctx); err != nil {
		log.Errorf("Server forced to shutdown: %v", err)
	}

	fmt.Println("✅ Server shutdown complete")
}
