package cmd

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	httpHdlr "contextd/handler/http"
	"contextd/src/core/ingest"
	"contextd/src/infrastructure/job"
	"contextd/src/infrastructure/log"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the document service",
	Long: `The serve command starts the HTTP server with an in-process task queue,
so deferred ingestions and reindexes run inside the same process.`,
	Run: RunServer,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	settingDefaultConfig()
}

func RunServer(cmd *cobra.Command, args []string) {
	db, err := openDatabase()
	if err != nil {
		log.Error(err, "Failed to open database")
		return
	}

	// In-process queue: deferred work is handled by this same binary.
	logger := watermill.NewStdLogger(false, false)
	pubSub := gochannel.NewGoChannel(gochannel.Config{}, logger)
	defer pubSub.Close()

	p, err := buildPipeline(db, pubSub, logger)
	if err != nil {
		log.Error(err, "Failed to build service pipeline")
		return
	}
	p.registerTaskHandlers()

	// Warm the vector index from stored embeddings.
	if result, err := p.coordinator.Reindex(context.Background(), false, ingest.Filter{}); err != nil {
		log.Error(err, "Failed to load vector index from storage")
		return
	} else {
		log.Info("vector index loaded", "chunks", result.ChunksIndexed)
	}

	// Run the task router in-process.
	router, err := message.NewRouter(message.RouterConfig{}, logger)
	if err != nil {
		log.Error(err, "Failed to create task router")
		return
	}
	router.AddMiddleware(
		middleware.Recoverer,
		middleware.CorrelationID,
		middleware.Retry{
			MaxRetries:      3,
			InitialInterval: time.Second,
			Logger:          logger,
		}.Middleware,
	)
	router.AddNoPublisherHandler(
		"task_processor",
		job.Topic,
		pubSub,
		func(msg *message.Message) error {
			return p.taskSvc.ProcessMessage(msg)
		},
	)

	routerCtx, cancelRouter := context.WithCancel(context.Background())
	defer cancelRouter()
	go func() {
		if err := router.Run(routerCtx); err != nil {
			log.Error(err, "Task router stopped")
		}
	}()

	// Initialize HTTP handler
	handler := httpHdlr.NewHandler(
		p.searchSvc,
		p.orchestrator,
		p.coordinator,
		p.taskSvc,
		p.sysSvc,
		p.queryCache,
		p.collector,
		p.limiter,
		p.index.Len,
	)

	// Setup gin router
	r := gin.Default()

	// Register routes
	handler.RegisterRoutes(r)

	// Create HTTP server
	srv := &http.Server{
		Addr:    ":" + viper.GetString("server.port"),
		Handler: r,
	}

	// Start server in a goroutine
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error(err, "Failed to start server")
			return
		}
	}()
	log.Info("server started", "port", viper.GetString("server.port"))

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	// Parse shutdown timeout
	timeout, err := time.ParseDuration(viper.GetString("server.shutdown_timeout"))
	if err != nil {
		log.Error(err, "Invalid shutdown timeout, using default 5s")
		timeout = 5 * time.Second
	}

	// Create context with timeout for shutdown
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	// Stop the task router before closing the database it writes to.
	cancelRouter()
	<-router.Running()

	// Get underlying *sql.DB
	sqlDB, err := db.DB()
	if err != nil {
		log.Error(err, "Failed to get underlying *sql.DB")
	} else {
		// Close database connection
		if err := sqlDB.Close(); err != nil {
			log.Error(err, "Error closing database connection")
		}
	}

	// Attempt graceful shutdown
	if err := srv.Shutdown(ctx); err != nil {
		log.Error(err, "Server forced to shutdown")
	}

	log.Info("Server exited")
}
