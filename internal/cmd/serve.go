package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/spf13/cobra"

	"github.com/legionhq/legion/internal/config"
	"github.com/legionhq/legion/internal/handlers"
	"github.com/legionhq/legion/internal/kimi"
	"github.com/legionhq/legion/internal/logger"
	"github.com/legionhq/legion/internal/services"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the Legion server",
	Long: `Start the HTTP and WebSocket server.

Serves the conversation API under /api/conversations, the chat WebSocket
under /api/conversations/ws/:id, and the embedded web UI on everything else.`,
	RunE: runServe,
}

var (
	serveHost string
	servePort int
	serveDev  bool
)

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveHost, "host", "127.0.0.1", "Host to bind to")
	serveCmd.Flags().IntVar(&servePort, "port", 18790, "Port to bind to")
	serveCmd.Flags().BoolVar(&serveDev, "dev", false, "Enable development logging")
}

func runServe(cmd *cobra.Command, args []string) error {
	logger.Configure(logger.GetLogLevelFromEnv(serveDev), serveDev)

	store := services.NewConversationStore(config.Runtime)
	sessions := services.NewSessionCache(store, kimi.NewCLILauncher())
	store.SetEvictFunc(sessions.Close)
	history := services.NewHistoryService(store)

	app := buildApp(store, sessions, history)

	if err := writePIDFile(); err != nil {
		logger.Warnf("Failed to write PID file: %v", err)
	}
	defer removePIDFile()

	// Graceful shutdown: stop accepting connections, then close every live
	// agent session so their context logs are flushed
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Infof("Received %s, shutting down", sig)
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			logger.Warnf("Shutdown did not complete cleanly: %v", err)
		}
	}()

	addr := fmt.Sprintf("%s:%d", serveHost, servePort)
	logger.Infof("Legion %s listening on %s", GetVersion(), addr)
	if err := app.Listen(addr); err != nil {
		return fmt.Errorf("server failed: %w", err)
	}

	sessions.CloseAll()
	return nil
}

// buildApp assembles the Fiber application. Split out so handler tests can
// drive the full routing table in-process.
func buildApp(store *services.ConversationStore, sessions *services.SessionCache, history *services.HistoryService) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "Legion",
		DisableStartupMessage: true,
	})
	app.Use(recover.New())

	app.Get("/api/status", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":    "running",
			"version":   GetVersion(),
			"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	conversations := app.Group("/api/conversations")
	handlers.NewChatHandler(store, sessions).RegisterRoutes(conversations)
	handlers.NewConversationsHandler(store, history).RegisterRoutes(conversations)

	if handlers.HasEmbeddedAssets() {
		app.Get("/*", handlers.ServeEmbeddedSPA)
	} else {
		app.Get("/", func(c *fiber.Ctx) error {
			return c.JSON(fiber.Map{
				"message": "Legion API Server",
				"version": GetVersion(),
				"note":    "Web UI not built",
			})
		})
	}

	return app
}

func writePIDFile() error {
	if err := os.MkdirAll(config.Runtime.DataDir, 0755); err != nil {
		return err
	}
	return os.WriteFile(config.Runtime.PIDFile, []byte(strconv.Itoa(os.Getpid())), 0644)
}

func removePIDFile() {
	if err := os.Remove(config.Runtime.PIDFile); err != nil && !os.IsNotExist(err) {
		logger.Warnf("Failed to remove PID file: %v", err)
	}
}
