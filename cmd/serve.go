package cmd

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"syscall"

	"github.com/a2aproto/taskengine/pkg/a2a"
	"github.com/a2aproto/taskengine/pkg/auth"
	"github.com/a2aproto/taskengine/pkg/executor"
	"github.com/a2aproto/taskengine/pkg/fanout"
	"github.com/a2aproto/taskengine/pkg/logging"
	"github.com/a2aproto/taskengine/pkg/notify"
	"github.com/a2aproto/taskengine/pkg/processor/counter"
	"github.com/a2aproto/taskengine/pkg/processor/echo"
	"github.com/a2aproto/taskengine/pkg/processor/twostage"
	"github.com/a2aproto/taskengine/pkg/producer"
	"github.com/a2aproto/taskengine/pkg/rpc"
	"github.com/a2aproto/taskengine/pkg/store"
	"github.com/charmbracelet/log"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	portFlag int
	hostFlag string

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Serve the agent's JSON-RPC task endpoint",
		Long:  longServe,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serveAgent()
		},
	}
)

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().IntVarP(&portFlag, "port", "p", 3210, "Port to serve on")
	serveCmd.Flags().StringVarP(&hostFlag, "host", "H", "0.0.0.0", "Host address to bind to")
}

// processors maps the reserved a2a.processor metadata key to the
// Factory that drives a task, generalizing the teacher's single
// hard-wired EchoTaskManager into a small lookup table so one server
// can host several task behaviors side by side.
var processors = map[string]executor.Factory{
	"default":  echo.New,
	"echo":     echo.New,
	"counter":  counter.New,
	"twostage": twostage.New,
}

// canHandleProcessor reports whether name names a registered processor.
// rpc.Server checks this before a task is ever created, so
// processorFactory below should never actually see an unregistered name
// in production — it only falls through to "default" here as a last
// line of defense for callers (tests, mostly) that construct a Factory
// directly without going through the RPC layer's gate.
func canHandleProcessor(name string) bool {
	_, ok := processors[name]
	return ok
}

func processorFactory(task a2a.Task) producer.Producer {
	name := "default"
	if v, ok := task.Metadata[processorMetadataKey].(string); ok && v != "" {
		name = v
	}
	factory, ok := processors[name]
	if !ok {
		log.Error("processorFactory: no registered processor for name, falling back to default", "name", name)
		factory = processors["default"]
	}
	return factory(task)
}

const processorMetadataKey = "a2a.processor"

// bearerAuth wraps auth.Service.AuthenticateRequest for fiber: it builds
// the minimal *http.Request that method actually reads (just the
// Authorization header) rather than adapting the whole fasthttp
// request, since that's all AuthenticateRequest inspects.
func bearerAuth(svc *auth.Service) fiber.Handler {
	return func(c fiber.Ctx) error {
		req := &http.Request{Header: http.Header{}}
		if h := c.Get("Authorization"); h != "" {
			req.Header.Set("Authorization", h)
		}
		if err := svc.AuthenticateRequest(req); err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": err.Error()})
		}
		return c.Next()
	}
}

// serveAgent wires a2a.AgentCard, store.Store, fanout.Broker,
// executor.Executor and rpc.Server together and drives a fiber app
// exactly the way the teacher's pkg/service.A2AServer.Start does,
// generalized from one fixed handler per server to the routes
// rpc.Server.Mount registers, and restoring the root serve.go's
// signal-driven graceful shutdown that pkg/service's fiber servers
// never implemented.
func serveAgent() error {
	addr := fmt.Sprintf("%s:%d", hostFlag, portFlag)

	if auditPath := viper.GetString("logging.auditLogPath"); auditPath != "" {
		if err := logging.Init(auditPath); err != nil {
			log.Warn("failed to initialize audit log, continuing without it", "err", err)
		} else {
			defer logging.Close()
		}
	}

	card := a2a.NewAgentCardFromConfig("default")
	if card.Name == "" {
		card.Name = "A2A Task Engine"
	}
	card.URL = fmt.Sprintf("http://%s:%d", hostFlag, portFlag)
	card.Capabilities.Streaming = true

	taskStore := store.NewInMemoryStore()
	broker := fanout.New()
	exec := executor.New(taskStore, broker, processorFactory)

	pushSupported := viper.GetBool("agent.default.capabilities.pushNotifications")
	if pushSupported {
		signingKey := viper.GetString("push.signingKey")
		if signingKey == "" {
			signingKey = "dev-push-signing-key"
		}
		exec.WithNotifier(notify.New([]byte(signingKey)))
		card.Capabilities.PushNotifications = true
	}

	server := &rpc.Server{
		Store:         taskStore,
		Executor:      exec,
		Broker:        broker,
		PushSupported: pushSupported,
		CanHandle:     canHandleProcessor,
	}

	app := fiber.New(fiber.Config{
		AppName:           card.Name,
		ServerHeader:      "A2A-Task-Engine",
		StreamRequestBody: true,
	})
	app.Use(logger.New(logger.Config{
		Next: func(c fiber.Ctx) bool {
			return c.Path() == "/health"
		},
	}), healthcheck.New())

	if card.Authentication != nil && slices.Contains(card.Authentication.Schemes, "bearer") {
		authSigningKey := viper.GetString("agent.default.authentication.signingKey")
		authRateLimit := viper.GetInt64("agent.default.authentication.rateLimitPerMinute")
		authSvc := auth.NewService([]byte(authSigningKey), authRateLimit)
		app.Use(func(c fiber.Ctx) error {
			if c.Path() == "/health" || c.Path() == "/.well-known/agent.json" {
				return c.Next()
			}
			return bearerAuth(authSvc)(c)
		})
	}

	server.Mount(app, *card)

	errCh := make(chan error, 1)
	go func() {
		log.Info("agent server listening", "addr", addr)
		errCh <- app.Listen(addr, fiber.ListenConfig{DisableStartupMessage: true})
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case <-stop:
	}

	log.Info("shutting down agent server")

	if err := app.Shutdown(); err != nil {
		log.Error("agent server shutdown error", "err", err)
		return err
	}

	log.Info("agent server stopped")
	return nil
}

var longServe = `
Serve the agent's JSON-RPC task endpoint over HTTP.

Examples:
  # Serve on port 8080
  a2a-go serve --port 8080
`
