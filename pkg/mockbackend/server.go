package mockbackend

import (
	"log/slog"
	"net"
	"net/http"
	"sync"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/mailroom/pkg/backend"
	"github.com/papercomputeco/mailroom/pkg/logger"
)

// Server is the mock email assistant backend.
type Server struct {
	config Config
	logger *slog.Logger
	app    *fiber.App

	mu      sync.Mutex
	account *backend.Account
	states  map[string]struct{}
	synced  bool
	mailbox []Email

	done     chan struct{}
	doneOnce sync.Once
}

// NewServer creates a mock backend. A nil logger discards logs.
func NewServer(config Config, log *slog.Logger) *Server {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})

	s := &Server{
		config:  config,
		logger:  logger.OrNop(log),
		app:     app,
		states:  make(map[string]struct{}),
		synced:  config.Synced,
		mailbox: config.Mailbox,
		done:    make(chan struct{}),
	}
	if len(s.mailbox) == 0 {
		s.mailbox = defaultMailbox()
	}
	if config.Connected {
		s.account = newAccount()
	}

	app.Use(s.logRequest)

	app.Get("/health", s.handleHealth)
	app.Get("/auth/nylas/url", s.handleAuthURL)
	app.Get("/nylas/callback", s.handleCallback)
	app.Get("/auth/me", s.handleMe)
	app.Post("/sync/latest", s.handleSync)
	app.Post("/chat", s.handleChat)
	app.Post("/chat/stream", s.handleChatStream)
	app.Post("/eval/run", s.handleEval)

	return s
}

// Run starts the mock backend on the configured address.
func (s *Server) Run() error {
	s.logger.Info("starting mock backend", "listen", s.config.ListenAddr)
	return s.app.Listen(s.config.ListenAddr)
}

// Listener serves on an existing listener.
func (s *Server) Listener(ln net.Listener) error {
	s.logger.Info("starting mock backend", "listen", ln.Addr().String())
	return s.app.Listener(ln)
}

// Shutdown gracefully shuts down the mock backend.
// Stalled streams are released first.
func (s *Server) Shutdown() error {
	s.doneOnce.Do(func() { close(s.done) })
	return s.app.Shutdown()
}

// Handler exposes the server as a net/http handler. The adaptor buffers
// response bodies, so chat streams arrive in one piece through it.
func (s *Server) Handler() http.Handler {
	return adaptor.FiberApp(s.app)
}

func (s *Server) logRequest(c *fiber.Ctx) error {
	err := c.Next()
	s.logger.Debug("mock request",
		"method", c.Method(),
		"path", c.Path(),
		"status", c.Response().StatusCode(),
	)
	return err
}
