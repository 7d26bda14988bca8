package api

import (
	"context"
	"net"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/stasishq/stasis/pkg/dump"
	"github.com/stasishq/stasis/pkg/journal"
	"github.com/stasishq/stasis/pkg/reconcile"
	"github.com/stasishq/stasis/pkg/session"
)

// DumpStore is the slice of the dump store the API exposes.
type DumpStore interface {
	Save(ctx context.Context, name string, doc *dump.Dump) error
	Read(name string) (*dump.Dump, error)
	List() []string
	Delete(name string) error
}

// SessionDirectory is the slice of the session registry the API needs:
// listing for /sessions and per-model lookup for runtime-context capture.
type SessionDirectory interface {
	List() ([]session.Descriptor, error)
	FindByModel(modelID string) (*session.Descriptor, error)
}

// Restorer performs the full dump restore sequence.
type Restorer interface {
	Restore(ctx context.Context, modelID, name string) ([]dump.ChatMessage, *reconcile.Report, error)
}

// JournalReader reads recent slot-action journal entries. Optional; a nil
// reader turns the journal endpoint into a 404.
type JournalReader interface {
	Recent(ctx context.Context, limit int) ([]journal.Entry, error)
}

// Server is the HTTP surface the chat UI talks to.
type Server struct {
	config   Config
	store    DumpStore
	sessions SessionDirectory
	restorer Restorer
	journal  JournalReader
	logger   *zap.Logger
	app      *fiber.App
}

// NewServer creates a new API server. Collaborators are injected so the
// server can share them with the CLI commands.
func NewServer(config Config, store DumpStore, sessions SessionDirectory, restorer Restorer, journalReader JournalReader, logger *zap.Logger) *Server {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})

	s := &Server{
		config:   config,
		store:    store,
		sessions: sessions,
		restorer: restorer,
		journal:  journalReader,
		logger:   logger,
		app:      app,
	}

	app.Get("/ping", s.handlePing)
	app.Get("/sessions", s.handleListSessions)
	app.Get("/dumps", s.handleListDumps)
	app.Get("/dumps/:name", s.handleGetDump)
	app.Post("/dumps/:name/save", s.handleSaveDump)
	app.Post("/dumps/:name/restore", s.handleRestoreDump)
	app.Delete("/dumps/:name", s.handleDeleteDump)
	app.Get("/journal", s.handleJournal)

	if config.MCPHandler != nil {
		app.All("/mcp", adaptor.HTTPHandler(config.MCPHandler))
	}

	return s
}

// Run starts the API server on the configured address.
func (s *Server) Run() error {
	s.logger.Info("starting API server",
		zap.String("listen", s.config.ListenAddr),
	)
	return s.app.Listen(s.config.ListenAddr)
}

// RunWithListener starts the API server on an already-bound listener.
func (s *Server) RunWithListener(listener net.Listener) error {
	s.logger.Info("starting API server",
		zap.String("listen", listener.Addr().String()),
	)
	return s.app.Listener(listener)
}

// Shutdown gracefully shuts down the API server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}
