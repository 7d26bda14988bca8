// Package mcp provides an MCP (Model Context Protocol) server exposing
// read-only inspection of stored conversation dumps. Agents get to look at
// what was saved; mutating the dumps stays with the CLI and the HTTP API.
package mcp

import (
	"errors"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/stasishq/stasis/pkg/dump"
	"github.com/stasishq/stasis/pkg/utils"
)

// DumpReader is the read-only slice of the dump store the tools use.
type DumpReader interface {
	Read(name string) (*dump.Dump, error)
	List() []string
}

type Config struct {
	// Store provides dump listing and reading.
	Store DumpReader

	// Noop for empty MCP server
	Noop bool

	// Logger is the configured zap logger
	Logger *zap.Logger
}

type Server struct {
	config    Config
	mcpServer *mcp.Server
	handler   *mcp.StreamableHTTPHandler
}

// NewServer creates a new MCP server with the dump inspection tools.
func NewServer(c Config) (*Server, error) {
	s := &Server{
		config: c,
	}

	mcpServer := mcp.NewServer(
		&mcp.Implementation{
			Name:    "stasis",
			Version: utils.Version,
		},
		&mcp.ServerOptions{},
	)

	if c.Noop {
		// return the empty MCP server with no tools configured
		// if the noop flag is set (i.e., MCP capabilities are disabled)
		s.mcpServer = mcpServer
		return s, nil
	}

	if c.Store == nil {
		return nil, errors.New("dump store is required")
	}
	if c.Logger == nil {
		return nil, errors.New("logger is required")
	}

	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        listDumpsToolName,
		Description: listDumpsDescription,
	}, s.handleListDumps)

	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        readDumpToolName,
		Description: readDumpDescription,
	}, s.handleReadDump)

	s.mcpServer = mcpServer

	s.handler = mcp.NewStreamableHTTPHandler(
		func(_ *http.Request) *mcp.Server {
			return mcpServer
		},
		&mcp.StreamableHTTPOptions{
			Stateless: true,
		},
	)

	return s, nil
}

// Handler returns the HTTP handler for the MCP server.
func (s *Server) Handler() http.Handler {
	return s.handler
}
