package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/stasishq/stasis/pkg/dump"
)

var (
	listDumpsToolName    = "list_dumps"
	listDumpsDescription = "List all saved conversation dumps by name. Each dump pairs a conversation transcript with a server KV-cache snapshot."

	readDumpToolName    = "read_dump"
	readDumpDescription = "Read one saved conversation dump: its model, timestamp, messages, and recorded server launch configuration."
)

// ListDumpsInput has no arguments; listing is unconditional.
type ListDumpsInput struct{}

// ListDumpsOutput is the list_dumps tool result.
type ListDumpsOutput struct {
	Dumps []string `json:"dumps"`
	Count int      `json:"count"`
}

// ReadDumpInput names the dump to read.
type ReadDumpInput struct {
	Name string `json:"name" jsonschema:"the dump name as returned by list_dumps"`
}

// DumpMessage is one conversation turn in a read_dump result.
type DumpMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ReadDumpOutput is the read_dump tool result.
type ReadDumpOutput struct {
	Name       string        `json:"name"`
	ModelID    string        `json:"model_id"`
	Timestamp  int64         `json:"timestamp"`
	Messages   []DumpMessage `json:"messages"`
	LaunchArgs []string      `json:"launch_args,omitempty"`
	ModelPath  string        `json:"model_path,omitempty"`
}

// handleListDumps lists stored dump names.
func (s *Server) handleListDumps(_ context.Context, _ *mcp.CallToolRequest, _ ListDumpsInput) (*mcp.CallToolResult, ListDumpsOutput, error) {
	names := s.config.Store.List()

	s.config.Logger.Debug("MCP list_dumps request", zap.Int("count", len(names)))

	if names == nil {
		names = []string{}
	}
	return textResult(ListDumpsOutput{Dumps: names, Count: len(names)})
}

// handleReadDump reads one dump document.
func (s *Server) handleReadDump(_ context.Context, _ *mcp.CallToolRequest, input ReadDumpInput) (*mcp.CallToolResult, ReadDumpOutput, error) {
	s.config.Logger.Debug("MCP read_dump request", zap.String("name", input.Name))

	doc, err := s.config.Store.Read(input.Name)
	if err != nil {
		return &mcp.CallToolResult{
			IsError: true,
			Content: []mcp.Content{
				&mcp.TextContent{Text: fmt.Sprintf("Failed to read dump: %v", err)},
			},
		}, ReadDumpOutput{}, nil
	}

	out := ReadDumpOutput{
		Name:      input.Name,
		ModelID:   doc.ModelID,
		Timestamp: doc.Timestamp,
		Messages:  toDumpMessages(doc.Messages),
	}
	if doc.HasRuntimeContext() {
		out.LaunchArgs = doc.RuntimeContext.Args
		if doc.RuntimeContext.ModelRelPath != nil {
			out.ModelPath = *doc.RuntimeContext.ModelRelPath
		}
	}

	return textResult(out)
}

func toDumpMessages(messages []dump.ChatMessage) []DumpMessage {
	out := make([]DumpMessage, len(messages))
	for i, msg := range messages {
		out[i] = DumpMessage{Role: msg.Role, Content: msg.Content}
	}
	return out
}

// textResult wraps structured output in a serialized TextContent block.
// Per MCP spec: tools returning structured content should also return
// serialized JSON in a TextContent block for backwards compatibility.
func textResult[T any](output T) (*mcp.CallToolResult, T, error) {
	jsonBytes, err := json.Marshal(output)
	if err != nil {
		var zero T
		return &mcp.CallToolResult{
			IsError: true,
			Content: []mcp.Content{
				&mcp.TextContent{Text: fmt.Sprintf("Failed to serialize result: %v", err)},
			},
		}, zero, nil
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: string(jsonBytes)},
		},
	}, output, nil
}
