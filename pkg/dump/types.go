package dump

import "encoding/json"

// ChatMessage is a single role/content turn of the saved conversation.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// RuntimeContext captures the launch configuration the server had when the
// dump was written. A restored KV cache is only valid against the same
// configuration, so restores compare and, if needed, re-apply it.
type RuntimeContext struct {
	Args          []string `json:"args"`
	ModelRelPath  *string  `json:"modelRelPath"`
	MMProjRelPath *string  `json:"mmprojRelPath"`
}

// Dump is the persisted conversation record, one JSON file per name.
//
// Field names and order are wire-compatible with dumps written by the chat
// client, which is why they are camelCase unlike the rest of the codebase.
// Dumps written before runtime contexts existed ("v1" dumps) simply lack the
// runtimeContext field; upgradeOnRead normalizes them.
type Dump struct {
	ModelID          string          `json:"modelId"`
	Timestamp        int64           `json:"timestamp"`
	Messages         []ChatMessage   `json:"messages"`
	AssistantContext json.RawMessage `json:"assistantContext,omitempty"`
	InferenceContext json.RawMessage `json:"inferenceContext,omitempty"`
	RuntimeContext   *RuntimeContext `json:"runtimeContext,omitempty"`
}

// HasRuntimeContext reports whether this is a v2 dump carrying launch
// configuration. v1 dumps restore fine but cannot be drift-checked.
func (d *Dump) HasRuntimeContext() bool {
	return d.RuntimeContext != nil
}
