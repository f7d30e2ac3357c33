package engine

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"canvasbridge/engine/internal/doctree"
	"canvasbridge/engine/internal/errinfo"
	"canvasbridge/engine/internal/fontrun"
)

const (
	CmdGetEngineInfo           = "get_engine_info"
	CmdGetHostStatus           = "get_host_status"
	CmdGetNodeInfo             = "get_node_info"
	CmdGetNodesInfo            = "get_nodes_info"
	CmdScanTextNodes           = "scan_text_nodes"
	CmdScanNodesByTypes        = "scan_nodes_by_types"
	CmdSetTextContent          = "set_text_content"
	CmdSetMultipleTextContents = "set_multiple_text_contents"
	CmdDeleteNode              = "delete_node"
	CmdDeleteMultipleNodes     = "delete_multiple_nodes"
	CmdCancelCommand           = "cancel_command"
)

// Command is one parsed, validated command variant.
type Command interface {
	Name() string
	validate() *errinfo.ErrorInfo
}

// Correlated commands may carry a caller supplied commandId.
type correlated interface {
	correlationID() string
}

type GetEngineInfo struct{}

// GetHostStatus reports worker health. Reset clears a worker disabled by
// repeated start failures before checking it again.
type GetHostStatus struct {
	Reset bool `json:"reset"`
}

type GetNodeInfo struct {
	NodeID string `json:"nodeId"`
}

type GetNodesInfo struct {
	NodeIDs []string `json:"nodeIds"`
}

type ScanTextNodes struct {
	NodeID      string `json:"nodeId"`
	UseChunking *bool  `json:"useChunking"`
	ChunkSize   int    `json:"chunkSize"`
	CommandID   string `json:"commandId"`
}

type ScanNodesByTypes struct {
	NodeID    string   `json:"nodeId"`
	Types     []string `json:"types"`
	CommandID string   `json:"commandId"`
}

type SetTextContent struct {
	NodeID        string            `json:"nodeId"`
	Text          *string           `json:"text"`
	SmartStrategy string            `json:"smartStrategy"`
	FallbackFont  *doctree.FontName `json:"fallbackFont"`

	strategy fontrun.Strategy
}

// TextReplacement is one entry of set_multiple_text_contents.
type TextReplacement struct {
	NodeID string  `json:"nodeId"`
	Text   *string `json:"text"`
}

type SetMultipleTextContents struct {
	NodeID        string            `json:"nodeId"`
	Text          []TextReplacement `json:"text"`
	SmartStrategy string            `json:"smartStrategy"`
	ChunkSize     int               `json:"chunkSize"`
	CommandID     string            `json:"commandId"`

	strategy fontrun.Strategy
}

type DeleteNode struct {
	NodeID string `json:"nodeId"`
}

type DeleteMultipleNodes struct {
	NodeIDs   []string `json:"nodeIds"`
	ChunkSize int      `json:"chunkSize"`
	CommandID string   `json:"commandId"`
}

type CancelCommand struct {
	CommandID string `json:"commandId"`
}

func (GetEngineInfo) Name() string           { return CmdGetEngineInfo }
func (GetHostStatus) Name() string           { return CmdGetHostStatus }
func (GetNodeInfo) Name() string             { return CmdGetNodeInfo }
func (GetNodesInfo) Name() string            { return CmdGetNodesInfo }
func (ScanTextNodes) Name() string           { return CmdScanTextNodes }
func (ScanNodesByTypes) Name() string        { return CmdScanNodesByTypes }
func (SetTextContent) Name() string          { return CmdSetTextContent }
func (SetMultipleTextContents) Name() string { return CmdSetMultipleTextContents }
func (DeleteNode) Name() string              { return CmdDeleteNode }
func (DeleteMultipleNodes) Name() string     { return CmdDeleteMultipleNodes }
func (CancelCommand) Name() string           { return CmdCancelCommand }

func (c ScanTextNodes) correlationID() string           { return c.CommandID }
func (c ScanNodesByTypes) correlationID() string        { return c.CommandID }
func (c SetMultipleTextContents) correlationID() string { return c.CommandID }
func (c DeleteMultipleNodes) correlationID() string     { return c.CommandID }

// Chunking reports whether the scan runs through the chunk scheduler.
func (c ScanTextNodes) Chunking() bool {
	return c.UseChunking == nil || *c.UseChunking
}

func (GetEngineInfo) validate() *errinfo.ErrorInfo { return nil }
func (GetHostStatus) validate() *errinfo.ErrorInfo { return nil }

func (c GetNodeInfo) validate() *errinfo.ErrorInfo {
	return requireID(CmdGetNodeInfo, "nodeId", c.NodeID)
}

func (c GetNodesInfo) validate() *errinfo.ErrorInfo {
	if len(c.NodeIDs) == 0 {
		return errinfo.MissingParam(CmdGetNodesInfo, "nodeIds")
	}
	return nil
}

func (c ScanTextNodes) validate() *errinfo.ErrorInfo {
	if err := requireID(CmdScanTextNodes, "nodeId", c.NodeID); err != nil {
		return err
	}
	if c.ChunkSize < 0 {
		return errinfo.ValidationFailed(CmdScanTextNodes, "chunkSize must be positive")
	}
	return nil
}

func (c ScanNodesByTypes) validate() *errinfo.ErrorInfo {
	if err := requireID(CmdScanNodesByTypes, "nodeId", c.NodeID); err != nil {
		return err
	}
	if len(c.Types) == 0 {
		return errinfo.MissingParam(CmdScanNodesByTypes, "types")
	}
	return nil
}

func (c *SetTextContent) validate() *errinfo.ErrorInfo {
	if err := requireID(CmdSetTextContent, "nodeId", c.NodeID); err != nil {
		return err
	}
	if c.Text == nil {
		return errinfo.MissingParam(CmdSetTextContent, "text")
	}
	strategy, err := fontrun.ParseStrategy(c.SmartStrategy)
	if err != nil {
		return errinfo.ValidationFailed(CmdSetTextContent, err.Error())
	}
	c.strategy = strategy
	return nil
}

func (c *SetMultipleTextContents) validate() *errinfo.ErrorInfo {
	if err := requireID(CmdSetMultipleTextContents, "nodeId", c.NodeID); err != nil {
		return err
	}
	if len(c.Text) == 0 {
		return errinfo.MissingParam(CmdSetMultipleTextContents, "text")
	}
	if c.ChunkSize < 0 {
		return errinfo.ValidationFailed(CmdSetMultipleTextContents, "chunkSize must be positive")
	}
	strategy, err := fontrun.ParseStrategy(c.SmartStrategy)
	if err != nil {
		return errinfo.ValidationFailed(CmdSetMultipleTextContents, err.Error())
	}
	c.strategy = strategy
	return nil
}

func (c DeleteNode) validate() *errinfo.ErrorInfo {
	return requireID(CmdDeleteNode, "nodeId", c.NodeID)
}

func (c DeleteMultipleNodes) validate() *errinfo.ErrorInfo {
	if len(c.NodeIDs) == 0 {
		return errinfo.MissingParam(CmdDeleteMultipleNodes, "nodeIds")
	}
	if c.ChunkSize < 0 {
		return errinfo.ValidationFailed(CmdDeleteMultipleNodes, "chunkSize must be positive")
	}
	return nil
}

func (c CancelCommand) validate() *errinfo.ErrorInfo {
	return requireID(CmdCancelCommand, "commandId", c.CommandID)
}

func requireID(command, name, value string) *errinfo.ErrorInfo {
	if strings.TrimSpace(value) == "" {
		return errinfo.MissingParam(command, name)
	}
	return nil
}

// CommandNames lists every command ParseCommand accepts.
func CommandNames() []string {
	return []string{
		CmdGetEngineInfo,
		CmdGetHostStatus,
		CmdGetNodeInfo,
		CmdGetNodesInfo,
		CmdScanTextNodes,
		CmdScanNodesByTypes,
		CmdSetTextContent,
		CmdSetMultipleTextContents,
		CmdDeleteNode,
		CmdDeleteMultipleNodes,
		CmdCancelCommand,
	}
}

// ParseCommand decodes params into the variant registered for name and
// validates it.
func ParseCommand(name string, params json.RawMessage) (Command, *errinfo.ErrorInfo) {
	var cmd Command
	switch name {
	case CmdGetEngineInfo:
		cmd = &GetEngineInfo{}
	case CmdGetHostStatus:
		cmd = &GetHostStatus{}
	case CmdGetNodeInfo:
		cmd = &GetNodeInfo{}
	case CmdGetNodesInfo:
		cmd = &GetNodesInfo{}
	case CmdScanTextNodes:
		cmd = &ScanTextNodes{}
	case CmdScanNodesByTypes:
		cmd = &ScanNodesByTypes{}
	case CmdSetTextContent:
		cmd = &SetTextContent{}
	case CmdSetMultipleTextContents:
		cmd = &SetMultipleTextContents{}
	case CmdDeleteNode:
		cmd = &DeleteNode{}
	case CmdDeleteMultipleNodes:
		cmd = &DeleteMultipleNodes{}
	case CmdCancelCommand:
		cmd = &CancelCommand{}
	default:
		return nil, errinfo.UnknownCommand(name)
	}
	if trimmed := bytes.TrimSpace(params); len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null")) {
		if err := json.Unmarshal(trimmed, cmd); err != nil {
			return nil, errinfo.ValidationFailed(name, fmt.Sprintf("invalid params: %v", err))
		}
	}
	if errInfo := cmd.validate(); errInfo != nil {
		return nil, errInfo
	}
	return cmd, nil
}
