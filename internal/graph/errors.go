package graph

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for errors.Is matching.
var (
	ErrInvalidTopology = errors.New("invalid topology")
	ErrUnknownNode     = errors.New("unknown node")
)

// TopologyIssue describes a single problem found while building a graph.
type TopologyIssue struct {
	NodeID string `json:"node_id"`
	RefID  string `json:"ref_id,omitempty"` // The problematic reference
	Issue  string `json:"issue"`            // "duplicate-id", "dangling", "empty-id", "unknown-role"
}

// String returns a human-readable description of the issue.
func (i TopologyIssue) String() string {
	if i.RefID != "" {
		return fmt.Sprintf("%s: %s references %s", i.Issue, i.NodeID, i.RefID)
	}
	return fmt.Sprintf("%s: %s", i.Issue, i.NodeID)
}

// InvalidTopologyError is returned when a graph cannot be constructed.
// It carries every issue found, not only the first.
type InvalidTopologyError struct {
	Issues []TopologyIssue
}

func (e *InvalidTopologyError) Error() string {
	parts := make([]string, len(e.Issues))
	for i, issue := range e.Issues {
		parts[i] = issue.String()
	}
	return fmt.Sprintf("invalid topology: %s", strings.Join(parts, "; "))
}

// Is reports whether target is ErrInvalidTopology.
func (e *InvalidTopologyError) Is(target error) bool {
	return target == ErrInvalidTopology
}

// UnknownNodeError is returned by accessors called with an id that is not in
// the graph. It is recoverable.
type UnknownNodeError struct {
	ID string
}

func (e *UnknownNodeError) Error() string {
	return fmt.Sprintf("unknown node: %s", e.ID)
}

// Is reports whether target is ErrUnknownNode.
func (e *UnknownNodeError) Is(target error) bool {
	return target == ErrUnknownNode
}
