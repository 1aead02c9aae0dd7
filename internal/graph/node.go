package graph

import (
	"fmt"
	"strings"
)

// Role is a node's fixed category. It governs which update rule applies.
type Role int

const (
	RoleInput Role = iota
	RoleHidden
	RoleRecursive
	RoleOutput
)

var roleNames = map[Role]string{
	RoleInput:     "input",
	RoleHidden:    "hidden",
	RoleRecursive: "recursive",
	RoleOutput:    "output",
}

// String returns the lowercase role name used in topology files and JSON.
func (r Role) String() string {
	if name, ok := roleNames[r]; ok {
		return name
	}
	return fmt.Sprintf("role(%d)", int(r))
}

// ParseRole maps a role name to a Role (case-insensitive).
func ParseRole(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "input":
		return RoleInput, nil
	case "hidden":
		return RoleHidden, nil
	case "recursive":
		return RoleRecursive, nil
	case "output":
		return RoleOutput, nil
	default:
		return 0, fmt.Errorf("unknown role %q (valid: input, hidden, recursive, output)", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (r Role) MarshalText() ([]byte, error) {
	if _, ok := roleNames[r]; !ok {
		return nil, fmt.Errorf("unknown role %d", int(r))
	}
	return []byte(r.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *Role) UnmarshalText(text []byte) error {
	role, err := ParseRole(string(text))
	if err != nil {
		return err
	}
	*r = role
	return nil
}

// Position is a 2-D display hint for renderers. The simulator never reads it.
type Position struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// NodeSpec describes a node at construction time. Connections lists the
// outgoing edge targets in order.
type NodeSpec struct {
	ID          string   `json:"id" yaml:"id"`
	Role        Role     `json:"role" yaml:"role"`
	Position    Position `json:"position" yaml:"position"`
	Connections []string `json:"connections,omitempty" yaml:"connections,omitempty,flow"`
}

// NodeState is a read-only view of a node for renderers and persistence.
type NodeState struct {
	ID          string   `json:"id"`
	Role        Role     `json:"role"`
	Position    Position `json:"position"`
	Activation  float64  `json:"activation"`
	Connections []string `json:"connections"`
}

// node is the arena entry. Edges are stored as indices into the arena so
// cycles need no pointers.
type node struct {
	id         string
	role       Role
	position   Position
	activation float64
	outgoing   []int
}
