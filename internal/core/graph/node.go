// Package graph provides node definitions
package graph

import (
	"encoding/json"
	"fmt"
	"slices"

	"github.com/seehiong/micronaut-optimizer/internal/core/value"
)

// Layout defaults for freshly built nodes.
const (
	DefaultWidth  = 150
	DefaultHeight = 60
)

// IconType is the palette category of a node.
type IconType string

const (
	IconInput      IconType = "input"
	IconOutput     IconType = "output"
	IconConstraint IconType = "constraint"
	IconTransform  IconType = "transform"
	IconProblem    IconType = "problem"
)

// TriggerAction decides how a node's output gets produced.
type TriggerAction string

const (
	// TriggerNone leaves the node passive
	TriggerNone TriggerAction = ""
	// TriggerSubmit forwards once, on user request, along the first outgoing edge
	TriggerSubmit TriggerAction = "S"
	// TriggerAuto transforms and fans out as soon as an input arrives
	TriggerAuto TriggerAction = "A"
	// TriggerOptimize produces output through an external invocation
	TriggerOptimize TriggerAction = "O"
)

// Valid reports whether t is a known trigger action.
func (t TriggerAction) Valid() bool {
	switch t {
	case TriggerNone, TriggerSubmit, TriggerAuto, TriggerOptimize:
		return true
	}
	return false
}

func (t TriggerAction) MarshalJSON() ([]byte, error) { return marshalNullable(string(t)) }

func (t *TriggerAction) UnmarshalJSON(data []byte) error {
	s, err := unmarshalNullable(data)
	*t = TriggerAction(s)
	return err
}

// TransformType selects the transform applied by an AUTO node. The set is
// closed; the empty value passes input through unchanged.
type TransformType string

const (
	TransformNone            TransformType = ""
	TransformMatrixOfDoubles TransformType = "matrix-of-doubles"
	TransformCastToString    TransformType = "cast-to-string"
	TransformJSONFormatter   TransformType = "json-formatter"
	TransformJSONAggregator  TransformType = "json-aggregator"
	TransformDumpOutput      TransformType = "dump-output"
	TransformExtractSolverID TransformType = "extract-solver-id"
	TransformExtractByKey    TransformType = "extract-by-key"
)

// TransformTypes lists every non-empty transform type.
var TransformTypes = []TransformType{
	TransformMatrixOfDoubles,
	TransformCastToString,
	TransformJSONFormatter,
	TransformJSONAggregator,
	TransformDumpOutput,
	TransformExtractSolverID,
	TransformExtractByKey,
}

// Valid reports whether t is a known transform type.
func (t TransformType) Valid() bool {
	if t == TransformNone {
		return true
	}
	for _, known := range TransformTypes {
		if t == known {
			return true
		}
	}
	return false
}

func (t TransformType) MarshalJSON() ([]byte, error) { return marshalNullable(string(t)) }

func (t *TransformType) UnmarshalJSON(data []byte) error {
	s, err := unmarshalNullable(data)
	*t = TransformType(s)
	return err
}

func marshalNullable(s string) ([]byte, error) {
	if s == "" {
		return []byte("null"), nil
	}
	return json.Marshal(s)
}

func unmarshalNullable(data []byte) (string, error) {
	if string(data) == "null" {
		return "", nil
	}
	var s string
	err := json.Unmarshal(data, &s)
	return s, err
}

// Node represents a typed computation unit on the canvas
// PRINCIPLES:
// - KISS: flat record, the persisted shape is the in-memory shape
// - SRP: data plus local mutators; propagation lives elsewhere
// - Layout fields are carried, never interpreted
type Node struct {
	ID             string        `json:"id" validate:"required,node_id"`
	Name           string        `json:"name"`
	IconType       IconType      `json:"iconType,omitempty" validate:"omitempty,oneof=input output constraint transform problem"`
	HasTextInput   bool          `json:"hasTextInput"`
	HasKeyInput    bool          `json:"hasKeyInput"`
	HasSubkeyInput bool          `json:"hasSubkeyInput"`
	HasTextOutput  bool          `json:"hasTextOutput"`
	HasChartOutput bool          `json:"hasChartOutput"`
	InputTypes     []string      `json:"inputTypes"`
	OutputTypes    []string      `json:"outputTypes"`
	TriggerAction  TriggerAction `json:"triggerAction" validate:"trigger_action"`
	TransformType  TransformType `json:"transformType" validate:"transform_type"`
	FormatterKey   string        `json:"formatterKey,omitempty"`
	APIEndpoint    string        `json:"apiEndpoint,omitempty"`
	X              float64       `json:"x"`
	Y              float64       `json:"y"`
	// InputData is sparse: a nil entry is a slot no value has reached yet.
	InputData  []*value.Value `json:"inputData"`
	OutputData value.Value    `json:"outputData"`
	Width      float64        `json:"width" validate:"gte=0"`
	Height     float64        `json:"height" validate:"gte=0"`
}

// NewNode returns a node with layout defaults and an empty text output.
func NewNode(id, name string) *Node {
	return &Node{
		ID:          id,
		Name:        name,
		InputTypes:  []string{},
		OutputTypes: []string{},
		InputData:   []*value.Value{},
		OutputData:  value.Text(""),
		Width:       DefaultWidth,
		Height:      DefaultHeight,
	}
}

// UnmarshalJSON applies the same defaults as NewNode to absent fields.
func (n *Node) UnmarshalJSON(data []byte) error {
	type plain Node
	p := plain{
		OutputData: value.Text(""),
		Width:      DefaultWidth,
		Height:     DefaultHeight,
	}
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*n = Node(p)
	return nil
}

// Validate ensures node integrity
// PRINCIPLES:
// - SRP: Single responsibility - validation only
// - KISS: structural checks only, no graph context
func (n *Node) Validate() error {
	if n.ID == "" {
		return ErrInvalidNodeID
	}
	if !n.TriggerAction.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidTrigger, n.TriggerAction)
	}
	if !n.TransformType.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidTransform, n.TransformType)
	}
	if n.Width < 0 || n.Height < 0 {
		return ErrInvalidNodeGeometry
	}
	return nil
}

// Input returns the value stored in input slot i, if any.
func (n *Node) Input(i int) (value.Value, bool) {
	if i < 0 || i >= len(n.InputData) || n.InputData[i] == nil {
		return value.Null(), false
	}
	return *n.InputData[i], true
}

// SetInput stores v in slot i, growing the slot list with unset entries.
// Other slots are left untouched.
func (n *Node) SetInput(i int, v value.Value) {
	if i < 0 {
		panic(fmt.Sprintf("graph: negative input slot %d", i))
	}
	for len(n.InputData) <= i {
		n.InputData = append(n.InputData, nil)
	}
	n.InputData[i] = &v
}

// InputType returns the declared type of input port i.
func (n *Node) InputType(i int) (string, bool) {
	if i < 0 || i >= len(n.InputTypes) {
		return "", false
	}
	return n.InputTypes[i], true
}

// OutputType returns the declared type of output port i.
func (n *Node) OutputType(i int) (string, bool) {
	if i < 0 || i >= len(n.OutputTypes) {
		return "", false
	}
	return n.OutputTypes[i], true
}

// PortType returns the declared type of the port in direction dir.
func (n *Node) PortType(dir Direction, i int) (string, bool) {
	if dir == Input {
		return n.InputType(i)
	}
	return n.OutputType(i)
}

// IsAuto reports whether the node transforms on every input write.
func (n *Node) IsAuto() bool { return n.TriggerAction == TriggerAuto }

// UpdatePosition moves the node.
func (n *Node) UpdatePosition(x, y float64) {
	n.X = x
	n.Y = y
}

// UpdateDimensions resizes the node.
func (n *Node) UpdateDimensions(width, height float64) {
	n.Width = width
	n.Height = height
}

// UpdateOutputData replaces the node's output.
func (n *Node) UpdateOutputData(v value.Value) {
	n.OutputData = v
}

// Clone returns a deep copy sharing no slices with n.
func (n *Node) Clone() *Node {
	c := *n
	c.InputTypes = slices.Clone(n.InputTypes)
	c.OutputTypes = slices.Clone(n.OutputTypes)
	if n.InputData != nil {
		c.InputData = make([]*value.Value, len(n.InputData))
		for i, slot := range n.InputData {
			if slot != nil {
				v := *slot
				c.InputData[i] = &v
			}
		}
	}
	return &c
}
