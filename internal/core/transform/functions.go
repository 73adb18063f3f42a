package transform

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/seehiong/micronaut-optimizer/internal/core/value"
)

// MatrixOfDoubles accepts JSON text or a list and returns it when it is a
// rectangular list of number lists.
func MatrixOfDoubles(input value.Value) (value.Value, error) {
	m := input
	if s, ok := input.AsText(); ok {
		parsed, err := value.ParseString(s)
		if err != nil {
			return value.Null(), fmt.Errorf("%w: %v", ErrInvalidJSON, err)
		}
		m = parsed
	}
	if m.Kind() != value.KindList {
		return value.Null(), ErrNotMatrix
	}

	width := -1
	for i, row := range m.Items() {
		if row.Kind() != value.KindList {
			return value.Null(), fmt.Errorf("%w: row %d is %s", ErrNotMatrix, i, row.Kind())
		}
		for j, cell := range row.Items() {
			if cell.Kind() != value.KindNumber {
				return value.Null(), fmt.Errorf("%w: cell [%d][%d] is %s", ErrNotMatrix, i, j, cell.Kind())
			}
		}
		if width >= 0 && row.Len() != width {
			return value.Null(), fmt.Errorf("%w: row %d has %d cells, want %d", ErrRaggedMatrix, i, row.Len(), width)
		}
		width = row.Len()
	}
	return m, nil
}

// CastToString renders any value as text: null as "", lists space-joined,
// records as indented JSON, scalars in their native form.
func CastToString(input value.Value) value.Value {
	switch input.Kind() {
	case value.KindNull:
		return value.Text("")
	case value.KindList:
		parts := make([]string, input.Len())
		for i, item := range input.Items() {
			parts[i] = joinElement(item)
		}
		return value.Text(strings.Join(parts, " "))
	case value.KindRecord:
		return value.Text(input.PrettyJSON())
	default:
		return value.Text(scalarString(input))
	}
}

func joinElement(v value.Value) string {
	switch v.Kind() {
	case value.KindNull:
		return ""
	case value.KindList, value.KindRecord:
		return v.JSON()
	default:
		return scalarString(v)
	}
}

func scalarString(v value.Value) string {
	switch v.Kind() {
	case value.KindText:
		s, _ := v.AsText()
		return s
	case value.KindBool:
		b, _ := v.AsBool()
		return strconv.FormatBool(b)
	case value.KindNumber:
		n, _ := v.AsNumber()
		return value.FormatNumber(n)
	default:
		return v.JSON()
	}
}

// JSONFormatter wraps input as {outputType: {formatterKey: input}}.
func JSONFormatter(input value.Value, outputType, formatterKey string) (value.Value, error) {
	if outputType == "" {
		return input, ErrMissingOutputType
	}
	if formatterKey == "" {
		return input, ErrMissingFormatter
	}
	return value.Record(value.Field{
		Key:   outputType,
		Value: value.Record(value.Field{Key: formatterKey, Value: input}),
	}), nil
}

// SkippedItem describes an aggregator input that did not contribute.
type SkippedItem struct {
	Index int
	Err   error
}

// JSONAggregator shallow-merges the records found in items, left to right.
// Text items are parsed as JSON first. Unset slots are ignored; anything else
// that is not a record is skipped and reported.
func JSONAggregator(items []*value.Value) (value.Value, []SkippedItem) {
	acc := value.Record()
	var skipped []SkippedItem
	for i, slot := range items {
		if slot == nil {
			continue
		}
		item := *slot
		if s, ok := item.AsText(); ok {
			parsed, err := value.ParseString(s)
			if err != nil {
				skipped = append(skipped, SkippedItem{Index: i, Err: fmt.Errorf("%w: %v", ErrInvalidJSON, err)})
				continue
			}
			item = parsed
		}
		if item.Kind() != value.KindRecord {
			skipped = append(skipped, SkippedItem{Index: i, Err: fmt.Errorf("%w: got %s", ErrNotObject, item.Kind())})
			continue
		}
		acc = acc.Merge(item)
	}
	return acc, skipped
}

var tableSeparator = regexp.MustCompile(`\],\s*\[`)

// DumpOutput renders a value for display. Lists of lists are laid out on one
// line with tab separated rows; text passes through; anything else is
// indented JSON.
func DumpOutput(input value.Value) value.Value {
	if isListOfLists(input) {
		s := input.JSON()
		s = strings.ReplaceAll(s, "[[", "[\t[")
		s = strings.ReplaceAll(s, ",", ", ")
		s = tableSeparator.ReplaceAllString(s, "],\t[")
		return value.Text(s)
	}
	if input.Kind() == value.KindText {
		return input
	}
	return value.Text(input.PrettyJSON())
}

func isListOfLists(v value.Value) bool {
	if v.Kind() != value.KindList {
		return false
	}
	for _, row := range v.Items() {
		if row.Kind() != value.KindList {
			return false
		}
	}
	return true
}

var solverIDPattern = regexp.MustCompile(`(?i)[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}`)

// ExtractSolverID returns {solverId: id} taken from a solverId field or, failing
// that, from the first UUID inside a message field. The id is null when
// neither yields one.
func ExtractSolverID(input value.Value) value.Value {
	data := input
	if s, ok := input.AsText(); ok {
		if parsed, err := value.ParseString(s); err == nil {
			data = parsed
		} else {
			data = value.Record(value.Field{Key: "message", Value: input})
		}
	}

	if id, ok := data.Get("solverId"); ok && truthy(id) {
		return solverIDRecord(id)
	}
	if msg, ok := data.Get("message"); ok {
		if s, ok := msg.AsText(); ok {
			if match := solverIDPattern.FindString(s); match != "" {
				return solverIDRecord(value.Text(match))
			}
		}
	}
	return solverIDRecord(value.Null())
}

func solverIDRecord(id value.Value) value.Value {
	return value.Record(value.Field{Key: "solverId", Value: id})
}

func truthy(v value.Value) bool {
	switch v.Kind() {
	case value.KindNull:
		return false
	case value.KindBool:
		b, _ := v.AsBool()
		return b
	case value.KindNumber:
		n, _ := v.AsNumber()
		return n != 0 && !math.IsNaN(n)
	case value.KindText:
		s, _ := v.AsText()
		return s != ""
	default:
		return true
	}
}

// ExtractByKey reads inputs[0][key][subkey], where inputs is
// (jsonInput, key, subkey) and jsonInput may be JSON text. A stored null is
// returned as (null, nil); an absent path, or a falsy value under key
// (null, false, 0, ""), is ErrKeyNotFound.
func ExtractByKey(inputs []*value.Value) (value.Value, error) {
	if len(inputs) < 3 || inputs[0] == nil || inputs[1] == nil || inputs[2] == nil {
		return value.Null(), ErrMissingArgument
	}
	doc, key, subkey := *inputs[0], *inputs[1], *inputs[2]
	if !truthy(doc) || !truthy(key) || !truthy(subkey) {
		return value.Null(), ErrMissingArgument
	}

	if s, ok := doc.AsText(); ok {
		parsed, err := value.ParseString(s)
		if err != nil {
			return value.Null(), fmt.Errorf("%w: %v", ErrInvalidJSON, err)
		}
		doc = parsed
	}

	outer, err := lookup(doc, key)
	if err != nil {
		return value.Null(), err
	}
	if !truthy(outer) {
		return value.Null(), fmt.Errorf("%w: %s is %s", ErrKeyNotFound, scalarString(key), outer.JSON())
	}
	return lookup(outer, subkey)
}

// lookup indexes a record by text key or a list by numeric key.
func lookup(container, key value.Value) (value.Value, error) {
	var name string
	switch key.Kind() {
	case value.KindText:
		name, _ = key.AsText()
	case value.KindNumber:
		name = scalarString(key)
	default:
		return value.Null(), fmt.Errorf("%w: got %s", ErrUnsupportedKeyType, key.Kind())
	}

	switch container.Kind() {
	case value.KindRecord:
		if v, ok := container.Get(name); ok {
			return v, nil
		}
	case value.KindList:
		if idx, err := strconv.Atoi(name); err == nil {
			if v, ok := container.Index(idx); ok {
				return v, nil
			}
		}
	}
	return value.Null(), fmt.Errorf("%w: %q", ErrKeyNotFound, name)
}
