// Package transform defines domain-specific errors
package transform

import "errors"

var (
	ErrNotMatrix          = errors.New("input must be a 2D array of numbers")
	ErrRaggedMatrix       = errors.New("matrix rows differ in length")
	ErrMissingOutputType  = errors.New("node declares no output type")
	ErrMissingFormatter   = errors.New("node declares no formatter key")
	ErrNotObject          = errors.New("item is not a JSON object")
	ErrInvalidJSON        = errors.New("invalid JSON text")
	ErrMissingArgument    = errors.New("missing required input: jsonInput, key, or subkey")
	ErrKeyNotFound        = errors.New("key path not found")
	ErrUnsupportedKeyType = errors.New("key must be text or a number")
)
