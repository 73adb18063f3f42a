// Package invocation holds what the external invocation adapters share.
//
// The adapters themselves live in subpackages: stream for the solver event
// stream, openai and ollama for the two single-shot language model variants.
package invocation

import (
	"errors"

	"github.com/seehiong/micronaut-optimizer/internal/core/value"
)

// ErrEmptyResult is returned when a provider answers without a result.
var ErrEmptyResult = errors.New("provider returned no result")

// ComposePrompt builds the single-shot request text: the instruction, then
// the payload as indented JSON between ### fences.
func ComposePrompt(instruction string, payload value.Value) string {
	return instruction + "\n\nData:\n\n###" + payload.PrettyJSON() + "###"
}
