package validation

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/seehiong/micronaut-optimizer/internal/core/graph"
)

// Validate is the shared validator instance with the graph rules registered.
var Validate *validator.Validate

var nodeIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,100}$`)

func init() {
	Validate = validator.New(validator.WithRequiredStructEnabled())

	must(Validate.RegisterValidation("node_id", validateNodeID))
	must(Validate.RegisterValidation("port_id", validatePortID))
	must(Validate.RegisterValidation("trigger_action", validateTriggerAction))
	must(Validate.RegisterValidation("transform_type", validateTransformType))

	// Field names in errors follow the JSON tags.
	Validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return fld.Name
		}
		return name
	})
}

func must(err error) {
	if err != nil {
		panic(err)
	}
}

// Struct validates s against its validate tags and, when s implements
// Validator, its own checks.
func Struct(s any) error {
	if err := Validate.Struct(s); err != nil {
		return formatValidationErrors(err)
	}
	if v, ok := s.(Validator); ok {
		return v.Validate()
	}
	return nil
}

// formatValidationErrors converts validator errors to ValidationErrors.
func formatValidationErrors(err error) error {
	var fieldErrors validator.ValidationErrors
	if !errors.As(err, &fieldErrors) {
		return err
	}
	out := make(ValidationErrors, 0, len(fieldErrors))
	for _, fe := range fieldErrors {
		out = append(out, ValidationError{
			Field:   fieldPath(fe),
			Value:   fe.Value(),
			Message: getErrorMessage(fe),
		})
	}
	return out
}

// fieldPath drops the top-level struct name from the namespace.
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return fe.Field()
}

// getErrorMessage returns a human-readable error message
func getErrorMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "field is required"
	case "min":
		return fmt.Sprintf("minimum value/length is %s", fe.Param())
	case "max":
		return fmt.Sprintf("maximum value/length is %s", fe.Param())
	case "gte":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of: %s", fe.Param())
	case "uuid", "uuid4":
		return "must be a valid UUID"
	case "node_id":
		return "must be a valid node identifier (alphanumeric, underscore, hyphen)"
	case "port_id":
		return "must be a port identifier of the form <node>-<i|o><index>"
	case "trigger_action":
		return "must be null, S, A or O"
	case "transform_type":
		return "must be a known transform type"
	default:
		return fmt.Sprintf("validation failed: %s", fe.Tag())
	}
}

func validateNodeID(fl validator.FieldLevel) bool {
	return nodeIDPattern.MatchString(fl.Field().String())
}

func validatePortID(fl validator.FieldLevel) bool {
	_, err := graph.ParsePortID(graph.PortID(fl.Field().String()))
	return err == nil
}

func validateTriggerAction(fl validator.FieldLevel) bool {
	return graph.TriggerAction(fl.Field().String()).Valid()
}

func validateTransformType(fl validator.FieldLevel) bool {
	return graph.TransformType(fl.Field().String()).Valid()
}
