// Package zierr defines Zi's tagged-variant error model: a small closed set
// of error kinds that every component returns instead of ad-hoc wrapped
// errors, so callers can branch on failure category.
package zierr

import "fmt"

// Kind identifies the category of a Zi error.
type Kind int

const (
	// KindValidation marks a configuration, schema, or argument error.
	KindValidation Kind = iota
	// KindOperator marks a failure attributed to a named operator.
	KindOperator
	// KindInternal marks an invariant violation or unexpected failure.
	KindInternal
	// KindSchema marks a malformed or unrecognized data shape.
	KindSchema
	// KindPipeline marks a failure attributed to a named pipeline stage.
	KindPipeline
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindOperator:
		return "operator"
	case KindInternal:
		return "internal"
	case KindSchema:
		return "schema"
	case KindPipeline:
		return "pipeline"
	default:
		return "unknown"
	}
}

// Error is Zi's error type. Operator and Pipeline kinds additionally carry
// the name of the operator/stage that failed.
type Error struct {
	Kind    Kind
	Name    string
	Message string
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindOperator:
		return fmt.Sprintf("operator %q: %s", e.Name, e.Message)
	case KindPipeline:
		return fmt.Sprintf("pipeline stage %q: %s", e.Name, e.Message)
	default:
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
}

// Validation constructs a Validation-kind error.
func Validation(format string, args ...any) error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// Operator constructs an Operator-kind error attributing failure to name.
func Operator(name, format string, args ...any) error {
	return &Error{Kind: KindOperator, Name: name, Message: fmt.Sprintf(format, args...)}
}

// Internal constructs an Internal-kind error.
func Internal(format string, args ...any) error {
	return &Error{Kind: KindInternal, Message: fmt.Sprintf(format, args...)}
}

// Schema constructs a Schema-kind error.
func Schema(format string, args ...any) error {
	return &Error{Kind: KindSchema, Message: fmt.Sprintf(format, args...)}
}

// Pipeline constructs a Pipeline-kind error attributing failure to stage.
func Pipeline(stage, format string, args ...any) error {
	return &Error{Kind: KindPipeline, Name: stage, Message: fmt.Sprintf(format, args...)}
}

// As reports whether err is a *Error and, if so, returns it.
func As(err error) (*Error, bool) {
	e, ok := err.(*Error)
	return e, ok
}

// WrapOperator normalizes any error returned from an operator's Apply into
// an Operator-kind error, the way the execution wrapper is required to.
func WrapOperator(name string, err error) error {
	if err == nil {
		return nil
	}
	if e, ok := As(err); ok && e.Kind == KindOperator && e.Name == name {
		return err
	}
	return Operator(name, "%s", err.Error())
}
