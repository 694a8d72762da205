// Package util provides logging helpers, string helpers and the error
// taxonomy shared by the exporter packages.
package util

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors. Every fatal condition of an export run unwraps to one of
// these.
var (
	ErrInvalidGraph    = errors.New("invalid topology graph")
	ErrTemplateMissing = errors.New("template not found")
	ErrTemplateRender  = errors.New("template rendering failed")
	ErrInvalidConfig   = errors.New("invalid configuration")
	ErrInvalidName     = errors.New("invalid topology name")
	ErrOutput          = errors.New("cannot write output")
	ErrInventory       = errors.New("inventory request failed")
)

// GraphError is a malformed-graph condition attached to a single node.
type GraphError struct {
	NodeID int
	Field  string
	Reason string
}

func (e *GraphError) Error() string {
	msg := fmt.Sprintf("incomplete data to build topology: node %d", e.NodeID)
	if e.Field != "" {
		msg += fmt.Sprintf(": %q key is missing", e.Field)
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

func (e *GraphError) Unwrap() error {
	return ErrInvalidGraph
}

// NewGraphError creates a graph error. Either field or reason may be empty.
func NewGraphError(nodeID int, field, reason string) *GraphError {
	return &GraphError{NodeID: nodeID, Field: field, Reason: reason}
}

// ValidationError represents one or more configuration validation failures
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	if len(e.Errors) == 1 {
		return "invalid configuration: " + e.Errors[0]
	}
	return fmt.Sprintf("invalid configuration:\n  - %s", strings.Join(e.Errors, "\n  - "))
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidConfig
}

// ValidationBuilder helps accumulate validation errors
type ValidationBuilder struct {
	errors []string
}

// Add adds an error message if condition is false
func (v *ValidationBuilder) Add(condition bool, message string) *ValidationBuilder {
	if !condition {
		v.errors = append(v.errors, message)
	}
	return v
}

// AddErrorf adds a formatted error message
func (v *ValidationBuilder) AddErrorf(format string, args ...interface{}) *ValidationBuilder {
	v.errors = append(v.errors, fmt.Sprintf(format, args...))
	return v
}

// Build returns the validation error or nil if no errors
func (v *ValidationBuilder) Build() error {
	if len(v.errors) == 0 {
		return nil
	}
	return &ValidationError{Errors: v.errors}
}

// OutputError wraps a filesystem failure for a produced artifact.
type OutputError struct {
	Path string
	Err  error
}

func (e *OutputError) Error() string {
	return fmt.Sprintf("can't write into %s: %v", e.Path, e.Err)
}

func (e *OutputError) Unwrap() []error {
	return []error{ErrOutput, e.Err}
}
