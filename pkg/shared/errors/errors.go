/*
Copyright 2026 The Incident Core Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package errors provides the shared error vocabulary used across every
// component of the incident-response pipeline: a uniform "failed to do X
// because Y" wrapper, and sentinel-typed kinds callers can branch on with
// errors.Is instead of type assertions.
package errors

import (
	"errors"
	"fmt"
)

// OperationError describes a failed operation with optional component and
// resource context. Its Error() string is stable and is what ends up in
// structured log lines across the codebase.
type OperationError struct {
	Operation string
	Component string
	Resource  string
	Cause     error
}

func (e *OperationError) Error() string {
	msg := fmt.Sprintf("failed to %s", e.Operation)
	if e.Component != "" {
		msg += fmt.Sprintf(", component: %s", e.Component)
	}
	if e.Resource != "" {
		msg += fmt.Sprintf(", resource: %s", e.Resource)
	}
	if e.Cause != nil {
		msg += fmt.Sprintf(", cause: %v", e.Cause)
	}
	return msg
}

func (e *OperationError) Unwrap() error {
	return e.Cause
}

// FailedTo builds a minimal OperationError carrying only the action and its
// cause. Most call sites that don't need component/resource context use this.
func FailedTo(action string, cause error) *OperationError {
	return &OperationError{Operation: action, Cause: cause}
}

// FailedToWithDetails builds an OperationError with component and resource
// context attached, for call sites that want richer log/error output.
func FailedToWithDetails(action, component, resource string, cause error) *OperationError {
	return &OperationError{Operation: action, Component: component, Resource: resource, Cause: cause}
}

// Sentinel error kinds. Every kind wraps an *OperationError and
// is comparable with errors.Is against the matching sentinel below.
var (
	ErrTransientStorage    = errors.New("transient storage error")
	ErrInvalidState        = errors.New("invalid state transition")
	ErrSafetyViolation     = errors.New("safety rail violation")
	ErrProviderFailure     = errors.New("action provider failure")
	ErrAnalyzerUnavailable = errors.New("ai analyzer unavailable")
	ErrMalformedInput      = errors.New("malformed input")
)

// kindError wraps an *OperationError and a sentinel so errors.Is matches the
// kind while Error()/Unwrap keep the OperationError's behavior.
type kindError struct {
	*OperationError
	sentinel error
}

func (e *kindError) Is(target error) bool {
	return target == e.sentinel
}

func (e *kindError) Unwrap() error {
	// Unwrap to the cause, not the sentinel, so callers can still inspect
	// the underlying storage/provider error if they need to.
	return e.OperationError.Cause
}

func newKind(sentinel error, op *OperationError) error {
	return &kindError{OperationError: op, sentinel: sentinel}
}

// TransientStorage marks a KeyValueStore failure that should be retried once
// then dropped, never propagated to block detection.
func TransientStorage(action, resource string, cause error) error {
	return newKind(ErrTransientStorage, &OperationError{Operation: action, Component: "store", Resource: resource, Cause: cause})
}

// InvalidState marks an illegal action-lifecycle transition; it is returned
// to the caller and never mutates state.
func InvalidState(action, resource string, cause error) error {
	return newKind(ErrInvalidState, &OperationError{Operation: action, Component: "executor", Resource: resource, Cause: cause})
}

// SafetyViolation marks a safety-rail veto. The action stays pending.
func SafetyViolation(action, resource string, cause error) error {
	return newKind(ErrSafetyViolation, &OperationError{Operation: action, Component: "autonomy", Resource: resource, Cause: cause})
}

// ProviderFailure marks a failed action execution at the provider boundary.
func ProviderFailure(action, resource string, cause error) error {
	return newKind(ErrProviderFailure, &OperationError{Operation: action, Component: "provider", Resource: resource, Cause: cause})
}

// AnalyzerUnavailable marks a failed/timed-out call through the AI seam.
func AnalyzerUnavailable(action, resource string, cause error) error {
	return newKind(ErrAnalyzerUnavailable, &OperationError{Operation: action, Component: "aiseam", Resource: resource, Cause: cause})
}

// MalformedInput marks a record that failed validation or JSON decoding; the
// caller should skip it, never abort a loop.
func MalformedInput(action, resource string, cause error) error {
	return newKind(ErrMalformedInput, &OperationError{Operation: action, Component: "validation", Resource: resource, Cause: cause})
}
