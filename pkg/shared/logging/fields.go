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

// Package logging provides a small structured-field builder shared by every
// component so log lines have a uniform shape regardless of which package
// emits them. Fields is a map rather than a zap.Field slice so components
// that don't depend on zap directly (pure algorithmic packages) can still
// build fields and hand them to a logger at the boundary.
package logging

import (
	"time"

	"go.uber.org/zap"
)

// Fields is an ordered set of structured log attributes.
type Fields map[string]interface{}

// NewFields starts an empty field set.
func NewFields() Fields {
	return Fields{}
}

// Component tags which component emitted the log line (e.g. "detector",
// "autonomy").
func (f Fields) Component(name string) Fields {
	f["component"] = name
	return f
}

// Operation tags the operation in progress (e.g. "record_outcome").
func (f Fields) Operation(op string) Fields {
	f["operation"] = op
	return f
}

// Resource tags the kind and, if known, the name of the resource being
// acted on. An empty name omits resource_name rather than logging an empty
// string.
func (f Fields) Resource(kind, name string) Fields {
	f["resource_type"] = kind
	if name != "" {
		f["resource_name"] = name
	}
	return f
}

// Duration records an elapsed time in milliseconds.
func (f Fields) Duration(d time.Duration) Fields {
	f["duration_ms"] = d.Milliseconds()
	return f
}

// Error records err.Error() under "error"; a nil error leaves the field set
// untouched so callers can unconditionally chain .Error(err).
func (f Fields) Error(err error) Fields {
	if err != nil {
		f["error"] = err.Error()
	}
	return f
}

// UserID records the acting/approving principal, when known.
func (f Fields) UserID(id string) Fields {
	if id != "" {
		f["user_id"] = id
	}
	return f
}

// RequestID records a correlation/request identifier, when known.
func (f Fields) RequestID(id string) Fields {
	if id != "" {
		f["request_id"] = id
	}
	return f
}

// Service tags the affected service name.
func (f Fields) Service(name string) Fields {
	if name != "" {
		f["service"] = name
	}
	return f
}

// Zap converts Fields into zap.Field slice for use with a *zap.Logger.
func (f Fields) Zap() []zap.Field {
	out := make([]zap.Field, 0, len(f))
	for k, v := range f {
		out = append(out, zap.Any(k, v))
	}
	return out
}
