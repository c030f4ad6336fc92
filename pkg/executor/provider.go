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

package executor

import (
	"context"
	"errors"
	"fmt"

	"github.com/ai-autopilot/incident-core/pkg/types"
)

// errActionNotFound is the cause wrapped by sharederrors.InvalidState when
// an action ID has no record in the store.
var errActionNotFound = errors.New("action not found")

// errInvalidTransition reports an attempted state transition that the
// Action state machine forbids.
func errInvalidTransition(from, to types.ActionStatus) error {
	return fmt.Errorf("cannot move action from %q to %q", from, to)
}

// noopProvider is the conservative default used when no provider is
// registered for an action's category: it always reports failure rather
// than silently pretending to have remediated anything.
type noopProvider struct{}

func (noopProvider) Execute(_ context.Context, actionType string, _ map[string]interface{}) (types.ActionResult, error) {
	return types.ActionResult{
		Success:         false,
		Message:         fmt.Sprintf("no provider registered for action type %q", actionType),
		DurationSeconds: 0,
	}, nil
}

var _ Provider = noopProvider{}
