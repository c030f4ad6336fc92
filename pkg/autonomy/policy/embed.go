package policy

import _ "embed"

// DefaultPolicySource is the compiled-in safety_rails.rego, used whenever
// Config.PolicyPath is empty.
//
//go:embed safety_rails.rego
var DefaultPolicySource string
