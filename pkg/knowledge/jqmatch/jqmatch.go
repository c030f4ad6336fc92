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

// Package jqmatch evaluates a knowledge-base symptom's "matches" condition
//: user-added patterns may supply a gojq filter string
// as a symptom's value, run against the anomaly/log record marshaled to
// interface{}. This is additive to the five built-in symptom conditions —
// built-in patterns never use it — and never fails loudly: an uncompilable
// or erroring filter is treated as non-matching.
package jqmatch

import (
	"encoding/json"
	"sync"

	"github.com/itchyny/gojq"
)

// compiled caches parsed filters so a pattern that's matched against every
// incoming anomaly doesn't reparse its filter string each time.
var compiled sync.Map // string -> *gojq.Query

func compile(filter string) (*gojq.Query, error) {
	if v, ok := compiled.Load(filter); ok {
		return v.(*gojq.Query), nil
	}
	q, err := gojq.Parse(filter)
	if err != nil {
		return nil, err
	}
	compiled.Store(filter, q)
	return q, nil
}

// Matches reports whether filter, run against record, yields a truthy gojq
// result. record is JSON-marshaled first so struct fields are visible to
// the filter as a plain map the way a hand-written gojq expression expects
// (e.g. ".severity == \"critical\""). A compile error, evaluation error, or
// non-boolean result all count as non-matching rather than an error the
// caller has to handle.
func Matches(filter string, record interface{}) bool {
	if filter == "" {
		return false
	}
	q, err := compile(filter)
	if err != nil {
		return false
	}
	doc, err := toDoc(record)
	if err != nil {
		return false
	}
	iter := q.Run(doc)
	v, ok := iter.Next()
	if !ok {
		return false
	}
	if _, isErr := v.(error); isErr {
		return false
	}
	b, _ := v.(bool)
	return b
}

func toDoc(record interface{}) (interface{}, error) {
	raw, err := json.Marshal(record)
	if err != nil {
		return nil, err
	}
	var doc interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}
