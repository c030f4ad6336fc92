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

// Package imagediff best-effort enriches the deployment risk analyzer's
// change-magnitude factor by comparing two image
// references' registry config digests and layer counts. It is never a hard
// dependency: any registry error (network-denied CI, private registry
// without credentials, unparsable reference) degrades to
// Result{Comparable: false} so the caller falls back to the tag-string
// heuristic.
package imagediff

import (
	"context"

	"github.com/google/go-containerregistry/pkg/name"
	"github.com/google/go-containerregistry/pkg/v1/remote"
)

// Result is the outcome of comparing two image references.
type Result struct {
	// Comparable reports whether both references resolved against the
	// registry; when false every other field is meaningless.
	Comparable bool
	// DigestIdentical is true when the two images' config digests match
	// (a retag with no content change).
	DigestIdentical bool
	// LayerCountDelta is the absolute difference in layer count between
	// the two images, used as a coarse proxy for "how many layers
	// changed".
	LayerCountDelta int
}

// Compare resolves prevRef and newRef against their registries and reports
// how different their image configs are. ctx governs every registry call.
func Compare(ctx context.Context, prevRef, newRef string) Result {
	prevDigest, prevLayers, err := inspect(ctx, prevRef)
	if err != nil {
		return Result{Comparable: false}
	}
	newDigest, newLayers, err := inspect(ctx, newRef)
	if err != nil {
		return Result{Comparable: false}
	}

	delta := newLayers - prevLayers
	if delta < 0 {
		delta = -delta
	}
	return Result{
		Comparable:      true,
		DigestIdentical: prevDigest == newDigest,
		LayerCountDelta: delta,
	}
}

func inspect(ctx context.Context, ref string) (digest string, layerCount int, err error) {
	r, err := name.ParseReference(ref)
	if err != nil {
		return "", 0, err
	}
	img, err := remote.Image(r, remote.WithContext(ctx))
	if err != nil {
		return "", 0, err
	}
	cfgHash, err := img.ConfigName()
	if err != nil {
		return "", 0, err
	}
	layers, err := img.Layers()
	if err != nil {
		return "", 0, err
	}
	return cfgHash.String(), len(layers), nil
}

// AdjustMagnitude applies Result to a base change-magnitude score computed
// from the tag-string heuristic: a digest-identical
// retag is downgraded towards "patch"-level risk, and a multi-layer config
// diff is nudged up. A non-comparable Result leaves base untouched.
func AdjustMagnitude(base float64, r Result) float64 {
	if !r.Comparable {
		return base
	}
	if r.DigestIdentical {
		if base > 20 {
			return 20
		}
		return base
	}
	if r.LayerCountDelta > 1 {
		adjusted := base + 10
		if adjusted > 100 {
			return 100
		}
		return adjusted
	}
	return base
}
