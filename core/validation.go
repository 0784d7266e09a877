// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package core

import (
	"fmt"
	"math"
)

// ValidateVector checks that v has exactly Dimensions components.
func ValidateVector(v []float32) error {
	if len(v) != Dimensions {
		return fmt.Errorf("%w: got %d, expected %d", ErrDimensionMismatch, len(v), Dimensions)
	}
	return nil
}

// SimilarityFromDistance converts a cosine distance in [0,2] into a
// similarity in [0,1]. Undefined distances (zero vectors) map to 0.
func SimilarityFromDistance(distance float64) float32 {
	if math.IsNaN(distance) || math.IsInf(distance, 0) {
		return 0
	}
	similarity := 1 - distance/2
	if similarity < 0 {
		return 0
	}
	if similarity > 1 {
		return 1
	}
	return float32(similarity)
}

// ZeroVector returns a vector of Dimensions zeros.
func ZeroVector() []float32 {
	return make([]float32, Dimensions)
}
