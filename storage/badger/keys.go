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


package badger

import (
	"encoding/hex"

	"github.com/go-crypt/x/blake2b"
)

const (
	queryEmbeddingPrefix = "qemb"
	queryKeyHashSize     = 16
)

// makeQueryEmbeddingKey derives a fixed-size key from the model and text.
// The NUL separator keeps ("a", "bc") and ("ab", "c") apart.
func makeQueryEmbeddingKey(model, text string) []byte {
	h, _ := blake2b.New(queryKeyHashSize, nil)
	h.Write([]byte(model))
	h.Write([]byte{0})
	h.Write([]byte(text))
	return []byte(queryEmbeddingPrefix + ":" + hex.EncodeToString(h.Sum(nil)))
}
