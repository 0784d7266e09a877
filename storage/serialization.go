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


package storage

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"

	"github.com/poiesic/tickerscout/core"
)

// MarshalVector serializes a vector to little-endian float32 bytes.
func MarshalVector(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// UnmarshalVector deserializes little-endian float32 bytes.
func UnmarshalVector(data []byte) ([]float32, error) {
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("%w: %w: %d bytes is not a multiple of 4",
			ErrSerializationFailed, ErrTruncatedData, len(data))
	}
	v := make([]float32, len(data)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return v, nil
}

// UnmarshalEmbedding deserializes a blob and checks it holds exactly
// core.Dimensions components.
func UnmarshalEmbedding(data []byte) ([]float32, error) {
	v, err := UnmarshalVector(data)
	if err != nil {
		return nil, err
	}
	if err := core.ValidateVector(v); err != nil {
		return nil, err
	}
	return v, nil
}

// BackendFor selects a backend from a connection string. Strings with a
// "file:" scheme, or bare paths ending in .db or .sqlite, select SQLite.
// Everything else selects PostgreSQL.
func BackendFor(dsn string) (string, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return "", fmt.Errorf("%w: empty connection string", ErrUnknownBackend)
	}
	if strings.HasPrefix(dsn, "file:") {
		return BackendSQLite, nil
	}
	if !strings.Contains(dsn, "://") {
		lower := strings.ToLower(dsn)
		if strings.HasSuffix(lower, ".db") || strings.HasSuffix(lower, ".sqlite") {
			return BackendSQLite, nil
		}
	}
	return BackendPostgres, nil
}

// SQLitePath strips the "file:" scheme and any query parameters from a
// SQLite connection string.
func SQLitePath(dsn string) string {
	path := strings.TrimPrefix(strings.TrimSpace(dsn), "file:")
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	return path
}
