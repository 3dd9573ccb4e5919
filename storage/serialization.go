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
	"bytes"
	"encoding/json"
	"fmt"
)

// Default serializer limits.
const (
	DefaultMaxBytes = 16 << 20
	DefaultMaxDepth = 64
)

// Serializer encodes and decodes persisted JSON within size and nesting
// limits. The zero value applies no limits.
type Serializer struct {
	MaxBytes int
	MaxDepth int
}

// DefaultSerializer returns a Serializer with the default limits.
func DefaultSerializer() *Serializer {
	return &Serializer{MaxBytes: DefaultMaxBytes, MaxDepth: DefaultMaxDepth}
}

// Marshal encodes v as indented JSON.
func (s *Serializer) Marshal(v any) ([]byte, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerialization, err)
	}
	return data, s.checkSize(data)
}

// MarshalCompact encodes v without indentation.
func (s *Serializer) MarshalCompact(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerialization, err)
	}
	return data, s.checkSize(data)
}

// Unmarshal decodes data into v after enforcing the limits.
func (s *Serializer) Unmarshal(data []byte, v any) error {
	if err := s.checkSize(data); err != nil {
		return err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return fmt.Errorf("%w: empty document", ErrSerialization)
	}
	if err := s.checkDepth(data); err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %w", ErrSerialization, err)
	}
	return nil
}

func (s *Serializer) checkSize(data []byte) error {
	if s.MaxBytes > 0 && len(data) > s.MaxBytes {
		return fmt.Errorf("%w: document is %d bytes, limit %d", ErrSerialization, len(data), s.MaxBytes)
	}
	return nil
}

// checkDepth rejects documents nested deeper than MaxDepth without decoding them.
func (s *Serializer) checkDepth(data []byte) error {
	if s.MaxDepth <= 0 {
		return nil
	}
	depth := 0
	inString, escaped := false, false
	for _, b := range data {
		if inString {
			switch {
			case escaped:
				escaped = false
			case b == '\\':
				escaped = true
			case b == '"':
				inString = false
			}
			continue
		}
		switch b {
		case '"':
			inString = true
		case '{', '[':
			depth++
			if depth > s.MaxDepth {
				return fmt.Errorf("%w: nesting exceeds depth %d", ErrSerialization, s.MaxDepth)
			}
		case '}', ']':
			depth--
		}
	}
	return nil
}
