// Copyright 2026 The Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//     http://www.apache.org/licenses/LICENSE-2.0
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package catalog

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// ExtraCategories is the sidecar file format for the one title (spec §4.2,
// §9) whose valid category set must be seeded with a hard-coded list of
// hash-like 32-bit values the server never confirms via probing. Keeping
// this as YAML data instead of a Go literal keeps the 63 magic numbers out
// of code, per spec §9.
type ExtraCategories struct {
	// TitleID keyed entries; each value is a list of category ids to seed
	// unconditionally, in addition to whatever the prober finds.
	Titles map[int64][]uint32 `yaml:"titles"`
}

// LoadExtraCategories reads the sidecar file. A missing file is not an
// error: it means no title needs seeding.
func LoadExtraCategories(path string) (ExtraCategories, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return ExtraCategories{}, nil
		}
		return ExtraCategories{}, fmt.Errorf("catalog: open category sidecar: %w", err)
	}
	defer f.Close()
	return DecodeExtraCategories(f)
}

// DecodeExtraCategories parses the sidecar YAML document from r.
func DecodeExtraCategories(r io.Reader) (ExtraCategories, error) {
	var ec ExtraCategories
	if err := yaml.NewDecoder(r).Decode(&ec); err != nil && err != io.EOF {
		return ExtraCategories{}, fmt.Errorf("catalog: decode category sidecar: %w", err)
	}
	return ec, nil
}

// For returns the seeded categories for a title, or nil if none.
func (ec ExtraCategories) For(titleID int64) []uint32 {
	return ec.Titles[titleID]
}
