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

// Package catalog loads the title catalog JSON files (spec §6) and the
// per-title category sidecar (spec §4.2, §9).
package catalog

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
)

// Title is one entry in a catalog file, sourced from JSON and treated as
// immutable (spec §3).
type Title struct {
	// AID is the opaque 64-bit title id ("aid" in the catalog JSON).
	AID int64 `json:"aid"`
	Name string `json:"name"`
	// Key is the hex-encoded access key (shared secret).
	Key string `json:"key"`
	// NEX is the protocol version triple [major, minor, patch].
	NEX [3]int `json:"nex"`
	// AV is the app version.
	AV int `json:"av"`
	// ID is an optional numeric identifier, distinct from AID.
	ID *int `json:"id,omitempty"`
	// HasDataStore / NEXDS both indicate DataStore capability; either key
	// may be present in a given catalog file.
	HasDataStore bool `json:"has_datastore,omitempty"`
	NEXDS        bool `json:"nexds,omitempty"`
}

// SupportsDataStore reports whether this title exposes the DataStore
// subsystem.
func (t Title) SupportsDataStore() bool {
	return t.HasDataStore || t.NEXDS
}

// AccessKeyBytes decodes the hex access key.
func (t Title) AccessKeyBytes() ([]byte, error) {
	b, err := hex.DecodeString(t.Key)
	if err != nil {
		return nil, fmt.Errorf("catalog: title %d: decode access key: %w", t.AID, err)
	}
	return b, nil
}

// Load reads a catalog JSON file: an object carrying a top-level "games"
// array of Title entries (e.g. nexwiiu.json/nex3ds.json).
func Load(path string) ([]Title, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: open %s: %w", path, err)
	}
	defer f.Close()
	return Decode(f)
}

// catalogFile mirrors the real catalog file's {"games": [...]} wrapper.
type catalogFile struct {
	Games []Title `json:"games"`
}

// Decode parses a catalog JSON document from r.
func Decode(r io.Reader) ([]Title, error) {
	var doc catalogFile
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("catalog: decode: %w", err)
	}
	return doc.Games, nil
}

// Slice returns titles[start:stop], clamped to the catalog's bounds, mapping
// onto the CLI's "start/stop indices into the catalog" arguments (spec §6).
func Slice(titles []Title, start, stop int) []Title {
	if start < 0 {
		start = 0
	}
	if stop > len(titles) || stop < 0 {
		stop = len(titles)
	}
	if start >= stop {
		return nil
	}
	return titles[start:stop]
}

// IntersectAIDs returns the AIDs present in both catalogs, sorted ascending.
// This is the `check_overlap` subcommand's entire job: the original compares
// the Wii U and 3DS catalogs (nexwiiu.json, nex3ds.json) this way to find
// titles shared across both platforms.
func IntersectAIDs(a, b []Title) []int64 {
	inA := make(map[int64]struct{}, len(a))
	for _, t := range a {
		inA[t.AID] = struct{}{}
	}

	seen := make(map[int64]struct{})
	var out []int64
	for _, t := range b {
		if _, ok := inA[t.AID]; !ok {
			continue
		}
		if _, dup := seen[t.AID]; dup {
			continue
		}
		seen[t.AID] = struct{}{}
		out = append(out, t.AID)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
