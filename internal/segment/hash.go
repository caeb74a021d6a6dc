// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2023 HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package segment

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"slices"
)

// Hash is the short content digest of a segment: the first 12 hex characters
// of a SHA-256 over the segment's construct identity, its dependencies'
// hashes, and its metadata.
//
// Twelve characters give a 48-bit space, which is plenty to avoid collisions
// within a single session's artifact cache while keeping artifact filenames
// readable.
//
// Callers outside of this package must not create Hash values via direct
// conversion. Hashes are produced by [New] and [Segment.Rehash], or recovered
// from persisted graphs via [ParseHash].
type Hash string

// NilHash is the zero value of Hash, representing the absence of a hash.
const NilHash = Hash("")

// hashLen is the number of hex characters retained from the full digest.
const hashLen = 12

// ParseHash validates the string representation of a Hash, for use when
// reloading persisted graph snapshots.
//
// If this function returns an error then the returned Hash is invalid and
// must not be used.
func ParseHash(s string) (Hash, error) {
	if len(s) != hashLen {
		return NilHash, fmt.Errorf("hash string must be exactly %d characters long", hashLen)
	}
	for _, c := range s {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return NilHash, fmt.Errorf("hash string must contain only lowercase hex characters")
		}
	}
	return Hash(s), nil
}

// hashContent computes the content hash for a segment from its constituent
// parts. The input is assembled in a fixed order so that the result is a pure
// function of its arguments:
//
//  1. the construct's stable content tag
//  2. each (dependency id, dependency hash) pair, sorted by id
//  3. each metadata key/value pair, sorted by key
//
// Dependencies without a known hash contribute an empty hash string, which is
// how a freshly-created segment gets its placeholder hash before it is added
// to a graph.
func hashContent(constructTag string, deps []ID, depHashes map[ID]Hash, metadata map[string]string) Hash {
	var buf strings.Builder

	buf.WriteString("construct:")
	buf.WriteString(constructTag)
	buf.WriteByte('\n')

	sortedDeps := slices.Clone(deps)
	slices.Sort(sortedDeps)
	for _, dep := range sortedDeps {
		buf.WriteString("dep:")
		buf.WriteString(string(dep))
		buf.WriteByte(':')
		buf.WriteString(string(depHashes[dep]))
		buf.WriteByte('\n')
	}

	metaKeys := make([]string, 0, len(metadata))
	for k := range metadata {
		metaKeys = append(metaKeys, k)
	}
	slices.Sort(metaKeys)
	for _, k := range metaKeys {
		buf.WriteString("meta:")
		buf.WriteString(k)
		buf.WriteByte('=')
		buf.WriteString(metadata[k])
		buf.WriteByte('\n')
	}

	sum := sha256.Sum256([]byte(buf.String()))
	return Hash(hex.EncodeToString(sum[:])[:hashLen])
}
