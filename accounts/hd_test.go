// Copyright 2024 The ledger-utils Authors
// This file is part of the ledger-utils library.
//
// The ledger-utils library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The ledger-utils library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the ledger-utils library. If not, see <http://www.gnu.org/licenses/>.

package accounts

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseDerivationPath(t *testing.T) {
	tests := []struct {
		input  string
		output DerivationPath
	}{
		// Plain suffixes
		{"0", DerivationPath{0}},
		{"0/1", DerivationPath{0, 1}},
		{"3/7/11", DerivationPath{3, 7, 11}},

		// Optional anchors and prefixes are stripped
		{"44/501", DerivationPath{}},
		{"44'/501'", DerivationPath{}},
		{"m/44/501", DerivationPath{}},
		{"m/44'/501'/0/1", DerivationPath{0, 1}},
		{"44/501/0/15", DerivationPath{0, 15}},

		// Incidental whitespace around components is ignored
		{" 0 / 1 ", DerivationPath{0, 1}},
		{"m / 44 / 501 / 2", DerivationPath{2}},

		// Invalid inputs
		{"", nil},
		{"/", nil},
		{"0/x", nil},
		{"0//1", nil},
		{"0'/1", nil}, // hardened markers are only valid on the fixed prefix
		{"-1", nil},
		{"0/0x80000000", nil},
		{"rosie/cotton", nil},
	}
	for _, tt := range tests {
		path, err := ParseDerivationPath(tt.input)
		if tt.output == nil {
			require.Errorf(t, err, "input %q", tt.input)

			var segErr *InvalidPathSegmentError
			require.ErrorAs(t, err, &segErr, "input %q", tt.input)
			require.Equal(t, tt.input, segErr.Path)
			require.Contains(t, err.Error(), "a set of numbers delimited with")
			continue
		}
		require.NoErrorf(t, err, "input %q", tt.input)
		require.Equalf(t, tt.output, path, "input %q", tt.input)
	}
}

func TestDerivationPathString(t *testing.T) {
	require.Equal(t, "44'/501'", DerivationPath{}.String())
	require.Equal(t, "44'/501'/0", DerivationPath{0}.String())
	require.Equal(t, "44'/501'/0/1", DerivationPath{0, 1}.String())
}

func TestDerivationPathJSON(t *testing.T) {
	for _, path := range []DerivationPath{{}, {0}, {0, 15}} {
		blob, err := json.Marshal(path)
		require.NoError(t, err)

		var parsed DerivationPath
		require.NoError(t, json.Unmarshal(blob, &parsed))
		require.Equal(t, path, parsed)
	}
}

func TestSearchSpaceCombinations(t *testing.T) {
	// A nil space is the explicit "no search" signal
	var unset *SearchSpace
	require.Nil(t, unset.Combinations())

	// Minimal spaces enumerate exactly
	require.Equal(t,
		[]DerivationPath{{}},
		(&SearchSpace{Depth: 0, Wide: 0}).Combinations(),
	)
	require.Equal(t,
		[]DerivationPath{{}, {0}},
		(&SearchSpace{Depth: 0, Wide: 1}).Combinations(),
	)
	// Candidates are ordered by increasing length, lexicographic within one
	require.Equal(t,
		[]DerivationPath{
			{},
			{0}, {1}, {2},
			{0, 0}, {0, 1}, {0, 2},
			{1, 0}, {1, 1}, {1, 2},
			{2, 0}, {2, 1}, {2, 2},
		},
		(&SearchSpace{Depth: 2, Wide: 2}).Combinations(),
	)
}

func TestSearchSpaceCombinationCount(t *testing.T) {
	// |candidates| = 1 + sum((depth+1)^l) for l in 1..wide
	for depth := uint32(0); depth <= 4; depth++ {
		for wide := uint32(0); wide <= 3; wide++ {
			space := &SearchSpace{Depth: depth, Wide: wide}

			want := 1
			perLength := 1
			for l := uint32(1); l <= wide; l++ {
				perLength *= int(depth) + 1
				want += perLength
			}
			combos := space.Combinations()
			require.Lenf(t, combos, want, "depth %d wide %d", depth, wide)
			require.Equal(t, DerivationPath{}, combos[0])
		}
	}
}

func TestSearchSpaceIterator(t *testing.T) {
	space := &SearchSpace{Depth: 3, Wide: 2}

	var lazy []DerivationPath
	next := space.Iterator()
	for {
		path, ok := next()
		if !ok {
			break
		}
		lazy = append(lazy, path)
	}
	require.Equal(t, space.Combinations(), lazy)

	// Exhausted iterators stay exhausted
	path, ok := next()
	require.False(t, ok)
	require.Nil(t, path)
}

func TestAccountDiscoverySpace(t *testing.T) {
	tests := []struct {
		path     string
		defaults SearchSpace
		want     SearchSpace
	}{
		// The hint widens the depth beyond the default
		{"44/501/0/15", SearchSpace{Depth: 1, Wide: 2}, SearchSpace{Depth: 15, Wide: 2}},
		// The hint widens the width beyond the default
		{"44/501/1/0/0", SearchSpace{Depth: 20, Wide: 2}, SearchSpace{Depth: 20, Wide: 3}},
		// A hint smaller than the defaults changes nothing
		{"44/501/1", SearchSpace{Depth: 20, Wide: 2}, SearchSpace{Depth: 20, Wide: 2}},
		// No hint at all keeps the defaults
		{"44/501", SearchSpace{Depth: 20, Wide: 2}, SearchSpace{Depth: 20, Wide: 2}},
	}
	for _, tt := range tests {
		suffix, err := ParseDerivationPath(tt.path)
		require.NoError(t, err)
		require.Equalf(t, tt.want, AccountDiscoverySpace(suffix, tt.defaults), "path %q", tt.path)
	}
}
