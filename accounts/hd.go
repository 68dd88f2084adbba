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
	"fmt"
	"strconv"
	"strings"
)

// PurposeBIP44 and CoinTypeSolana form the fixed prefix of every derivation
// path this library handles. BIP-44 assigns purpose 44' to deterministic
// wallets, and SLIP-44 assigns coin type 501' to Solana. Only the suffix
// after these two components ever varies.
const (
	PurposeBIP44   = 44
	CoinTypeSolana = 501

	// HardenedOffset is the BIP-32 hardened derivation flag. Suffix
	// components are stored unhardened; device drivers apply the flag when
	// flattening a path onto the wire.
	HardenedOffset = 0x80000000
)

// DerivationPath represents the variable suffix of a BIP-44 Solana derivation
// path. The 44'/501' prefix is implied and never stored, so the empty path is
// valid and means "derive at the base path".
//
// The BIP-32 spec https://github.com/bitcoin/bips/blob/master/bip-0032.mediawiki
// defines derivation paths to be of the form:
//
//	m / purpose' / coin_type' / account' / change / address_index
//
// Solana tooling conventionally uses at most two suffix components (account
// and change) and hardens every component on the device side.
type DerivationPath []uint32

// ParseDerivationPath converts a user specified derivation path string to the
// internal binary representation.
//
// An optional leading `m` and an optional `44/501` (or `44'/501'`) prefix are
// stripped before validation; every remaining component must be a plain
// non-negative integer. Whitespace around components is ignored, anything
// else is rejected.
func ParseDerivationPath(path string) (DerivationPath, error) {
	components := strings.Split(path, "/")

	// Strip the optional `m` anchor
	if len(components) > 0 && strings.TrimSpace(components[0]) == "m" {
		components = components[1:]
	}
	// Strip the fixed purpose/coin-type prefix if the user spelled it out
	if len(components) >= 2 {
		first := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(components[0]), "'"))
		second := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(components[1]), "'"))
		if first == strconv.Itoa(PurposeBIP44) && second == strconv.Itoa(CoinTypeSolana) {
			components = components[2:]
		}
	}
	result := make(DerivationPath, 0, len(components))
	for _, component := range components {
		component = strings.TrimSpace(component)
		value, err := strconv.ParseUint(component, 10, 32)
		if err != nil || value >= HardenedOffset {
			return nil, &InvalidPathSegmentError{Path: path, Segment: component}
		}
		result = append(result, uint32(value))
	}
	return result, nil
}

// String implements the stringer interface, converting a binary derivation
// path to its canonical representation, e.g. 44'/501'/0/1.
func (path DerivationPath) String() string {
	result := fmt.Sprintf("%d'/%d'", PurposeBIP44, CoinTypeSolana)
	for _, component := range path {
		result = fmt.Sprintf("%s/%d", result, component)
	}
	return result
}

// MarshalJSON turns a derivation path into its json-serialized string
func (path DerivationPath) MarshalJSON() ([]byte, error) {
	return json.Marshal(path.String())
}

// UnmarshalJSON a json-serialized string back into a derivation path
func (path *DerivationPath) UnmarshalJSON(b []byte) error {
	var dp string
	var err error
	if err = json.Unmarshal(b, &dp); err != nil {
		return err
	}
	*path, err = ParseDerivationPath(dp)
	return err
}

// SearchSpace bounds the account discovery search. Depth bounds the value of
// each suffix component (0..Depth inclusive), Wide bounds the number of
// suffix components tried (0..Wide inclusive).
type SearchSpace struct {
	Depth uint32
	Wide  uint32
}

// DefaultSearchSpace reflects the BIP-44 account discovery convention (gap
// limit of 20) and Solana's convention of at most two variable suffix
// components. Callers widening or narrowing the search pass their own space.
var DefaultSearchSpace = SearchSpace{Depth: 20, Wide: 2}

// Iterator creates a lazy generator over every candidate suffix in the search
// space, ordered by increasing length and lexicographically within a length.
// The empty suffix is always produced first: it stands for the base path
// itself. A nil space produces nothing, which is the explicit "no search"
// signal rather than an error.
//
// The total number of candidates is 1 + sum((Depth+1)^l) for l in 1..Wide, so
// callers must keep the bounds tractable; the search is exhaustive, not
// pruned.
func (s *SearchSpace) Iterator() func() (DerivationPath, bool) {
	if s == nil {
		return func() (DerivationPath, bool) { return nil, false }
	}
	var (
		started bool
		done    bool
		indices []uint32
	)
	return func() (DerivationPath, bool) {
		if done {
			return nil, false
		}
		if !started {
			started = true
			return DerivationPath{}, true
		}
		if len(indices) == 0 {
			if s.Wide == 0 {
				done = true
				return nil, false
			}
			indices = make([]uint32, 1)
		} else {
			// Advance the odometer, growing the suffix when it wraps
			i := len(indices) - 1
			for ; i >= 0; i-- {
				if indices[i] < s.Depth {
					indices[i]++
					break
				}
				indices[i] = 0
			}
			if i < 0 {
				if len(indices) >= int(s.Wide) {
					done = true
					return nil, false
				}
				indices = make([]uint32, len(indices)+1)
			}
		}
		next := make(DerivationPath, len(indices))
		copy(next, indices)
		return next, true
	}
}

// Combinations materializes the full candidate sequence of the search space.
// It is meant for small spaces; the resolver consumes Iterator instead to
// bound memory on wide searches.
func (s *SearchSpace) Combinations() []DerivationPath {
	if s == nil {
		return nil
	}
	var result []DerivationPath
	next := s.Iterator()
	for {
		path, ok := next()
		if !ok {
			return result
		}
		result = append(result, path)
	}
}

// AccountDiscoverySpace derives the search space for account discovery from a
// user supplied path suffix. The user's hint can only widen the space, never
// narrow it: the resulting bounds are at least the defaults and at least what
// the hint itself implies, so a caller hinting at .../0/15 always gets depth
// >= 15 and wide >= 2.
func AccountDiscoverySpace(suffix DerivationPath, defaults SearchSpace) SearchSpace {
	space := defaults
	if wide := uint32(len(suffix)); wide > space.Wide {
		space.Wide = wide
	}
	for _, component := range suffix {
		if component > space.Depth {
			space.Depth = component
		}
	}
	return space
}
