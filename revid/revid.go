/*
 * Copyright 2018 The CovenantSQL Authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package revid implements the opaque revision identifier format
// "<generation>-<digest>", its parsing, and its generation.
package revid

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
	uuid "github.com/satori/go.uuid"
)

// ErrMalformed is returned by Parse when s does not match
// "^[0-9]+-.+$".
var ErrMalformed = errors.New("revid: malformed revision id")

// Parsed holds the two parts of a parsed revision id.
type Parsed struct {
	Generation int
	Digest     string
}

// Parse splits s at its first '-' and validates that the prefix parses
// as a positive integer generation. The digest is everything after the
// first '-' and may itself contain '-' characters.
func Parse(s string) (p Parsed, err error) {
	idx := strings.IndexByte(s, '-')
	if idx <= 0 || idx == len(s)-1 {
		return p, errors.WithStack(ErrMalformed)
	}

	gen, convErr := strconv.Atoi(s[:idx])
	if convErr != nil || gen < 1 {
		return p, errors.WithStack(ErrMalformed)
	}

	p.Generation = gen
	p.Digest = s[idx+1:]
	return p, nil
}

// Generation returns the generation of a well-formed revid, or 0 if s
// does not parse.
func Generation(s string) int {
	p, err := Parse(s)
	if err != nil {
		return 0
	}
	return p.Generation
}

// Next returns the revid that follows prevRevID (empty for a new
// document's first revision). The digest is a random token — distinct
// puts of identical bodies yield distinct revids, matching the
// original Couchbase Lite behavior of not content-addressing bodies.
// bodyDigest is accepted for interface symmetry with a hypothetical
// content-addressed implementation but is not folded into the token;
// see DESIGN.md's Open Question 1.
func Next(prevRevID string, bodyDigest []byte) (string, error) {
	gen := 1
	if prevRevID != "" {
		p, err := Parse(prevRevID)
		if err != nil {
			return "", err
		}
		gen = p.Generation + 1
	}

	token, err := uuid.NewV4()
	if err != nil {
		return "", errors.Wrap(err, "revid: generate digest")
	}

	return strconv.Itoa(gen) + "-" + strings.ReplaceAll(token.String(), "-", ""), nil
}
