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

package docstore

import (
	"github.com/pkg/errors"

	"github.com/couchkit/ldb/storage"
)

var (
	// ErrBadRequest covers malformed input: empty docID, a revID the
	// caller supplied where the store must assign one, a deletion
	// without prevRevID, or an unserializable body.
	ErrBadRequest = errors.New("docstore: bad request")
	// ErrNotFound covers a missing document or revision.
	ErrNotFound = errors.New("docstore: not found")
	// ErrConflict covers branching from a non-current revision, or
	// inserting a fresh document when a live one already exists.
	ErrConflict = errors.New("docstore: conflict")
	// ErrBusy covers a storage-engine busy/lock-timeout failure.
	ErrBusy = errors.New("docstore: storage busy")
	// ErrInternal covers any other storage-engine failure.
	ErrInternal = errors.New("docstore: internal error")
)

// Status numerics, CouchDB-style, used at the API surface even though
// this store is embedded and has no HTTP listener of its own.
const (
	StatusOK         = 200
	StatusCreated    = 201
	StatusBadRequest = 400
	StatusNotFound   = 404
	StatusConflict   = 409
	StatusInternal   = 500
)

// Status maps err (a sentinel above, or an error wrapping one via
// pkg/errors) to its HTTP-style numeric code. A nil err maps to 0.
func Status(err error) int {
	switch errors.Cause(err) {
	case nil:
		return 0
	case ErrBadRequest:
		return StatusBadRequest
	case ErrNotFound:
		return StatusNotFound
	case ErrConflict:
		return StatusConflict
	case ErrBusy, ErrInternal:
		return StatusInternal
	default:
		return StatusInternal
	}
}

// badRequest wraps msg as an ErrBadRequest.
func badRequest(msg string) error {
	return errors.Wrap(ErrBadRequest, msg)
}

// notFound wraps msg as an ErrNotFound.
func notFound(msg string) error {
	return errors.Wrap(ErrNotFound, msg)
}

// conflict wraps msg as an ErrConflict.
func conflict(msg string) error {
	return errors.Wrap(ErrConflict, msg)
}

// internal wraps cause as an ErrInternal, or as ErrBusy if cause is a
// storage-level busy/lock-timeout failure.
func internal(cause error) error {
	if errors.Cause(cause) == storage.ErrBusy {
		return errors.Wrap(ErrBusy, cause.Error())
	}
	return errors.Wrap(ErrInternal, cause.Error())
}
