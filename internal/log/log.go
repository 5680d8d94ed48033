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

// Package log wraps logrus with the field conventions the rest of ldb
// uses: docID, revID, sequence.
package log

import (
	"io"

	"github.com/sirupsen/logrus"
)

// Fields is an alias for logrus.Fields, kept so callers never import
// logrus directly.
type Fields = logrus.Fields

// Entry wraps a logrus entry.
type Entry = logrus.Entry

var std = logrus.StandardLogger()

// SetOutput redirects the standard logger.
func SetOutput(w io.Writer) { std.SetOutput(w) }

// SetLevel sets the standard logger's level by name ("debug", "info", ...).
func SetLevel(level string) error {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return err
	}
	std.SetLevel(lvl)
	return nil
}

// WithField starts a chained entry with a single field.
func WithField(key string, value interface{}) *Entry {
	return std.WithField(key, value)
}

// WithFields starts a chained entry with several fields.
func WithFields(fields Fields) *Entry {
	return std.WithFields(fields)
}

// WithError starts a chained entry carrying err.
func WithError(err error) *Entry {
	return std.WithError(err)
}

// Debugf logs at debug level.
func Debugf(format string, args ...interface{}) { std.Debugf(format, args...) }

// Infof logs at info level.
func Infof(format string, args ...interface{}) { std.Infof(format, args...) }

// Warnf logs at warn level.
func Warnf(format string, args ...interface{}) { std.Warnf(format, args...) }

// Errorf logs at error level.
func Errorf(format string, args ...interface{}) { std.Errorf(format, args...) }
