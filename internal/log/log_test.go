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

package log

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func TestWithFieldIncludesFieldInOutput(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	std.SetFormatter(&logrus.JSONFormatter{})
	require.NoError(t, SetLevel("debug"))

	WithField("docID", "d1").Debugf("put committed")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	require.Equal(t, "d1", entry["docID"])
	require.Equal(t, "put committed", entry["msg"])
}

func TestSetLevelRejectsUnknownLevel(t *testing.T) {
	require.Error(t, SetLevel("not-a-level"))
}

func TestWithErrorIncludesErrorField(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	std.SetFormatter(&logrus.JSONFormatter{})
	require.NoError(t, SetLevel("debug"))

	WithError(errBoom).Errorf("op failed")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	require.Equal(t, "boom", entry["error"])
}

var errBoom = &boomError{}

type boomError struct{}

func (*boomError) Error() string { return "boom" }
