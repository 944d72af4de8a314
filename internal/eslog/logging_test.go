/*
 * Copyright (c) SAS Institute Inc.
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

package eslog

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequest(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf).Level(zerolog.DebugLevel)
	now := fakeTime()

	t.Run("Failed", func(t *testing.T) {
		buf.Reset()
		r := StartRequest(logger, "AddContentFinish", WithClock(now))
		r.Logger().Warn().Msg("a message")
		r.AppendAccessLog(func(e *zerolog.Event) { e.Str("title", "00010000-48414141") })
		r.Finish(-1022)
		assert.Equal(t, `{"level":"warn","req":"AddContentFinish","message":"a message"}
{"level":"info","req":"AddContentFinish","rc":-1022,"dur":1000,"title":"00010000-48414141"}
`, buf.String())
	})
	t.Run("Succeeded", func(t *testing.T) {
		buf.Reset()
		r := StartRequest(logger.Level(zerolog.InfoLevel), "AddContentData", WithClock(now))
		r.Finish(0)
		assert.Empty(t, buf.String())
	})
	t.Run("DontLog", func(t *testing.T) {
		buf.Reset()
		r := StartRequest(logger, "AddTitleCancel", WithClock(now))
		r.DontLog()
		r.Finish(-1017)
		assert.Empty(t, buf.String())
	})
}

func TestSetupLogging(t *testing.T) {
	saved := log.Logger
	t.Cleanup(func() { log.Logger = saved })

	_, err := SetupLogging("loud", "-")
	assert.Error(t, err)

	name := filepath.Join(t.TempDir(), "estitle.log")
	closer, err := SetupLogging("warn", name)
	require.NoError(t, err)
	log.Info().Msg("dropped")
	log.Warn().Str("title", "00010000-48414141").Msg("kept")
	require.NoError(t, closer.Close())
	blob, err := os.ReadFile(name)
	require.NoError(t, err)
	assert.NotContains(t, string(blob), "dropped")
	assert.Contains(t, string(blob), `"message":"kept"`)
	assert.Contains(t, string(blob), `"level":"warn"`)
}

func fakeTime() func() time.Time {
	ts := time.Date(2001, 1, 1, 0, 0, 0, 0, time.UTC)
	return func() time.Time {
		ts = ts.Add(time.Second)
		return ts
	}
}
