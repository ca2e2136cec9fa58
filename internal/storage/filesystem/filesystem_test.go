/*
Copyright © 2025 Denis Khalturin
All rights reserved.

Redistribution and use in source and binary forms, with or without
modification, are permitted provided that the following conditions are met:

1. Redistributions of source code must retain the above copyright notice,
   this list of conditions and the following disclaimer.

2. Redistributions in binary form must reproduce the above copyright notice,
   this list of conditions and the following disclaimer in the documentation
   and/or other materials provided with the distribution.

3. Neither the name of the copyright holder nor the names of its contributors
   may be used to endorse or promote products derived from this software
   without specific prior written permission.

THIS SOFTWARE IS PROVIDED BY THE COPYRIGHT HOLDERS AND CONTRIBUTORS "AS IS"
AND ANY EXPRESS OR IMPLIED WARRANTIES, INCLUDING, BUT NOT LIMITED TO, THE
IMPLIED WARRANTIES OF MERCHANTABILITY AND FITNESS FOR A PARTICULAR PURPOSE
ARE DISCLAIMED. IN NO EVENT SHALL THE COPYRIGHT HOLDER OR CONTRIBUTORS BE
LIABLE FOR ANY DIRECT, INDIRECT, INCIDENTAL, SPECIAL, EXEMPLARY, OR
CONSEQUENTIAL DAMAGES (INCLUDING, BUT NOT LIMITED TO, PROCUREMENT OF
SUBSTITUTE GOODS OR SERVICES; LOSS OF USE, DATA, OR PROFITS; OR BUSINESS
INTERRUPTION) HOWEVER CAUSED AND ON ANY THEORY OF LIABILITY, WHETHER IN
CONTRACT, STRICT LIABILITY, OR TORT (INCLUDING NEGLIGENCE OR OTHERWISE)
ARISING IN ANY WAY OUT OF THE USE OF THIS SOFTWARE, EVEN IF ADVISED OF THE
POSSIBILITY OF SUCH DAMAGE.
*/
// prettier-ignore-end
package filesystem

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jacs/internal/storage/types"
)

func newTestStorage(t *testing.T) (types.Storage, string) {
	t.Helper()

	dir := filepath.Join(t.TempDir(), "data")

	s, err := New(context.Background(),
		types.WithAppID("test-app"),
		types.WithDataDir(dir),
	)
	require.NoError(t, err)

	return s, dir
}

func TestNewRequiresDataDir(t *testing.T) {
	_, err := New(context.Background())
	require.Error(t, err)
}

func TestNewCreatesDataDir(t *testing.T) {
	_, dir := newTestStorage(t)

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestPutGetDocument(t *testing.T) {
	s, dir := newTestStorage(t)
	ctx := context.Background()

	doc := types.StoredDocument{ID: "id-1", Version: "v-1", Raw: []byte(`{"a": 1}`)}
	require.NoError(t, s.PutDocument(ctx, doc))

	// the document lands as a plain JSON file, and no temp files are left behind
	entries, err := os.ReadDir(filepath.Join(dir, "id-1"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "v-1.json", entries[0].Name())

	got, err := s.GetDocument(ctx, "id-1", "v-1")
	require.NoError(t, err)
	assert.Equal(t, doc.Raw, got.Raw)

	_, err = s.GetDocument(ctx, "id-1", "v-2")
	assert.ErrorIs(t, err, types.ErrNotFound)

	_, err = s.GetDocument(ctx, "missing", "v-1")
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestListVersions(t *testing.T) {
	s, _ := newTestStorage(t)
	ctx := context.Background()

	for i, version := range []string{"v-1", "v-2", "v-3"} {
		require.NoError(t, s.PutDocument(ctx, types.StoredDocument{
			ID: "id-1", Version: version, Raw: []byte("{}"),
		}))

		// mtime resolution on some filesystems is coarse
		if i < 2 {
			time.Sleep(10 * time.Millisecond)
		}
	}

	versions, err := s.ListVersions(ctx, "id-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"v-1", "v-2", "v-3"}, versions)

	_, err = s.ListVersions(ctx, "missing")
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestProbes(t *testing.T) {
	s, dir := newTestStorage(t)

	for name, probe := range map[string]func(http.ResponseWriter, *http.Request){
		"liveness":  s.ProbeLiveness(),
		"readiness": s.ProbeReadiness(),
		"startup":   s.ProbeStartup(),
	} {
		t.Run(name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			probe(rec, httptest.NewRequest(http.MethodGet, "/", nil))
			assert.Equal(t, http.StatusOK, rec.Code)
		})
	}

	// losing the data directory turns the liveness probe unhealthy
	require.NoError(t, os.RemoveAll(dir))

	rec := httptest.NewRecorder()
	s.ProbeLiveness()(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestClose(t *testing.T) {
	s, _ := newTestStorage(t)
	assert.NoError(t, s.Close())
}
