// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// For commercial licensing, contact: licensing@kraklabs.com
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package ingress

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/dhscanner/internal/config"
	"github.com/kraklabs/dhscanner/internal/dhtest"
	"github.com/kraklabs/dhscanner/pkg/coordinator"
	"github.com/kraklabs/dhscanner/pkg/language"
	"github.com/kraklabs/dhscanner/pkg/logsink"
	"github.com/kraklabs/dhscanner/pkg/storage"
)

const testToken = "secret-token"

type apiHarness struct {
	srv   *httptest.Server
	store storage.Store
	coord *coordinator.Memory
	rec   *logsink.Recorder
}

func newAPIHarness(t *testing.T) *apiHarness {
	t.Helper()
	cfg := config.Default()
	cfg.BearerToken = testToken
	cfg.ApprovedURLs = []string{"demo"}

	store := dhtest.NewStore(t)
	coord := coordinator.NewMemory()
	rec := &logsink.Recorder{}
	server := New(cfg, store, coord, rec, dhtest.Logger())

	srv := httptest.NewServer(server.Router())
	t.Cleanup(srv.Close)
	return &apiHarness{srv: srv, store: store, coord: coord, rec: rec}
}

// request issues one API call against the demo slug and decodes the
// JSON body into a flat string map.
func (h *apiHarness) request(t *testing.T, method, pathAndQuery string, body []byte, headers map[string]string) (int, map[string]string) {
	t.Helper()
	req, err := http.NewRequest(method, h.srv.URL+"/api/demo"+pathAndQuery, bytes.NewReader(body))
	require.NoError(t, err)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	decoded := map[string]string{}
	require.NoError(t, json.Unmarshal(raw, &decoded), "body: %s", raw)
	return resp.StatusCode, decoded
}

func authed() map[string]string {
	return map[string]string{"Authorization": "Bearer " + testToken}
}

func uploadHeaders(path string) map[string]string {
	return map[string]string{
		"Authorization": "Bearer " + testToken,
		"Content-Type":  "application/octet-stream",
		"X-Path":        path,
	}
}

func TestGetJobIDShape(t *testing.T) {
	h := newAPIHarness(t)

	code, body := h.request(t, http.MethodGet, "/getjobid", nil, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Regexp(t, regexp.MustCompile(`^[0-9a-f]{32}$`), body["job_id"])

	_, second := h.request(t, http.MethodGet, "/getjobid", nil, nil)
	assert.NotEqual(t, body["job_id"], second["job_id"], "job ids must not repeat")
}

func TestAuthRejections(t *testing.T) {
	h := newAPIHarness(t)

	code, body := h.request(t, http.MethodPost, "/analyze?job_id=j1", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "Invalid authorization header", body["detail"])

	code, body = h.request(t, http.MethodPost, "/analyze?job_id=j1", nil,
		map[string]string{"Authorization": "Basic dXNlcjpwdw=="})
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "Invalid authorization header", body["detail"])

	code, body = h.request(t, http.MethodPost, "/analyze?job_id=j1", nil,
		map[string]string{"Authorization": "Bearer wrong"})
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "Invalid Bearer token", body["detail"])
}

func TestUploadRequiresOctetStream(t *testing.T) {
	h := newAPIHarness(t)

	headers := authed()
	headers["Content-Type"] = "application/json"
	headers["X-Path"] = "a.py"
	code, body := h.request(t, http.MethodPost, "/upload?job_id=j1", []byte("{}"), headers)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "Invalid content type", body["detail"])
}

func TestUploadStoresRecognizedLanguage(t *testing.T) {
	h := newAPIHarness(t)
	ctx := context.Background()

	code, body := h.request(t, http.MethodPost, "/upload?job_id=j1",
		[]byte("print('hi')"), uploadHeaders("src/app.py"))
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "src/app.py", body["original_upload_filename"])

	files, err := h.store.ListSourceFiles(ctx, "j1")
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "src/app.py", files[0].OriginalFilename)
	assert.Equal(t, language.PY, files[0].Language)

	content, found := h.store.LoadSourceFile(ctx, files[0])
	require.True(t, found)
	assert.Equal(t, "print('hi')", string(content))

	saved := h.rec.ByEvent(logsink.EventUploadedFileSaved)
	require.Len(t, saved, 1)
	assert.Equal(t, 11, saved[0].CorrespondingByteSize)
}

func TestUploadCarriesModuleNameHint(t *testing.T) {
	h := newAPIHarness(t)

	headers := uploadHeaders("cmd/main.go")
	headers["X-Module-Name-Resolver-Go.mod"] = "example.com/svc"
	code, _ := h.request(t, http.MethodPost, "/upload?job_id=j1", []byte("package main"), headers)
	require.Equal(t, http.StatusOK, code)

	files, err := h.store.ListSourceFiles(context.Background(), "j1")
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "example.com/svc", files[0].ModuleName)
}

func TestUploadUnknownExtensionAcceptedButNotStored(t *testing.T) {
	h := newAPIHarness(t)

	code, body := h.request(t, http.MethodPost, "/upload?job_id=j1",
		[]byte("binary"), uploadHeaders("logo.png"))
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "logo.png", body["original_upload_filename"])

	files, err := h.store.ListSourceFiles(context.Background(), "j1")
	require.NoError(t, err)
	assert.Empty(t, files, "unknown-language uploads must not hit storage")
	assert.Len(t, h.rec.ByEvent(logsink.EventUploadedFileSkippedUnknownLanguage), 1)
}

func TestAnalyzeAnnouncesJob(t *testing.T) {
	h := newAPIHarness(t)

	code, body := h.request(t, http.MethodPost, "/analyze?job_id=j42", nil, authed())
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "j42", body["started_analyzing_job_id"])

	status, ok, err := h.coord.GetStatus(context.Background(), "j42")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, coordinator.WaitingForNativeParsing, status)
}

func TestStatusUnknownJobReportsFatal(t *testing.T) {
	h := newAPIHarness(t)

	code, body := h.request(t, http.MethodPost, "/status?job_id=ghost", nil, authed())
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "fatal error processing job(id): ghost", body["status"])
}

func TestStatusReportsPipelinePosition(t *testing.T) {
	h := newAPIHarness(t)
	require.NoError(t, h.coord.SetStatus(context.Background(), "j1", coordinator.WaitingForCodegen))

	code, body := h.request(t, http.MethodPost, "/status?job_id=j1", nil, authed())
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "WaitingForCodegen", body["status"])
}

func TestResultsGateUntilFinished(t *testing.T) {
	h := newAPIHarness(t)
	ctx := context.Background()

	code, body := h.request(t, http.MethodPost, "/results?job_id=j1", nil, authed())
	assert.Equal(t, http.StatusAccepted, code)
	assert.Equal(t, "results are not ready yet ... stay tuned !", body["detail"])

	require.NoError(t, h.coord.SetStatus(ctx, "j1", coordinator.WaitingForQueryengine))
	code, _ = h.request(t, http.MethodPost, "/results?job_id=j1", nil, authed())
	assert.Equal(t, http.StatusAccepted, code)

	_, err := h.store.SaveOutput(ctx, "j1", []byte(`{"version":"2.1.0"}`))
	require.NoError(t, err)
	require.NoError(t, h.coord.SetStatus(ctx, "j1", coordinator.Finished))

	code, body = h.request(t, http.MethodPost, "/results?job_id=j1", nil, authed())
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "2.1.0", body["version"])
}

func TestMissingJobIDRejected(t *testing.T) {
	h := newAPIHarness(t)

	for _, route := range []string{"/analyze", "/status", "/results"} {
		code, body := h.request(t, http.MethodPost, route, nil, authed())
		assert.Equal(t, http.StatusBadRequest, code, route)
		assert.Equal(t, "Missing job_id query parameter", body["detail"], route)
	}
}

func TestHealthzOpen(t *testing.T) {
	h := newAPIHarness(t)

	resp, err := http.Get(h.srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestUnapprovedSlugNotRouted(t *testing.T) {
	h := newAPIHarness(t)

	req, err := http.NewRequest(http.MethodGet, h.srv.URL+"/api/intruder/getjobid", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
