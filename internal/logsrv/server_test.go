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

package logsrv

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/dhscanner/internal/dhtest"
	"github.com/kraklabs/dhscanner/pkg/language"
	"github.com/kraklabs/dhscanner/pkg/logsink"
)

func newSinkHarness(t *testing.T) (*httptest.Server, sqlmock.Sqlmock) {
	t.Helper()
	raw, mock, err := sqlmock.New()
	require.NoError(t, err)
	db := NewDatabase(sqlx.NewDb(raw, "sqlmock"))
	t.Cleanup(func() { _ = db.Close() })

	server := New(db, dhtest.Logger())
	srv := httptest.NewServer(server.Router())
	t.Cleanup(srv.Close)
	return srv, mock
}

func validRecord() logsink.Message {
	return logsink.Message{
		FileUniqueID:          "u1.py",
		JobID:                 "j1",
		Event:                 logsink.EventUploadedFileSaved,
		OriginalFilename:      "a.py",
		Language:              language.PY,
		Duration:              0.25,
		CorrespondingByteSize: 42,
	}
}

func postRecord(t *testing.T, srv *httptest.Server, level string, body []byte) *http.Response {
	t.Helper()
	resp, err := http.Post(srv.URL+"/log/"+level, "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func TestLogRecordStored(t *testing.T) {
	srv, mock := newSinkHarness(t)
	mock.ExpectExec("INSERT INTO logs").
		WithArgs("INFO", "u1.py", "j1", "UPLOADED_FILE_SAVED", "a.py", "py", 0.25, "", 42).
		WillReturnResult(sqlmock.NewResult(1, 1))

	body, err := json.Marshal(validRecord())
	require.NoError(t, err)
	resp := postRecord(t, srv, "INFO", body)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUnknownLevelRejected(t *testing.T) {
	srv, mock := newSinkHarness(t)

	body, err := json.Marshal(validRecord())
	require.NoError(t, err)
	resp := postRecord(t, srv, "TRACE", body)

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.NoError(t, mock.ExpectationsWereMet(), "rejected record must not reach the database")
}

func TestMalformedBodyRejected(t *testing.T) {
	srv, mock := newSinkHarness(t)

	resp := postRecord(t, srv, "INFO", []byte("{not json"))

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUnknownEnumValueRejected(t *testing.T) {
	srv, mock := newSinkHarness(t)

	record := validRecord()
	record.Event = "NOT_A_REAL_CONTEXT"
	body, err := json.Marshal(record)
	require.NoError(t, err)
	resp := postRecord(t, srv, "INFO", body)

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStorageFailureReported(t *testing.T) {
	srv, mock := newSinkHarness(t)
	mock.ExpectExec("INSERT INTO logs").WillReturnError(errors.New("connection reset"))

	body, err := json.Marshal(validRecord())
	require.NoError(t, err)
	resp := postRecord(t, srv, "ERROR", body)

	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClientRoundTrip(t *testing.T) {
	srv, mock := newSinkHarness(t)
	mock.ExpectExec("INSERT INTO logs").
		WithArgs("WARNING", "u1.py", "j1", "UPLOADED_FILE_SAVED", "a.py", "py", 0.25, "", 42).
		WillReturnResult(sqlmock.NewResult(1, 1))

	client := logsink.NewClient(srv.URL, dhtest.Logger())
	client.Warning(context.Background(), validRecord())

	assert.NoError(t, mock.ExpectationsWereMet())
}
