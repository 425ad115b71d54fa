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
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"time"

	"github.com/kraklabs/dhscanner/pkg/coordinator"
	"github.com/kraklabs/dhscanner/pkg/language"
	"github.com/kraklabs/dhscanner/pkg/logsink"
)

// moduleNameHeader carries the optional go.mod resolver hint for Go
// uploads. Go canonicalizes incoming header keys, so any casing the
// client sends matches this form.
const moduleNameHeader = "X-Module-Name-Resolver-Go.mod"

// handleGetJobID mints a fresh 32-hex-character job id. The id carries
// no structure; uniqueness comes from 128 bits of crypto randomness.
func (s *Server) handleGetJobID(w http.ResponseWriter, _ *http.Request) {
	var raw [16]byte
	if _, err := rand.Read(raw[:]); err != nil {
		s.logger.Error("ingress.jobid.failed", "err", err)
		writeDetail(w, http.StatusInternalServerError, "job id generation failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"job_id": hex.EncodeToString(raw[:])})
}

// handleUpload streams one file's raw bytes into the artifact store.
// The relative path travels in the X-Path header because the body is
// the file content itself. Files whose extension maps to no supported
// language are acknowledged but never stored; the pipeline has nothing
// to do with them and the client should not have to pre-filter.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	jobID := r.URL.Query().Get("job_id")
	if jobID == "" {
		writeDetail(w, http.StatusBadRequest, "Missing job_id query parameter")
		return
	}
	filename := r.Header.Get("X-Path")
	if filename == "" {
		writeDetail(w, http.StatusBadRequest, "Missing X-Path header")
		return
	}
	moduleName := r.Header.Get(moduleNameHeader)

	lang := language.FromFilename(filename)
	if lang == language.Unknown {
		s.sink.Info(r.Context(), logsink.Message{
			FileUniqueID:     filename,
			JobID:            jobID,
			Event:            logsink.EventUploadedFileSkippedUnknownLanguage,
			OriginalFilename: filename,
			Language:         language.Unknown,
		})
		writeJSON(w, http.StatusOK, map[string]string{
			"status":                   "ok",
			"original_upload_filename": filename,
		})
		return
	}

	start := time.Now()
	meta, written, err := s.store.SaveSourceFile(r.Context(), jobID, filename, lang, moduleName, r.Body)
	if err != nil {
		s.logger.Error("ingress.upload.failed", "job_id", jobID, "file", filename, "err", err)
		writeDetail(w, http.StatusInternalServerError, "failed to store uploaded file")
		return
	}
	s.sink.Info(r.Context(), logsink.Message{
		FileUniqueID:          meta.UniqueID,
		JobID:                 jobID,
		Event:                 logsink.EventUploadedFileSaved,
		OriginalFilename:      filename,
		Language:              lang,
		Duration:              time.Since(start).Seconds(),
		CorrespondingByteSize: int(written),
	})
	writeJSON(w, http.StatusOK, map[string]string{
		"status":                   "ok",
		"original_upload_filename": filename,
	})
}

// handleAnalyze announces the job to the pipeline. The status write is
// the whole kick-off: the native-parse worker discovers the job on its
// next poll.
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	jobID := r.URL.Query().Get("job_id")
	if jobID == "" {
		writeDetail(w, http.StatusBadRequest, "Missing job_id query parameter")
		return
	}
	if err := s.coord.SetStatus(r.Context(), jobID, coordinator.WaitingForNativeParsing); err != nil {
		s.logger.Error("ingress.analyze.failed", "job_id", jobID, "err", err)
		s.sink.Error(r.Context(), logsink.Message{
			JobID:            jobID,
			Event:            logsink.EventCoordinatorNotResponding,
			OriginalFilename: "*",
			Language:         language.All,
			MoreDetails:      err.Error(),
		})
		writeDetail(w, http.StatusInternalServerError, "coordinator unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":                   "ok",
		"started_analyzing_job_id": jobID,
	})
}

// handleStatus reports the job's pipeline position verbatim. A job the
// coordinator has no record of gets the fatal-error sentence clients
// are told to match on.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	jobID := r.URL.Query().Get("job_id")
	if jobID == "" {
		writeDetail(w, http.StatusBadRequest, "Missing job_id query parameter")
		return
	}
	status, ok, err := s.coord.GetStatus(r.Context(), jobID)
	if err != nil {
		s.logger.Error("ingress.status.failed", "job_id", jobID, "err", err)
		writeDetail(w, http.StatusInternalServerError, "coordinator unavailable")
		return
	}
	if !ok {
		writeJSON(w, http.StatusOK, map[string]string{
			"status": fmt.Sprintf("fatal error processing job(id): %s", jobID),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": string(status)})
}

// handleResults hands back the SARIF document once the job is Finished.
// Anything earlier, including a Finished job whose output has already
// been reaped, answers 202 so pollers just keep polling.
func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	jobID := r.URL.Query().Get("job_id")
	if jobID == "" {
		writeDetail(w, http.StatusBadRequest, "Missing job_id query parameter")
		return
	}
	status, ok, err := s.coord.GetStatus(r.Context(), jobID)
	if err != nil {
		s.logger.Error("ingress.results.failed", "job_id", jobID, "err", err)
		writeDetail(w, http.StatusInternalServerError, "coordinator unavailable")
		return
	}
	if !ok || status != coordinator.Finished {
		writeDetail(w, http.StatusAccepted, "results are not ready yet ... stay tuned !")
		return
	}
	body, found := s.store.LoadOutput(r.Context(), jobID)
	if !found {
		writeDetail(w, http.StatusAccepted, "results are not ready yet ... stay tuned !")
		return
	}
	writeRaw(w, http.StatusOK, body)
}
