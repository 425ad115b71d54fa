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
	"crypto/subtle"
	"net/http"
	"strings"
)

// requireBearer rejects requests without a well-formed Authorization
// header (401) or with a token that does not match the approved one
// (403). The two codes are distinct on purpose: clients that forgot the
// header entirely get a different signal than clients holding a stale
// token.
func (s *Server) requireBearer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") {
			recordRejection("missing_bearer")
			writeDetail(w, http.StatusUnauthorized, "Invalid authorization header")
			return
		}
		token := strings.TrimPrefix(auth, "Bearer ")
		if subtle.ConstantTimeCompare([]byte(token), []byte(s.cfg.BearerToken)) != 1 {
			recordRejection("bad_token")
			writeDetail(w, http.StatusForbidden, "Invalid Bearer token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requireOctetStream guards the upload route. Uploads are raw bytes; a
// multipart or json body means the client is confused, so reject before
// touching storage.
func (s *Server) requireOctetStream(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Type") != "application/octet-stream" {
			recordRejection("content_type")
			writeDetail(w, http.StatusBadRequest, "Invalid content type")
			return
		}
		next.ServeHTTP(w, r)
	})
}
