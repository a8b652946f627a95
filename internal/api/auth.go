// Copyright (c) 2026 Mina Ibrahim
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package api

import (
	"net/http"

	"github.com/google/uuid"
)

func authStatus(deps Deps) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		running := deps.Monitor != nil && deps.Monitor.IsRunning()
		respondJSON(w, http.StatusOK, map[string]bool{
			"configured":        deps.Auth.Configured(),
			"authorized":        deps.Auth.Authorized(),
			"monitoring_active": running,
		})
	})
}

// authAuthorize starts the OAuth flow. The state token is held
// server-side until the callback consumes it.
func authAuthorize(deps Deps) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !deps.Auth.Configured() {
			http.Error(w, "gmail OAuth client is not configured", http.StatusConflict)
			return
		}
		state := uuid.NewString()
		deps.States.Put(state, "pending")
		http.Redirect(w, r, deps.Auth.AuthCodeURL(state), http.StatusFound)
	})
}

// authCallback completes the OAuth flow. The state parameter must match
// a pending token issued by authorize; callbacks with a missing,
// unknown, or reused state are rejected before any code exchange.
func authCallback(deps Deps) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if errParam := q.Get("error"); errParam != "" {
			http.Error(w, "authorization denied: "+errParam, http.StatusBadRequest)
			return
		}

		state := q.Get("state")
		if state == "" {
			http.Error(w, "missing state parameter", http.StatusBadRequest)
			return
		}
		if _, ok := deps.States.Get(state); !ok {
			http.Error(w, "invalid or expired state parameter", http.StatusBadRequest)
			return
		}
		deps.States.Delete(state)

		code := q.Get("code")
		if code == "" {
			http.Error(w, "missing code parameter", http.StatusBadRequest)
			return
		}
		if _, err := deps.Auth.Exchange(r.Context(), code); err != nil {
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}

		if deps.OnAuthorized != nil {
			deps.OnAuthorized()
		}
		respondJSON(w, http.StatusOK, map[string]string{"status": "authorized"})
	})
}

func authReset(deps Deps) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := deps.Auth.Reset(); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if deps.OnReset != nil {
			deps.OnReset()
		}
		respondJSON(w, http.StatusOK, map[string]string{"status": "reset"})
	})
}
