package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/jrsteele09/retail-console/apiclient"
	"github.com/jrsteele09/retail-console/state"
	"github.com/jrsteele09/retail-console/tenants"
)

const maxMutationBody = 1 << 20

// notifyEvent is the HX-Trigger payload raised for a failed mutation
type notifyEvent struct {
	Notify apiclient.FetchError `json:"console:notify"`
}

// dataPath is the API path addressed by /api/data/{path...}, including the query string
func dataPath(r *http.Request) string {
	path := r.PathValue("path")
	if r.URL.RawQuery != "" {
		path += "?" + r.URL.RawQuery
	}
	return path
}

// DataReadHandler serves API reads through the session's fetch cache
func (s *Server) DataReadHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rs := scopeFrom(r)
		path := dataPath(r)
		body, err := rs.session.Cache.Get(r.Context(), path, rs.fetcher())
		if err != nil {
			if apiclient.IsAborted(err) {
				return
			}
			writeFetchError(w, err)
			return
		}
		w.Header().Set("Content-Type", contentTypeJSON)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(body)
	}
}

// DataMutationHandler forwards a write to the API and drops the cached collection it touched
func (s *Server) DataMutationHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rs := scopeFrom(r)
		path := dataPath(r)

		var payload json.RawMessage
		if r.Body != nil {
			body, err := io.ReadAll(io.LimitReader(r.Body, maxMutationBody))
			if err != nil {
				http.Error(w, "Invalid request body", http.StatusBadRequest)
				return
			}
			if len(body) > 0 {
				if !json.Valid(body) {
					http.Error(w, "Request body must be JSON", http.StatusBadRequest)
					return
				}
				payload = body
			}
		}

		var out json.RawMessage
		var send any
		if payload != nil {
			send = payload
		}
		if err := rs.api.Send(r.Context(), r.Method, path, send, &out); err != nil {
			if apiclient.IsAborted(err) {
				return
			}
			log.Warn().Err(err).Str("method", r.Method).Str("url", path).Msg("Mutation failed")
			setTrigger(w, notifyEvent{Notify: *apiclient.AsFetchError(err)})
			writeFetchError(w, err)
			return
		}

		prefix := collectionPrefix(path)
		if err := rs.session.Cache.InvalidatePrefix(r.Context(), prefix); err != nil {
			log.Err(err).Str("prefix", prefix).Msg("Failed to invalidate cache")
		}
		if strings.HasPrefix(tenants.ShopsPath(), prefix) {
			rs.session.Queries.Remove(tenants.ShopsPath())
		}
		w.Header().Set("HX-Trigger", "console:refetch")

		if len(out) == 0 {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		w.Header().Set("Content-Type", contentTypeJSON)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(out)
	}
}

// RefetchHandler revalidates one cached URL on request of the page
func (s *Server) RefetchHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rs := scopeFrom(r)
		url := r.FormValue("url")
		if url == "" {
			writeJSON(w, http.StatusBadRequest, &apiclient.FetchError{Status: http.StatusBadRequest, Message: "url is required"})
			return
		}
		if _, err := rs.session.Cache.Refetch(r.Context(), url, rs.fetcher()); err != nil {
			if apiclient.IsAborted(err) {
				return
			}
			setTrigger(w, notifyEvent{Notify: *apiclient.AsFetchError(err)})
			writeFetchError(w, err)
			return
		}
		w.Header().Set("HX-Trigger", "console:refetch")
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) PrefsGetHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, scopeFrom(r).session.State.Prefs())
	}
}

// PrefsPostHandler accepts a JSON body or a form with the same field names
func (s *Server) PrefsPostHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rs := scopeFrom(r)
		prefs := rs.session.State.Prefs()

		if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
			if err := json.NewDecoder(io.LimitReader(r.Body, maxMutationBody)).Decode(&prefs); err != nil {
				writeJSON(w, http.StatusBadRequest, &apiclient.FetchError{Status: http.StatusBadRequest, Message: "invalid preferences"})
				return
			}
		} else {
			if err := r.ParseForm(); err != nil {
				writeJSON(w, http.StatusBadRequest, &apiclient.FetchError{Status: http.StatusBadRequest, Message: "invalid preferences"})
				return
			}
			applyPrefsForm(&prefs, r)
		}

		if err := rs.session.State.SavePrefs(r.Context(), prefs); err != nil {
			log.Err(err).Str("session", rs.session.ID).Msg("Failed to save preferences")
			writeJSON(w, http.StatusServiceUnavailable, &apiclient.FetchError{Status: http.StatusServiceUnavailable, Message: err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, rs.session.State.Prefs())
	}
}

func applyPrefsForm(prefs *state.Prefs, r *http.Request) {
	if v, ok := r.Form["currency"]; ok && len(v) > 0 {
		prefs.Currency = v[0]
	}
	if v, ok := r.Form["modal"]; ok && len(v) > 0 {
		prefs.Modal = v[0]
	}
	if v, ok := r.Form["sidebar_collapsed"]; ok && len(v) > 0 {
		prefs.SidebarCollapsed = v[0] == "true" || v[0] == "on" || v[0] == "1"
	}
}

// FocusHandler revalidates the session's live queries when its tab regains focus
func (s *Server) FocusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		scopeFrom(r).session.Focus()
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) NotificationsOpenHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.hub == nil {
			w.WriteHeader(http.StatusNotImplemented)
			return
		}
		rs := scopeFrom(r)
		access, ok := rs.tokens.GetAccessToken()
		if !ok {
			writeJSON(w, http.StatusUnauthorized, &apiclient.FetchError{Status: http.StatusUnauthorized, Message: "authentication required"})
			return
		}
		s.hub.Open(rs.session.ID, access)
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) NotificationsCloseHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.hub != nil {
			s.hub.Close(scopeFrom(r).session.ID)
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// NotificationsListHandler returns the messages received on the session's channel, oldest first
func (s *Server) NotificationsListHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.hub == nil {
			writeJSON(w, http.StatusOK, []any{})
			return
		}
		rs := scopeFrom(r)
		list := s.hub.List(rs.session.ID)
		if list == nil {
			writeJSON(w, http.StatusOK, []any{})
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}

// setTrigger adds an HX-Trigger header carrying v as the event detail
func setTrigger(w http.ResponseWriter, v any) {
	encoded, err := json.Marshal(v)
	if err != nil {
		log.Err(err).Msg("Failed to encode HX-Trigger")
		return
	}
	w.Header().Set("HX-Trigger", string(encoded))
}

// encodeShops is the payload stored in the shops query after login
func encodeShops(shops []tenants.Shop) json.RawMessage {
	encoded, err := json.Marshal(shops)
	if err != nil {
		panic(fmt.Sprintf("encode shops: %v", err))
	}
	return encoded
}
