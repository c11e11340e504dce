package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/jrsteele09/retail-console/apiclient"
	"github.com/jrsteele09/retail-console/guard"
	"github.com/jrsteele09/retail-console/state"
	"github.com/jrsteele09/retail-console/tenants"
)

type sectionLink struct {
	Title  string
	Href   string
	Active bool
}

type tenantPage struct {
	AppName  string
	Title    string
	Shop     tenants.Shop
	Role     tenants.Role
	Sections []sectionLink
	DataURL  string
	Columns  []string
	Rows     []map[string]any
	Count    int
	Detail   string
	PrevHref string
	NextHref string
	Error    string
	Prefs    state.Prefs
	Online   bool
}

type unavailablePage struct {
	AppName string
	Title   string
	Message string
	Retry   string
}

// listPayload is the paginated list shape of the API
type listPayload struct {
	Count    int              `json:"count"`
	Next     *string          `json:"next"`
	Previous *string          `json:"previous"`
	Results  []map[string]any `json:"results"`
}

// PageHandler renders a tenant section. It only runs for role-aligned navigations.
func (s *Server) PageHandler() http.HandlerFunc {
	tmpl := mustParseTemplate("page.html")
	unavailable := mustParseTemplate("unavailable.html")
	return func(w http.ResponseWriter, r *http.Request) {
		rs := scopeFrom(r)
		d := decisionFrom(r)
		requested := d.Path
		if requested == "" {
			requested = r.URL.Path
		}
		path := s.guard.ParsePath(requested)

		shop := rs.session.State.SelectedShop()
		if shop == nil {
			redirectSuccess(w, r, RouteSelectShop)
			return
		}

		sec, ok := findSection(path.Section())
		if !ok || !sec.allows(path.Role) {
			render(w, unavailable, http.StatusNotFound, unavailablePage{
				AppName: s.config.GetAppName(),
				Title:   "Page not found",
				Message: "This page does not exist for your role.",
				Retry:   rolePrefix(path),
			})
			return
		}

		page := pageNumber(r.URL.Query())
		dataURL := sec.dataURL(shop.ID, detailSegments(path), page)
		view := tenantPage{
			AppName:  s.config.GetAppName(),
			Title:    sec.Title,
			Shop:     *shop,
			Role:     path.Role,
			Sections: s.sectionLinks(path, sec.Name),
			DataURL:  dataURL,
			Prefs:    rs.session.State.Prefs(),
			Online:   s.status.Online(),
		}

		body, err := rs.session.Cache.Get(r.Context(), dataURL, rs.fetcher())
		if err != nil {
			// The navigation was abandoned; nothing is rendered
			if apiclient.IsAborted(err) {
				return
			}
			fe := apiclient.AsFetchError(err)
			status := fe.Status
			if status == 0 {
				status = http.StatusBadGateway
			}
			log.Warn().Err(err).Str("url", dataURL).Msg("Page data unavailable")
			view.Error = fe.Message
			render(w, tmpl, status, view)
			return
		}

		fillView(&view, body)
		if sec.paged && len(detailSegments(path)) == 0 {
			view.PrevHref, view.NextHref = pageLinks(requested, body, page)
		}
		render(w, tmpl, http.StatusOK, view)
	}
}

func (s *Server) renderUnavailable(w http.ResponseWriter, r *http.Request) {
	tmpl, err := ParseTemplate("unavailable.html")
	if err != nil {
		http.Error(w, "Service unavailable", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Retry-After", "1")
	render(w, tmpl, http.StatusServiceUnavailable, unavailablePage{
		AppName: s.config.GetAppName(),
		Title:   "Loading",
		Message: "Your session is still being restored.",
		Retry:   withQuery(r.URL.Path, r),
	})
}

func (s *Server) sectionLinks(path guard.Path, active string) []sectionLink {
	if active == "" {
		active = defaultSection
	}
	links := make([]sectionLink, 0, len(sections))
	for _, sec := range sections {
		if !sec.allows(path.Role) {
			continue
		}
		link := guard.Path{Locale: path.Locale, Role: path.Role, Rest: []string{sec.Name}}
		links = append(links, sectionLink{Title: sec.Title, Href: link.String(), Active: sec.Name == active})
	}
	return links
}

func detailSegments(path guard.Path) []string {
	if len(path.Rest) < 2 {
		return nil
	}
	return path.Rest[1:]
}

// rolePrefix is the /{locale}/{role} part of path
func rolePrefix(path guard.Path) string {
	return guard.Path{Locale: path.Locale, Role: path.Role}.String()
}

// fillView decodes rows from a list payload, falling back to indented JSON
func fillView(view *tenantPage, body []byte) {
	var rows []map[string]any
	if err := json.Unmarshal(body, &rows); err == nil {
		view.Rows = rows
		view.Count = len(rows)
		view.Columns = columnsOf(rows)
		return
	}
	var list listPayload
	if err := json.Unmarshal(body, &list); err == nil && list.Results != nil {
		view.Rows = list.Results
		view.Count = list.Count
		view.Columns = columnsOf(list.Results)
		return
	}
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, body, "", "  "); err != nil {
		view.Detail = string(body)
		return
	}
	view.Detail = pretty.String()
}

func pageLinks(path string, body []byte, page int) (prev, next string) {
	var list listPayload
	if err := json.Unmarshal(body, &list); err != nil {
		return "", ""
	}
	if list.Previous != nil && page > 1 {
		prev = path + "?page=" + strconv.Itoa(page-1)
	}
	if list.Next != nil {
		next = path + "?page=" + strconv.Itoa(page+1)
	}
	return prev, next
}
