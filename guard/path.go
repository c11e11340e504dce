package guard

import (
	"strings"

	"github.com/jrsteele09/retail-console/tenants"
)

// Path is a console URL path split as /{locale?}/{role}/{rest...}
type Path struct {
	Locale string
	Role   tenants.Role
	Rest   []string
}

// ParsePath splits p. The role is empty when the segment after the locale is not a known role.
func ParsePath(p string, locales map[string]struct{}) Path {
	var segments []string
	for _, s := range strings.Split(p, "/") {
		if s != "" {
			segments = append(segments, s)
		}
	}

	var out Path
	if len(segments) > 0 {
		if _, ok := locales[segments[0]]; ok {
			out.Locale = segments[0]
			segments = segments[1:]
		}
	}
	if len(segments) > 0 && tenants.Role(segments[0]).Valid() {
		out.Role = tenants.Role(segments[0])
		segments = segments[1:]
	}
	out.Rest = segments
	return out
}

// WithRole returns p with its role segment replaced, or inserted when missing
func (p Path) WithRole(role tenants.Role) Path {
	p.Role = role
	return p
}

// Section is the first segment after the role
func (p Path) Section() string {
	if len(p.Rest) == 0 {
		return ""
	}
	return p.Rest[0]
}

func (p Path) String() string {
	parts := make([]string, 0, len(p.Rest)+2)
	if p.Locale != "" {
		parts = append(parts, p.Locale)
	}
	if p.Role != "" {
		parts = append(parts, p.Role.String())
	}
	parts = append(parts, p.Rest...)
	return "/" + strings.Join(parts, "/")
}

// LocaleSet builds the lookup used by ParsePath
func LocaleSet(locales []string) map[string]struct{} {
	set := make(map[string]struct{}, len(locales))
	for _, l := range locales {
		if l = strings.TrimSpace(l); l != "" {
			set[l] = struct{}{}
		}
	}
	return set
}
