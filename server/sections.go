package server

import (
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/jrsteele09/retail-console/tenants"
)

const defaultSection = "dashboard"

// section maps a console page to the API collection that backs it
type section struct {
	Name  string
	Title string
	// collection is formatted with the shop id
	collection string
	paged      bool
	roles      []tenants.Role
}

var sections = []section{
	{Name: "dashboard", Title: "Dashboard", collection: "shop/%d/dashboard/stats/"},
	{Name: "orders", Title: "Orders", collection: "shop/%d/orders/orders/", paged: true},
	{Name: "products", Title: "Products", collection: "shop/%d/products/products/", paged: true},
	{Name: "stock", Title: "Stock", collection: "shop/%d/stock/stock/", paged: true},
	{Name: "debts", Title: "Debts", collection: "shop/%d/debts/debts/", paged: true},
	{Name: "cashbox", Title: "Cashbox", collection: "shop/%d/cashbox/transactions/", paged: true, roles: []tenants.Role{tenants.RoleAdmin}},
}

func findSection(name string) (section, bool) {
	if name == "" {
		name = defaultSection
	}
	for _, sec := range sections {
		if sec.Name == name {
			return sec, true
		}
	}
	return section{}, false
}

// allows reports whether role may open the section
func (sec section) allows(role tenants.Role) bool {
	if len(sec.roles) == 0 {
		return true
	}
	for _, r := range sec.roles {
		if r == role {
			return true
		}
	}
	return false
}

// dataURL is the API path read for the page. Segments past the section address a single
// record; list pages carry the page number.
func (sec section) dataURL(shopID int64, detail []string, page int) string {
	base := fmt.Sprintf(sec.collection, shopID)
	if len(detail) > 0 {
		escaped := make([]string, len(detail))
		for i, d := range detail {
			escaped[i] = url.PathEscape(d)
		}
		return base + strings.Join(escaped, "/") + "/"
	}
	if sec.paged {
		return base + "?page=" + strconv.Itoa(page)
	}
	return base
}

// collectionPrefix is the cache prefix a mutation of path invalidates: the path up to and
// excluding its first numeric segment, so "shop/3/orders/orders/17/" clears every cached
// page and record of "shop/3/orders/orders/".
func collectionPrefix(path string) string {
	path = strings.TrimPrefix(path, "/")
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	segments := strings.Split(path, "/")
	// The shop id in "shop/{id}/" is part of the collection
	start := 0
	if len(segments) > 1 && segments[0] == "shop" {
		start = 2
	}
	for i := start; i < len(segments); i++ {
		if _, err := strconv.ParseInt(segments[i], 10, 64); err == nil {
			return strings.Join(segments[:i], "/") + "/"
		}
	}
	if !strings.HasSuffix(path, "/") && path != "" {
		path += "/"
	}
	return path
}

// pageNumber reads ?page=, defaulting to 1
func pageNumber(q url.Values) int {
	page, err := strconv.Atoi(q.Get("page"))
	if err != nil || page < 1 {
		return 1
	}
	return page
}

// columnsOf returns the sorted keys present in rows
func columnsOf(rows []map[string]any) []string {
	seen := map[string]struct{}{}
	for _, row := range rows {
		for k := range row {
			seen[k] = struct{}{}
		}
	}
	columns := make([]string, 0, len(seen))
	for k := range seen {
		columns = append(columns, k)
	}
	sort.Strings(columns)
	// Keep the id first when present
	for i, c := range columns {
		if c == "id" && i > 0 {
			copy(columns[1:i+1], columns[:i])
			columns[0] = "id"
			break
		}
	}
	return columns
}
