package crm

import (
	"net/url"
	"strconv"
)

// pageSize is the fixed page size requested from every list endpoint.
const pageSize = 100

// fetchPages drains a paginated list endpoint: request page 1..N, append,
// continue while the last page came back full, stop on a short or empty page.
// One error aborts the whole fetch; partial pages are never returned.
func fetchPages[T any](fetch func(page int) ([]T, error)) ([]T, error) {
	var out []T
	for page := 1; ; page++ {
		items, err := fetch(page)
		if err != nil {
			return nil, err
		}
		out = append(out, items...)
		if len(items) < pageSize {
			return out, nil
		}
	}
}

func pageQuery(page int, base url.Values) url.Values {
	q := url.Values{}
	for k, vs := range base {
		q[k] = vs
	}
	q.Set("page", strconv.Itoa(page))
	q.Set("limit", strconv.Itoa(pageSize))
	return q
}
