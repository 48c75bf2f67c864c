package common

import (
	"net/http"
	"strconv"
)

// Pagination is the page metadata attached to ledger, order, and referral
// list responses.
type Pagination struct {
	Page       int `json:"page"`
	PerPage    int `json:"per_page"`
	TotalItems int `json:"total_items"`
}

// MaxPerPage bounds the limit query parameter so a single request cannot
// ask the database for an unbounded page.
const MaxPerPage = 100

// ParsePagination reads page and limit from the query string, falling back
// to sane values for anything missing or malformed.
func ParsePagination(r *http.Request, defaultPerPage int) (page, perPage int) {
	page = 1
	perPage = defaultPerPage
	if p, err := strconv.Atoi(r.URL.Query().Get("page")); err == nil && p > 0 {
		page = p
	}
	if l, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && l > 0 {
		perPage = l
	}
	if perPage > MaxPerPage {
		perPage = MaxPerPage
	}
	return
}
