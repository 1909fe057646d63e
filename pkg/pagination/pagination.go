package pagination

import (
	"fmt"
	"math"
	"net/url"
	"strconv"
)

const (
	DefaultPerPage = 20
	MaxPerPage     = 100
	// MaxResultWindow is the deepest result (page * per_page) a listing may
	// reach. It matches the index.max_result_window default of Elasticsearch.
	MaxResultWindow = 10000
)

// Params holds 1-based page parameters and the derived result offset.
type Params struct {
	Page    int `json:"page"`
	PerPage int `json:"per_page"`
	Offset  int `json:"-"`
}

// DefaultParams returns page 1 with DefaultPerPage items.
func DefaultParams() Params {
	return Params{Page: 1, PerPage: DefaultPerPage}
}

// New builds Params, applying defaults to zero values. An offset that would
// overflow int saturates at math.MaxInt.
func New(page, perPage int) Params {
	def := DefaultParams()
	if page <= 0 {
		page = def.Page
	}
	if perPage <= 0 {
		perPage = def.PerPage
	}

	offset := math.MaxInt
	if page-1 <= math.MaxInt/perPage {
		offset = (page - 1) * perPage
	}
	return Params{Page: page, PerPage: perPage, Offset: offset}
}

// Validate checks per_page against MaxPerPage and the last requested result
// against MaxResultWindow.
func (p Params) Validate() error {
	if p.PerPage > MaxPerPage {
		return fmt.Errorf("per_page must be at most %d", MaxPerPage)
	}
	if p.Page > MaxResultWindow/p.PerPage {
		return fmt.Errorf("page * per_page must be at most %d", MaxResultWindow)
	}
	return nil
}

// Parse reads page and per_page from q. Absent values take defaults; values
// that are not positive integers, or that fail Validate, are errors.
func Parse(q url.Values) (Params, error) {
	def := DefaultParams()
	page, err := positiveInt(q, "page", def.Page)
	if err != nil {
		return Params{}, err
	}
	perPage, err := positiveInt(q, "per_page", def.PerPage)
	if err != nil {
		return Params{}, err
	}

	p := New(page, perPage)
	if err := p.Validate(); err != nil {
		return Params{}, err
	}
	return p, nil
}

func positiveInt(q url.Values, key string, def int) (int, error) {
	raw := q.Get(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 1 {
		return 0, fmt.Errorf("%s must be a positive integer", key)
	}
	return v, nil
}

// TotalPages returns how many pages of perPage items hold total items.
func TotalPages(total int64, perPage int) int {
	if perPage <= 0 {
		return 0
	}
	return int((total + int64(perPage) - 1) / int64(perPage))
}
