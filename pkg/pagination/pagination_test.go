package pagination_test

import (
	"net/url"
	"testing"

	"github.com/JaimeStill/reconify/pkg/pagination"
	"github.com/JaimeStill/reconify/pkg/query"
)

func config() pagination.Config {
	return pagination.Config{DefaultPageSize: 25, MaxPageSize: 200}
}

func TestConfigDefaults(t *testing.T) {
	var cfg pagination.Config
	if err := cfg.Finalize(nil); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if cfg.DefaultPageSize != 25 || cfg.MaxPageSize != 200 {
		t.Errorf("got %+v, want default 25 max 200", cfg)
	}
}

func TestConfigEnv(t *testing.T) {
	t.Setenv("PAGE_DEFAULT", "50")
	t.Setenv("PAGE_MAX", "not-a-number")

	var cfg pagination.Config
	err := cfg.Finalize(&pagination.ConfigEnv{DefaultPageSize: "PAGE_DEFAULT", MaxPageSize: "PAGE_MAX"})
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if cfg.DefaultPageSize != 50 || cfg.MaxPageSize != 200 {
		t.Errorf("got %+v, want default 50 max 200", cfg)
	}
}

func TestConfigRejectsDefaultAboveMax(t *testing.T) {
	cfg := pagination.Config{DefaultPageSize: 300, MaxPageSize: 100}
	if err := cfg.Finalize(nil); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestFromQuery(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		page     int
		pageSize int
	}{
		{"defaults", "", 1, 25},
		{"explicit", "page=3&page_size=10", 3, 10},
		{"clamped", "page=-2&page_size=5000", 1, 200},
		{"garbage", "page=x&page_size=y", 1, 25},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			values, _ := url.ParseQuery(tt.raw)
			req := pagination.FromQuery(values, config())
			if req.Page != tt.page || req.PageSize != tt.pageSize {
				t.Errorf("got page %d size %d, want %d %d", req.Page, req.PageSize, tt.page, tt.pageSize)
			}
		})
	}
}

func TestFromQuerySearchAndSort(t *testing.T) {
	values := url.Values{"search": {"hr"}, "sort": {"-recorded_at"}}
	req := pagination.FromQuery(values, config())

	if req.Search == nil || *req.Search != "hr" {
		t.Errorf("search = %v, want hr", req.Search)
	}
	want := []query.SortField{{Field: "recorded_at", Descending: true}}
	if len(req.Sort) != 1 || req.Sort[0] != want[0] {
		t.Errorf("sort = %v, want %v", req.Sort, want)
	}
}

func TestNewPageResult(t *testing.T) {
	req := pagination.PageRequest{Page: 2, PageSize: 10}

	r := pagination.NewPageResult([]int{1, 2, 3}, 23, req)
	if r.TotalPages != 3 || !r.HasNext {
		t.Errorf("got pages %d next %v, want 3 true", r.TotalPages, r.HasNext)
	}
	if req.Offset() != 10 {
		t.Errorf("offset = %d, want 10", req.Offset())
	}

	empty := pagination.NewPageResult[int](nil, 0, pagination.PageRequest{Page: 1, PageSize: 10})
	if empty.Data == nil || empty.TotalPages != 1 || empty.HasNext {
		t.Errorf("empty result = %+v", empty)
	}
}
