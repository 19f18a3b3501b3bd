package pagination

import (
	"errors"
	"net/url"
	"testing"
)

func TestParseDefaults(t *testing.T) {
	params, err := Parse(url.Values{}, Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if params.Page != DefaultPage {
		t.Fatalf("expected page %d, got %d", DefaultPage, params.Page)
	}
	if params.PageSize != DefaultPageSize {
		t.Fatalf("expected pageSize %d, got %d", DefaultPageSize, params.PageSize)
	}
}

func TestParseExplicitValues(t *testing.T) {
	values := url.Values{}
	values.Set("page", "3")
	values.Set("pageSize", "25")

	params, err := Parse(values, Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if params.Page != 3 || params.PageSize != 25 {
		t.Fatalf("unexpected params: %+v", params)
	}
	if got := params.Offset(); got != 50 {
		t.Fatalf("expected offset 50, got %d", got)
	}
}

func TestParseClampsPageSize(t *testing.T) {
	values := url.Values{}
	values.Set("pageSize", "5000")

	params, err := Parse(values, Options{MaxPageSize: 50})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if params.PageSize != 50 {
		t.Fatalf("expected clamp to 50, got %d", params.PageSize)
	}
}

func TestParseRejectsInvalidPage(t *testing.T) {
	for _, raw := range []string{"0", "-2", "abc"} {
		values := url.Values{}
		values.Set("page", raw)
		if _, err := Parse(values, Options{}); !errors.Is(err, ErrInvalidPage) {
			t.Fatalf("page=%q: expected ErrInvalidPage, got %v", raw, err)
		}
	}
}

func TestParseRejectsInvalidPageSize(t *testing.T) {
	for _, raw := range []string{"0", "-1", "ten"} {
		values := url.Values{}
		values.Set("pageSize", raw)
		if _, err := Parse(values, Options{}); !errors.Is(err, ErrInvalidPageSize) {
			t.Fatalf("pageSize=%q: expected ErrInvalidPageSize, got %v", raw, err)
		}
	}
}

func TestMustBackfillsDefaults(t *testing.T) {
	params := Must(Params{})
	if params.Page != DefaultPage || params.PageSize != DefaultPageSize {
		t.Fatalf("unexpected params: %+v", params)
	}
}
