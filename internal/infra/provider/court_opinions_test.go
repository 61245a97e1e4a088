package provider

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scout-alerts/internal/domain/entity"
	"scout-alerts/internal/usecase/poll"
)

func TestCourtOpinions_URL(t *testing.T) {
	a := NewCourtOpinions("https://courts.test/api/rest/v1/", "u", "p")
	a.now = func() time.Time { return fixedNow }

	rawURL, err := a.URL(searchSub("privacy", nil), poll.FuncCheck, poll.Options{Page: 2})
	require.NoError(t, err)

	path, q := queryOf(t, rawURL)
	assert.Equal(t, "/api/rest/v1/search/", path)
	assert.Equal(t, "json", q.Get("format"))
	assert.Equal(t, "privacy", q.Get("q"))
	assert.Equal(t, "2024-05-01", q.Get("filed_after"))
	assert.Equal(t, "dateFiled desc", q.Get("order_by"))
	assert.Equal(t, "20", q.Get("offset"))
	assert.Contains(t, q.Get("court"), "scotus")

	rawURL, err = a.URL(searchSub("*", nil), poll.FuncSearch, poll.Options{})
	require.NoError(t, err)
	_, q = queryOf(t, rawURL)
	assert.Empty(t, q.Get("q"))
	assert.Equal(t, "2009-01-01", q.Get("filed_after"))
}

func TestCourtOpinions_Parse(t *testing.T) {
	a := NewCourtOpinions("https://courts.test", "", "")
	body := []byte(`{"objects":[{
		"id": 98765,
		"case_name": "Doe v. Roe",
		"citation": {"case_name": "Doe v. Roe, Inc."},
		"download_URL": "https://courts.test/doc.pdf",
		"court": "Supreme Court",
		"court_id": "scotus",
		"date_filed": "2024-05-15T00:00:00Z"
	}]}`)

	items, err := a.Parse(body, poll.FuncCheck, poll.Options{})
	require.NoError(t, err)
	require.Len(t, items, 1)

	item := items[0]
	assert.Equal(t, "98765", item.ItemID)
	assert.Equal(t, "opinion", item.ItemType)
	assert.Equal(t, "Doe v. Roe, Inc.", item.DataString("case_name"))
	assert.Equal(t, "https://courts.test/doc.pdf", item.DataString("download_url"))
	assert.Equal(t, "Doe v. Roe, Inc. (Supreme Court)", a.RenderItem(item))

	_, err = a.Parse([]byte(`{"count":1}`), poll.FuncCheck, poll.Options{})
	assert.ErrorIs(t, err, poll.ErrMalformedResponse)
}

func TestCourtOpinions_DoubleCheck(t *testing.T) {
	a := NewCourtOpinions("https://courts.test", "", "")

	tests := []struct {
		name  string
		query string
		data  map[string]any
		want  bool
	}{
		{"terms in case name", "doe roe", map[string]any{"case_name": "Doe v. Roe", "court_id": "ca9"}, true},
		{"term in snippet", `"fourth amendment"`, map[string]any{"case_name": "US v. Smith", "snippet": "the Fourth Amendment protects"}, true},
		{"missing term", "privacy", map[string]any{"case_name": "Doe v. Roe"}, false},
		{"court outside the set", "doe", map[string]any{"case_name": "Doe v. Roe", "court_id": "nysupct"}, false},
		{"wildcard passes", "*", map[string]any{"case_name": "Anything"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			item := &entity.SeenItem{Data: tt.data}
			assert.Equal(t, tt.want, a.DoubleCheck(item, searchSub(tt.query, nil)))
		})
	}
}

func TestCourtOpinions_BasicAuth(t *testing.T) {
	var gotUser, gotPass string
	var gotOK bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser, gotPass, gotOK = r.BasicAuth()
		_, _ = w.Write([]byte(`{"objects":[]}`))
	}))
	defer srv.Close()

	a := NewCourtOpinions(srv.URL, "scout", "hunter2")
	cfg := DefaultFetchConfig()
	cfg.DenyPrivateIPs = false
	f := NewHTTPFetcher(cfg)

	rawURL, err := a.URL(searchSub("doe", nil), poll.FuncSearch, poll.Options{})
	require.NoError(t, err)
	_, err = f.Fetch(t.Context(), rawURL, a.CustomizeRequest)
	require.NoError(t, err)

	assert.True(t, gotOK)
	assert.Equal(t, "scout", gotUser)
	assert.Equal(t, "hunter2", gotPass)
}
