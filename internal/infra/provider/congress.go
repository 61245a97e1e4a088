package provider

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"scout-alerts/internal/domain/entity"
	"scout-alerts/internal/usecase/poll"
)

// congressAPI holds what the Congress API adapters share.
type congressAPI struct {
	endpoint string
	apiKey   string
	now      func() time.Time
}

func newCongressAPI(endpoint, apiKey string) congressAPI {
	return congressAPI{
		endpoint: strings.TrimRight(endpoint, "/"),
		apiKey:   apiKey,
		now:      time.Now,
	}
}

func (c congressAPI) build(path string, params url.Values) string {
	params.Set("apikey", c.apiKey)
	return c.endpoint + path + "?" + params.Encode()
}

// monthAgo is the lower date bound of background checks.
func (c congressAPI) monthAgo() string {
	return c.now().AddDate(0, -1, 0).Format("2006-01-02")
}

func (c congressAPI) daysAgo(n int) string {
	return c.now().AddDate(0, 0, -n).Format("2006-01-02")
}

type congressResponse struct {
	Results *[]map[string]any `json:"results"`
}

// decodeResults returns the results array of a Congress API response.
func decodeResults(body []byte) ([]map[string]any, error) {
	var resp congressResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", poll.ErrMalformedResponse, err)
	}
	if resp.Results == nil {
		return nil, fmt.Errorf("%w: response didn't include results field", poll.ErrMalformedResponse)
	}
	return *resp.Results, nil
}

// applyQuery adds the full-text query with highlighting unless it is a wildcard.
func applyQuery(params url.Values, query string) {
	if isWildcard(query) {
		return
	}
	params.Set("query", query)
	params.Set("highlight", "true")
	params.Set("highlight.size", "500")
	params.Set("highlight.tags", ",")
}

// applyCitations restricts results to documents citing every listed citation.
func applyCitations(params url.Values, sub *entity.Subscription) {
	citations := strings.TrimSpace(sub.Data["citations"])
	if citations == "" {
		return
	}
	ids := strings.Split(citations, ",")
	for i := range ids {
		ids[i] = strings.TrimSpace(ids[i])
	}
	params.Set("citing", strings.Join(ids, "|"))
	params.Set("citing.details", "true")
}

// applyPaging sets page and per_page. Searches honor the caller's page size;
// background polls always pull a full page.
func applyPaging(params url.Values, function string, opts poll.Options) {
	if opts.Page > 0 {
		params.Set("page", strconv.Itoa(opts.Page))
	}
	perPage := 40
	if function == poll.FuncSearch {
		perPage = 20
		if opts.PerPage > 0 {
			perPage = opts.PerPage
		}
	}
	params.Set("per_page", strconv.Itoa(perPage))
}

func isWildcard(query string) bool {
	q := strings.TrimSpace(query)
	return q == "" || q == "*" || q == `"*"`
}

// parseDate accepts the date and timestamp layouts the providers emit.
func parseDate(v any) time.Time {
	s, ok := v.(string)
	if !ok || s == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

func stringField(m map[string]any, key string) string {
	switch v := m[key].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

// titleWords turns "passed_house" into "Passed House".
func titleWords(v string) string {
	words := strings.Split(v, "_")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
