package provider

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"scout-alerts/internal/domain/entity"
	"scout-alerts/internal/usecase/poll"
)

// TypeCourtOpinions is the subscription type of CourtListener searches.
const TypeCourtOpinions = "court_opinions"

var opinionFields = []string{
	"id", "absolute_url", "download_url", "download_URL", "citation",
	"case_name", "case_number", "court", "court_id", "date_filed", "docket_number",
	"snippet",
}

// courts are the federal appellate, special and committee courts searched.
// District, state and bankruptcy courts are excluded.
var courts = []string{
	"scotus",
	"ca1", "ca2", "ca3", "ca4", "ca5", "ca6", "ca7", "ca8", "ca9", "ca10", "ca11", "cadc", "cafc",
	"armfor", "cc", "uscfc", "com", "ccpa", "cusc", "tax", "mc", "cavc",
	"eca", "tecoa", "fiscr", "reglrailreorgct", "cit",
	"usjc", "jpml", "stp",
}

var courtSet = func() map[string]bool {
	m := make(map[string]bool, len(courts))
	for _, c := range courts {
		m[c] = true
	}
	return m
}()

// CourtOpinions searches CourtListener opinions.
type CourtOpinions struct {
	endpoint string
	username string
	password string
	now      func() time.Time
}

// NewCourtOpinions creates the court opinions adapter. Requests carry HTTP
// basic auth when username is set.
func NewCourtOpinions(endpoint, username, password string) *CourtOpinions {
	return &CourtOpinions{
		endpoint: strings.TrimRight(endpoint, "/"),
		username: username,
		password: password,
		now:      time.Now,
	}
}

var (
	_ poll.Adapter        = (*CourtOpinions)(nil)
	_ poll.DetailFinder   = (*CourtOpinions)(nil)
	_ poll.HTTPCustomizer = (*CourtOpinions)(nil)
	_ poll.DoubleChecker  = (*CourtOpinions)(nil)
	_ poll.ItemRenderer   = (*CourtOpinions)(nil)
)

func (a *CourtOpinions) Type() string { return TypeCourtOpinions }

func (a *CourtOpinions) URL(sub *entity.Subscription, function string, opts poll.Options) (string, error) {
	params := url.Values{}
	params.Set("format", "json")
	params.Set("fields", strings.Join(opinionFields, ","))

	if query := sub.Query(); !isWildcard(query) {
		params.Set("q", query)
	}
	params.Set("court", strings.Join(courts, ","))

	if function == poll.FuncCheck {
		params.Set("filed_after", a.now().AddDate(0, -1, 0).Format("2006-01-02"))
	} else {
		params.Set("filed_after", "2009-01-01")
	}
	params.Set("order_by", "dateFiled desc")

	if opts.Page > 0 {
		params.Set("offset", strconv.Itoa((opts.Page-1)*20))
	}
	return a.endpoint + "/search/?" + params.Encode(), nil
}

type opinionsResponse struct {
	Objects *[]map[string]any `json:"objects"`
}

func (a *CourtOpinions) Parse(body []byte, _ string, _ poll.Options) ([]*entity.SeenItem, error) {
	var resp opinionsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", poll.ErrMalformedResponse, err)
	}
	if resp.Objects == nil {
		return nil, fmt.Errorf("%w: response didn't include objects field", poll.ErrMalformedResponse)
	}
	items := make([]*entity.SeenItem, 0, len(*resp.Objects))
	for _, opinion := range *resp.Objects {
		if item := opinionItem(opinion); item != nil {
			items = append(items, item)
		}
	}
	return items, nil
}

// opinionItem normalizes the differences between search and detail payloads.
func opinionItem(opinion map[string]any) *entity.SeenItem {
	if opinion == nil {
		return nil
	}
	if v, ok := opinion["download_URL"]; ok && v != nil {
		opinion["download_url"] = v
	}
	if citation, ok := opinion["citation"].(map[string]any); ok {
		if name, ok := citation["case_name"].(string); ok && name != "" {
			opinion["case_name"] = name
		}
	}
	return &entity.SeenItem{
		ItemType: "opinion",
		ItemID:   stringField(opinion, "id"),
		Date:     parseDate(opinion["date_filed"]),
		Data:     opinion,
	}
}

func (a *CourtOpinions) DetailURL(itemID string, _ poll.Options) (string, error) {
	params := url.Values{}
	params.Set("format", "json")
	params.Set("fields", strings.Join(opinionFields, ","))
	return a.endpoint + "/search/" + url.PathEscape(itemID) + "/?" + params.Encode(), nil
}

func (a *CourtOpinions) ParseDetail(body []byte) (*entity.SeenItem, error) {
	var opinion map[string]any
	if err := json.Unmarshal(body, &opinion); err != nil {
		return nil, fmt.Errorf("%w: %v", poll.ErrMalformedResponse, err)
	}
	return opinionItem(opinion), nil
}

// CustomizeRequest adds HTTP basic auth.
func (a *CourtOpinions) CustomizeRequest(req *http.Request) {
	if a.username == "" {
		return
	}
	req.SetBasicAuth(a.username, a.password)
}

// DoubleCheck rejects opinions CourtListener returned from a court outside
// the searched set, and opinions whose case name and snippet don't mention
// every query term.
func (a *CourtOpinions) DoubleCheck(item *entity.SeenItem, sub *entity.Subscription) bool {
	if court := item.DataString("court_id"); court != "" && !courtSet[court] {
		return false
	}

	query := sub.Query()
	if isWildcard(query) {
		return true
	}
	haystack := strings.ToLower(item.DataString("case_name") + " " + item.DataString("snippet"))
	for _, term := range queryTerms(query) {
		if !strings.Contains(haystack, term) {
			return false
		}
	}
	return true
}

// queryTerms lowercases the query and drops quotes and boolean operators.
func queryTerms(query string) []string {
	cleaned := strings.NewReplacer(`"`, " ", "(", " ", ")", " ").Replace(strings.ToLower(query))
	var terms []string
	for _, w := range strings.Fields(cleaned) {
		switch w {
		case "and", "or", "not":
			continue
		}
		terms = append(terms, w)
	}
	return terms
}

func (a *CourtOpinions) ShortName(n int) string { return plural(n, "opinion", "opinions") }

func (a *CourtOpinions) InterestName(interest *entity.Interest) string {
	if name := interest.Data["case_name"]; name != "" {
		return name
	}
	return interest.In
}

func (a *CourtOpinions) RenderItem(item *entity.SeenItem) string {
	name := item.DataString("case_name")
	if court := item.DataString("court"); court != "" {
		return name + " (" + court + ")"
	}
	return name
}
