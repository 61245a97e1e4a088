package provider

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"scout-alerts/internal/domain/entity"
	"scout-alerts/internal/usecase/poll"
)

// TypeFederalBills is the subscription type of bill searches.
const TypeFederalBills = "federal_bills"

var billFields = []string{
	"bill_id", "bill_type", "number", "congress", "urls",
	"short_title", "official_title", "summary",
	"last_action", "actions",
	"introduced_on", "last_action_at", "last_version", "last_version_on",
	"sponsor.first_name", "sponsor.last_name", "sponsor.nickname",
	"sponsor.name_suffix", "sponsor.title", "sponsor.party", "sponsor.state",
	"created_at",
}

// billStages maps the "stage" filter onto Congress API history fields.
var billStages = map[string][2]string{
	"enacted":            {"history.enacted", "true"},
	"passed_house":       {"history.house_passage_result", "pass"},
	"passed_senate":      {"history.senate_passage_result", "pass"},
	"vetoed":             {"history.vetoed", "true"},
	"awaiting_signature": {"history.awaiting_signature", "true"},
}

var billCodes = map[string]string{
	"hr":      "H.R.",
	"hres":    "H.Res.",
	"hjres":   "H.J.Res.",
	"hconres": "H.Con.Res.",
	"s":       "S.",
	"sres":    "S.Res.",
	"sjres":   "S.J.Res.",
	"sconres": "S.Con.Res.",
}

var billCodePattern = regexp.MustCompile(`^(hr|hres|hjres|hconres|s|sres|sjres|sconres)(\d+)$`)

// ParseBillCode recognizes queries like "H.R. 1234" or "s 50" and returns the
// bill type and number they name.
func ParseBillCode(query string) (billType, number string, ok bool) {
	normalized := strings.ToLower(query)
	normalized = strings.NewReplacer(".", "", " ", "", "\t", "").Replace(normalized)
	m := billCodePattern.FindStringSubmatch(normalized)
	if m == nil {
		return "", "", false
	}
	return m[1], m[2], true
}

// FormattedBillCode renders a bill type and number, e.g. "H.R. 1234".
func FormattedBillCode(billType, number string) string {
	return strings.TrimSpace(billCodes[billType] + " " + number)
}

// FederalBills searches bills in Congress.
type FederalBills struct {
	congressAPI
}

// NewFederalBills creates the federal bills adapter.
func NewFederalBills(endpoint, apiKey string) *FederalBills {
	return &FederalBills{congressAPI: newCongressAPI(endpoint, apiKey)}
}

var (
	_ poll.Adapter        = (*FederalBills)(nil)
	_ poll.DetailFinder   = (*FederalBills)(nil)
	_ poll.SyncURLBuilder = (*FederalBills)(nil)
	_ poll.Filterer       = (*FederalBills)(nil)
	_ poll.ItemRenderer   = (*FederalBills)(nil)
)

func (a *FederalBills) Type() string { return TypeFederalBills }

// URL builds a bill search. A query naming a bill code filters on bill type
// and number instead of running a full-text search.
func (a *FederalBills) URL(sub *entity.Subscription, function string, opts poll.Options) (string, error) {
	params := url.Values{}
	query := sub.Query()

	if billType, number, ok := ParseBillCode(query); ok {
		params.Set("bill_type", billType)
		params.Set("number", number)
	} else {
		applyQuery(params, query)
	}
	applyCitations(params, sub)

	params.Set("order", "last_version_on")
	params.Set("fields", strings.Join(billFields, ","))
	params.Set("last_version_on__exists", "true")

	if stage, ok := billStages[sub.Data["stage"]]; ok {
		params.Set(stage[0], stage[1])
	}

	if function == poll.FuncCheck {
		params.Set("last_version_on__gte", a.monthAgo())
	}
	applyPaging(params, function, opts)

	return a.build("/bills/search", params), nil
}

func (a *FederalBills) Parse(body []byte, _ string, _ poll.Options) ([]*entity.SeenItem, error) {
	results, err := decodeResults(body)
	if err != nil {
		return nil, err
	}
	items := make([]*entity.SeenItem, 0, len(results))
	for _, bill := range results {
		if item := billItem(bill); item != nil {
			items = append(items, item)
		}
	}
	return items, nil
}

func billItem(bill map[string]any) *entity.SeenItem {
	if bill == nil {
		return nil
	}
	return &entity.SeenItem{
		ItemType: "bill",
		ItemID:   stringField(bill, "bill_id"),
		Date:     parseDate(bill["last_version_on"]),
		Data:     bill,
	}
}

func (a *FederalBills) DetailURL(itemID string, _ poll.Options) (string, error) {
	params := url.Values{}
	params.Set("bill_id", itemID)
	params.Set("fields", strings.Join(billFields, ","))
	params.Set("last_version_on__exists", "true")
	return a.build("/bills", params), nil
}

func (a *FederalBills) ParseDetail(body []byte) (*entity.SeenItem, error) {
	results, err := decodeResults(body)
	if err != nil || len(results) == 0 {
		return nil, err
	}
	return billItem(results[0]), nil
}

// SyncURL pages through bills. Extra["since"] selects the range: "all",
// "current_congress", a congress number, or (default) the last three days.
func (a *FederalBills) SyncURL(opts poll.Options) (string, error) {
	params := url.Values{}
	params.Set("fields", strings.Join(billFields, ","))
	params.Set("order", "introduced_on__asc")

	since := opts.Extra["since"]
	switch {
	case since == "all":
	case since == "current_congress":
		params.Set("congress", strconv.Itoa(CurrentCongress(a.now())))
	case isDigits(since):
		params.Set("congress", since)
	default:
		params.Set("introduced_on__gte", a.daysAgo(3))
	}

	if opts.Page > 0 {
		params.Set("page", strconv.Itoa(opts.Page))
	}
	params.Set("per_page", "50")
	return a.build("/bills", params), nil
}

func (a *FederalBills) ShortName(n int) string { return plural(n, "bill", "bills") }

func (a *FederalBills) InterestName(interest *entity.Interest) string {
	if code := FormattedBillCode(interest.Data["bill_type"], interest.Data["number"]); code != "" {
		return code
	}
	return interest.In
}

func (a *FederalBills) FilterName(key, value string) string {
	if key == "stage" {
		return titleWords(value)
	}
	return ""
}

// RenderItem renders "H.R. 1234: Short title".
func (a *FederalBills) RenderItem(item *entity.SeenItem) string {
	title := item.DataString("short_title")
	if title == "" {
		title = item.DataString("official_title")
	}
	code := FormattedBillCode(item.DataString("bill_type"), stringField(item.Data, "number"))
	if code == "" {
		return title
	}
	return code + ": " + title
}

// CurrentCongress returns the Congress in session at now, e.g. 118 for 2023-2024.
func CurrentCongress(now time.Time) int {
	return congressForYear(legislativeYear(now))
}

func congressForYear(year int) int {
	return ((year + 1) / 2) - 894
}

// legislativeYear counts January 1st, 2nd and the morning of the 3rd
// (Eastern time) towards the previous year.
func legislativeYear(now time.Time) int {
	if loc, err := time.LoadLocation("America/New_York"); err == nil {
		now = now.In(loc)
	}
	year := now.Year()
	if now.Month() == time.January {
		if now.Day() < 3 || (now.Day() == 3 && now.Hour() < 12) {
			return year - 1
		}
	}
	return year
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
