package provider

import (
	"net/url"
	"strconv"
	"strings"

	"scout-alerts/internal/domain/entity"
	"scout-alerts/internal/usecase/poll"
)

// TypeRegulations is the subscription type of Federal Register searches.
const TypeRegulations = "regulations"

var regulationFields = []string{
	"document_number", "document_type", "article_type",
	"stage", "title", "abstract",
	"posted_at", "publication_date",
	"effective_on", "comments_close_on",
	"url", "pdf_url",
	"agency_names", "agency_ids",
}

// Regulations searches Federal Register documents.
type Regulations struct {
	congressAPI
	// agencies resolves agency ids for filter descriptions; may be nil.
	agencies map[string]string
}

// NewRegulations creates the regulations adapter. agencies maps agency ids to
// display names and may be nil.
func NewRegulations(endpoint, apiKey string, agencies map[string]string) *Regulations {
	return &Regulations{congressAPI: newCongressAPI(endpoint, apiKey), agencies: agencies}
}

var (
	_ poll.Adapter        = (*Regulations)(nil)
	_ poll.DetailFinder   = (*Regulations)(nil)
	_ poll.SyncURLBuilder = (*Regulations)(nil)
	_ poll.Filterer       = (*Regulations)(nil)
	_ poll.ItemRenderer   = (*Regulations)(nil)
)

func (a *Regulations) Type() string { return TypeRegulations }

func (a *Regulations) URL(sub *entity.Subscription, function string, opts poll.Options) (string, error) {
	params := url.Values{}
	applyQuery(params, sub.Query())
	applyCitations(params, sub)

	params.Set("order", "posted_at")
	params.Set("fields", strings.Join(regulationFields, ","))

	if agency := sub.Data["agency"]; agency != "" {
		params.Set("agency_ids", agency)
	}
	if stage := sub.Data["stage"]; stage != "" {
		params.Set("stage", stage)
	}

	if function == poll.FuncCheck {
		params.Set("posted_at__gte", a.monthAgo())
	}
	applyPaging(params, function, opts)

	return a.build("/regulations/search", params), nil
}

func (a *Regulations) Parse(body []byte, _ string, _ poll.Options) ([]*entity.SeenItem, error) {
	results, err := decodeResults(body)
	if err != nil {
		return nil, err
	}
	items := make([]*entity.SeenItem, 0, len(results))
	for _, reg := range results {
		if item := regulationItem(reg); item != nil {
			items = append(items, item)
		}
	}
	return items, nil
}

func regulationItem(reg map[string]any) *entity.SeenItem {
	if reg == nil {
		return nil
	}
	return &entity.SeenItem{
		ItemType: "regulation",
		ItemID:   stringField(reg, "document_number"),
		Date:     parseDate(reg["posted_at"]),
		Data:     reg,
	}
}

func (a *Regulations) DetailURL(itemID string, _ poll.Options) (string, error) {
	params := url.Values{}
	params.Set("document_number", itemID)
	params.Set("fields", strings.Join(regulationFields, ","))
	return a.build("/regulations", params), nil
}

func (a *Regulations) ParseDetail(body []byte) (*entity.SeenItem, error) {
	results, err := decodeResults(body)
	if err != nil || len(results) == 0 {
		return nil, err
	}
	return regulationItem(results[0]), nil
}

// SyncURL pages through documents. Extra["since"] is "all", "current_year",
// a year, or (default) the last three days.
func (a *Regulations) SyncURL(opts poll.Options) (string, error) {
	params := url.Values{}
	params.Set("fields", strings.Join(regulationFields, ","))
	params.Set("order", "posted_at__asc")

	since := opts.Extra["since"]
	switch {
	case since == "all":
	case since == "current_year":
		params.Set("posted_at__gte", strconv.Itoa(a.now().Year())+"-01-01T00:00:00Z")
	case isDigits(since):
		params.Set("posted_at__gte", since+"-01-01T00:00:00Z")
	default:
		params.Set("posted_at__gte", a.daysAgo(3)+"T00:00:00Z")
	}

	if opts.Page > 0 {
		params.Set("page", strconv.Itoa(opts.Page))
	}
	params.Set("per_page", "50")
	return a.build("/regulations", params), nil
}

func (a *Regulations) ShortName(n int) string { return plural(n, "regulation", "regulations") }

func (a *Regulations) InterestName(interest *entity.Interest) string {
	if title := interest.Data["title"]; title != "" {
		return title
	}
	return interest.In
}

func (a *Regulations) FilterName(key, value string) string {
	switch key {
	case "agency":
		if name, ok := a.agencies[value]; ok {
			return name
		}
		return "Agency #" + value
	case "stage":
		return titleWords(value) + " Rule"
	}
	return ""
}

// RenderItem prefixes the title with the first agency name.
func (a *Regulations) RenderItem(item *entity.SeenItem) string {
	title := item.DataString("title")
	if names, ok := item.Data["agency_names"].([]any); ok && len(names) > 0 {
		if agency, ok := names[0].(string); ok && agency != "" {
			return agency + ": " + title
		}
	}
	return title
}
