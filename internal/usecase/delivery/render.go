package delivery

import (
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"scout-alerts/internal/domain/entity"
	"scout-alerts/internal/usecase/poll"
	"scout-alerts/internal/utils/text"
)

// SMSLimit is the character budget of one text message.
const SMSLimit = 160

// Renderer turns queued deliveries into message subjects and bodies.
type Renderer struct {
	registry poll.Registry
	baseURL  string
}

// NewRenderer creates a Renderer. baseURL is the public site root used in
// links, e.g. "https://scout.example.org".
func NewRenderer(registry poll.Registry, baseURL string) *Renderer {
	return &Renderer{registry: registry, baseURL: strings.TrimRight(baseURL, "/")}
}

// interestGroup is the deliveries a recipient receives through one interest.
type interestGroup struct {
	interest   *entity.Interest
	deliveries []*entity.Delivery
}

// typeGroup is the deliveries of one subscription type within an interest.
type typeGroup struct {
	subscriptionType string
	deliveries       []*entity.Delivery
}

// groupByType keeps the order in which subscription types first appear.
func groupByType(deliveries []*entity.Delivery) []typeGroup {
	var groups []typeGroup
	index := make(map[string]int)
	for _, d := range deliveries {
		i, ok := index[d.SubscriptionType]
		if !ok {
			i = len(groups)
			index[d.SubscriptionType] = i
			groups = append(groups, typeGroup{subscriptionType: d.SubscriptionType})
		}
		groups[i].deliveries = append(groups[i].deliveries, d)
	}
	return groups
}

func (r *Renderer) adapter(subscriptionType string) poll.Adapter {
	if r.registry == nil {
		return nil
	}
	a, ok := r.registry.Adapter(subscriptionType)
	if !ok {
		return nil
	}
	return a
}

// InterestName is the human name of interest: the query for searches, the
// adapter's name for items and feeds, the tag name for followed tags.
func (r *Renderer) InterestName(interest *entity.Interest, deliveries []*entity.Delivery) string {
	switch interest.InterestType {
	case entity.InterestTypeItem:
		if r.registry != nil {
			if findType, _, ok := r.registry.ItemTypes(interest.ItemType); ok {
				if a := r.adapter(findType); a != nil {
					if name := a.InterestName(interest); name != "" {
						return name
					}
				}
			}
		}
	case entity.InterestTypeFeed:
		if len(deliveries) > 0 {
			if a := r.adapter(deliveries[0].SubscriptionType); a != nil {
				if name := a.InterestName(interest); name != "" {
					return name
				}
			}
		}
	case entity.InterestTypeTag:
		if name := interest.Data["name"]; name != "" {
			return name
		}
		return "tag " + interest.In
	}
	return interest.In
}

func (r *Renderer) shortName(subscriptionType string, n int) string {
	if a := r.adapter(subscriptionType); a != nil {
		return a.ShortName(n)
	}
	if n == 1 {
		return "thing"
	}
	return "things"
}

// filterDescription renders the interest's search filters, e.g. "Passed House".
func (r *Renderer) filterDescription(interest *entity.Interest, subscriptionType string) string {
	filters := interest.Filters()
	if len(filters) == 0 {
		return ""
	}
	filterer, ok := r.adapter(subscriptionType).(poll.Filterer)
	if !ok {
		return ""
	}
	keys := make([]string, 0, len(filters))
	for k := range filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	names := make([]string, 0, len(keys))
	for _, k := range keys {
		if name := filterer.FilterName(k, filters[k]); name != "" {
			names = append(names, name)
		}
	}
	return strings.Join(names, ", ")
}

func (r *Renderer) describe(interest *entity.Interest, g typeGroup, withFilters bool) string {
	n := len(g.deliveries)
	desc := fmt.Sprintf("%d new %s", n, r.shortName(g.subscriptionType, n))
	if withFilters {
		if filters := r.filterDescription(interest, g.subscriptionType); filters != "" {
			desc += " (" + filters + ")"
		}
	}
	return desc
}

// Subject renders the subject of a per-interest email, e.g.
// "clean water - 3 new bills, 1 new regulation".
func (r *Renderer) Subject(interest *entity.Interest, deliveries []*entity.Delivery) string {
	name := r.InterestName(interest, deliveries)
	groups := groupByType(deliveries)
	if len(groups) > 3 {
		return fmt.Sprintf("%s - %d new results", name, len(deliveries))
	}

	parts := make([]string, 0, len(groups))
	for _, g := range groups {
		parts = append(parts, r.describe(interest, g, len(groups) == 1))
	}
	return name + " - " + strings.Join(parts, ", ")
}

// DigestSubject renders the subject of a daily digest.
func DigestSubject(n int) string {
	if n == 1 {
		return "Daily digest - 1 new result"
	}
	return fmt.Sprintf("Daily digest - %d new results", n)
}

// RenderInterest renders the body section of one interest.
func (r *Renderer) RenderInterest(interest *entity.Interest, deliveries []*entity.Delivery) string {
	var b strings.Builder
	name := r.InterestName(interest, deliveries)
	for _, g := range groupByType(deliveries) {
		b.WriteString("- " + name + " - " + r.describe(interest, g, true) + "\n\n\n")
		for _, d := range g.deliveries {
			b.WriteString(r.renderItem(d))
			b.WriteString("\n\n\n")
		}
		b.WriteString("\n")
	}
	return b.String()
}

func (r *Renderer) renderItem(d *entity.Delivery) string {
	item := &d.Item
	var line string
	if renderer, ok := r.adapter(d.SubscriptionType).(poll.ItemRenderer); ok {
		line = renderer.RenderItem(item)
	}
	if line == "" {
		line = item.DataString("title")
	}
	if line == "" {
		line = item.ItemID
	}
	if link := r.itemURL(item); link != "" {
		line += "\n\n" + link
	}
	return line
}

// itemURL prefers the item's own link and falls back to the site's item page.
func (r *Renderer) itemURL(item *entity.SeenItem) string {
	if u := item.DataString("url"); strings.HasPrefix(u, "http://") || strings.HasPrefix(u, "https://") {
		return u
	}
	if item.ItemType == "" || item.ItemID == "" {
		return ""
	}
	return r.baseURL + "/item/" + url.PathEscape(item.ItemType) + "/" + url.PathEscape(item.ItemID)
}

// InterestURL links to the interest on the site.
func (r *Renderer) InterestURL(interest *entity.Interest) string {
	if interest.IsItem() && interest.ItemType != "" {
		return r.baseURL + "/item/" + url.PathEscape(interest.ItemType) + "/" + url.PathEscape(interest.In)
	}
	return r.baseURL + "/interests/" + strconv.FormatInt(interest.ID, 10)
}

// Finalize appends the footer with the management and unsubscribe links.
func (r *Renderer) Finalize(content string) string {
	var b strings.Builder
	b.WriteString(content)
	b.WriteString("----------------\n")
	b.WriteString("Manage your subscriptions on the web at " + r.baseURL + "/account/subscriptions.")
	b.WriteString("\n\nReply to this email to send feedback or bug reports our way.")
	b.WriteString("\n\nTo unsubscribe from all emails: " + r.baseURL + "/account/unsubscribe")
	return b.String()
}

// SMS renders `[Scout] new <types> on "<in>" <url>` within SMSLimit runes.
// When too long, the interest name is shortened with an ellipsis while the
// closing quote and the URL are kept. truncated reports whether that
// happened; ErrMessageTooLong means even an empty name would not fit.
func (r *Renderer) SMS(interest *entity.Interest, deliveries []*entity.Delivery) (msg string, truncated bool, err error) {
	groups := groupByType(deliveries)
	types := make([]string, 0, len(groups))
	for _, g := range groups {
		types = append(types, r.shortName(g.subscriptionType, len(g.deliveries)))
	}

	name := r.InterestName(interest, deliveries)
	open, closing := "", ""
	if interest.IsSearch() {
		open, closing = `"`, `"`
	}
	prefix := "[Scout] new " + strings.Join(types, ", ") + " on " + open
	suffix := closing + " " + r.InterestURL(interest)

	msg = prefix + name + suffix
	if text.CountRunes(msg) <= SMSLimit {
		return msg, false, nil
	}

	budget := SMSLimit - text.CountRunes(prefix) - text.CountRunes(suffix)
	// 最低でも1文字と省略記号が必要
	if budget < 2 {
		return msg, true, fmt.Errorf("%w: %d characters without the interest name", ErrMessageTooLong, SMSLimit-budget)
	}
	return prefix + text.Truncate(name, budget) + suffix, true, nil
}
