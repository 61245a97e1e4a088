package provider

import (
	"fmt"
	"net/url"

	"scout-alerts/internal/domain/entity"
	"scout-alerts/internal/usecase/poll"
)

// TypeFederalBillsActivity follows the official actions on one bill.
const TypeFederalBillsActivity = "federal_bills_activity"

// FederalBillsActivity emits one item per action taken on the bill named by
// the subscription's InterestIn (a bill_id such as "hr1234-118").
type FederalBillsActivity struct {
	congressAPI
}

// NewFederalBillsActivity creates the bill activity adapter.
func NewFederalBillsActivity(endpoint, apiKey string) *FederalBillsActivity {
	return &FederalBillsActivity{congressAPI: newCongressAPI(endpoint, apiKey)}
}

var _ poll.Adapter = (*FederalBillsActivity)(nil)

func (a *FederalBillsActivity) Type() string { return TypeFederalBillsActivity }

func (a *FederalBillsActivity) URL(sub *entity.Subscription, _ string, _ poll.Options) (string, error) {
	if sub.InterestIn == "" {
		return "", fmt.Errorf("bill activity subscription %d has no bill id", sub.ID)
	}
	params := url.Values{}
	params.Set("bill_id", sub.InterestIn)
	params.Set("fields", "bill_id,actions,last_action_at")
	return a.build("/bills", params), nil
}

// Parse returns the bill's actions. Vote actions are shown in searches but
// never alerted on.
func (a *FederalBillsActivity) Parse(body []byte, function string, _ poll.Options) ([]*entity.SeenItem, error) {
	results, err := decodeResults(body)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return []*entity.SeenItem{}, nil
	}

	bill := results[0]
	billID := stringField(bill, "bill_id")
	actions, _ := bill["actions"].([]any)

	items := make([]*entity.SeenItem, 0, len(actions))
	for _, raw := range actions {
		action, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		if stringField(action, "type") == "vote" && function != poll.FuncSearch {
			continue
		}
		actedAt := parseDate(action["acted_at"])
		if actedAt.IsZero() {
			return nil, fmt.Errorf("%w: action on %s without acted_at", poll.ErrMalformedResponse, billID)
		}
		items = append(items, &entity.SeenItem{
			ItemType: "action",
			ItemID:   fmt.Sprintf("%s-action-%d", billID, actedAt.Unix()),
			Date:     actedAt,
			Data:     action,
		})
	}
	return items, nil
}

func (a *FederalBillsActivity) ShortName(n int) string { return plural(n, "action", "actions") }

func (a *FederalBillsActivity) InterestName(interest *entity.Interest) string {
	if code := FormattedBillCode(interest.Data["bill_type"], interest.Data["number"]); code != "" {
		return code
	}
	return interest.In
}

func (a *FederalBillsActivity) RenderItem(item *entity.SeenItem) string {
	text := item.DataString("text")
	if text == "" {
		text = item.DataString("type")
	}
	return item.Date.Format("Jan 2, 2006") + ": " + text
}
