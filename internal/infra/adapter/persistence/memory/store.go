// Package memory provides in-process implementations of every repository.
// They back the use-case tests and the -memory mode of the worker.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"scout-alerts/internal/domain/entity"
	"scout-alerts/internal/repository"
)

// Store holds all tables behind a single mutex.
type Store struct {
	mu sync.RWMutex

	nextID int64

	users         map[int64]*entity.User
	tags          map[int64]*entity.Tag
	interests     map[int64]*entity.Interest
	subscriptions map[int64]*entity.Subscription
	seenItems     map[int64]*entity.SeenItem
	deliveries    map[int64]*entity.Delivery
	receipts      []*entity.Receipt
	caches        map[cacheKey]string
	reports       []*entity.Report
	events        []*entity.Event
}

type cacheKey struct{ url, function, subscriptionType string }

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		users:         make(map[int64]*entity.User),
		tags:          make(map[int64]*entity.Tag),
		interests:     make(map[int64]*entity.Interest),
		subscriptions: make(map[int64]*entity.Subscription),
		seenItems:     make(map[int64]*entity.SeenItem),
		deliveries:    make(map[int64]*entity.Delivery),
		caches:        make(map[cacheKey]string),
	}
}

func (s *Store) id() int64 {
	s.nextID++
	return s.nextID
}

// Repository views over the store.

func (s *Store) Users() repository.UserRepository                 { return userRepo{s} }
func (s *Store) Tags() repository.TagRepository                   { return tagRepo{s} }
func (s *Store) Interests() repository.InterestRepository         { return interestRepo{s} }
func (s *Store) Subscriptions() repository.SubscriptionRepository { return subscriptionRepo{s} }
func (s *Store) SeenItems() repository.SeenItemRepository         { return seenItemRepo{s} }
func (s *Store) Deliveries() repository.DeliveryRepository        { return deliveryRepo{s} }
func (s *Store) Receipts() repository.ReceiptRepository           { return receiptRepo{s} }
func (s *Store) Cache() repository.CacheRepository                { return cacheRepo{s} }
func (s *Store) Reports() repository.ReportRepository             { return reportRepo{s} }

// ReportsSnapshot returns the persisted reports in insertion order.
func (s *Store) ReportsSnapshot() []*entity.Report {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]*entity.Report(nil), s.reports...)
}

/* ───── users ───── */

type userRepo struct{ s *Store }

func (r userRepo) Get(_ context.Context, id int64) (*entity.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	u, ok := r.s.users[id]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (r userRepo) GetByEmail(_ context.Context, email string) (*entity.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, u := range r.s.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (r userRepo) Create(_ context.Context, u *entity.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.users {
		if existing.Email == u.Email {
			return entity.ErrDuplicate
		}
	}
	if u.ID == 0 {
		u.ID = r.s.id()
	} else if u.ID > r.s.nextID {
		r.s.nextID = u.ID
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now()
	}
	cp := *u
	r.s.users[u.ID] = &cp
	return nil
}

/* ───── tags ───── */

type tagRepo struct{ s *Store }

func (r tagRepo) Get(_ context.Context, id int64) (*entity.Tag, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	t, ok := r.s.tags[id]
	if !ok {
		return nil, nil
	}
	cp := *t
	return &cp, nil
}

func (r tagRepo) ListPublicByUser(_ context.Context, userID int64) ([]*entity.Tag, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]*entity.Tag, 0)
	for _, t := range r.s.tags {
		if t.UserID == userID && t.Public {
			cp := *t
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r tagRepo) Create(_ context.Context, t *entity.Tag) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.tags {
		if existing.UserID == t.UserID && existing.Name == t.Name {
			return entity.ErrDuplicate
		}
	}
	t.ID = r.s.id()
	cp := *t
	r.s.tags[t.ID] = &cp
	return nil
}

/* ───── interests ───── */

type interestRepo struct{ s *Store }

func copyInterest(in *entity.Interest) *entity.Interest {
	cp := *in
	if in.Data != nil {
		cp.Data = make(map[string]string, len(in.Data))
		for k, v := range in.Data {
			cp.Data[k] = v
		}
	}
	cp.Tags = append([]string(nil), in.Tags...)
	return &cp
}

func (r interestRepo) Get(_ context.Context, id int64) (*entity.Interest, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	in, ok := r.s.interests[id]
	if !ok {
		return nil, nil
	}
	return copyInterest(in), nil
}

func (r interestRepo) filter(match func(*entity.Interest) bool) []*entity.Interest {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]*entity.Interest, 0)
	for _, in := range r.s.interests {
		if match(in) {
			out = append(out, copyInterest(in))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r interestRepo) FindCandidates(_ context.Context, userID int64, interestType, inNormal string) ([]*entity.Interest, error) {
	return r.filter(func(in *entity.Interest) bool {
		return in.UserID == userID && in.InterestType == interestType && in.InNormal == inNormal
	}), nil
}

func (r interestRepo) ListByUser(_ context.Context, userID int64) ([]*entity.Interest, error) {
	return r.filter(func(in *entity.Interest) bool { return in.UserID == userID }), nil
}

func (r interestRepo) ListTagFollowers(_ context.Context, tagIDs []string) ([]*entity.Interest, error) {
	want := make(map[string]bool, len(tagIDs))
	for _, id := range tagIDs {
		want[id] = true
	}
	return r.filter(func(in *entity.Interest) bool {
		return in.InterestType == entity.InterestTypeTag && want[in.In]
	}), nil
}

func (r interestRepo) Create(_ context.Context, in *entity.Interest) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	in.ID = r.s.id()
	now := time.Now()
	if in.CreatedAt.IsZero() {
		in.CreatedAt = now
	}
	if in.UpdatedAt.IsZero() {
		in.UpdatedAt = now
	}
	r.s.interests[in.ID] = copyInterest(in)
	return nil
}

func (r interestRepo) Update(_ context.Context, in *entity.Interest) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.interests[in.ID]; !ok {
		return entity.ErrNotFound
	}
	r.s.interests[in.ID] = copyInterest(in)
	return nil
}

func (r interestRepo) Delete(_ context.Context, id int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	delete(r.s.interests, id)
	return nil
}

/* ───── subscriptions ───── */

type subscriptionRepo struct{ s *Store }

func copySubscription(sub *entity.Subscription) *entity.Subscription {
	cp := *sub
	if sub.Data != nil {
		cp.Data = make(map[string]string, len(sub.Data))
		for k, v := range sub.Data {
			cp.Data[k] = v
		}
	}
	if sub.LastCheckedAt != nil {
		t := *sub.LastCheckedAt
		cp.LastCheckedAt = &t
	}
	return &cp
}

func (r subscriptionRepo) Get(_ context.Context, id int64) (*entity.Subscription, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	sub, ok := r.s.subscriptions[id]
	if !ok {
		return nil, nil
	}
	return copySubscription(sub), nil
}

func (r subscriptionRepo) filter(match func(*entity.Subscription) bool) []*entity.Subscription {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]*entity.Subscription, 0)
	for _, sub := range r.s.subscriptions {
		if match(sub) {
			out = append(out, copySubscription(sub))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r subscriptionRepo) ListByInterest(_ context.Context, interestID int64) ([]*entity.Subscription, error) {
	return r.filter(func(sub *entity.Subscription) bool { return sub.InterestID == interestID }), nil
}

func (r subscriptionRepo) ListInitialized(_ context.Context) ([]*entity.Subscription, error) {
	return r.filter(func(sub *entity.Subscription) bool { return sub.Initialized }), nil
}

func (r subscriptionRepo) ListUninitialized(_ context.Context) ([]*entity.Subscription, error) {
	return r.filter(func(sub *entity.Subscription) bool { return !sub.Initialized }), nil
}

func (r subscriptionRepo) Create(_ context.Context, sub *entity.Subscription) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	sub.ID = r.s.id()
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = time.Now()
	}
	r.s.subscriptions[sub.ID] = copySubscription(sub)
	return nil
}

func (r subscriptionRepo) MarkInitialized(_ context.Context, id int64, checkedAt time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if sub, ok := r.s.subscriptions[id]; ok {
		sub.Initialized = true
		sub.LastCheckedAt = &checkedAt
	}
	return nil
}

func (r subscriptionRepo) TouchCheckedAt(_ context.Context, id int64, checkedAt time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if sub, ok := r.s.subscriptions[id]; ok {
		sub.LastCheckedAt = &checkedAt
	}
	return nil
}

func (r subscriptionRepo) Delete(_ context.Context, id int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	delete(r.s.subscriptions, id)
	return nil
}

func (r subscriptionRepo) DeleteByInterest(_ context.Context, interestID int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for id, sub := range r.s.subscriptions {
		if sub.InterestID == interestID {
			delete(r.s.subscriptions, id)
		}
	}
	return nil
}

/* ───── seen items ───── */

type seenItemRepo struct{ s *Store }

func (r seenItemRepo) Exists(_ context.Context, interestID int64, itemID string) (bool, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, it := range r.s.seenItems {
		if it.InterestID == interestID && it.ItemID == itemID {
			return true, nil
		}
	}
	return false, nil
}

func (r seenItemRepo) ExistsBatch(_ context.Context, interestID int64, itemIDs []string) (map[string]bool, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	result := make(map[string]bool, len(itemIDs))
	for _, id := range itemIDs {
		result[id] = false
	}
	for _, it := range r.s.seenItems {
		if it.InterestID != interestID {
			continue
		}
		if _, ok := result[it.ItemID]; ok {
			result[it.ItemID] = true
		}
	}
	return result, nil
}

func (r seenItemRepo) Create(_ context.Context, item *entity.SeenItem) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, it := range r.s.seenItems {
		if it.InterestID == item.InterestID && it.ItemID == item.ItemID {
			return entity.ErrDuplicate
		}
	}
	item.ID = r.s.id()
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now()
	}
	cp := item.Copy()
	r.s.seenItems[item.ID] = &cp
	return nil
}

func (r seenItemRepo) ListByInterest(_ context.Context, interestID int64) ([]*entity.SeenItem, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]*entity.SeenItem, 0)
	for _, it := range r.s.seenItems {
		if it.InterestID == interestID {
			cp := it.Copy()
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.After(out[j].Date)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (r seenItemRepo) CountByInterest(_ context.Context, interestID int64) (int64, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var n int64
	for _, it := range r.s.seenItems {
		if it.InterestID == interestID {
			n++
		}
	}
	return n, nil
}

func (r seenItemRepo) deleteWhere(match func(*entity.SeenItem) bool) int64 {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for id, it := range r.s.seenItems {
		if match(it) {
			delete(r.s.seenItems, id)
			n++
		}
	}
	return n
}

func (r seenItemRepo) Delete(_ context.Context, interestID int64, itemID string) error {
	r.deleteWhere(func(it *entity.SeenItem) bool { return it.InterestID == interestID && it.ItemID == itemID })
	return nil
}

func (r seenItemRepo) DeleteBySubscription(_ context.Context, subscriptionID int64) (int64, error) {
	return r.deleteWhere(func(it *entity.SeenItem) bool { return it.SubscriptionID == subscriptionID }), nil
}

func (r seenItemRepo) DeleteByInterest(_ context.Context, interestID int64) (int64, error) {
	return r.deleteWhere(func(it *entity.SeenItem) bool { return it.InterestID == interestID }), nil
}

/* ───── deliveries ───── */

type deliveryRepo struct{ s *Store }

func matches(d *entity.Delivery, f repository.DeliveryFilter) bool {
	if f.Mechanism != "" && d.Mechanism != f.Mechanism {
		return false
	}
	if f.EmailFrequency != "" && d.EmailFrequency != f.EmailFrequency {
		return false
	}
	if f.UserID != 0 && d.UserID != f.UserID {
		return false
	}
	return true
}

func copyDelivery(d *entity.Delivery) *entity.Delivery {
	cp := *d
	cp.Item = d.Item.Copy()
	return &cp
}

func (r deliveryRepo) Create(_ context.Context, d *entity.Delivery) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	d.ID = r.s.id()
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now()
	}
	r.s.deliveries[d.ID] = copyDelivery(d)
	return nil
}

func (r deliveryRepo) List(_ context.Context, f repository.DeliveryFilter) ([]*entity.Delivery, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]*entity.Delivery, 0)
	for _, d := range r.s.deliveries {
		if matches(d, f) {
			out = append(out, copyDelivery(d))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Item.Date.Equal(out[j].Item.Date) {
			return out[i].Item.Date.After(out[j].Item.Date)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r deliveryRepo) Count(_ context.Context, f repository.DeliveryFilter) (int64, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var n int64
	for _, d := range r.s.deliveries {
		if matches(d, f) {
			n++
		}
	}
	return n, nil
}

func (r deliveryRepo) CountDistinctInterests(_ context.Context, f repository.DeliveryFilter) (int64, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	seen := make(map[int64]struct{})
	for _, d := range r.s.deliveries {
		if matches(d, f) {
			seen[d.SeenThroughID] = struct{}{}
		}
	}
	return int64(len(seen)), nil
}

func (r deliveryRepo) DistinctUsers(_ context.Context, f repository.DeliveryFilter) ([]int64, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	seen := make(map[int64]struct{})
	for _, d := range r.s.deliveries {
		if matches(d, f) {
			seen[d.UserID] = struct{}{}
		}
	}
	ids := make([]int64, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (r deliveryRepo) DeleteByIDs(_ context.Context, ids []int64) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for _, id := range ids {
		if _, ok := r.s.deliveries[id]; ok {
			delete(r.s.deliveries, id)
			n++
		}
	}
	return n, nil
}

func (r deliveryRepo) DeleteByInterest(_ context.Context, interestID int64) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for id, d := range r.s.deliveries {
		if d.InterestID == interestID || d.SeenThroughID == interestID {
			delete(r.s.deliveries, id)
			n++
		}
	}
	return n, nil
}

/* ───── receipts ───── */

type receiptRepo struct{ s *Store }

func (r receiptRepo) Create(_ context.Context, rc *entity.Receipt) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	rc.ID = r.s.id()
	cp := *rc
	cp.Deliveries = append([]entity.Delivery(nil), rc.Deliveries...)
	r.s.receipts = append(r.s.receipts, &cp)
	return nil
}

func (r receiptRepo) ListByUser(_ context.Context, userID int64) ([]*entity.Receipt, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]*entity.Receipt, 0)
	for i := len(r.s.receipts) - 1; i >= 0; i-- {
		if rc := r.s.receipts[i]; rc.UserID == userID {
			cp := *rc
			out = append(out, &cp)
		}
	}
	return out, nil
}

/* ───── cache ───── */

type cacheRepo struct{ s *Store }

func (r cacheRepo) Get(_ context.Context, url, function, subscriptionType string) (string, bool, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	content, ok := r.s.caches[cacheKey{url, function, subscriptionType}]
	return content, ok, nil
}

func (r cacheRepo) Put(_ context.Context, url, function, subscriptionType, content string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.caches[cacheKey{url, function, subscriptionType}] = content
	return nil
}

func (r cacheRepo) Clear(_ context.Context, subscriptionType string) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for k := range r.s.caches {
		if k.subscriptionType == subscriptionType {
			delete(r.s.caches, k)
			n++
		}
	}
	return n, nil
}

/* ───── reports / events ───── */

type reportRepo struct{ s *Store }

func (r reportRepo) CreateReport(_ context.Context, rep *entity.Report) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	rep.ID = r.s.id()
	cp := *rep
	r.s.reports = append(r.s.reports, &cp)
	return nil
}

func (r reportRepo) CreateEvent(_ context.Context, e *entity.Event) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	e.ID = r.s.id()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	cp := *e
	r.s.events = append(r.s.events, &cp)
	return nil
}

func (r reportRepo) ListEvents(_ context.Context, eventType string, limit int) ([]*entity.Event, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	if limit <= 0 {
		limit = 50
	}
	out := make([]*entity.Event, 0)
	for i := len(r.s.events) - 1; i >= 0 && len(out) < limit; i-- {
		if e := r.s.events[i]; e.Type == eventType {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, nil
}
