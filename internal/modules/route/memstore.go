package route

import (
	"context"
	"sort"
	"sync"
	"time"

	"lastmile/internal/modules/pricing"
	"lastmile/internal/types"
)

// MemStore is a Repository held in process. Transactions are serialised by a
// single mutex; each one keeps an undo log that is replayed on failure, so a
// transaction costs what it writes rather than the size of the store.
type MemStore struct {
	mu     sync.RWMutex
	prices pricing.Lookup
	state  memState
	nextEv int64
}

type memState struct {
	routes map[types.ID]Route
	offers map[types.ID]Offer
	// routeOffers keeps offer ids per route in creation order.
	routeOffers map[types.ID][]types.ID
	slots       map[SlotKey]types.ID
	events      []Event
}

func NewMemStore(prices pricing.Lookup) *MemStore {
	return &MemStore{
		prices: prices,
		state: memState{
			routes:      make(map[types.ID]Route),
			offers:      make(map[types.ID]Offer),
			routeOffers: make(map[types.ID][]types.ID),
			slots:       make(map[SlotKey]types.ID),
		},
	}
}

func (m *MemStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	tx := &memTx{m: m, events: len(m.state.events), nextEv: m.nextEv}
	if err := fn(tx); err != nil {
		tx.rollback()
		return err
	}
	return nil
}

func (m *MemStore) GetRoute(_ context.Context, id types.ID) (*Route, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.state.routes[id]
	if !ok {
		return nil, &NotFoundError{Kind: "route", ID: id}
	}
	return copyRoute(r), nil
}

func (m *MemStore) ListRoutes(_ context.Context, f Filter) ([]Route, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Route, 0)
	for _, r := range m.state.routes {
		if f.Date != nil && !types.Day(r.Date).Equal(types.Day(*f.Date)) {
			continue
		}
		if f.Status != "" && r.Status != f.Status {
			continue
		}
		if f.DriverID != "" && (r.AssignedDriverID == nil || *r.AssignedDriverID != f.DriverID) {
			continue
		}
		out = append(out, *copyRoute(r))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		if out[i].StartTime != out[j].StartTime {
			return out[i].StartTime < out[j].StartTime
		}
		return out[i].ID < out[j].ID
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (m *MemStore) GetOffer(_ context.Context, id types.ID) (*Offer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.state.offers[id]
	if !ok {
		return nil, &NotFoundError{Kind: "offer", ID: id}
	}
	return &o, nil
}

func (m *MemStore) ListOffers(_ context.Context, routeID types.ID) ([]Offer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := m.state.routeOffers[routeID]
	out := make([]Offer, 0, len(ids))
	for _, id := range ids {
		out = append(out, m.state.offers[id])
	}
	return out, nil
}

func (m *MemStore) Events(_ context.Context, routeID types.ID) ([]Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Event, 0)
	for _, e := range m.state.events {
		if e.RouteID == routeID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *MemStore) SlotHolders(_ context.Context, date time.Time, cycle types.Cycle, vehicleType types.VehicleType) (map[types.ID]types.ID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d := types.FormatDate(date)
	out := make(map[types.ID]types.ID)
	for k, offerID := range m.state.slots {
		if k.Date == d && k.Cycle == cycle && k.VehicleType == vehicleType {
			out[k.DriverID] = offerID
		}
	}
	return out, nil
}

// memTx runs with MemStore.mu held.
type memTx struct {
	m      *MemStore
	undo   []func()
	events int
	nextEv int64
}

func (t *memTx) rollback() {
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.m.state.events = t.m.state.events[:t.events]
	t.m.nextEv = t.nextEv
}

func (t *memTx) saveRoute(id types.ID) {
	prev, had := t.m.state.routes[id]
	t.undo = append(t.undo, func() {
		if had {
			t.m.state.routes[id] = prev
		} else {
			delete(t.m.state.routes, id)
		}
	})
}

func (t *memTx) saveOffer(id types.ID) {
	prev, had := t.m.state.offers[id]
	t.undo = append(t.undo, func() {
		if had {
			t.m.state.offers[id] = prev
		} else {
			delete(t.m.state.offers, id)
		}
	})
}

func (t *memTx) saveSlot(key SlotKey) {
	prev, had := t.m.state.slots[key]
	t.undo = append(t.undo, func() {
		if had {
			t.m.state.slots[key] = prev
		} else {
			delete(t.m.state.slots, key)
		}
	})
}

func (t *memTx) GetRoute(_ context.Context, id types.ID) (*Route, error) {
	r, ok := t.m.state.routes[id]
	if !ok {
		return nil, &NotFoundError{Kind: "route", ID: id}
	}
	return copyRoute(r), nil
}

func (t *memTx) InsertRoute(_ context.Context, r *Route) error {
	t.saveRoute(r.ID)
	t.m.state.routes[r.ID] = *copyRoute(*r)
	return nil
}

func (t *memTx) UpdateRoute(_ context.Context, r *Route) error {
	cur, ok := t.m.state.routes[r.ID]
	if !ok {
		return &NotFoundError{Kind: "route", ID: r.ID}
	}
	next := *copyRoute(*r)
	next.Price = cur.Price
	t.saveRoute(r.ID)
	t.m.state.routes[r.ID] = next
	return nil
}

func (t *memTx) GetOffer(_ context.Context, id types.ID) (*Offer, error) {
	o, ok := t.m.state.offers[id]
	if !ok {
		return nil, &NotFoundError{Kind: "offer", ID: id}
	}
	return &o, nil
}

func (t *memTx) ActiveOffer(_ context.Context, routeID types.ID) (*Offer, error) {
	for _, id := range t.m.state.routeOffers[routeID] {
		if o := t.m.state.offers[id]; o.Active {
			return &o, nil
		}
	}
	return nil, nil
}

func (t *memTx) InsertOffer(_ context.Context, o *Offer) error {
	t.saveOffer(o.ID)
	ids, had := t.m.state.routeOffers[o.RouteID]
	t.undo = append(t.undo, func() {
		if had {
			t.m.state.routeOffers[o.RouteID] = ids
		} else {
			delete(t.m.state.routeOffers, o.RouteID)
		}
	})
	t.m.state.offers[o.ID] = *o
	t.m.state.routeOffers[o.RouteID] = append(t.m.state.routeOffers[o.RouteID], o.ID)
	return nil
}

func (t *memTx) UpdateOffer(_ context.Context, o *Offer) error {
	if _, ok := t.m.state.offers[o.ID]; !ok {
		return &NotFoundError{Kind: "offer", ID: o.ID}
	}
	t.saveOffer(o.ID)
	t.m.state.offers[o.ID] = *o
	return nil
}

func (t *memTx) ClaimSlot(_ context.Context, key SlotKey, offerID types.ID) (types.ID, bool, error) {
	if holder, held := t.m.state.slots[key]; held {
		return holder, false, nil
	}
	t.saveSlot(key)
	t.m.state.slots[key] = offerID
	return offerID, true, nil
}

func (t *memTx) ReleaseSlot(_ context.Context, key SlotKey, offerID types.ID) error {
	if holder, held := t.m.state.slots[key]; held && holder == offerID {
		t.saveSlot(key)
		delete(t.m.state.slots, key)
	}
	return nil
}

func (t *memTx) AppendEvent(_ context.Context, e *Event) error {
	t.m.nextEv++
	e.ID = t.m.nextEv
	t.m.state.events = append(t.m.state.events, *e)
	return nil
}

func (t *memTx) Prices() pricing.Lookup {
	return t.m.prices
}

func copyRoute(r Route) *Route {
	c := r
	if r.RealKm != nil {
		v := *r.RealKm
		c.RealKm = &v
	}
	if r.FinalValue != nil {
		v := *r.FinalValue
		c.FinalValue = &v
	}
	if r.AssignedDriverID != nil {
		v := *r.AssignedDriverID
		c.AssignedDriverID = &v
	}
	if r.ActualStartTime != nil {
		v := *r.ActualStartTime
		c.ActualStartTime = &v
	}
	if r.ValidatedAt != nil {
		v := *r.ValidatedAt
		c.ValidatedAt = &v
	}
	if r.Rescue != nil {
		v := *r.Rescue
		c.Rescue = &v
	}
	return &c
}
