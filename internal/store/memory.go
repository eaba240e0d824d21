package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-process Store used by tests and single-node
// development. Transactions are serialized under the store lock, so
// conflicting commits cannot occur; the production path is PGStore.
type MemoryStore struct {
	mu      sync.Mutex
	data    map[string]map[string]map[string]any
	subs    map[*memorySub]struct{}
	offline bool
	// now is the server clock, overridable in tests.
	now func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data: make(map[string]map[string]map[string]any),
		subs: make(map[*memorySub]struct{}),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// SetOnline toggles simulated connectivity.
func (m *MemoryStore) SetOnline(online bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.offline = !online
}

func (m *MemoryStore) Online(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.offline {
		return ErrOffline
	}
	return nil
}

func (m *MemoryStore) Get(_ context.Context, collection, key string) (Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.offline {
		return Document{}, ErrOffline
	}
	return m.getLocked(collection, key)
}

func (m *MemoryStore) getLocked(collection, key string) (Document, error) {
	fields, ok := m.data[collection][key]
	if !ok {
		return Document{}, ErrNotFound
	}
	return Document{Key: key, Fields: copyFields(fields)}, nil
}

func (m *MemoryStore) Set(_ context.Context, collection, key string, fields map[string]any) error {
	m.mu.Lock()
	if m.offline {
		m.mu.Unlock()
		return ErrOffline
	}
	m.setLocked(collection, key, fields)
	notify := m.snapshotsLocked(collection)
	m.mu.Unlock()

	deliver(notify)
	return nil
}

func (m *MemoryStore) setLocked(collection, key string, fields map[string]any) {
	if m.data[collection] == nil {
		m.data[collection] = make(map[string]map[string]any)
	}
	m.data[collection][key] = resolveTimestamps(copyFields(fields), m.now())
}

func (m *MemoryStore) Delete(_ context.Context, collection, key string) error {
	m.mu.Lock()
	if m.offline {
		m.mu.Unlock()
		return ErrOffline
	}
	delete(m.data[collection], key)
	notify := m.snapshotsLocked(collection)
	m.mu.Unlock()

	deliver(notify)
	return nil
}

func (m *MemoryStore) Query(_ context.Context, collection string, filters ...Filter) ([]Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.offline {
		return nil, ErrOffline
	}
	return m.queryLocked(collection, filters), nil
}

func (m *MemoryStore) queryLocked(collection string, filters []Filter) []Document {
	var docs []Document
	for key, fields := range m.data[collection] {
		doc := Document{Key: key, Fields: fields}
		if matches(doc, filters) {
			docs = append(docs, Document{Key: key, Fields: copyFields(fields)})
		}
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].Key < docs[j].Key })
	return docs
}

func matches(doc Document, filters []Filter) bool {
	for _, f := range filters {
		switch f.Op {
		case OpEqual:
			if StringField(doc, f.Field) != f.Value {
				return false
			}
		case OpContains:
			found := false
			for _, v := range StringsField(doc, f.Field) {
				if v == f.Value {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		}
	}
	return true
}

type memoryTx struct {
	store   *MemoryStore
	writes  map[string]map[string]*map[string]any // nil value marks a delete
	touched map[string]struct{}
}

func (tx *memoryTx) overlay(collection, key string) (map[string]any, bool, bool) {
	if w, ok := tx.writes[collection][key]; ok {
		if w == nil {
			return nil, false, true
		}
		return *w, true, true
	}
	return nil, false, false
}

func (tx *memoryTx) Get(collection, key string) (Document, error) {
	if fields, ok, staged := tx.overlay(collection, key); staged {
		if !ok {
			return Document{}, ErrNotFound
		}
		return Document{Key: key, Fields: copyFields(fields)}, nil
	}
	return tx.store.getLocked(collection, key)
}

func (tx *memoryTx) Set(collection, key string, fields map[string]any) error {
	if tx.writes[collection] == nil {
		tx.writes[collection] = make(map[string]*map[string]any)
	}
	staged := copyFields(fields)
	tx.writes[collection][key] = &staged
	tx.touched[collection] = struct{}{}
	return nil
}

func (tx *memoryTx) Delete(collection, key string) error {
	if tx.writes[collection] == nil {
		tx.writes[collection] = make(map[string]*map[string]any)
	}
	tx.writes[collection][key] = nil
	tx.touched[collection] = struct{}{}
	return nil
}

func (tx *memoryTx) Query(collection string, filters ...Filter) ([]Document, error) {
	docs := tx.store.queryLocked(collection, filters)
	// overlay staged writes so the transaction reads its own effects
	var out []Document
	for _, doc := range docs {
		if fields, ok, staged := tx.overlay(collection, doc.Key); staged {
			if !ok {
				continue
			}
			doc.Fields = copyFields(fields)
		}
		out = append(out, doc)
	}
	for key, w := range tx.writes[collection] {
		if w == nil {
			continue
		}
		seen := false
		for _, doc := range out {
			if doc.Key == key {
				seen = true
				break
			}
		}
		if !seen {
			doc := Document{Key: key, Fields: copyFields(*w)}
			if matches(doc, filters) {
				out = append(out, doc)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (m *MemoryStore) RunTransaction(_ context.Context, fn func(tx Tx) error) error {
	m.mu.Lock()
	if m.offline {
		m.mu.Unlock()
		return ErrOffline
	}

	tx := &memoryTx{
		store:   m,
		writes:  make(map[string]map[string]*map[string]any),
		touched: make(map[string]struct{}),
	}

	if err := fn(tx); err != nil {
		m.mu.Unlock()
		return err
	}

	for collection, writes := range tx.writes {
		for key, w := range writes {
			if w == nil {
				delete(m.data[collection], key)
				continue
			}
			m.setLocked(collection, key, *w)
		}
	}

	var notify []pendingUpdate
	for collection := range tx.touched {
		notify = append(notify, m.snapshotsLocked(collection)...)
	}
	m.mu.Unlock()

	deliver(notify)
	return nil
}

type memorySub struct {
	store      *MemoryStore
	collection string
	filters    []Filter

	mu     sync.Mutex
	ch     chan []Document
	closed bool
}

func (s *memorySub) Updates() <-chan []Document { return s.ch }

func (s *memorySub) Close() {
	s.store.mu.Lock()
	delete(s.store.subs, s)
	s.store.mu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

// push sends the latest result set without blocking, dropping stale
// snapshots if the subscriber is slow.
func (s *memorySub) push(docs []Document) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	for {
		select {
		case s.ch <- docs:
			return
		default:
			select {
			case <-s.ch:
			default:
			}
		}
	}
}

func (m *MemoryStore) Subscribe(_ context.Context, collection string, filters ...Filter) (Subscription, error) {
	m.mu.Lock()
	if m.offline {
		m.mu.Unlock()
		return nil, ErrOffline
	}
	sub := &memorySub{
		store:      m,
		collection: collection,
		filters:    filters,
		ch:         make(chan []Document, 16),
	}
	m.subs[sub] = struct{}{}
	initial := m.queryLocked(collection, filters)
	m.mu.Unlock()

	sub.ch <- initial
	return sub, nil
}

type pendingUpdate struct {
	sub  *memorySub
	docs []Document
}

func (m *MemoryStore) snapshotsLocked(collection string) []pendingUpdate {
	var updates []pendingUpdate
	for sub := range m.subs {
		if sub.collection != collection {
			continue
		}
		updates = append(updates, pendingUpdate{
			sub:  sub,
			docs: m.queryLocked(collection, sub.filters),
		})
	}
	return updates
}

func deliver(updates []pendingUpdate) {
	for _, u := range updates {
		u.sub.push(u.docs)
	}
}

func copyFields(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		switch t := v.(type) {
		case []string:
			out[k] = append([]string(nil), t...)
		case map[string]string:
			mm := make(map[string]string, len(t))
			for mk, mv := range t {
				mm[mk] = mv
			}
			out[k] = mm
		default:
			out[k] = v
		}
	}
	return out
}

func resolveTimestamps(fields map[string]any, now time.Time) map[string]any {
	for k, v := range fields {
		if _, ok := v.(serverTimestamp); ok {
			fields[k] = now
		}
	}
	return fields
}
