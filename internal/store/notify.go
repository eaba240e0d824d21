package store

import (
	"context"
	"log"
	"sync"

	"github.com/redis/go-redis/v9"
)

const changeChannel = "chatconnect:changes"

// notifier fans collection change signals out to live subscriptions.
// With a Redis client it also relays signals between instances over
// pub/sub; writes published locally loop back through Redis, which is
// harmless since subscribers re-query on every signal.
type notifier struct {
	log *log.Logger
	rdb *redis.Client

	mu     sync.Mutex
	subs   map[*pgSub]struct{}
	cancel context.CancelFunc
	done   chan struct{}
}

func newNotifier(logger *log.Logger, rdb *redis.Client) *notifier {
	return &notifier{
		log:  logger,
		rdb:  rdb,
		subs: make(map[*pgSub]struct{}),
	}
}

func (n *notifier) run() {
	if n.rdb == nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	n.cancel = cancel
	n.done = make(chan struct{})

	pubsub := n.rdb.Subscribe(ctx, changeChannel)
	go func() {
		defer close(n.done)
		defer pubsub.Close()
		for {
			select {
			case msg, ok := <-pubsub.Channel():
				if !ok {
					return
				}
				n.signal(msg.Payload)
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (n *notifier) stop() {
	if n.cancel != nil {
		n.cancel()
		<-n.done
	}

	n.mu.Lock()
	subs := make([]*pgSub, 0, len(n.subs))
	for sub := range n.subs {
		subs = append(subs, sub)
	}
	n.mu.Unlock()

	for _, sub := range subs {
		sub.Close()
	}
}

func (n *notifier) publish(ctx context.Context, collection string) {
	n.signal(collection)
	if n.rdb == nil {
		return
	}
	if err := n.rdb.Publish(ctx, changeChannel, collection).Err(); err != nil {
		n.log.Println("publish change:", err)
	}
}

func (n *notifier) signal(collection string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for sub := range n.subs {
		if sub.collection != collection {
			continue
		}
		select {
		case sub.wake <- struct{}{}:
		default:
		}
	}
}

func (n *notifier) subscribe(s *PGStore, collection string, filters []Filter) *pgSub {
	sub := &pgSub{
		store:      s,
		notifier:   n,
		collection: collection,
		filters:    filters,
		wake:       make(chan struct{}, 1),
		ch:         make(chan []Document, 16),
		done:       make(chan struct{}),
	}

	n.mu.Lock()
	n.subs[sub] = struct{}{}
	n.mu.Unlock()

	go sub.loop()
	return sub
}

type pgSub struct {
	store      *PGStore
	notifier   *notifier
	collection string
	filters    []Filter
	wake       chan struct{}
	ch         chan []Document
	done       chan struct{}
	closeOnce  sync.Once
}

func (s *pgSub) Updates() <-chan []Document { return s.ch }

func (s *pgSub) Close() {
	s.closeOnce.Do(func() {
		s.notifier.mu.Lock()
		delete(s.notifier.subs, s)
		s.notifier.mu.Unlock()
		close(s.done)
	})
}

// loop re-runs the query on every change signal and pushes the result
// set, dropping stale snapshots if the consumer is slow. The updates
// channel is closed only from here, once the subscription is torn
// down.
func (s *pgSub) loop() {
	defer close(s.ch)

	s.emit()
	for {
		select {
		case <-s.done:
			return
		case <-s.wake:
			s.emit()
		}
	}
}

func (s *pgSub) emit() {
	docs, err := s.store.Query(context.Background(), s.collection, s.filters...)
	if err != nil {
		s.store.log.Println("subscription query:", err)
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
