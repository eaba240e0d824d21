package store

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a document does not exist at the
	// requested path.
	ErrNotFound = errors.New("document not found")
	// ErrOffline is returned when the store cannot be reached.
	ErrOffline = errors.New("store unavailable")
	// ErrConflict is returned when a transaction could not commit after
	// exhausting its retry budget.
	ErrConflict = errors.New("transaction conflict")
)

// serverTimestamp is the sentinel type for server-assigned time fields.
type serverTimestamp struct{}

// ServerTimestamp is a sentinel field value which the store replaces
// with its own clock at commit time.
var ServerTimestamp = serverTimestamp{}

type Document struct {
	Key    string
	Fields map[string]any
}

type FilterOp int

const (
	// OpEqual matches documents whose field equals the filter value.
	OpEqual FilterOp = iota
	// OpContains matches documents whose array field contains the
	// filter value.
	OpContains
)

type Filter struct {
	Field string
	Op    FilterOp
	Value string
}

func Equal(field, value string) Filter {
	return Filter{Field: field, Op: OpEqual, Value: value}
}

func Contains(field, value string) Filter {
	return Filter{Field: field, Op: OpContains, Value: value}
}

// Tx is the handle passed to a transaction function. Reads through the
// handle are tracked by the store; a conflicting concurrent write to a
// document read through the handle causes the function to be retried.
type Tx interface {
	Get(collection, key string) (Document, error)
	Set(collection, key string, fields map[string]any) error
	Delete(collection, key string) error
	Query(collection string, filters ...Filter) ([]Document, error)
}

// Subscription is a live query. Updates yields the full result set of
// the query on every change to it. Close tears down the subscription
// and closes the updates channel.
type Subscription interface {
	Updates() <-chan []Document
	Close()
}

// Store is the document store collaborator: durable key-value
// documents organized into collections, atomic multi-document
// transactions, realtime change subscriptions per query, and
// server-assigned timestamps.
type Store interface {
	Get(ctx context.Context, collection, key string) (Document, error)
	// Set upserts the document at collection/key, overwriting existing
	// fields.
	Set(ctx context.Context, collection, key string, fields map[string]any) error
	Delete(ctx context.Context, collection, key string) error
	// RunTransaction runs fn atomically. fn may be invoked more than
	// once and must be free of side effects outside the handle.
	RunTransaction(ctx context.Context, fn func(tx Tx) error) error
	Query(ctx context.Context, collection string, filters ...Filter) ([]Document, error)
	Subscribe(ctx context.Context, collection string, filters ...Filter) (Subscription, error)
	// Online reports whether the store is reachable. Mutating callers
	// check this before starting a transaction so offline failures are
	// refused upfront rather than attempted and rolled back.
	Online(ctx context.Context) error
}

// TimeField reads a timestamp field from a document, accepting both
// native time.Time values (memory store) and RFC 3339 strings (JSONB
// round-trip). The zero time is returned for absent or malformed
// values.
func TimeField(doc Document, field string) time.Time {
	switch v := doc.Fields[field].(type) {
	case time.Time:
		return v
	case string:
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return time.Time{}
		}
		return t
	default:
		return time.Time{}
	}
}

// StringField reads a string field from a document, returning "" when
// absent.
func StringField(doc Document, field string) string {
	s, _ := doc.Fields[field].(string)
	return s
}

// StringsField reads an array-of-strings field, accepting both
// []string and the []any produced by a JSON round-trip.
func StringsField(doc Document, field string) []string {
	switch v := doc.Fields[field].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// StringMapField reads a map-of-strings field, accepting both
// map[string]string and the map[string]any produced by a JSON
// round-trip.
func StringMapField(doc Document, field string) map[string]string {
	switch v := doc.Fields[field].(type) {
	case map[string]string:
		return v
	case map[string]any:
		out := make(map[string]string, len(v))
		for k, e := range v {
			if s, ok := e.(string); ok {
				out[k] = s
			}
		}
		return out
	default:
		return nil
	}
}
