package messages

import (
	"context"
	"fmt"
	"log"
	"sort"

	"github.com/chatconnect/chatconnect/internal/stats"
	"github.com/chatconnect/chatconnect/internal/store"
	"github.com/chatconnect/chatconnect/internal/types"
	"github.com/teris-io/shortid"
)

// Service appends and reads room messages. Messages are append-only
// and ordered by their server-assigned timestamp; delivery guarantees
// beyond the store's native subscription semantics are not added here.
type Service struct {
	log   *log.Logger
	store store.Store
	paths store.Paths
	stats stats.Provider
	sid   *shortid.Shortid
}

func NewService(logger *log.Logger, st store.Store, paths store.Paths, sp stats.Provider) (*Service, error) {
	sid, err := shortid.New(1, shortid.DefaultABC, 2342)
	if err != nil {
		return nil, fmt.Errorf("shortid: %w", err)
	}

	return &Service{
		log:   logger,
		store: st,
		paths: paths,
		stats: sp,
		sid:   sid,
	}, nil
}

func decodeMessage(roomId string, doc store.Document) types.Message {
	return types.Message{
		Id:             doc.Key,
		RoomId:         roomId,
		SenderId:       store.StringField(doc, "senderId"),
		SenderUsername: store.StringField(doc, "senderUsername"),
		Text:           store.StringField(doc, "text"),
		Timestamp:      store.TimeField(doc, "timestamp"),
	}
}

func sortByTimestamp(msgs []types.Message) {
	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].Timestamp.Before(msgs[j].Timestamp)
	})
}

// Send appends a message to the room's message collection.
func (s *Service) Send(ctx context.Context, roomId, senderId, senderUsername, text string) (types.Message, error) {
	if err := s.store.Online(ctx); err != nil {
		return types.Message{}, err
	}

	id, err := s.sid.Generate()
	if err != nil {
		return types.Message{}, fmt.Errorf("generate message id: %w", err)
	}

	if err := s.store.Set(ctx, s.paths.Messages(roomId), id, map[string]any{
		"senderId":       senderId,
		"senderUsername": senderUsername,
		"text":           text,
		"timestamp":      store.ServerTimestamp,
	}); err != nil {
		return types.Message{}, fmt.Errorf("send message: %w", err)
	}

	s.stats.Incr(stats.MessagesSent)
	return types.Message{
		Id:             id,
		RoomId:         roomId,
		SenderId:       senderId,
		SenderUsername: senderUsername,
		Text:           text,
	}, nil
}

// List returns all messages in a room ordered by timestamp.
func (s *Service) List(ctx context.Context, roomId string) ([]types.Message, error) {
	docs, err := s.store.Query(ctx, s.paths.Messages(roomId))
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}

	msgs := make([]types.Message, 0, len(docs))
	for _, doc := range docs {
		msgs = append(msgs, decodeMessage(roomId, doc))
	}
	sortByTimestamp(msgs)
	return msgs, nil
}

// Stream is a live ordered view of a room's messages.
type Stream struct {
	roomId  string
	sub     store.Subscription
	updates chan []types.Message
}

// Subscribe opens a live message stream for a room. Close it when the
// owning context unmounts.
func (s *Service) Subscribe(ctx context.Context, roomId string) (*Stream, error) {
	sub, err := s.store.Subscribe(ctx, s.paths.Messages(roomId))
	if err != nil {
		return nil, fmt.Errorf("subscribe messages: %w", err)
	}

	st := &Stream{
		roomId:  roomId,
		sub:     sub,
		updates: make(chan []types.Message, 16),
	}

	go func() {
		defer close(st.updates)
		for docs := range sub.Updates() {
			msgs := make([]types.Message, 0, len(docs))
			for _, doc := range docs {
				msgs = append(msgs, decodeMessage(roomId, doc))
			}
			sortByTimestamp(msgs)

			select {
			case st.updates <- msgs:
			default:
				select {
				case <-st.updates:
				default:
				}
				st.updates <- msgs
			}
		}
	}()

	return st, nil
}

func (st *Stream) Updates() <-chan []types.Message { return st.updates }

func (st *Stream) Close() { st.sub.Close() }
