package realtime

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/chatconnect/chatconnect/internal/messages"
	"github.com/chatconnect/chatconnect/internal/pairing"
	"github.com/chatconnect/chatconnect/internal/stats"
	"github.com/chatconnect/chatconnect/internal/types"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = (pongWait * 9) / 10
	maxMessageSize = 4096
)

// Client is one browser connection. It owns a room watcher for the
// session user plus one message stream per subscribed room, and tears
// all of them down when the socket goes away.
type Client struct {
	conn     *websocket.Conn
	log      *log.Logger
	user     types.UserProfile
	pairing  *pairing.Service
	messages *messages.Service
	stats    stats.Provider

	send chan *ServerMessage
	stop chan struct{}

	streamsLock sync.Mutex
	streams     map[string]*messages.Stream

	watcher *pairing.Watcher

	cleanupOnce sync.Once
}

func NewClient(user types.UserProfile, conn *websocket.Conn, ps *pairing.Service, ms *messages.Service, sp stats.Provider, l *log.Logger) *Client {
	return &Client{
		conn:     conn,
		log:      l,
		user:     user,
		pairing:  ps,
		messages: ms,
		stats:    sp,
		send:     make(chan *ServerMessage, 256),
		stop:     make(chan struct{}),
		streams:  make(map[string]*messages.Stream),
	}
}

// Start opens the room watcher and launches the pumps.
func (c *Client) Start(ctx context.Context) error {
	watcher, err := c.pairing.ObserveRooms(ctx, c.user.UserId)
	if err != nil {
		return err
	}
	c.watcher = watcher
	c.stats.Incr(stats.ActiveConnections)

	go c.forwardRooms()
	go c.write()
	go c.read(ctx)
	return nil
}

// Stop closes the connection and releases every subscription held by
// the client.
func (c *Client) Stop() {
	c.cleanup()
}

func (c *Client) cleanup() {
	c.cleanupOnce.Do(func() {
		close(c.stop)
		c.conn.Close()
		c.watcher.Close()

		c.streamsLock.Lock()
		for _, stream := range c.streams {
			stream.Close()
		}
		c.streams = make(map[string]*messages.Stream)
		c.streamsLock.Unlock()

		c.stats.Decr(stats.ActiveConnections)
	})
}

// forwardRooms pushes every room snapshot from the watcher to the
// browser, with the derived invite code and phase attached.
func (c *Client) forwardRooms() {
	for rooms := range c.watcher.Updates() {
		c.queueMessage(&ServerMessage{
			BaseMessage: BaseMessage{Timestamp: Now()},
			Rooms: &RoomSnapshot{
				Rooms:      rooms,
				InviteCode: pairing.CurrentInviteCode(rooms, c.user.UserId),
				Phase:      c.watcher.Phase().String(),
			},
		})
	}
}

func (c *Client) queueMessage(msg *ServerMessage) {
	select {
	case c.send <- msg:
	default:
		c.log.Printf("send buffer full for %q, dropping connection", c.user.Username)
		c.cleanup()
	}
}

func (c *Client) write() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		c.log.Println("write exiting")
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				return
			}

			bytes, err := json.Marshal(msg)
			if err != nil {
				c.log.Println("failed to serialize message:", err)
				continue
			}

			if !c.sendMessage(websocket.TextMessage, bytes) {
				return
			}
		case <-c.stop:
			return
		case <-ticker.C:
			if !c.sendMessage(websocket.PingMessage, nil) {
				return
			}
		}
	}
}

func (c *Client) sendMessage(messageType int, payload []byte) bool {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteMessage(messageType, payload); err != nil {
		c.log.Println("write:", err)
		return false
	}
	return true
}

func (c *Client) read(ctx context.Context) {
	defer func() {
		c.cleanup()
		c.log.Println("read exiting")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Println("read:", err)
			}
			return
		}

		var msg ClientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.log.Println("unmarshal client message:", err)
			c.queueMessage(ErrBadRequest(msg.Id))
			continue
		}

		c.handleMessage(ctx, &msg)
	}
}

func (c *Client) handleMessage(ctx context.Context, msg *ClientMessage) {
	switch {
	case msg.Subscribe != nil:
		c.handleSubscribe(ctx, msg)
	case msg.Unsubscribe != nil:
		c.handleUnsubscribe(msg)
	case msg.Publish != nil:
		c.handlePublish(ctx, msg)
	default:
		c.queueMessage(ErrBadRequest(msg.Id))
	}
}

func (c *Client) isMember(ctx context.Context, roomId string) bool {
	rooms, err := c.pairing.RoomsForUser(ctx, c.user.UserId)
	if err != nil {
		c.log.Println("rooms for user:", err)
		return false
	}
	for _, r := range rooms {
		if r.Code == roomId {
			return true
		}
	}
	return false
}

func (c *Client) handleSubscribe(ctx context.Context, msg *ClientMessage) {
	roomId := msg.Subscribe.RoomId
	if !c.isMember(ctx, roomId) {
		c.queueMessage(ErrForbidden(msg.Id))
		return
	}

	c.streamsLock.Lock()
	if _, ok := c.streams[roomId]; ok {
		c.streamsLock.Unlock()
		c.queueMessage(NoErrOK(msg.Id))
		return
	}
	c.streamsLock.Unlock()

	stream, err := c.messages.Subscribe(ctx, roomId)
	if err != nil {
		c.log.Println("subscribe messages:", err)
		c.queueMessage(ErrInternalError(msg.Id))
		return
	}

	c.streamsLock.Lock()
	c.streams[roomId] = stream
	c.streamsLock.Unlock()

	go func() {
		for batch := range stream.Updates() {
			c.queueMessage(&ServerMessage{
				BaseMessage: BaseMessage{Timestamp: Now()},
				Messages: &MessageBatch{
					RoomId:   roomId,
					Messages: batch,
				},
			})
		}
	}()

	c.queueMessage(NoErrOK(msg.Id))
}

func (c *Client) handleUnsubscribe(msg *ClientMessage) {
	roomId := msg.Unsubscribe.RoomId

	c.streamsLock.Lock()
	stream, ok := c.streams[roomId]
	delete(c.streams, roomId)
	c.streamsLock.Unlock()

	if ok {
		stream.Close()
	}
	c.queueMessage(NoErrOK(msg.Id))
}

func (c *Client) handlePublish(ctx context.Context, msg *ClientMessage) {
	if msg.Publish.Text == "" {
		c.queueMessage(ErrBadRequest(msg.Id))
		return
	}
	if !c.isMember(ctx, msg.Publish.RoomId) {
		c.queueMessage(ErrForbidden(msg.Id))
		return
	}

	if _, err := c.messages.Send(ctx, msg.Publish.RoomId, c.user.UserId, c.user.Username, msg.Publish.Text); err != nil {
		c.log.Println("send message:", err)
		c.queueMessage(ErrInternalError(msg.Id))
		return
	}

	c.queueMessage(NoErrAccepted(msg.Id))
}
