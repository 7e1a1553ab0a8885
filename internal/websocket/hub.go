package websocket

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"

	"github.com/ethan-huo/automation-chatbot/internal/logger"
	"github.com/ethan-huo/automation-chatbot/internal/model"
)

// Client is one websocket subscriber of a story.
type Client struct {
	StoryID string
	Conn    *websocket.Conn
	Send    chan []byte

	mu     sync.Mutex
	closed bool
}

func NewClient(storyID string, conn *websocket.Conn) *Client {
	return &Client{
		StoryID: storyID,
		Conn:    conn,
		Send:    make(chan []byte, 256),
	}
}

// Push queues data for the client. It reports false when the client is gone
// or its buffer is full.
func (c *Client) Push(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.Send <- data:
		return true
	default:
		return false
	}
}

// PushJSON marshals v and queues it.
func (c *Client) PushJSON(v interface{}) bool {
	data, err := json.Marshal(v)
	if err != nil {
		return false
	}
	return c.Push(data)
}

func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.Send)
	}
}

// Hub maintains active WebSocket connections
type Hub struct {
	// Clients grouped by story ID
	clients map[string]map[*Client]bool

	register   chan *Client
	unregister chan *Client
	broadcast  chan *BroadcastMessage
	stop       chan struct{}

	log *logger.Logger
	mu  sync.RWMutex
}

// BroadcastMessage represents a message to broadcast
type BroadcastMessage struct {
	StoryID string
	Message []byte
}

func NewHub(log *logger.Logger) *Hub {
	return &Hub{
		clients:    make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *BroadcastMessage, 256),
		stop:       make(chan struct{}),
		log:        log.With("component", "ws_hub"),
	}
}

// Run starts the hub's main loop
func (h *Hub) Run() {
	for {
		select {
		case <-h.stop:
			h.mu.Lock()
			for storyID, clients := range h.clients {
				for client := range clients {
					client.close()
				}
				delete(h.clients, storyID)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			if h.clients[client.StoryID] == nil {
				h.clients[client.StoryID] = make(map[*Client]bool)
			}
			h.clients[client.StoryID][client] = true
			h.mu.Unlock()
			h.log.Debug("client registered", "story_id", client.StoryID)

		case client := <-h.unregister:
			h.mu.Lock()
			if clients, ok := h.clients[client.StoryID]; ok {
				if _, ok := clients[client]; ok {
					delete(clients, client)
					client.close()
					if len(clients) == 0 {
						delete(h.clients, client.StoryID)
					}
				}
			}
			h.mu.Unlock()
			h.log.Debug("client unregistered", "story_id", client.StoryID)

		case msg := <-h.broadcast:
			h.mu.Lock()
			if clients, ok := h.clients[msg.StoryID]; ok {
				for client := range clients {
					if !client.Push(msg.Message) {
						client.close()
						delete(clients, client)
					}
				}
				if len(clients) == 0 {
					delete(h.clients, msg.StoryID)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Stop ends Run and closes every client.
func (h *Hub) Stop() {
	close(h.stop)
}

func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.stop:
		client.close()
	}
}

func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.stop:
	}
}

// Subscribers returns the number of clients watching a story.
func (h *Hub) Subscribers(storyID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[storyID])
}

// BroadcastTaskUpdate sends a task's current state to the story's subscribers.
// It never blocks the caller; updates are dropped when the hub is saturated.
func (h *Hub) BroadcastTaskUpdate(task *model.AssetTask) {
	msg := model.WSTaskUpdateMessage{
		Type:    model.WSMessageTypeTaskUpdate,
		StoryID: task.StoryID,
		TaskID:  task.ID,
		SceneID: task.SceneID,
		Asset:   task.AssetType,
		Status:  task.Status,
		URL:     task.ResultURL,
		Error:   task.ErrorMessage,
	}
	h.send(task.StoryID, msg)
}

// BroadcastError sends an error message to all story subscribers
func (h *Hub) BroadcastError(storyID, code, message string) {
	h.send(storyID, model.WSErrorMessage{
		Type:    model.WSMessageTypeError,
		StoryID: storyID,
		Error:   model.WSError{Code: code, Message: message},
	})
}

func (h *Hub) send(storyID string, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		h.log.Error("failed to marshal ws message", "error", err)
		return
	}
	select {
	case h.broadcast <- &BroadcastMessage{StoryID: storyID, Message: data}:
	default:
		h.log.Warn("ws broadcast buffer full, dropping message", "story_id", storyID)
	}
}

// HandleConnection pumps the client's queue to its connection until the peer
// goes away. The client must have been created with NewClient. It returns
// only after the writer has stopped touching the connection.
func (h *Hub) HandleConnection(client *Client) {
	c := client.Conn

	h.Register(client)

	writerDone := make(chan struct{})
	defer func() {
		h.Unregister(client)
		client.close()
		<-writerDone
	}()

	go func() {
		defer close(writerDone)
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case message, ok := <-client.Send:
				if !ok {
					_ = c.WriteMessage(websocket.CloseMessage, []byte{})
					return
				}
				if err := c.WriteMessage(websocket.TextMessage, message); err != nil {
					return
				}

			case <-ticker.C:
				if err := c.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()

	for {
		_, message, err := c.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.log.Warn("websocket error", "story_id", client.StoryID, "error", err)
			}
			break
		}

		var msg model.WSMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}
		if msg.Type == model.WSMessageTypePing {
			client.PushJSON(model.WSMessage{Type: model.WSMessageTypePong})
		}
	}
}
