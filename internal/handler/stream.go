package handler

import (
	"context"
	"time"

	"github.com/gofiber/contrib/websocket"

	"github.com/ethan-huo/automation-chatbot/internal/logger"
	"github.com/ethan-huo/automation-chatbot/internal/model"
	"github.com/ethan-huo/automation-chatbot/internal/poller"
	ws "github.com/ethan-huo/automation-chatbot/internal/websocket"
)

// StreamHandler serves live story updates over websockets. Each connection
// gets worker task events from the hub and merged snapshots from its own
// poller.
type StreamHandler struct {
	hub      *ws.Hub
	source   poller.Source
	interval time.Duration
	log      *logger.Logger
}

func NewStreamHandler(hub *ws.Hub, source poller.Source, interval time.Duration, log *logger.Logger) *StreamHandler {
	return &StreamHandler{
		hub:      hub,
		source:   source,
		interval: interval,
		log:      log.With("handler", "StreamHandler"),
	}
}

// Story handles ws /ws/stories/:storyId
func (h *StreamHandler) Story(c *websocket.Conn) {
	storyID := c.Params("storyId")
	client := ws.NewClient(storyID, c)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go h.pollStory(ctx, client)
	h.hub.HandleConnection(client)
}

func (h *StreamHandler) pollStory(ctx context.Context, client *ws.Client) {
	p := poller.New(h.source, client.StoryID, h.interval, h.log)

	err := p.Run(ctx, func(s *poller.State) {
		client.PushJSON(model.WSSnapshotMessage{
			Type:     model.WSMessageTypeSnapshot,
			StoryID:  client.StoryID,
			Snapshot: s,
		})
	})
	switch {
	case err == nil:
		client.PushJSON(model.WSSnapshotMessage{
			Type:     model.WSMessageTypeSettled,
			StoryID:  client.StoryID,
			Snapshot: p.State(),
		})
	case ctx.Err() == nil:
		h.log.Warn("story poller stopped", "story_id", client.StoryID, "error", err)
		client.PushJSON(model.WSErrorMessage{
			Type:    model.WSMessageTypeError,
			StoryID: client.StoryID,
			Error:   model.WSError{Code: "SNAPSHOT_UNAVAILABLE", Message: "Story snapshot polling stopped"},
		})
	}
}
