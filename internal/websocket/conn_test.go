package websocket

import (
	"encoding/json"
	"net"
	"testing"
	"time"

	wsclient "github.com/fasthttp/websocket"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"

	"github.com/ethan-huo/automation-chatbot/internal/model"
)

// serveHub exposes h on a loopback listener and reports every client whose
// HandleConnection has returned.
func serveHub(t *testing.T, h *Hub) (string, <-chan *Client) {
	t.Helper()
	returned := make(chan *Client, 1)

	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Get("/ws/:storyId", websocket.New(func(c *websocket.Conn) {
		client := NewClient(c.Params("storyId"), c)
		h.HandleConnection(client)
		returned <- client
	}))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	go func() { _ = app.Listener(ln) }()
	t.Cleanup(func() { _ = app.Shutdown() })

	return "ws://" + ln.Addr().String(), returned
}

func TestHandleConnectionStopsWriterBeforeReturning(t *testing.T) {
	h := newRunningHub(t)
	base, returned := serveHub(t, h)

	conn, _, err := wsclient.DefaultDialer.Dial(base+"/ws/story-1", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	waitForSubscribers(t, h, "story-1", 1)

	h.BroadcastTaskUpdate(&model.AssetTask{
		ID:        "task-1",
		StoryID:   "story-1",
		SceneID:   "scene-1",
		AssetType: model.AssetTypeAudio,
		Status:    model.TaskStatusProcessing,
	})
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var msg model.WSTaskUpdateMessage
	if err := json.Unmarshal(data, &msg); err != nil || msg.TaskID != "task-1" {
		t.Fatalf("unexpected frame %s (%v)", data, err)
	}

	if err := conn.WriteJSON(model.WSMessage{Type: model.WSMessageTypePing}); err != nil {
		t.Fatalf("write ping: %v", err)
	}
	_, data, err = conn.ReadMessage()
	if err != nil {
		t.Fatalf("read pong: %v", err)
	}
	var pong model.WSMessage
	if err := json.Unmarshal(data, &pong); err != nil || pong.Type != model.WSMessageTypePong {
		t.Fatalf("expected pong, got %s (%v)", data, err)
	}

	_ = conn.Close()

	var client *Client
	select {
	case client = <-returned:
	case <-time.After(2 * time.Second):
		t.Fatal("HandleConnection did not return after the peer left")
	}
	if client.Push([]byte("late")) {
		t.Error("client still accepts messages after HandleConnection returned")
	}
	waitForSubscribers(t, h, "story-1", 0)
}
