package realtime

import (
	"encoding/json"
	"sync"
	"time"

	"post-planner/domain/model"

	"github.com/gin-gonic/gin"
)

// PostStatusEvent is the SSE payload sent for every post change.
type PostStatusEvent struct {
	Type        string     `json:"type"`
	PostID      string     `json:"postId"`
	Status      string     `json:"status"`
	ScheduledAt time.Time  `json:"scheduledAt"`
	Attempts    int        `json:"attempts"`
	RemoteID    *string    `json:"remoteId,omitempty"`
	LastError   *string    `json:"lastError,omitempty"`
	SentAt      *time.Time `json:"sentAt,omitempty"`
}

// Hub fans post events out to the streams of the owning account.
type Hub struct {
	mu        sync.RWMutex
	accounts  map[string]map[chan PostStatusEvent]struct{}
	keepAlive time.Duration
}

func NewPostHub() *Hub {
	return &Hub{accounts: make(map[string]map[chan PostStatusEvent]struct{}), keepAlive: 25 * time.Second}
}

// SubscriberKey identifies the stream audience of one account on one instance.
func SubscriberKey(origin, accountID string) string {
	return origin + "|" + accountID
}

// Serve streams events for key until the client goes away.
func (h *Hub) Serve(c *gin.Context, key string) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	ch := make(chan PostStatusEvent, 16)
	h.subscribe(key, ch)
	defer h.unsubscribe(key, ch)

	_, _ = c.Writer.Write([]byte(":ok\n\n"))
	c.Writer.Flush()

	ticker := time.NewTicker(h.keepAlive)
	defer ticker.Stop()
	for {
		select {
		case <-c.Request.Context().Done():
			return
		case <-ticker.C:
			_, _ = c.Writer.Write([]byte(":ping\n\n"))
			c.Writer.Flush()
		case evt := <-ch:
			data, _ := json.Marshal(evt)
			_, _ = c.Writer.Write([]byte("event: post_status\n"))
			_, _ = c.Writer.Write([]byte("data: "))
			_, _ = c.Writer.Write(data)
			_, _ = c.Writer.Write([]byte("\n\n"))
			c.Writer.Flush()
		}
	}
}

func (h *Hub) subscribe(key string, ch chan PostStatusEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.accounts[key] == nil {
		h.accounts[key] = make(map[chan PostStatusEvent]struct{})
	}
	h.accounts[key][ch] = struct{}{}
}

func (h *Hub) unsubscribe(key string, ch chan PostStatusEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if subs := h.accounts[key]; subs != nil {
		delete(subs, ch)
		if len(subs) == 0 {
			delete(h.accounts, key)
		}
	}
}

// Subscribers reports how many streams are open for key.
func (h *Hub) Subscribers(key string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.accounts[key])
}

// BroadcastPostEvent delivers ev to every stream of the post owner. Slow
// streams drop events instead of blocking the caller.
func (h *Hub) BroadcastPostEvent(ev model.PostEvent) {
	p := ev.Post
	if p == nil || p.OwnerAccountID == nil {
		return
	}
	evt := PostStatusEvent{
		Type:        ev.Type,
		PostID:      p.ID,
		Status:      string(p.Status),
		ScheduledAt: p.ScheduledAt,
		Attempts:    p.Attempts,
		RemoteID:    p.RemoteID,
		LastError:   p.LastError,
		SentAt:      p.SentAt,
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.accounts[SubscriberKey(p.OwnerOrigin, *p.OwnerAccountID)] {
		select {
		case ch <- evt:
		default:
		}
	}
}
