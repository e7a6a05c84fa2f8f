package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"chatrelay/protocol"
)

// Greeting is shown when the initial transcript load fails, so the view
// degrades to a single welcome line instead of an empty screen.
const Greeting = "Hi! I'm your assistant. How can I help you today?"

// SendFailedText is the synthetic, never-persisted entry appended when a send
// fails.
const SendFailedText = "Error: could not get a reply."

// DefaultMinReplyDelay is how long a reply is held back at minimum, so the
// awaiting indicator is perceivable.
const DefaultMinReplyDelay = time.Second

// Client talks to the relay server and keeps a reconciled transcript.
type Client struct {
	baseURL       string
	token         string
	httpClient    *http.Client
	transcript    *Transcript
	minReplyDelay time.Duration

	// OnEntry, if set, is called for every newly displayed entry.
	OnEntry func(Entry)

	conn      *websocket.Conn
	done      chan struct{}
	closeOnce sync.Once

	mu       sync.Mutex
	awaiting bool
	userID   string
}

// New creates a client for the relay at baseURL, authenticating with the
// given session token.
func New(baseURL, token string) *Client {
	return &Client{
		baseURL:       strings.TrimSuffix(baseURL, "/"),
		token:         token,
		httpClient:    &http.Client{Timeout: 2 * time.Minute},
		transcript:    NewTranscript(),
		minReplyDelay: DefaultMinReplyDelay,
		done:          make(chan struct{}),
	}
}

// Transcript returns the client's transcript.
func (c *Client) Transcript() *Transcript {
	return c.transcript
}

// Awaiting reports whether a sent message is still waiting for its reply.
func (c *Client) Awaiting() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.awaiting
}

// Load fetches the stored transcript. A failed load is recovered locally by
// substituting a synthetic greeting; it is never surfaced as a hard error.
func (c *Client) Load(ctx context.Context) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/messages", nil)
	if err != nil {
		c.loadFallback(err)
		return
	}
	c.setAuth(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.loadFallback(err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		c.loadFallback(fmt.Errorf("relay returned %d: %s", resp.StatusCode, body))
		return
	}

	var payload struct {
		Messages []struct {
			ID        int64     `json:"id"`
			Text      string    `json:"text"`
			IsBot     bool      `json:"is_bot"`
			CreatedAt time.Time `json:"created_at"`
		} `json:"messages"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		c.loadFallback(err)
		return
	}

	for _, msg := range payload.Messages {
		c.add(Entry{
			ID:        strconv.FormatInt(msg.ID, 10),
			Text:      msg.Text,
			IsBot:     msg.IsBot,
			CreatedAt: msg.CreatedAt,
		})
	}
}

func (c *Client) loadFallback(err error) {
	log.Printf("WARN: transcript load failed, showing greeting: %v", err)
	c.add(Entry{
		ID:        "sys_" + uuid.New().String()[:8],
		Text:      Greeting,
		IsBot:     true,
		CreatedAt: time.Now(),
		Synthetic: true,
	})
}

// Subscribe opens the live change-feed subscription. The subscription runs
// until Close is called or the connection drops.
func (c *Client) Subscribe(ctx context.Context) error {
	wsURL := strings.Replace(c.baseURL, "http", "ws", 1) + "/ws"

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}

	hello := protocol.HelloMessage{
		BaseMessage: protocol.BaseMessage{
			Type: protocol.TypeHello,
			Ts:   time.Now().UnixMilli(),
		},
		Token: c.token,
	}
	if err := conn.WriteJSON(hello); err != nil {
		conn.Close()
		return fmt.Errorf("write hello: %w", err)
	}

	_, data, err := conn.ReadMessage()
	if err != nil {
		conn.Close()
		return fmt.Errorf("read hello_ack: %w", err)
	}

	var base protocol.BaseMessage
	if err := json.Unmarshal(data, &base); err != nil {
		conn.Close()
		return fmt.Errorf("unmarshal hello_ack: %w", err)
	}

	if base.Type == protocol.TypeError {
		var errMsg protocol.ErrorMessage
		json.Unmarshal(data, &errMsg)
		conn.Close()
		return fmt.Errorf("subscribe failed: %s - %s", errMsg.Code, errMsg.Message)
	}
	if base.Type != protocol.TypeHelloAck {
		conn.Close()
		return fmt.Errorf("expected hello_ack, got: %s", base.Type)
	}

	var ack protocol.HelloAckMessage
	if err := json.Unmarshal(data, &ack); err != nil {
		conn.Close()
		return fmt.Errorf("unmarshal hello_ack: %w", err)
	}

	c.mu.Lock()
	c.userID = ack.UserID
	c.conn = conn
	c.mu.Unlock()

	go c.readFeed(conn)
	return nil
}

// readFeed appends feed events to the transcript in arrival order.
func (c *Client) readFeed(conn *websocket.Conn) {
	defer conn.Close()

	for {
		select {
		case <-c.done:
			return
		default:
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				select {
				case <-c.done:
				default:
					log.Printf("WARN: feed read error: %v", err)
				}
			}
			return
		}

		var base protocol.BaseMessage
		if err := json.Unmarshal(data, &base); err != nil {
			log.Printf("WARN: invalid feed message: %v", err)
			continue
		}
		if base.Type != protocol.TypeMessage {
			continue
		}

		var event protocol.MessageEvent
		if err := json.Unmarshal(data, &event); err != nil {
			log.Printf("WARN: invalid feed event: %v", err)
			continue
		}

		c.add(Entry{
			ID:        strconv.FormatInt(event.ID, 10),
			Text:      event.Text,
			IsBot:     event.IsBot,
			CreatedAt: event.CreatedAt,
		})
	}
}

// Send relays one message. The message is rendered optimistically before the
// HTTP call; the reply is appended once the call resolves, after a minimum
// display delay. A failed send appends a synthetic error entry instead.
func (c *Client) Send(ctx context.Context, text string) (string, error) {
	start := time.Now()

	c.add(Entry{
		ID:        "local_" + uuid.New().String()[:8],
		Text:      text,
		IsBot:     false,
		CreatedAt: time.Now(),
		Pending:   true,
	})
	c.setAwaiting(true)

	reply, err := c.postChat(ctx, text)

	c.waitMinDelay(ctx, start)

	if err != nil {
		c.add(Entry{
			ID:        "sys_" + uuid.New().String()[:8],
			Text:      SendFailedText,
			IsBot:     true,
			CreatedAt: time.Now(),
			Synthetic: true,
		})
		c.setAwaiting(false)
		return "", err
	}

	// The relay response carries no store id; append the reply as a pending
	// entry so the matching feed event confirms rather than duplicates it.
	c.add(Entry{
		ID:        "local_" + uuid.New().String()[:8],
		Text:      reply,
		IsBot:     true,
		CreatedAt: time.Now(),
		Pending:   true,
	})
	c.setAwaiting(false)
	return reply, nil
}

func (c *Client) postChat(ctx context.Context, text string) (string, error) {
	body, err := json.Marshal(map[string]string{"message": text})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.setAuth(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("relay returned %d: %s", resp.StatusCode, respBody)
	}

	var reply struct {
		Reply string `json:"reply"`
	}
	if err := json.Unmarshal(respBody, &reply); err != nil {
		return "", fmt.Errorf("unmarshal response: %w", err)
	}
	return reply.Reply, nil
}

// waitMinDelay blocks until the minimum reply display delay has elapsed since
// start, or the context is cancelled.
func (c *Client) waitMinDelay(ctx context.Context, start time.Time) {
	remaining := c.minReplyDelay - time.Since(start)
	if remaining <= 0 {
		return
	}
	timer := time.NewTimer(remaining)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	case <-c.done:
	}
}

func (c *Client) setAwaiting(v bool) {
	c.mu.Lock()
	c.awaiting = v
	c.mu.Unlock()
}

func (c *Client) setAuth(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.token)
}

func (c *Client) add(e Entry) {
	if c.transcript.Add(e) && c.OnEntry != nil {
		c.OnEntry(e)
	}
}

// Close releases the feed subscription. Safe to call multiple times.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()
		if conn != nil {
			conn.Close()
		}
	})
	return nil
}
