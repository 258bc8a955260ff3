package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// Client acquires single price samples from a Centrifugo-style websocket
// feed. Each Acquire opens its own connection, subscribes to the symbol's
// order book channel, takes the first usable best ask and closes.
type Client struct {
	url        string
	clientName string
	timeout    time.Duration

	// Command ids are correlation keys for replies, so they must not
	// collide across sessions sharing this client.
	nextID atomic.Int64
}

func NewClient(url, clientName string, timeout time.Duration) *Client {
	if clientName == "" {
		clientName = "go"
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		url:        url,
		clientName: clientName,
		timeout:    timeout,
	}
}

type connectCommand struct {
	Connect connectRequest `json:"connect"`
	ID      int64          `json:"id"`
}

type connectRequest struct {
	Name string `json:"name"`
}

type subscribeCommand struct {
	Subscribe subscribeRequest `json:"subscribe"`
	ID        int64            `json:"id"`
}

type subscribeRequest struct {
	Channel string `json:"channel"`
	Recover bool   `json:"recover"`
	Offset  int64  `json:"offset"`
	Epoch   string `json:"epoch"`
	Delta   string `json:"delta"`
}

type reply struct {
	ID        int64           `json:"id"`
	Subscribe *subscribeReply `json:"subscribe"`
}

type subscribeReply struct {
	Publications []publication `json:"publications"`
}

type publication struct {
	Data json.RawMessage `json:"data"`
}

type orderBook struct {
	Asks [][]json.RawMessage `json:"asks"`
}

// Acquire returns the raw best-ask price for symbol, or an error if the
// feed closes, sends a malformed payload, or the deadline passes before a
// usable order book arrives. Frames that merely don't match the
// subscription (other ids, no publications, empty asks) are skipped.
func (c *Client) Acquire(ctx context.Context, symbol string) (float64, error) {
	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	dialer := websocket.Dialer{HandshakeTimeout: time.Until(deadline)}
	conn, _, err := dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return 0, fmt.Errorf("dial feed: %w", err)
	}
	defer conn.Close()

	if err := conn.SetWriteDeadline(deadline); err != nil {
		return 0, fmt.Errorf("set write deadline: %w", err)
	}
	if err := conn.SetReadDeadline(deadline); err != nil {
		return 0, fmt.Errorf("set read deadline: %w", err)
	}

	connectID := c.nextID.Add(1)
	if err := conn.WriteJSON(connectCommand{
		Connect: connectRequest{Name: c.clientName},
		ID:      connectID,
	}); err != nil {
		return 0, fmt.Errorf("send connect: %w", err)
	}

	subscribeID := c.nextID.Add(1)
	if err := conn.WriteJSON(subscribeCommand{
		Subscribe: subscribeRequest{
			Channel: "public:orderbook-" + symbol,
			Recover: true,
			Offset:  0,
			Epoch:   "0",
			Delta:   "fossil",
		},
		ID: subscribeID,
	}); err != nil {
		return 0, fmt.Errorf("send subscribe: %w", err)
	}

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			// Covers transport errors, unexpected close and the deadline.
			return 0, fmt.Errorf("read frame: %w", err)
		}

		var rep reply
		if err := json.Unmarshal(msg, &rep); err != nil {
			return 0, fmt.Errorf("malformed frame: %w", err)
		}
		if rep.ID != subscribeID || rep.Subscribe == nil || len(rep.Subscribe.Publications) == 0 {
			continue
		}
		data := rep.Subscribe.Publications[0].Data
		if len(data) == 0 {
			continue
		}

		payload, err := unwrapPayload(data)
		if err != nil {
			return 0, fmt.Errorf("malformed publication: %w", err)
		}
		var book orderBook
		if err := json.Unmarshal(payload, &book); err != nil {
			return 0, fmt.Errorf("malformed order book: %w", err)
		}
		if len(book.Asks) == 0 || len(book.Asks[0]) == 0 {
			continue
		}

		price, err := parsePrice(book.Asks[0][0])
		if err != nil {
			return 0, fmt.Errorf("bad ask price: %w", err)
		}
		return price, nil
	}
}

// unwrapPayload handles both publication encodings the feed has been seen
// to use: a JSON string containing the order book, or the order book
// object inlined.
func unwrapPayload(raw json.RawMessage) ([]byte, error) {
	if len(raw) > 0 && raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, err
		}
		return []byte(s), nil
	}
	return raw, nil
}

// parsePrice accepts a price level cell as either a JSON string or a JSON
// number.
func parsePrice(raw json.RawMessage) (float64, error) {
	if len(raw) > 0 && raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, err
		}
		return strconv.ParseFloat(s, 64)
	}
	var v float64
	if err := json.Unmarshal(raw, &v); err != nil {
		return 0, err
	}
	return v, nil
}
