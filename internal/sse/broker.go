package sse

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/aosbot/portal-server-go/internal/metrics"
	redisclient "github.com/aosbot/portal-server-go/internal/redis"
)

const (
	HeartbeatInterval = 30 * time.Second
)

// Event types pushed to portal clients.
const (
	EventAccountUpdated = "account.updated"
	EventAccountDeleted = "account.deleted"
	EventNotification   = "notification.created"
	EventRequestUpdated = "request.updated"
)

type Event struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func NewEvent(eventType string, payload any) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}
	return Event{Type: eventType, Data: data}, nil
}

type Client struct {
	AccountID string
	Events    chan Event
	Done      chan struct{}
}

// Broker fans events out to connected clients. Events travel through redis
// pub/sub so every server instance sees them; each account has its own
// channel plus a shared broadcast channel for portal-wide events.
type Broker struct {
	redis   *redisclient.Client
	clients map[string]map[*Client]bool   // accountID -> set of clients
	subs    map[string]context.CancelFunc // accountID -> per-account pubsub cancel
	mu      sync.RWMutex
	ctx     context.Context
	cancel  context.CancelFunc
}

func NewBroker(redisClient *redisclient.Client) *Broker {
	ctx, cancel := context.WithCancel(context.Background())
	b := &Broker{
		redis:   redisClient,
		clients: make(map[string]map[*Client]bool),
		subs:    make(map[string]context.CancelFunc),
		ctx:     ctx,
		cancel:  cancel,
	}
	go b.subscribeToRedis(ctx, redisclient.BroadcastChannel, b.broadcastAll)
	return b
}

func (b *Broker) Subscribe(accountID string) *Client {
	client := &Client{
		AccountID: accountID,
		Events:    make(chan Event, 100),
		Done:      make(chan struct{}),
	}

	b.mu.Lock()
	if b.clients[accountID] == nil {
		b.clients[accountID] = make(map[*Client]bool)
		subCtx, subCancel := context.WithCancel(b.ctx)
		b.subs[accountID] = subCancel
		channel := redisclient.AccountChannel(accountID)
		go b.subscribeToRedis(subCtx, channel, func(event Event) {
			b.broadcast(accountID, event)
		})
	}
	b.clients[accountID][client] = true
	clientCount := len(b.clients[accountID])
	b.mu.Unlock()

	metrics.SSEClients.Inc()

	log.Info().
		Str("accountId", accountID).
		Int("clientCount", clientCount).
		Msg("sse client subscribed")

	return client
}

func (b *Broker) Unsubscribe(client *Client) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if clients, ok := b.clients[client.AccountID]; ok {
		delete(clients, client)
		close(client.Done)
		metrics.SSEClients.Dec()

		// The last client leaving tears down the account's redis
		// subscription so reconnect cycles don't stack duplicates.
		if len(clients) == 0 {
			delete(b.clients, client.AccountID)
			if cancel, ok := b.subs[client.AccountID]; ok {
				cancel()
				delete(b.subs, client.AccountID)
			}
		}

		log.Info().
			Str("accountId", client.AccountID).
			Int("clientCount", len(clients)).
			Msg("sse client unsubscribed")
	}
}

// PublishAccountUpdated pushes the account's fresh state to its own clients.
func (b *Broker) PublishAccountUpdated(ctx context.Context, accountID string, payload any) error {
	event, err := NewEvent(EventAccountUpdated, payload)
	if err != nil {
		return err
	}
	return b.publish(ctx, redisclient.AccountChannel(accountID), event)
}

// PublishAccountDeleted tells the account's clients to end their sessions.
func (b *Broker) PublishAccountDeleted(ctx context.Context, accountID string) error {
	event, err := NewEvent(EventAccountDeleted, map[string]string{"id": accountID})
	if err != nil {
		return err
	}
	return b.publish(ctx, redisclient.AccountChannel(accountID), event)
}

// PublishNotification targets a single account, or every connected client
// when targetAccountID is nil.
func (b *Broker) PublishNotification(ctx context.Context, targetAccountID *string, payload any) error {
	event, err := NewEvent(EventNotification, payload)
	if err != nil {
		return err
	}
	if targetAccountID != nil {
		return b.publish(ctx, redisclient.AccountChannel(*targetAccountID), event)
	}
	return b.publish(ctx, redisclient.BroadcastChannel, event)
}

// PublishRequestUpdated notifies the reviewer surface that the request queue
// changed.
func (b *Broker) PublishRequestUpdated(ctx context.Context, payload any) error {
	event, err := NewEvent(EventRequestUpdated, payload)
	if err != nil {
		return err
	}
	return b.publish(ctx, redisclient.BroadcastChannel, event)
}

func (b *Broker) publish(ctx context.Context, channel string, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return b.redis.Publish(ctx, channel, data).Err()
}

func (b *Broker) subscribeToRedis(ctx context.Context, channel string, deliver func(Event)) {
	pubsub := b.redis.Subscribe(ctx, channel)
	defer pubsub.Close()

	log.Debug().
		Str("channel", channel).
		Msg("redis pubsub subscribed")

	ch := pubsub.Channel()

	for {
		select {
		case <-ctx.Done():
			return

		case msg, ok := <-ch:
			if !ok {
				return
			}

			var event Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				log.Error().Err(err).Msg("failed to unmarshal event")
				continue
			}

			deliver(event)
		}
	}
}

func (b *Broker) broadcast(accountID string, event Event) {
	b.mu.RLock()
	clients := b.clients[accountID]
	b.mu.RUnlock()

	for client := range clients {
		select {
		case client.Events <- event:
		default:
			log.Warn().
				Str("accountId", accountID).
				Msg("client event buffer full, dropping event")
		}
	}
}

func (b *Broker) broadcastAll(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for accountID, clients := range b.clients {
		for client := range clients {
			select {
			case client.Events <- event:
			default:
				log.Warn().
					Str("accountId", accountID).
					Msg("client event buffer full, dropping event")
			}
		}
	}
}

func (b *Broker) Close() {
	b.cancel()

	b.mu.Lock()
	defer b.mu.Unlock()

	for _, clients := range b.clients {
		for client := range clients {
			close(client.Done)
		}
	}
	b.clients = make(map[string]map[*Client]bool)
	b.subs = make(map[string]context.CancelFunc)
}

func (b *Broker) ClientCount(accountID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients[accountID])
}

func (b *Broker) TotalClients() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	total := 0
	for _, clients := range b.clients {
		total += len(clients)
	}
	return total
}
