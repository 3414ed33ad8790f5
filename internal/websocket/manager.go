package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"venture-plan-server/internal/domain"

	"github.com/rs/zerolog"
)

type ClientMessage struct {
	Client  *Client
	Message []byte
}

type Config struct {
	MaxConnPerUser int
	WriteWait      time.Duration
	PongWait       time.Duration
	PingPeriod     time.Duration
	MaxMessageSize int64
}

// Manager is the hub for venture subscriptions. Clients are indexed by the
// venture they watch and by their user.
type Manager struct {
	clients        map[string]*Client
	ventureIndex   map[string]map[string]bool
	userIndex      map[string]map[string]bool
	clientsMutex   sync.RWMutex
	Register       chan *Client
	Unregister     chan *Client
	HandleMessage  chan *ClientMessage
	maxConnPerUser int
	writeWait      time.Duration
	pongWait       time.Duration
	pingPeriod     time.Duration
	maxMessageSize int64
	logger         zerolog.Logger
	done           chan struct{}
}

func NewManager(cfg Config, logger zerolog.Logger) *Manager {
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = 4096
	}

	return &Manager{
		clients:        make(map[string]*Client),
		ventureIndex:   make(map[string]map[string]bool),
		userIndex:      make(map[string]map[string]bool),
		Register:       make(chan *Client),
		Unregister:     make(chan *Client),
		HandleMessage:  make(chan *ClientMessage),
		maxConnPerUser: cfg.MaxConnPerUser,
		writeWait:      cfg.WriteWait,
		pongWait:       cfg.PongWait,
		pingPeriod:     cfg.PingPeriod,
		maxMessageSize: cfg.MaxMessageSize,
		logger:         logger.With().Str("component", "websocket").Logger(),
		done:           make(chan struct{}),
	}
}

// Run processes registrations and client messages until ctx is done.
func (m *Manager) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			close(m.done)
			m.closeAll()
			return

		case client := <-m.Register:
			m.registerClient(client)

		case client := <-m.Unregister:
			m.unregisterClient(client)

		case clientMsg := <-m.HandleMessage:
			m.processMessage(clientMsg)
		}
	}
}

func (m *Manager) registerClient(client *Client) {
	m.clientsMutex.Lock()
	defer m.clientsMutex.Unlock()

	if m.maxConnPerUser > 0 && len(m.userIndex[client.UserID]) >= m.maxConnPerUser {
		m.logger.Warn().Str("user_id", client.UserID).Msg("max connections reached")
		close(client.Send)
		return
	}

	m.clients[client.ID] = client
	addToIndex(m.userIndex, client.UserID, client.ID)
	addToIndex(m.ventureIndex, client.VentureID, client.ID)

	m.logger.Debug().
		Str("client_id", client.ID).
		Str("user_id", client.UserID).
		Str("venture_id", client.VentureID).
		Msg("client registered")
}

func (m *Manager) unregisterClient(client *Client) {
	m.clientsMutex.Lock()
	defer m.clientsMutex.Unlock()

	if _, ok := m.clients[client.ID]; ok {
		delete(m.clients, client.ID)
		removeFromIndex(m.userIndex, client.UserID, client.ID)
		removeFromIndex(m.ventureIndex, client.VentureID, client.ID)

		close(client.Send)
		m.logger.Debug().Str("client_id", client.ID).Msg("client unregistered")
	}
}

// Subscribe hands client to the hub. It reports false once Run has returned,
// in which case the caller still owns the connection.
func (m *Manager) Subscribe(client *Client) bool {
	select {
	case m.Register <- client:
		return true
	case <-m.done:
		return false
	}
}

// unregister is a no-op once Run has returned.
func (m *Manager) unregister(client *Client) {
	select {
	case m.Unregister <- client:
	case <-m.done:
	}
}

func (m *Manager) closeAll() {
	m.clientsMutex.Lock()
	defer m.clientsMutex.Unlock()

	for id, client := range m.clients {
		close(client.Send)
		delete(m.clients, id)
	}
	m.userIndex = make(map[string]map[string]bool)
	m.ventureIndex = make(map[string]map[string]bool)
}

func addToIndex(index map[string]map[string]bool, key, clientID string) {
	if index[key] == nil {
		index[key] = make(map[string]bool)
	}
	index[key][clientID] = true
}

func removeFromIndex(index map[string]map[string]bool, key, clientID string) {
	delete(index[key], clientID)
	if len(index[key]) == 0 {
		delete(index, key)
	}
}

// Clients only ever send pings; everything else is answered with an error.
func (m *Manager) processMessage(clientMsg *ClientMessage) {
	var msg Message
	if err := json.Unmarshal(clientMsg.Message, &msg); err != nil {
		m.reply(clientMsg.Client, TypeError, &ErrorPayload{Error: "malformed message"})
		return
	}

	switch msg.Type {
	case TypePing:
		m.reply(clientMsg.Client, TypePong, nil)
	default:
		m.reply(clientMsg.Client, TypeError, &ErrorPayload{Error: "unsupported message type " + string(msg.Type)})
	}
}

func (m *Manager) reply(client *Client, msgType MessageType, payload interface{}) {
	msg, err := NewMessage(msgType, payload)
	if err != nil {
		m.logger.Error().Err(err).Msg("failed to build reply")
		return
	}
	if err := m.SendToClient(client.ID, msg); err != nil {
		m.logger.Error().Err(err).Str("client_id", client.ID).Msg("failed to send reply")
	}
}

// PublishVentureEvent sends event to every client watching its venture.
func (m *Manager) PublishVentureEvent(event domain.VentureEvent) {
	msg, err := NewMessage(MessageType(event.Type), event)
	if err != nil {
		m.logger.Error().Err(err).Str("venture_id", event.VentureID).Msg("failed to encode event")
		return
	}

	if err := m.BroadcastToVenture(event.VentureID, msg); err != nil {
		m.logger.Error().Err(err).Str("venture_id", event.VentureID).Msg("failed to broadcast event")
	}
}

func (m *Manager) BroadcastToVenture(ventureID string, message *Message) error {
	messageBytes, err := json.Marshal(message)
	if err != nil {
		return err
	}

	var slow []*Client

	m.clientsMutex.RLock()
	for clientID := range m.ventureIndex[ventureID] {
		client := m.clients[clientID]
		select {
		case client.Send <- messageBytes:
		default:
			slow = append(slow, client)
		}
	}
	m.clientsMutex.RUnlock()

	for _, client := range slow {
		m.logger.Warn().Str("client_id", client.ID).Msg("send buffer full, closing connection")
		go m.unregister(client)
	}

	return nil
}

func (m *Manager) SendToClient(clientID string, message *Message) error {
	m.clientsMutex.RLock()
	defer m.clientsMutex.RUnlock()

	client, exists := m.clients[clientID]
	if !exists {
		return nil
	}

	messageBytes, err := json.Marshal(message)
	if err != nil {
		return err
	}

	select {
	case client.Send <- messageBytes:
	default:
		m.logger.Warn().Str("client_id", clientID).Msg("send buffer full")
	}

	return nil
}

func (m *Manager) VentureSubscribers(ventureID string) int {
	m.clientsMutex.RLock()
	defer m.clientsMutex.RUnlock()

	return len(m.ventureIndex[ventureID])
}

func (m *Manager) GetUserConnections(userID string) int {
	m.clientsMutex.RLock()
	defer m.clientsMutex.RUnlock()

	return len(m.userIndex[userID])
}
