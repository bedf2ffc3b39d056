// Package synthesis pushes confirmed relationships to the downstream
// synthesis engine over a WebSocket feed. The push is advisory: evaluation
// results are durable in research.db regardless of feed health, so the
// client buffers and drops rather than blocking the evaluator.
package synthesis

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"nhooyr.io/websocket"

	"github.com/aristath/edgefinder/internal/domain"
)

const (
	writeWait   = 10 * time.Second
	dialTimeout = 30 * time.Second

	baseReconnectDelay = 5 * time.Second
	maxReconnectDelay  = 5 * time.Minute

	outboxSize = 256
)

// completionMessage is the wire format for one confirmed finding
type completionMessage struct {
	Type           string                 `json:"type"`
	HypothesisID   string                 `json:"hypothesis_id"`
	PValue         float64                `json:"p_value"`
	AdjustedPValue float64                `json:"adjusted_p_value"`
	EffectSize     float64                `json:"effect_size"`
	SampleSize     int                    `json:"sample_size"`
	PopulationSize int                    `json:"population_size"`
	Diagnostics    map[string]interface{} `json:"diagnostics,omitempty"`
	CompletedAt    string                 `json:"completed_at"`
}

// Client is a CompletionHook that streams significant verdicts downstream
type Client struct {
	url string
	log zerolog.Logger

	conn       *websocket.Conn
	connCtx    context.Context
	cancelFunc context.CancelFunc
	mu         sync.RWMutex

	connected    bool
	reconnecting bool
	stopChan     chan struct{}
	stopped      bool

	outbox chan completionMessage
}

var _ domain.CompletionHook = (*Client)(nil)

// NewClient creates a new synthesis push client
func NewClient(url string, log zerolog.Logger) *Client {
	return &Client{
		url:      url,
		log:      log.With().Str("component", "synthesis_client").Logger(),
		stopChan: make(chan struct{}),
		outbox:   make(chan completionMessage, outboxSize),
	}
}

// Start connects and launches the send loop. A failed initial dial is not
// fatal: the reconnect loop keeps trying in the background while the outbox
// buffers findings.
func (c *Client) Start() error {
	c.log.Info().Str("url", c.url).Msg("Starting synthesis push client")

	go c.sendLoop()

	if err := c.connect(); err != nil {
		c.log.Warn().Err(err).Msg("Initial synthesis connection failed, will retry in background")
		go c.reconnectLoop()
		return err
	}

	return nil
}

// Stop shuts down the client
func (c *Client) Stop() error {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return nil
	}
	c.stopped = true
	c.mu.Unlock()

	close(c.stopChan)
	return c.disconnect()
}

// OnEvaluationCompleted queues one significant verdict for push. Never
// blocks: when the outbox is full the oldest finding is dropped, the
// durable record in research.db is the source of truth.
func (c *Client) OnEvaluationCompleted(ctx context.Context, hypothesisID string, verdict *domain.Verdict) {
	msg := completionMessage{
		Type:           "relationship_confirmed",
		HypothesisID:   hypothesisID,
		PValue:         verdict.PValue,
		AdjustedPValue: verdict.AdjustedPValue,
		EffectSize:     verdict.EffectSize,
		SampleSize:     verdict.SampleSize,
		PopulationSize: verdict.PopulationSize,
		Diagnostics:    verdict.Diagnostics,
		CompletedAt:    verdict.CreatedAt.Format(time.RFC3339),
	}

	for {
		select {
		case c.outbox <- msg:
			return
		default:
			select {
			case dropped := <-c.outbox:
				c.log.Warn().Str("hypothesis_id", dropped.HypothesisID).Msg("Synthesis outbox full, dropping oldest finding")
			default:
			}
		}
	}
}

// IsConnected returns current connection status
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

func (c *Client) connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.log.Info().Str("url", c.url).Msg("Connecting to synthesis engine")

	dialCtx, dialCancel := context.WithTimeout(context.Background(), dialTimeout)
	defer dialCancel()

	conn, _, err := websocket.Dial(dialCtx, c.url, nil)
	if err != nil {
		return fmt.Errorf("failed to dial synthesis WebSocket: %w", err)
	}

	connCtx, connCancel := context.WithCancel(context.Background())
	c.conn = conn
	c.connCtx = connCtx
	c.cancelFunc = connCancel
	c.connected = true

	c.log.Info().Msg("Connected to synthesis engine")
	return nil
}

func (c *Client) disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil
	}

	if c.cancelFunc != nil {
		c.cancelFunc()
		c.cancelFunc = nil
	}

	err := c.conn.Close(websocket.StatusNormalClosure, "")
	c.conn = nil
	c.connCtx = nil
	c.connected = false

	if err != nil {
		return fmt.Errorf("error closing synthesis WebSocket: %w", err)
	}
	return nil
}

// sendLoop drains the outbox. A write failure puts the message back at the
// front of the queue (best effort) and kicks off reconnection.
func (c *Client) sendLoop() {
	for {
		select {
		case <-c.stopChan:
			return
		case msg := <-c.outbox:
			if err := c.write(msg); err != nil {
				c.log.Error().Err(err).Str("hypothesis_id", msg.HypothesisID).Msg("Synthesis push failed")
				select {
				case c.outbox <- msg:
				default:
				}
				c.handleWriteFailure()
			} else {
				c.log.Debug().Str("hypothesis_id", msg.HypothesisID).Msg("Pushed finding to synthesis engine")
			}
		}
	}
}

func (c *Client) write(msg completionMessage) error {
	c.mu.RLock()
	conn := c.conn
	ctx := c.connCtx
	c.mu.RUnlock()

	if conn == nil {
		return fmt.Errorf("not connected")
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal completion message: %w", err)
	}

	writeCtx, cancel := context.WithTimeout(ctx, writeWait)
	defer cancel()

	return conn.Write(writeCtx, websocket.MessageText, data)
}

func (c *Client) handleWriteFailure() {
	if err := c.disconnect(); err != nil {
		c.log.Debug().Err(err).Msg("Disconnect after write failure")
	}

	c.mu.RLock()
	stopped := c.stopped
	c.mu.RUnlock()
	if !stopped {
		go c.reconnectLoop()
	}

	// Let the connection settle before draining more of the outbox
	select {
	case <-time.After(baseReconnectDelay):
	case <-c.stopChan:
	}
}

// reconnectLoop re-establishes the connection with exponential backoff
func (c *Client) reconnectLoop() {
	c.mu.Lock()
	if c.reconnecting || c.stopped {
		c.mu.Unlock()
		return
	}
	c.reconnecting = true
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.reconnecting = false
		c.mu.Unlock()
	}()

	attempt := 0
	for {
		select {
		case <-c.stopChan:
			return
		default:
		}

		attempt++
		delay := c.calculateBackoff(attempt)

		c.log.Info().
			Int("attempt", attempt).
			Dur("delay", delay).
			Msg("Attempting to reconnect to synthesis engine")

		select {
		case <-time.After(delay):
		case <-c.stopChan:
			return
		}

		if err := c.connect(); err != nil {
			c.log.Error().Err(err).Int("attempt", attempt).Msg("Synthesis reconnection failed")
			continue
		}

		c.log.Info().Int("attempt", attempt).Msg("Reconnected to synthesis engine")
		return
	}
}

// calculateBackoff calculates exponential backoff delay
func (c *Client) calculateBackoff(attempt int) time.Duration {
	delay := float64(baseReconnectDelay) * math.Pow(2, float64(attempt-1))
	if delay > float64(maxReconnectDelay) {
		delay = float64(maxReconnectDelay)
	}
	return time.Duration(delay)
}
