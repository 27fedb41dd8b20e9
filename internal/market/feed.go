package market

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// CandleNotice is pushed by the data feed when a candle closes.
type CandleNotice struct {
	Pair      string    `json:"pair"`
	Timeframe string    `json:"timeframe"`
	CloseTime time.Time `json:"close_time"`
}

// FeedConfig configures the feed listener
type FeedConfig struct {
	URL                 string
	ReconnectInterval   time.Duration
	MaxReconnectBackoff time.Duration
}

// Feed listens on the market-data websocket for candle-close notices
// and tracks connection status. The engine reads Connected() as a gate
// and receives notices on the channel returned by Notices().
type Feed struct {
	config FeedConfig
	logger zerolog.Logger

	mu         sync.RWMutex
	conn       *websocket.Conn
	connected  bool
	isRunning  bool
	reconnects int

	notices   chan CandleNotice
	statusChg chan bool
	stopChan  chan struct{}
	wg        sync.WaitGroup
}

// NewFeed creates a feed listener. It does not connect until Start.
func NewFeed(config FeedConfig, logger zerolog.Logger) *Feed {
	if config.ReconnectInterval <= 0 {
		config.ReconnectInterval = 2 * time.Second
	}
	if config.MaxReconnectBackoff <= 0 {
		config.MaxReconnectBackoff = 60 * time.Second
	}
	return &Feed{
		config:    config,
		logger:    logger.With().Str("component", "feed").Logger(),
		notices:   make(chan CandleNotice, 256),
		statusChg: make(chan bool, 8),
		stopChan:  make(chan struct{}),
	}
}

// Notices returns the candle-close notification channel.
func (f *Feed) Notices() <-chan CandleNotice {
	return f.notices
}

// StatusChanges returns connect/disconnect transitions.
func (f *Feed) StatusChanges() <-chan bool {
	return f.statusChg
}

// Connected reports whether the feed socket is currently up.
func (f *Feed) Connected() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.connected
}

// Start begins the connect/read loop in the background.
func (f *Feed) Start() {
	f.mu.Lock()
	if f.isRunning || f.config.URL == "" {
		f.mu.Unlock()
		return
	}
	f.isRunning = true
	f.mu.Unlock()

	f.wg.Add(1)
	go f.connectLoop()
}

// Stop tears down the connection and stops reconnecting.
func (f *Feed) Stop() {
	f.mu.Lock()
	if !f.isRunning {
		f.mu.Unlock()
		return
	}
	f.isRunning = false
	conn := f.conn
	f.mu.Unlock()

	close(f.stopChan)
	if conn != nil {
		conn.Close()
	}
	f.wg.Wait()
}

func (f *Feed) connectLoop() {
	defer f.wg.Done()

	backoff := f.config.ReconnectInterval
	for {
		f.mu.RLock()
		running := f.isRunning
		f.mu.RUnlock()
		if !running {
			return
		}

		conn, _, err := websocket.DefaultDialer.Dial(f.config.URL, nil)
		if err != nil {
			f.logger.Warn().Err(err).Dur("retry_in", backoff).Msg("feed connection failed")
			f.mu.Lock()
			f.reconnects++
			f.mu.Unlock()

			select {
			case <-time.After(backoff):
			case <-f.stopChan:
				return
			}
			backoff *= 2
			if backoff > f.config.MaxReconnectBackoff {
				backoff = f.config.MaxReconnectBackoff
			}
			continue
		}

		backoff = f.config.ReconnectInterval
		f.setConnected(conn, true)
		f.logger.Info().Msg("feed connected")

		f.readLoop(conn)

		f.setConnected(nil, false)
		f.logger.Warn().Msg("feed connection lost")

		select {
		case <-time.After(f.config.ReconnectInterval):
		case <-f.stopChan:
			return
		}
	}
}

func (f *Feed) readLoop(conn *websocket.Conn) {
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			conn.Close()
			return
		}

		var notice CandleNotice
		if err := json.Unmarshal(message, &notice); err != nil {
			f.logger.Debug().Err(err).Msg("unparseable feed message dropped")
			continue
		}
		if notice.Pair == "" {
			continue
		}

		select {
		case f.notices <- notice:
		default:
			// Scanner is behind; dropping is safe, the fallback
			// timer re-evaluates every pair anyway.
		}
	}
}

func (f *Feed) setConnected(conn *websocket.Conn, up bool) {
	f.mu.Lock()
	f.conn = conn
	changed := f.connected != up
	f.connected = up
	if up {
		f.reconnects = 0
	}
	f.mu.Unlock()

	if changed {
		select {
		case f.statusChg <- up:
		default:
		}
	}
}

// Stats reports feed connection counters for the status API.
func (f *Feed) Stats() map[string]interface{} {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return map[string]interface{}{
		"connected":  f.connected,
		"reconnects": f.reconnects,
		"url":        f.config.URL,
	}
}
