package notifications

import (
	"context"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const DefaultReconnectInterval = 3 * time.Second

// TokenFunc returns the access token to authenticate a dial with
type TokenFunc func() (string, bool)

// ChannelURL builds the notification channel url for an access token
func ChannelURL(wsBase, access string) string {
	return wsBase + "notifications/?token=" + url.QueryEscape(access)
}

// Subscription holds one notification channel open until Close. Inbound frames go to the
// log; dial and read errors are logged and the channel is redialled after a fixed interval.
type Subscription struct {
	wsBase    string
	token     TokenFunc
	log       *Log
	dialer    *websocket.Dialer
	reconnect time.Duration
	now       func() time.Time

	cancel context.CancelFunc
	done   chan struct{}

	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool
}

type SubscriptionOption func(*Subscription)

func WithDialer(d *websocket.Dialer) SubscriptionOption {
	return func(s *Subscription) {
		s.dialer = d
	}
}

func WithReconnectInterval(d time.Duration) SubscriptionOption {
	return func(s *Subscription) {
		if d > 0 {
			s.reconnect = d
		}
	}
}

// Subscribe opens the channel in the background and returns immediately
func Subscribe(ctx context.Context, wsBase string, token TokenFunc, l *Log, opts ...SubscriptionOption) *Subscription {
	ctx, cancel := context.WithCancel(ctx)
	s := &Subscription{
		wsBase:    wsBase,
		token:     token,
		log:       l,
		dialer:    websocket.DefaultDialer,
		reconnect: DefaultReconnectInterval,
		now:       time.Now,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	openSubscriptions.Inc()
	go s.run(ctx)
	return s
}

func (s *Subscription) Log() *Log {
	return s.log
}

// Connected reports whether the channel is currently open
func (s *Subscription) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// Close stops the subscription and waits for it to finish
func (s *Subscription) Close() {
	s.cancel()
	s.mu.Lock()
	if s.conn != nil {
		_ = s.conn.Close()
	}
	s.mu.Unlock()
	<-s.done
}

func (s *Subscription) run(ctx context.Context) {
	defer close(s.done)
	defer openSubscriptions.Dec()

	for {
		if err := s.session(ctx); err != nil && ctx.Err() == nil {
			log.Warn().Err(err).Str("ws", s.wsBase).Msg("notification channel dropped")
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(s.reconnect):
		}
	}
}

// session dials once and reads until the connection fails
func (s *Subscription) session(ctx context.Context) error {
	access, ok := s.token()
	if !ok {
		dials.WithLabelValues("no_token").Inc()
		return nil
	}

	conn, resp, err := s.dialer.DialContext(ctx, ChannelURL(s.wsBase, access), nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		dials.WithLabelValues("error").Inc()
		return err
	}
	dials.WithLabelValues("ok").Inc()

	s.mu.Lock()
	if ctx.Err() != nil {
		s.mu.Unlock()
		_ = conn.Close()
		return nil
	}
	s.conn = conn
	s.connected = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.conn = nil
		s.connected = false
		s.mu.Unlock()
		_ = conn.Close()
	}()

	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		n, err := Decode(frame, s.now())
		if err != nil {
			log.Warn().Err(err).Msg("skipping notification frame")
			continue
		}
		s.log.Append(n)
		received.Inc()
	}
}
