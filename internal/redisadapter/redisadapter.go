// Package redisadapter is a concrete adapter.Adapter backed by Redis
// pub/sub, letting multiple server processes share rooms: a go-redis
// client guarded by a sony/gobreaker circuit breaker, with a
// graceful-degradation posture where a down Redis degrades this process
// to single-instance operation rather than taking it down.
package redisadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/sio-engine/socketio/internal/adapter"
	"github.com/sio-engine/socketio/internal/logging"
	"github.com/sio-engine/socketio/internal/metrics"
	"github.com/sio-engine/socketio/internal/session"
	"github.com/sio-engine/socketio/internal/sid"
	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// envelope is the wire format published on the shared channel. sendingID
// identifies the process that published the message: a subscriber ignores
// any envelope whose sendingID matches its own, which is what keeps a
// local emitTo from also being echoed back to the same process by way of
// Redis.
type envelope struct {
	RoomID    string `json:"room_id"`
	Event     string `json:"event"`
	Payload   string `json:"payload"`
	SendingID string `json:"sending_id"`
}

// Adapter relays room events between server processes over a single Redis
// channel. It is a process-wide singleton in practice: at most one should
// be installed via adapter.Install at a time.
type Adapter struct {
	client    *redis.Client
	cb        *gobreaker.CircuitBreaker
	channel   string
	sendingID string

	queue  chan envelope
	done   chan struct{}
	cancel context.CancelFunc
}

// Connect dials addr, verifies it with a PING, and starts the background
// publisher and subscriber loops. queueSize bounds the outbound publish
// queue; once full, further Incoming/Outgoing calls drop the oldest queued
// message rather than block the caller.
func Connect(ctx context.Context, addr, password, channel string, queueSize int) (*Adapter, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DialTimeout:  10 * time.Second,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("redisadapter: connect: %w", err)
	}

	st := gobreaker.Settings{
		Name:        "redisadapter",
		MaxRequests: 5,
		Interval:    time.Minute,
		Timeout:     15 * time.Second,
		OnStateChange: func(name string, from, to gobreaker.State) {
			var v float64
			switch to {
			case gobreaker.StateClosed:
				v = 0
			case gobreaker.StateOpen:
				v = 1
			case gobreaker.StateHalfOpen:
				v = 2
			}
			metrics.AdapterCircuitState.WithLabelValues("redis").Set(v)
		},
	}

	runCtx, stop := context.WithCancel(ctx)

	a := &Adapter{
		client:    client,
		cb:        gobreaker.NewCircuitBreaker(st),
		channel:   channel,
		sendingID: sid.New(),
		queue:     make(chan envelope, queueSize),
		done:      make(chan struct{}),
		cancel:    stop,
	}

	go a.publishLoop(runCtx)
	go a.subscribeLoop(runCtx)

	logging.Info(ctx, "redis adapter connected", zap.String("addr", addr), zap.String("channel", channel))
	return a, nil
}

// Incoming satisfies adapter.Adapter: it is called before a local fan-out
// and relays the message to other processes over Redis.
func (a *Adapter) Incoming(roomID, event, payload string) {
	a.enqueue(envelope{RoomID: roomID, Event: event, Payload: payload, SendingID: a.sendingID})
}

// Outgoing satisfies adapter.Adapter. This adapter treats Incoming and
// Outgoing identically: both are local-origin messages that need relaying,
// the distinction matters only to adapters that treat client-bound and
// server-bound traffic differently.
func (a *Adapter) Outgoing(roomID, event, payload string) {
	a.enqueue(envelope{RoomID: roomID, Event: event, Payload: payload, SendingID: a.sendingID})
}

func (a *Adapter) enqueue(e envelope) {
	select {
	case a.queue <- e:
	default:
		select {
		case <-a.queue:
		default:
		}
		select {
		case a.queue <- e:
		default:
		}
		metrics.AdapterQueueDropped.Inc()
		logging.Warn(context.Background(), "redis adapter publish queue full, dropped oldest message",
			zap.String("room_id", e.RoomID))
	}
}

func (a *Adapter) publishLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case e := <-a.queue:
			a.publish(ctx, e)
		}
	}
}

func (a *Adapter) publish(ctx context.Context, e envelope) {
	data, err := json.Marshal(e)
	if err != nil {
		logging.Error(ctx, "redis adapter: failed to marshal envelope", zap.Error(err))
		return
	}

	_, err = a.cb.Execute(func() (interface{}, error) {
		return nil, a.client.Publish(ctx, a.channel, data).Err()
	})
	if err != nil {
		if err == gobreaker.ErrOpenState {
			logging.Warn(ctx, "redis adapter circuit open, dropping publish", zap.String("room_id", e.RoomID))
			return
		}
		logging.Error(ctx, "redis adapter publish failed", zap.Error(err))
	}
}

func (a *Adapter) subscribeLoop(ctx context.Context) {
	pubsub := a.client.Subscribe(ctx, a.channel)
	defer pubsub.Close()
	defer close(a.done)

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var e envelope
			if err := json.Unmarshal([]byte(msg.Payload), &e); err != nil {
				logging.Warn(ctx, "redis adapter: malformed envelope", zap.Error(err))
				continue
			}
			if e.SendingID == a.sendingID {
				continue // echo of our own publish
			}
			session.DeliverLocal(e.RoomID, e.Event, e.Payload)
		}
	}
}

// Ping reports whether the Redis connection backing this adapter is
// reachable, for the readiness health check.
func (a *Adapter) Ping(ctx context.Context) error {
	_, err := a.cb.Execute(func() (interface{}, error) {
		return nil, a.client.Ping(ctx).Err()
	})
	return err
}

// Close stops the publish and subscribe loops and releases the underlying
// Redis client.
func (a *Adapter) Close() error {
	if a.cancel != nil {
		a.cancel()
	}
	return a.client.Close()
}

var _ adapter.Adapter = (*Adapter)(nil)

var installMu sync.Mutex

// Install connects to Redis and installs the resulting adapter as the
// process-wide relay via adapter.Install, returning it so the caller can
// wire it into a readiness check and close it on shutdown.
func Install(ctx context.Context, addr, password, channel string, queueSize int) (*Adapter, error) {
	installMu.Lock()
	defer installMu.Unlock()

	a, err := Connect(ctx, addr, password, channel, queueSize)
	if err != nil {
		return nil, err
	}
	adapter.Install(a)
	return a, nil
}
