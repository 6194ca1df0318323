package bus

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// appendScript, okuyanın mevcut değerine yeni id'leri ekler.
// Redis'te hash field'ı için APPEND yoktur; HGET + HSET ayrı komutlar olarak
// gönderilirse eşzamanlı iki append birbirini ezer. Script sunucuda atomik çalışır.
var appendScript = redis.NewScript(`
local current = redis.call('HGET', KEYS[1], ARGV[1]) or ''
redis.call('HSET', KEYS[1], ARGV[1], current .. ARGV[2])
return 1
`)

// drainScript, tüm hash'i okur ve siler; arada başka komut çalışamaz.
var drainScript = redis.NewScript(`
local entries = redis.call('HGETALL', KEYS[1])
redis.call('DEL', KEYS[1])
return entries
`)

// RedisBus, Redis pub/sub ve hash üzerine kurulu Bus implementasyonu.
// Birden fazla API process'i aynı Redis'i paylaşarak birbirinin
// kullanıcılarına event iletebilir.
type RedisBus struct {
	client *redis.Client
	log    *zap.Logger
}

// DialRedis, URL'den (redis://host:port/db) bir client oluşturur ve bağlantıyı doğrular.
func DialRedis(ctx context.Context, url string, log *zap.Logger) (*RedisBus, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	b := NewRedis(client, log)
	b.log.Info("connected to redis", zap.String("addr", opts.Addr), zap.Int("db", opts.DB))
	return b, nil
}

// NewRedis, mevcut bir client'ı sarar.
func NewRedis(client *redis.Client, log *zap.Logger) *RedisBus {
	if log == nil {
		log = zap.NewNop()
	}
	return &RedisBus{client: client, log: log}
}

// Publish, payload'ı kanala yayınlar.
func (b *RedisBus) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := b.client.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", channel, err)
	}
	return nil
}

// Subscribe, kanallara abone olur ve her kanal için sunucu onayını bekler.
func (b *RedisBus) Subscribe(ctx context.Context, channels ...string) (Subscription, error) {
	if len(channels) == 0 {
		return nil, errors.New("at least one channel is required")
	}

	ps := b.client.Subscribe(ctx, channels...)

	// Onaylar gelmeden dönersek, hemen ardından yapılan publish kaçabilir.
	for range channels {
		msg, err := ps.Receive(ctx)
		if err != nil {
			ps.Close()
			return nil, fmt.Errorf("failed to subscribe: %w", err)
		}
		if _, ok := msg.(*redis.Subscription); !ok {
			ps.Close()
			return nil, fmt.Errorf("unexpected subscribe reply %T", msg)
		}
	}

	sub := &redisSubscription{
		ps:   ps,
		out:  make(chan []byte, subscriberBufferSize),
		done: make(chan struct{}),
	}
	go sub.forward(ps.Channel())

	stop := context.AfterFunc(ctx, func() { _ = sub.Close() })
	sub.mu.Lock()
	sub.stop = stop
	sub.mu.Unlock()

	return sub, nil
}

// AppendReadReceipts, id'leri "a;b;" formatında okuyanın field'ına ekler.
func (b *RedisBus) AppendReadReceipts(ctx context.Context, readerID string, messageIDs []string) error {
	encoded := encodeReceipts(messageIDs)
	if encoded == "" {
		return nil
	}

	if err := appendScript.Run(ctx, b.client, []string{ReceiptsKey}, readerID, encoded).Err(); err != nil {
		return fmt.Errorf("failed to append read receipts: %w", err)
	}
	return nil
}

// DrainReadReceipts, side-table'ı atomik olarak okur ve siler.
func (b *RedisBus) DrainReadReceipts(ctx context.Context) (map[string][]string, error) {
	res, err := drainScript.Run(ctx, b.client, []string{ReceiptsKey}).StringSlice()
	if errors.Is(err, redis.Nil) {
		return map[string][]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to drain read receipts: %w", err)
	}

	drained := make(map[string][]string, len(res)/2)
	for i := 0; i+1 < len(res); i += 2 {
		if ids := decodeReceipts(res[i+1]); len(ids) > 0 {
			drained[res[i]] = ids
		}
	}
	return drained, nil
}

// Close, Redis client'ını kapatır.
func (b *RedisBus) Close() error {
	return b.client.Close()
}

type redisSubscription struct {
	ps   *redis.PubSub
	out  chan []byte
	done chan struct{}

	mu     sync.Mutex
	stop   func() bool
	closed bool
}

// forward, go-redis mesajlarını ham byte'lara çevirir.
// ps kapanınca kaynak kanal kapanır ve out da kapatılır.
func (s *redisSubscription) forward(in <-chan *redis.Message) {
	defer close(s.out)
	for msg := range in {
		select {
		case s.out <- []byte(msg.Payload):
		case <-s.done:
			return
		}
	}
}

func (s *redisSubscription) Messages() <-chan []byte {
	return s.out
}

func (s *redisSubscription) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	stop := s.stop
	close(s.done)
	s.mu.Unlock()

	if stop != nil {
		stop()
	}
	return s.ps.Close()
}
