package bus

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
)

// subscriberBufferSize, her memory aboneliğinin tampon boyutu.
// Tampon dolarsa (yavaş tüketici) mesaj düşürülür; Redis pub/sub da
// yavaş aboneye aynı şekilde davranır.
const subscriberBufferSize = 256

// ErrClosed, kapatılmış bir bus üzerinde işlem yapıldığında döner.
var ErrClosed = errors.New("bus closed")

// MemoryBus, tek process içinde çalışan Bus implementasyonu.
//
// Abonelikler kanal → abone set'i map'inde tutulur (RWMutex ile korunur).
// Okundu bildirimi tablosu ayrı bir mutex ile korunur; Drain map'i
// yenisiyle takas eder, bu yüzden read-and-clear atomiktir.
type MemoryBus struct {
	mu     sync.RWMutex
	subs   map[string]map[*memorySubscription]struct{}
	closed bool

	receiptsMu sync.Mutex
	receipts   map[string][]string

	log *zap.Logger
}

// NewMemory, boş bir MemoryBus oluşturur.
func NewMemory(log *zap.Logger) *MemoryBus {
	if log == nil {
		log = zap.NewNop()
	}
	return &MemoryBus{
		subs:     make(map[string]map[*memorySubscription]struct{}),
		receipts: make(map[string][]string),
		log:      log,
	}
}

// Publish, kanaldaki tüm abonelere payload'ın bir kopyasını iletir.
// Abone yoksa mesaj sessizce kaybolur (pub/sub semantiği).
func (b *MemoryBus) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return ErrClosed
	}

	for sub := range b.subs[channel] {
		msg := append([]byte(nil), payload...)
		select {
		case sub.ch <- msg:
		default:
			b.log.Warn("subscriber buffer full, dropping message", zap.String("channel", channel))
		}
	}
	return nil
}

// Subscribe, verilen kanallara abonelik açar.
func (b *MemoryBus) Subscribe(ctx context.Context, channels ...string) (Subscription, error) {
	if len(channels) == 0 {
		return nil, errors.New("at least one channel is required")
	}

	sub := &memorySubscription{
		bus:      b,
		channels: channels,
		ch:       make(chan []byte, subscriberBufferSize),
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, ErrClosed
	}
	for _, c := range channels {
		if _, ok := b.subs[c]; !ok {
			b.subs[c] = make(map[*memorySubscription]struct{})
		}
		b.subs[c][sub] = struct{}{}
	}
	// Callback Close'u çağırır ve kilidi bekler; stop ataması kilit altında görünür.
	sub.stop = context.AfterFunc(ctx, func() { _ = sub.Close() })
	b.mu.Unlock()

	return sub, nil
}

// AppendReadReceipts, okuyanın bekleyen listesine id'leri ekler.
func (b *MemoryBus) AppendReadReceipts(ctx context.Context, readerID string, messageIDs []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(messageIDs) == 0 {
		return nil
	}

	b.receiptsMu.Lock()
	defer b.receiptsMu.Unlock()

	b.receipts[readerID] = append(b.receipts[readerID], messageIDs...)
	return nil
}

// DrainReadReceipts, tabloyu boş bir map ile takas eder ve eskisini döner.
func (b *MemoryBus) DrainReadReceipts(ctx context.Context) (map[string][]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b.receiptsMu.Lock()
	drained := b.receipts
	b.receipts = make(map[string][]string)
	b.receiptsMu.Unlock()

	return drained, nil
}

// Close, tüm abonelikleri kapatır. Sonraki Publish/Subscribe ErrClosed döner.
func (b *MemoryBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true

	seen := make(map[*memorySubscription]struct{})
	for _, subs := range b.subs {
		for sub := range subs {
			if _, ok := seen[sub]; ok {
				continue
			}
			seen[sub] = struct{}{}
			sub.closeLocked()
		}
	}
	b.subs = make(map[string]map[*memorySubscription]struct{})
	return nil
}

type memorySubscription struct {
	bus      *MemoryBus
	channels []string
	ch       chan []byte
	stop     func() bool
	closed   bool // bus.mu altında
}

func (s *memorySubscription) Messages() <-chan []byte {
	return s.ch
}

func (s *memorySubscription) Close() error {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()

	for _, c := range s.channels {
		if subs, ok := s.bus.subs[c]; ok {
			delete(subs, s)
			if len(subs) == 0 {
				delete(s.bus.subs, c)
			}
		}
	}
	s.closeLocked()
	return nil
}

// closeLocked, bus.mu tutulurken çağrılır; Publish aynı kilidi RLock ile
// aldığı için kapalı kanala yazma olmaz.
func (s *memorySubscription) closeLocked() {
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
	if s.stop != nil {
		s.stop()
	}
}
