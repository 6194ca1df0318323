package services

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/akinalp/opti/database"
	"github.com/akinalp/opti/pkg/bus"
	"github.com/akinalp/opti/pkg/metrics"
	"github.com/akinalp/opti/repository"
)

// finalFlushTimeout, Stop sırasında yapılan son flush'ın üst süresi.
const finalFlushTimeout = 10 * time.Second

// ReceiptReconciler, bekleyen okundu bildirimlerini periyodik olarak DB'ye yazar.
//
// Her tick'te tablo atomik olarak boşaltılır; boşsa DB'ye dokunulmaz.
// Doluysa tek transaction içinde her okuyan için MarkViewed çalışır.
// Hata durumunda boşaltılan batch loglanır ve düşürülür.
type ReceiptReconciler interface {
	Start()
	Stop()
	FlushOnce(ctx context.Context) (FlushResult, error)
}

// FlushResult, tek bir flush'ın özeti.
type FlushResult struct {
	Readers int   // bildirimi olan okuyucu sayısı
	Pending int   // boşaltılan toplam id sayısı
	Marked  int64 // is_viewed'ı gerçekten 0 → 1 olan satır
	Skipped bool  // başka bir flush sürerken çağrıldı
}

type receiptReconciler struct {
	db          *sql.DB
	messageRepo repository.MessageRepository
	receipts    bus.ReceiptBuffer
	interval    time.Duration
	metrics     *metrics.Metrics
	log         *zap.Logger

	// flushMu, flush'ların üst üste binmesini engeller (TryLock).
	flushMu sync.Mutex

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	done    chan struct{}
}

// NewReceiptReconciler, constructor.
func NewReceiptReconciler(
	db *sql.DB,
	messageRepo repository.MessageRepository,
	receipts bus.ReceiptBuffer,
	interval time.Duration,
	m *metrics.Metrics,
	log *zap.Logger,
) ReceiptReconciler {
	return &receiptReconciler{
		db:          db,
		messageRepo: messageRepo,
		receipts:    receipts,
		interval:    interval,
		metrics:     m,
		log:         log,
	}
}

// Start, reconciler goroutine'ini başlatır. İkinci çağrı etkisizdir.
func (r *receiptReconciler) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return
	}
	r.running = true
	r.stopCh = make(chan struct{})
	r.done = make(chan struct{})

	r.log.Info("starting", zap.Duration("interval", r.interval))

	go r.loop(r.stopCh, r.done)
}

func (r *receiptReconciler) loop(stopCh <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	// time.Ticker yavaş alıcıda tick biriktirmez; uzun süren bir flush
	// sonraki tick'leri atlatır, kuyruğa sokmaz.
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), r.interval)
			_, _ = r.FlushOnce(ctx)
			cancel()
		case <-stopCh:
			return
		}
	}
}

// Stop, döngüyü durdurur, bitmesini bekler ve son bir flush yapar.
func (r *receiptReconciler) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	close(r.stopCh)
	done := r.done
	r.mu.Unlock()

	<-done

	ctx, cancel := context.WithTimeout(context.Background(), finalFlushTimeout)
	defer cancel()
	_, _ = r.FlushOnce(ctx)

	r.log.Info("stopped")
}

// FlushOnce, tabloyu bir kez boşaltıp DB'ye yazar.
// Başka bir flush sürüyorsa beklemeden Skipped döner.
func (r *receiptReconciler) FlushOnce(ctx context.Context) (FlushResult, error) {
	if !r.flushMu.TryLock() {
		r.log.Debug("flush already in progress, skipping")
		return FlushResult{Skipped: true}, nil
	}
	defer r.flushMu.Unlock()

	batch, err := r.receipts.DrainReadReceipts(ctx)
	if err != nil {
		r.metrics.FlushErrors.Inc()
		r.log.Error("failed to drain read receipts", zap.Error(err))
		return FlushResult{}, fmt.Errorf("failed to drain read receipts: %w", err)
	}
	if len(batch) == 0 {
		return FlushResult{}, nil
	}

	result := FlushResult{Readers: len(batch)}
	for _, ids := range batch {
		result.Pending += len(ids)
	}

	start := time.Now()
	err = database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		repo := r.messageRepo.WithTx(tx)
		var marked int64
		for readerID, ids := range batch {
			n, err := repo.MarkViewed(ctx, readerID, ids)
			if err != nil {
				return err
			}
			marked += n
		}
		result.Marked = marked
		return nil
	})
	r.metrics.FlushDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		r.metrics.FlushErrors.Inc()
		r.log.Error("read receipt flush failed, batch dropped",
			zap.Int("readers", result.Readers),
			zap.Int("pending", result.Pending),
			zap.Error(err),
		)
		return FlushResult{Readers: result.Readers, Pending: result.Pending}, err
	}

	r.metrics.ReceiptsFlushed.Add(float64(result.Marked))
	r.log.Debug("read receipts flushed",
		zap.Int("readers", result.Readers),
		zap.Int("pending", result.Pending),
		zap.Int64("marked", result.Marked),
	)
	return result, nil
}
