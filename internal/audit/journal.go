package audit

/*
Файл journal.go реализует Journal — асинхронную выгрузку журнала протокола
в постоянное хранилище (Audit Trail).

Движок держит в памяти только последние 50 записей. Journal подписан на его
события и копит все записи с привязкой к run_id:
- Non-blocking: Notify кладет запись в буферизованный канал и не ждет БД.
  При переполнении запись сбрасывается (Load Shedding) с ошибкой в zap.
- Batching: запись пачками по BatchSize или по таймеру FlushInterval.
- Drain Pattern: Stop закрывает канал, воркер вычитывает остаток и делает финальный flush.
Восстановления состояния из журнала нет: это только исходящий след.
*/

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/xela07ax/nexusflow/internal/engine"
	"github.com/xela07ax/nexusflow/internal/reliability"
)

// Storage определяет, куда физически сохраняются записи.
type Storage interface {
	// WriteBatch сохраняет пачку записей за один раз
	WriteBatch(ctx context.Context, entries []Entry) error
}

// Reader — чтение журнала для консоли.
type Reader interface {
	FetchEntries(ctx context.Context, runID string, limit int) ([]Entry, error)
}

type Options struct {
	BufferSize    int
	BatchSize     int
	FlushInterval time.Duration
}

func DefaultOptions() Options {
	return Options{BufferSize: 10000, BatchSize: 100, FlushInterval: 500 * time.Millisecond}
}

type Journal struct {
	ch     chan Entry // Буфер для асинхронности
	repo   Storage
	opts   Options
	logger *zap.Logger
	fill   prometheus.Gauge
	wg     sync.WaitGroup

	isClosed atomic.Bool
	dropped  atomic.Int64
}

// NewJournal создает журнал. fill может быть nil.
func NewJournal(repo Storage, opts Options, logger *zap.Logger, fill prometheus.Gauge) *Journal {
	def := DefaultOptions()
	if opts.BufferSize <= 0 {
		opts.BufferSize = def.BufferSize
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = def.BatchSize
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = def.FlushInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Journal{
		ch:     make(chan Entry, opts.BufferSize),
		repo:   repo,
		opts:   opts,
		logger: logger.With(zap.String("mod", "journal")),
		fill:   fill,
	}
}

func (j *Journal) Start() {
	j.wg.Add(1)
	go j.worker()
}

// Stop «запирает» вход и ждет, пока воркер всё допишет.
func (j *Journal) Stop() {
	if !j.isClosed.CompareAndSwap(false, true) {
		return
	}
	// Даем крошечную паузу, чтобы текущие Log успели проскочить
	time.Sleep(10 * time.Millisecond)

	j.logger.Info("stopping journal: closing channel and flushing buffer...")
	close(j.ch)
	j.wg.Wait()
	j.logger.Info("journal stopped gracefully", zap.Int64("dropped", j.dropped.Load()))
}

// Notify реализует engine.Observer: в журнал попадают только записи ledger.
func (j *Journal) Notify(ev engine.Event) {
	if ev.Kind != engine.EventLog || ev.Entry == nil {
		return
	}
	j.Log(FromLog(ev.RunID, string(ev.Phase), *ev.Entry))
}

func (j *Journal) Log(entry Entry) {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}

	if j.isClosed.Load() {
		j.dropped.Add(1)
		j.logger.Warn("journal entry dropped: journal is stopping", zap.Int64("seq", entry.Seq))
		return
	}

	select {
	case j.ch <- entry:
		j.observeFill()
	default:
		// Backpressure: не блокируем движок, теряем запись с пометкой в логе
		j.dropped.Add(1)
		j.logger.Error("journal_buffer_overflow",
			zap.String("run_id", entry.RunID),
			zap.Int64("seq", entry.Seq),
		)
	}
}

// Dropped — сколько записей потеряно из-за переполнения или остановки.
func (j *Journal) Dropped() int64 {
	return j.dropped.Load()
}

func (j *Journal) observeFill() {
	if j.fill != nil {
		j.fill.Set(float64(len(j.ch)))
	}
}

func (j *Journal) worker() {
	defer j.wg.Done()

	batch := make([]Entry, 0, j.opts.BatchSize)
	ticker := time.NewTicker(j.opts.FlushInterval)
	defer ticker.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		// Background: основной контекст к моменту финального flush уже может быть закрыт
		if err := j.repo.WriteBatch(context.Background(), batch); err != nil {
			j.logger.Error("journal flush failed", zap.Int("size", len(batch)), zap.Error(err))
		}
		batch = make([]Entry, 0, j.opts.BatchSize)
		j.observeFill()
	}

	for {
		select {
		case entry, ok := <-j.ch:
			if !ok {
				// Канал закрыт в Stop: остаток уже вычитан, делаем финальный сброс
				flush()
				j.logger.Info("journal worker finished")
				return
			}
			batch = append(batch, entry)
			if len(batch) >= j.opts.BatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

// ReliableStorage пропускает запись через rate limiter, предохранитель и повторы.
type ReliableStorage struct {
	next    Storage
	wrapper *reliability.Wrapper
}

func NewReliableStorage(next Storage, w *reliability.Wrapper) *ReliableStorage {
	return &ReliableStorage{next: next, wrapper: w}
}

func (s *ReliableStorage) WriteBatch(ctx context.Context, entries []Entry) error {
	return s.wrapper.Do(ctx, func(ctx context.Context) error {
		return s.next.WriteBatch(ctx, entries)
	})
}
