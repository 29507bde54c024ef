package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xela07ax/nexusflow/internal/engine"
	"github.com/xela07ax/nexusflow/internal/reliability"
)

// CommandStart — единственная входящая команда.
const CommandStart = "start"

// Command — сообщение в канале команд. Допускается и голая строка "start".
type Command struct {
	ID       string `json:"id,omitempty"`
	Command  string `json:"command"`
	Operator string `json:"operator,omitempty"`
}

func parseCommand(payload string) (Command, error) {
	payload = strings.TrimSpace(payload)
	if payload == "" {
		return Command{}, errors.New("empty command")
	}

	var cmd Command
	if strings.HasPrefix(payload, "{") {
		if err := json.Unmarshal([]byte(payload), &cmd); err != nil {
			return Command{}, fmt.Errorf("invalid command json: %w", err)
		}
	} else {
		cmd.Command = payload
	}

	cmd.Command = strings.ToLower(strings.TrimSpace(cmd.Command))
	if cmd.Command != CommandStart {
		return Command{}, fmt.Errorf("unknown command %q", cmd.Command)
	}
	return cmd, nil
}

// wireEvent — событие в канале Redis. Снимок передается только для state,
// чтобы записи журнала не тащили весь граф.
type wireEvent struct {
	Type     engine.EventKind `json:"type"`
	Phase    engine.Phase     `json:"phase"`
	RunID    string           `json:"run_id,omitempty"`
	Entry    any              `json:"entry,omitempty"`
	Snapshot *engine.Snapshot `json:"snapshot,omitempty"`
}

func encodeEvent(ev engine.Event) ([]byte, error) {
	w := wireEvent{Type: ev.Kind, Phase: ev.Phase, RunID: ev.RunID}
	if ev.Entry != nil {
		w.Entry = ev.Entry
	}
	if ev.Kind == engine.EventState {
		snap := ev.Snapshot
		w.Snapshot = &snap
	}
	return json.Marshal(w)
}

// Publisher — подмножество *redis.Client, нужное Broadcaster.
type Publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// Broadcaster публикует события движка в Redis из отдельной горутины.
type Broadcaster struct {
	rdb         Publisher
	channel     string
	snapshotKey string
	wrapper     *reliability.Wrapper
	logger      *zap.Logger

	queue    chan engine.Event
	wg       sync.WaitGroup
	isClosed atomic.Bool
	dropped  atomic.Int64
}

func NewBroadcaster(rdb Publisher, channel, snapshotKey string, w *reliability.Wrapper, logger *zap.Logger) *Broadcaster {
	return &Broadcaster{
		rdb:         rdb,
		channel:     channel,
		snapshotKey: snapshotKey,
		wrapper:     w,
		logger:      logger.With(zap.String("mod", "redis_broadcaster")),
		queue:       make(chan engine.Event, 1024),
	}
}

// Notify реализует engine.Observer.
func (b *Broadcaster) Notify(ev engine.Event) {
	if b.isClosed.Load() {
		return
	}
	select {
	case b.queue <- ev:
	default:
		b.dropped.Add(1)
		b.logger.Warn("redis broadcast queue full, event dropped", zap.String("type", string(ev.Kind)))
	}
}

func (b *Broadcaster) Start() {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		for ev := range b.queue {
			b.publish(context.Background(), ev)
		}
	}()
}

// Stop дописывает очередь и останавливает воркер.
func (b *Broadcaster) Stop() {
	if !b.isClosed.CompareAndSwap(false, true) {
		return
	}
	time.Sleep(10 * time.Millisecond)
	close(b.queue)
	b.wg.Wait()
}

func (b *Broadcaster) publish(ctx context.Context, ev engine.Event) {
	data, err := encodeEvent(ev)
	if err != nil {
		b.logger.Error("encode event failed", zap.Error(err))
		return
	}

	err = b.wrapper.Do(ctx, func(ctx context.Context) error {
		if err := b.rdb.Publish(ctx, b.channel, data).Err(); err != nil {
			return err
		}
		if ev.Kind == engine.EventState && b.snapshotKey != "" {
			return b.rdb.Set(ctx, b.snapshotKey, data, 0).Err()
		}
		return nil
	})
	if err != nil {
		b.dropped.Add(1)
		b.logger.Error("redis publish failed", zap.String("chan", b.channel), zap.Error(err))
	}
}

func (b *Broadcaster) Dropped() int64 {
	return b.dropped.Load()
}

// ListenCommands — «живучая» подписка на канал команд: переподключается после
// обрыва и на каждом успешном коннекте вызывает onReconnect.
// Блокируется до отмены ctx.
func ListenCommands(
	ctx context.Context,
	rdb *redis.Client,
	logger *zap.Logger,
	channel string,
	lockPrefix string,
	onReconnect func() error,
	onCommand func(cmd Command),
) {
	logger = logger.With(zap.String("mod", "redis_commands"))

	for {
		if ctx.Err() != nil {
			return
		}
		pubsub := rdb.Subscribe(ctx, channel)

		// Проверка успешности подписки
		if _, err := pubsub.Receive(ctx); err != nil {
			pubsub.Close()
			logger.Error("failed to subscribe", zap.String("chan", channel), zap.Error(err))
			if !sleepCtx(ctx, 5*time.Second) {
				return
			}
			continue
		}

		if onReconnect != nil {
			if err := onReconnect(); err != nil {
				logger.Error("sync failed on reconnect", zap.Error(err))
			}
		}

		ch := pubsub.Channel()

	loop:
		for {
			select {
			case <-ctx.Done():
				pubsub.Close()
				return
			case msg, ok := <-ch:
				if !ok {
					break loop // Канал закрыт, идем на переподключение
				}

				cmd, err := parseCommand(msg.Payload)
				if err != nil {
					logger.Error("invalid command", zap.String("payload", msg.Payload), zap.Error(err))
					continue
				}
				if !claimCommand(ctx, rdb, lockPrefix, cmd) {
					logger.Debug("command claimed by another instance", zap.String("id", cmd.ID))
					continue
				}
				onCommand(cmd)
			}
		}

		pubsub.Close()
		if !sleepCtx(ctx, time.Second) {
			return
		}
	}
}

// claimCommand — распределенная блокировка (SetNX): команду с ID выполняет один инстанс.
// Команды без ID выполняются всеми подписчиками.
func claimCommand(ctx context.Context, rdb *redis.Client, lockPrefix string, cmd Command) bool {
	if cmd.ID == "" || lockPrefix == "" {
		return true
	}
	ok, err := rdb.SetNX(ctx, lockPrefix+cmd.ID, "processing", 30*time.Second).Result()
	if err != nil {
		// Redis недоступен: лучше выполнить, чем потерять команду
		return true
	}
	return ok
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
