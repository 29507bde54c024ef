package infra

const (
	// RedisNamespace Базовый префикс для изоляции данных проекта в Redis
	RedisNamespace = "nexusflow"
)

// Каналы Pub/Sub
const (
	// RedisChanEngineEvents — снимки состояния и записи журнала движка (JSON).
	RedisChanEngineEvents = RedisNamespace + ":engine:events"
	// RedisChanEngineCommands — входящие команды оператора ("start").
	RedisChanEngineCommands = RedisNamespace + ":engine:commands"
)

// Ключи
const (
	// RedisKeySnapshot — последний снимок состояния движка для поздно подключившихся.
	RedisKeySnapshot = RedisNamespace + ":engine:snapshot"
	// RedisKeyLockCommand — префикс блокировки команды: её выполняет только один инстанс.
	RedisKeyLockCommand = RedisNamespace + ":lock:command:"
)
