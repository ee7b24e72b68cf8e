package websocket

import (
	"bytes"
	"sync"
	"sync/atomic"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"p2pdesk/internal/models"
	"p2pdesk/pkg/utils"
)

var jsonFast = jsoniter.ConfigCompatibleWithStandardLibrary

// Пул JSON буферов: Broadcast вызывается на каждый переход статуса и
// каждое сообщение чата, аллокация на вызов здесь заметна.
var jsonBufferPool = sync.Pool{
	New: func() interface{} {
		return bytes.NewBuffer(make([]byte, 0, 512))
	},
}

// Hub управляет всеми активными WebSocket соединениями
//
// Назначение:
// Центральный менеджер для broadcast сообщений всем подключенным клиентам.
// Операторский UI получает события сделок, чатов и сопоставлений без polling.
//
// Функции:
// - Регистрация и отмена регистрации клиентов
// - Broadcast сообщений всем активным клиентам
// - Отбрасывание сообщений при переполнении (лента не должна тормозить движок)
// - Очистка отключенных и медленных соединений
//
// Использование:
// 1. Создать hub: hub := NewHub()
// 2. Запустить в горутине: go hub.Run()
// 3. Отправлять сообщения: hub.Broadcast(message)
// 4. Остановить при завершении: hub.Stop()
type Hub struct {
	// Зарегистрированные клиенты
	clients map[*Client]bool

	// Broadcast канал для отправки сообщений всем клиентам
	broadcast chan []byte

	// Регистрация нового клиента
	register chan *Client

	// Отмена регистрации клиента
	unregister chan *Client

	// Сигнал остановки главного цикла
	done chan struct{}

	stopOnce sync.Once

	// Счётчик сообщений, отброшенных при переполнении broadcast канала
	dropped atomic.Int64

	log *utils.Logger

	// Mutex для потокобезопасного доступа к clients
	mu sync.RWMutex
}

// NewHub создает новый Hub
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		log:        utils.GetGlobalLogger().WithComponent("websocket"),
	}
}

// Run запускает главный цикл Hub
//
// Должен запускаться в отдельной горутине: go hub.Run()
// Обрабатывает регистрацию, отмену регистрации и broadcast.
// Завершается по Stop().
func (h *Hub) Run() {
	for {
		select {
		case <-h.done:
			h.mu.Lock()
			for client := range h.clients {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mu.Unlock()
			h.log.Info("Client connected", zap.Int("total", total))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			total := len(h.clients)
			h.mu.Unlock()
			h.log.Info("Client disconnected", zap.Int("total", total))

		case message := <-h.broadcast:
			// Копируем список клиентов под коротким RLock: отправка
			// не должна блокировать register/unregister
			h.mu.RLock()
			clients := make([]*Client, 0, len(h.clients))
			for client := range h.clients {
				clients = append(clients, client)
			}
			h.mu.RUnlock()

			var toRemove []*Client
			for _, client := range clients {
				select {
				case client.send <- message:
				default:
					// Клиент не успевает читать - помечаем для удаления
					toRemove = append(toRemove, client)
				}
			}

			if len(toRemove) > 0 {
				h.mu.Lock()
				for _, client := range toRemove {
					if _, ok := h.clients[client]; ok {
						delete(h.clients, client)
						close(client.send)
					}
				}
				total := len(h.clients)
				h.mu.Unlock()
				h.log.Warn("Removed slow clients",
					zap.Int("removed", len(toRemove)),
					zap.Int("total", total))
			}
		}
	}
}

// Stop останавливает главный цикл и закрывает все соединения.
// Повторные вызовы безопасны.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() {
		close(h.done)
	})
}

// Broadcast сериализует сообщение и отправляет его всем клиентам.
// Использует sync.Pool для буферов и jsoniter для сериализации.
func (h *Hub) Broadcast(message interface{}) {
	buf := jsonBufferPool.Get().(*bytes.Buffer)
	buf.Reset()

	if err := jsonFast.NewEncoder(buf).Encode(message); err != nil {
		h.log.Error("Failed to marshal broadcast message", zap.Error(err))
		jsonBufferPool.Put(buf)
		return
	}

	// Убираем trailing newline от Encode
	data := buf.Bytes()
	if len(data) > 0 && data[len(data)-1] == '\n' {
		data = data[:len(data)-1]
	}

	// Копируем данные, буфер вернётся в пул
	msgCopy := make([]byte, len(data))
	copy(msgCopy, data)
	jsonBufferPool.Put(buf)

	h.BroadcastRaw(msgCopy)
}

// BroadcastRaw отправляет уже сериализованное сообщение.
// Неблокирующий: при переполнении канала сообщение отбрасывается,
// события движка не должны ждать медленную ленту.
func (h *Hub) BroadcastRaw(message []byte) {
	select {
	case h.broadcast <- message:
	case <-h.done:
	default:
		h.dropped.Add(1)
	}
}

// BroadcastNotification отправляет уведомление операторской ленты.
// Реализует service.NotificationBroadcaster.
func (h *Hub) BroadcastNotification(notif *models.Notification) {
	h.Broadcast(NewNotificationMessage(notif))
}

// ClientCount возвращает количество подключенных клиентов
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// DroppedMessages возвращает число сообщений, отброшенных при переполнении
func (h *Hub) DroppedMessages() int64 {
	return h.dropped.Load()
}
