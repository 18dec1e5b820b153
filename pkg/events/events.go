package events

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"pkt.systems/pslog"
)

type EventType string

const (
	RunStarted     EventType = "run.started"
	RunFinished    EventType = "run.finished"
	ViewChanged    EventType = "view.changed"
	SidebarToggled EventType = "view.sidebar"
	EditorResize   EventType = "editor.resize"
	SourceReloaded EventType = "source.reloaded"
	SystemMessage  EventType = "system.message"
)

type Event struct {
	ID        string
	Type      EventType
	RunID     string
	Timestamp time.Time
	Data      map[string]interface{}
}

// String returns a Data field as a string, or "" when absent.
func (e Event) String(key string) string {
	if e.Data == nil {
		return ""
	}
	if v, ok := e.Data[key].(string); ok {
		return v
	}
	return ""
}

type Handler func(event Event)

// WorkerPoolConfig holds configuration for the event bus worker pool
type WorkerPoolConfig struct {
	WorkerCount int // Number of worker goroutines (default: CPU cores, min 2)
	BufferSize  int // Channel buffer size (default: 256)

	// Logger receives handler panics. Nil logs to stderr.
	Logger pslog.Logger
}

// DefaultWorkerPoolConfig returns the default configuration
func DefaultWorkerPoolConfig() WorkerPoolConfig {
	workers := runtime.NumCPU()
	if workers < 2 {
		workers = 2
	}
	return WorkerPoolConfig{
		WorkerCount: workers,
		BufferSize:  256,
	}
}

type eventTask struct {
	event   Event
	handler Handler
}

type EventBus struct {
	handlers   map[EventType][]Handler
	mu         sync.RWMutex
	workerPool chan eventTask
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	config     WorkerPoolConfig
	logger     pslog.Logger
}

func NewEventBus() *EventBus {
	return NewEventBusWithConfig(DefaultWorkerPoolConfig())
}

func NewEventBusWithConfig(config WorkerPoolConfig) *EventBus {
	if config.WorkerCount <= 0 {
		config.WorkerCount = 1
	}
	if config.BufferSize < 0 {
		config.BufferSize = 0
	}
	logger := config.Logger
	if logger == nil {
		logger = pslog.NewWithOptions(os.Stderr, pslog.Options{Mode: pslog.ModeConsole})
	}
	ctx, cancel := context.WithCancel(context.Background())

	eb := &EventBus{
		handlers:   make(map[EventType][]Handler),
		workerPool: make(chan eventTask, config.BufferSize),
		ctx:        ctx,
		cancel:     cancel,
		config:     config,
		logger:     logger,
	}

	for i := 0; i < config.WorkerCount; i++ {
		eb.wg.Add(1)
		go eb.worker()
	}

	return eb
}

// worker processes events from the worker pool
func (eb *EventBus) worker() {
	defer eb.wg.Done()

	for {
		select {
		case task := <-eb.workerPool:
			eb.run(task)
		case <-eb.ctx.Done():
			return
		}
	}
}

func (eb *EventBus) run(task eventTask) {
	defer func() {
		if r := recover(); r != nil {
			eb.logger.Error("event handler panic",
				"event", string(task.event.Type),
				"panic", fmt.Sprint(r),
			)
		}
	}()
	task.handler(task.event)
}

func (eb *EventBus) Subscribe(eventType EventType, handler Handler) {
	if eb == nil {
		return
	}
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.handlers[eventType] = append(eb.handlers[eventType], handler)
}

// Publish stamps the event and hands it to every subscriber of its type.
// Handlers run on the worker pool; a saturated pool falls back to a
// dedicated goroutine so Publish never blocks the caller.
func (eb *EventBus) Publish(event Event) {
	if eb == nil {
		return
	}
	event.Timestamp = time.Now()
	event.ID = uuid.NewString()

	eb.mu.RLock()
	handlers := eb.handlers[event.Type]
	eb.mu.RUnlock()

	for _, handler := range handlers {
		task := eventTask{
			event:   event,
			handler: handler,
		}

		select {
		case eb.workerPool <- task:
		default:
			go eb.run(task)
		}
	}
}

// Shutdown stops the worker pool and waits for workers to exit.
func (eb *EventBus) Shutdown() {
	eb.cancel()
	eb.wg.Wait()
}
