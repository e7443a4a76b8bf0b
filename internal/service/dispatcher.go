package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"synxronmarket/internal/metrics"
)

const (
	defaultDispatcherWorkers = 4
	defaultDispatcherQueue   = 256
	defaultTaskTimeout       = 5 * time.Second
)

// Task фоновая задача. Результат не влияет на запрос, который ее поставил
type Task struct {
	Name string
	Run  func(ctx context.Context) error
}

// Dispatcher ограниченная очередь с пулом воркеров для задач "выстрелил и забыл"
type Dispatcher struct {
	tasks   chan Task
	timeout time.Duration
	log     *zap.Logger

	wg        sync.WaitGroup
	mu        sync.RWMutex
	closed    bool
	closeOnce sync.Once
}

func NewDispatcher(workers, queueSize int, timeout time.Duration, log *zap.Logger) *Dispatcher {
	if workers <= 0 {
		workers = defaultDispatcherWorkers
	}
	if queueSize <= 0 {
		queueSize = defaultDispatcherQueue
	}
	if timeout <= 0 {
		timeout = defaultTaskTimeout
	}

	d := &Dispatcher{
		tasks:   make(chan Task, queueSize),
		timeout: timeout,
		log:     log,
	}
	for i := 0; i < workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
	return d
}

// Dispatch ставит задачу в очередь. При заполненной очереди задача отбрасывается
func (d *Dispatcher) Dispatch(task Task) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		d.drop(task, "dispatcher closed")
		return false
	}
	select {
	case d.tasks <- task:
		return true
	default:
		d.drop(task, "queue full")
		return false
	}
}

// Close прекращает прием задач и дожидается выполнения поставленных
func (d *Dispatcher) Close() {
	d.closeOnce.Do(func() {
		d.mu.Lock()
		d.closed = true
		close(d.tasks)
		d.mu.Unlock()
	})
	d.wg.Wait()
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for task := range d.tasks {
		d.run(task)
	}
}

func (d *Dispatcher) run(task Task) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			metrics.BackgroundTaskFailuresTotal.WithLabelValues(task.Name).Inc()
			d.log.Error("background task panicked", zap.String("task", task.Name), zap.Any("panic", r))
		}
	}()

	if err := task.Run(ctx); err != nil {
		metrics.BackgroundTaskFailuresTotal.WithLabelValues(task.Name).Inc()
		d.log.Warn("background task failed", zap.String("task", task.Name), zap.Error(err))
	}
}

func (d *Dispatcher) drop(task Task, reason string) {
	metrics.BackgroundTaskFailuresTotal.WithLabelValues(task.Name).Inc()
	d.log.Warn("background task dropped", zap.String("task", task.Name), zap.String("reason", reason))
}
