package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

var ErrStopped = errors.New("scheduler stopped")

// Ticker 周期触发源，time.Ticker 的可替换版本
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// Clock 创建 Ticker；测试中替换为手动触发的实现
type Clock interface {
	NewTicker(d time.Duration) Ticker
}

// RealClock 使用 time.Ticker
type RealClock struct{}

func (RealClock) NewTicker(d time.Duration) Ticker { return realTicker{time.NewTicker(d)} }

type realTicker struct{ t *time.Ticker }

func (r realTicker) C() <-chan time.Time { return r.t.C }
func (r realTicker) Stop()               { r.t.Stop() }

// Task 一个周期任务
type Task struct {
	Name      string
	Interval  time.Duration
	Immediate bool // 注册后立即执行一次
	Overlap   bool // 每次触发在独立 Goroutine 中执行，不等待上一次完成
	Run       func(ctx context.Context)
}

// Scheduler 持有所有周期任务的 ticker，Stop 时统一取消
type Scheduler struct {
	clock  Clock
	logger *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	stopped bool
}

func New(ctx context.Context, clock Clock, logger *zap.Logger) *Scheduler {
	ctx, cancel := context.WithCancel(ctx)
	return &Scheduler{
		clock:  clock,
		logger: logger.With(zap.String("component", "scheduler")),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Schedule 注册任务；ticker 在返回前已创建
func (s *Scheduler) Schedule(task Task) error {
	if task.Interval <= 0 {
		return errors.New("scheduler: interval must be positive")
	}
	if task.Run == nil {
		return errors.New("scheduler: nil task")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return ErrStopped
	}

	ticker := s.clock.NewTicker(task.Interval)
	s.wg.Add(1)
	go s.loop(task, ticker)

	s.logger.Info("Task scheduled",
		zap.String("task", task.Name),
		zap.Duration("interval", task.Interval),
		zap.Bool("immediate", task.Immediate))
	return nil
}

func (s *Scheduler) loop(task Task, ticker Ticker) {
	defer s.wg.Done()
	defer ticker.Stop()

	if task.Immediate {
		s.fire(task)
	}

	for {
		select {
		case <-s.ctx.Done():
			s.logger.Debug("Task stopped", zap.String("task", task.Name))
			return
		case <-ticker.C():
			s.fire(task)
		}
	}
}

func (s *Scheduler) fire(task Task) {
	if s.ctx.Err() != nil {
		return
	}
	if !task.Overlap {
		task.Run(s.ctx)
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		task.Run(s.ctx)
	}()
}

// Go 启动一个随调度器一起取消的后台 Goroutine (例如 WS 读循环)
func (s *Scheduler) Go(name string, fn func(ctx context.Context)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return ErrStopped
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn(s.ctx)
		s.logger.Debug("Background worker exited", zap.String("worker", name))
	}()
	return nil
}

// Stop 取消所有任务并等待正在执行的任务返回；可重复调用
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
	s.logger.Info("Scheduler stopped")
}
