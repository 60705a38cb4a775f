package utils

import (
	"context"
	"errors"
	"sync"
	"time"
)

// RateLimiter ホスト別にリクエスト間隔を制限する
type RateLimiter struct {
	interval time.Duration

	mu     sync.Mutex
	hosts  map[string]*hostQueue
	closed bool
}

// hostQueue 特定ホストのリクエストキュー
type hostQueue struct {
	jobs chan *job
	done chan struct{}
}

type job struct {
	ctx context.Context
	run func(skip error)
}

// NewRateLimiter rps リクエスト/秒のリミッターを作成（0以下なら3）
func NewRateLimiter(rps int) *RateLimiter {
	if rps <= 0 {
		rps = 3
	}
	return &RateLimiter{
		interval: time.Second / time.Duration(rps),
		hosts:    make(map[string]*hostQueue),
	}
}

// Interval 1リクエストあたりの最小間隔
func (rl *RateLimiter) Interval() time.Duration { return rl.interval }

// Do fn をホストのキューに積み、順番が来たら実行して結果を返す
func Do[T any](ctx context.Context, rl *RateLimiter, host string, fn func() (T, error)) (T, error) {
	var zero T
	if rl == nil {
		return fn()
	}
	q, err := rl.queue(host)
	if err != nil {
		return zero, err
	}

	var (
		val  T
		ferr error
	)
	finished := make(chan struct{})
	j := &job{ctx: ctx, run: func(skip error) {
		defer close(finished)
		if skip != nil {
			ferr = skip
			return
		}
		val, ferr = fn()
	}}

	select {
	case q.jobs <- j:
	case <-ctx.Done():
		return zero, ctx.Err()
	case <-q.done:
		return zero, ErrLimiterClosed
	}

	select {
	case <-finished:
		return val, ferr
	case <-ctx.Done():
		return zero, ctx.Err()
	case <-q.done:
		return zero, ErrLimiterClosed
	}
}

// ErrLimiterClosed Close 後に Do が呼ばれた
var ErrLimiterClosed = errors.New("rate limiter closed")

func (rl *RateLimiter) queue(host string) (*hostQueue, error) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	if rl.closed {
		return nil, ErrLimiterClosed
	}
	if q, ok := rl.hosts[host]; ok {
		return q, nil
	}
	q := &hostQueue{jobs: make(chan *job, 100), done: make(chan struct{})}
	rl.hosts[host] = q
	go rl.worker(q)
	return q, nil
}

// worker 前回の実行から interval 以上あけて1件ずつ処理する
func (rl *RateLimiter) worker(q *hostQueue) {
	var last time.Time
	for {
		select {
		case j := <-q.jobs:
			if err := j.ctx.Err(); err != nil {
				j.run(err)
				continue
			}
			if wait := rl.interval - time.Since(last); !last.IsZero() && wait > 0 {
				t := time.NewTimer(wait)
				select {
				case <-t.C:
				case <-j.ctx.Done():
					t.Stop()
					j.run(j.ctx.Err())
					continue
				case <-q.done:
					t.Stop()
					j.run(ErrLimiterClosed)
					return
				}
			}
			j.run(nil)
			last = time.Now()
		case <-q.done:
			return
		}
	}
}

// Close すべてのワーカーを停止
func (rl *RateLimiter) Close() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	if rl.closed {
		return
	}
	rl.closed = true
	for _, q := range rl.hosts {
		close(q.done)
	}
	rl.hosts = nil
}
