package tracex

import (
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"
)

// entry span 为 nil 表示已占位、创建中，对读不可见。
// ready 在创建结束（commit 或 release）时关闭
type entry struct {
	span    trace.Span
	started time.Time
	ready   chan struct{}

	// 创建中被 teardown 摘掉时记下的结果，commit 时交还给创建方
	ended  bool
	endErr error
}

// registry 请求 -> 在途 span，同一个 RequestID 至多一条
type registry struct {
	mu      sync.Mutex
	entries map[RequestID]*entry
}

func newRegistry() *registry {
	return &registry{entries: make(map[RequestID]*entry)}
}

// reserve 不存在时占位并返回 true；已存在（含创建中）返回 false
func (r *registry) reserve(id RequestID, now time.Time) (*entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[id]; ok {
		return nil, false
	}
	e := &entry{started: now, ready: make(chan struct{})}
	r.entries[id] = e
	return e, true
}

// commit 把 span 填进占位。占位已被 teardown 摘掉时返回 false 和 teardown 的错误，
// span 归调用方结束
func (r *registry) commit(id RequestID, e *entry, span trace.Span) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	defer close(e.ready)
	if e.ended || r.entries[id] != e {
		return false, e.endErr
	}
	e.span = span
	return true, nil
}

// release 放弃占位（没能创建出 span）
func (r *registry) release(id RequestID, e *entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	defer close(e.ready)
	if r.entries[id] == e {
		delete(r.entries, id)
	}
}

func (r *registry) load(id RequestID) (trace.Span, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok || e.span == nil {
		return nil, false
	}
	return e.span, true
}

// wait 同 load，但命中占位时等创建结束再取
func (r *registry) wait(id RequestID) (trace.Span, bool) {
	r.mu.Lock()
	e, ok := r.entries[id]
	r.mu.Unlock()
	if !ok {
		return nil, false
	}
	<-e.ready
	return r.load(id)
}

// remove 删除并返回 span。命中占位时也删除并记下 err，返回 false
func (r *registry) remove(id RequestID, err error) (trace.Span, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		return nil, false
	}
	delete(r.entries, id)
	if e.span == nil {
		e.ended, e.endErr = true, err
		return nil, false
	}
	return e.span, true
}

// removeOlder 摘掉 started 早于 deadline 的已提交 span
func (r *registry) removeOlder(deadline time.Time) []trace.Span {
	return r.take(func(e *entry) bool { return e.started.Before(deadline) })
}

// drain 摘掉全部已提交 span
func (r *registry) drain() []trace.Span {
	return r.take(func(*entry) bool { return true })
}

func (r *registry) take(match func(*entry) bool) []trace.Span {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []trace.Span
	for id, e := range r.entries {
		if e.span == nil || !match(e) {
			continue
		}
		delete(r.entries, id)
		out = append(out, e.span)
	}
	return out
}

func (r *registry) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.entries {
		if e.span != nil {
			n++
		}
	}
	return n
}
