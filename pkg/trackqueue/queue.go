// Copyright 2021, Chef.  All rights reserved.
// https://github.com/q191201771/lal
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

// Package trackqueue 单个基本流的AccessUnit缓存队列
//
// 生产者（tsparser）push，单个消费者（track的读取方）阻塞式dequeue
package trackqueue

import (
	"sync"

	"github.com/q191201771/tsextractor/pkg/base"
)

const (
	// 缓存跨度首次超过该值时估算码率
	estimateSpanUs = int64(2000000)

	// IsFinished 判断时允许的误差
	finishToleranceUs = int64(100000)
)

type Queue struct {
	uniqueKey string
	kind      base.MediaKind

	mu   sync.Mutex
	cond *sync.Cond

	units   []*base.AccessUnit
	enabled bool

	// finalResult 为nil表示还可能有数据到来
	finalResult error

	pendingDiscontinuities int
	format                 *base.Format

	lastQueuedTimeUs     int64
	estimatedBytesPerSec int64

	latestEnqueued *base.AccessUnitMeta
	latestDequeued *base.AccessUnitMeta
}

func New(kind base.MediaKind, format *base.Format) *Queue {
	q := &Queue{
		uniqueKey: base.GenUkTrack(),
		kind:      kind,
		enabled:   true,
		format:    format,
	}
	q.cond = sync.NewCond(&q.mu)
	Log.Debugf("[%s] lifecycle new track queue. kind=%s", q.uniqueKey, kind.ReadableString())
	return q
}

func (q *Queue) UniqueKey() string {
	return q.uniqueKey
}

func (q *Queue) Kind() base.MediaKind {
	return q.kind
}

// Push
//
// 标记为Damaged的AccessUnit直接丢弃。
// push之后，队列拥有au
func (q *Queue) Push(au *base.AccessUnit) {
	if au.Damaged {
		Log.Debugf("[%s] drop damaged access unit. time=%d", q.uniqueKey, au.TimeUs)
		return
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if au.IsDiscontinuity() {
		q.lastQueuedTimeUs = 0
		q.finalResult = nil
		q.latestEnqueued = nil
		if q.enabled {
			q.units = append(q.units, au)
			q.pendingDiscontinuities++
			q.cond.Signal()
		}
		return
	}

	if !q.enabled {
		return
	}

	q.units = append(q.units, au)
	q.cond.Signal()

	if !au.HasTime() {
		return
	}
	q.lastQueuedTimeUs = au.TimeUs
	q.updateLatestEnqueuedMeta(au)

	if q.estimatedBytesPerSec == 0 {
		q.bufferedDurationUs()
	}
}

// PushDiscontinuity
//
// @param discard: 为true时丢弃队列中所有非discontinuity的数据
//
// typ为 base.DiscontinuityNone 时，只做重置，不插入标记
func (q *Queue) PushDiscontinuity(typ base.DiscontinuityType, extra *base.DiscontinuityExtra, discard bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if discard {
		kept := q.units[:0]
		for _, au := range q.units {
			if au.IsDiscontinuity() {
				kept = append(kept, au)
			}
		}
		for i := len(kept); i < len(q.units); i++ {
			q.units[i] = nil
		}
		q.units = kept
	}

	q.finalResult = nil
	q.lastQueuedTimeUs = 0
	q.latestEnqueued = nil

	if typ == base.DiscontinuityNone {
		return
	}
	if !q.enabled {
		return
	}

	Log.Debugf("[%s] queue discontinuity. type=%d, discard=%t", q.uniqueKey, typ, discard)
	q.pendingDiscontinuities++
	q.units = append(q.units, base.NewDiscontinuityAccessUnit(typ, extra))
	q.cond.Signal()
}

// Dequeue 阻塞直到有数据或者终止
//
// @return 正常数据时err为nil；
//
//	队首为discontinuity标记时，返回该标记，且err为 base.ErrDiscontinuity；
//	队列为空且已终止时，返回nil以及终止原因
func (q *Queue) Dequeue() (*base.AccessUnit, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.finalResult == nil && len(q.units) == 0 {
		q.cond.Wait()
	}

	if len(q.units) == 0 {
		return nil, q.finalResult
	}
	return q.dequeueLocked()
}

// TryDequeue 与 Dequeue 相同，但不阻塞。队列为空时，还可能有数据到来则返回 base.ErrWouldBlock
func (q *Queue) TryDequeue() (*base.AccessUnit, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.units) == 0 {
		if q.finalResult != nil {
			return nil, q.finalResult
		}
		return nil, base.ErrWouldBlock
	}
	return q.dequeueLocked()
}

// Peek 不阻塞，返回队首元素但不移除。队列为空时返回nil
func (q *Queue) Peek() *base.AccessUnit {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.units) == 0 {
		return nil
	}
	return q.units[0]
}

// HasAvailable
//
// @return err: 还可能有数据到来时为nil，否则为终止原因
func (q *Queue) HasAvailable() (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.enabled && len(q.units) != 0 {
		return true, nil
	}
	return false, q.finalResult
}

// SignalEndOfStream 唤醒所有阻塞在 Dequeue 上的调用方
//
// @param result: 不能为nil，正常结束时使用 base.ErrEndOfStream
func (q *Queue) SignalEndOfStream(result error) {
	if result == nil {
		Log.Panicf("[%s] signal end of stream with nil result", q.uniqueKey)
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	Log.Debugf("[%s] signal end of stream. result=%+v", q.uniqueKey, result)
	q.finalResult = result
	q.cond.Broadcast()
}

// BufferedDurationUs 缓存数据覆盖的时长
//
// discontinuity前后的时间戳不可比较，分段累加
func (q *Queue) BufferedDurationUs() (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.bufferedDurationUs(), q.finalResult
}

// NextTimeUs 队首AccessUnit的时间戳
//
// 队列为空时，还可能有数据到来则返回 base.ErrWouldBlock ，否则返回终止原因。
// 队首为discontinuity标记时返回 base.ErrDiscontinuity
func (q *Queue) NextTimeUs() (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.units) == 0 {
		if q.finalResult != nil {
			return base.NoTimestamp, q.finalResult
		}
		return base.NoTimestamp, base.ErrWouldBlock
	}
	if q.units[0].IsDiscontinuity() {
		return base.NoTimestamp, base.ErrDiscontinuity
	}
	return q.units[0].TimeUs, nil
}

// Clear 清空数据，恢复到初始状态，保留enable状态
func (q *Queue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.units = nil
	q.finalResult = nil
	q.pendingDiscontinuities = 0
	q.format = nil
	q.lastQueuedTimeUs = 0
	q.latestEnqueued = nil
	q.latestDequeued = nil
}

// Enable 关闭后，push进来的数据以及discontinuity标记直接丢弃，且 HasAvailable 总是返回false
func (q *Queue) Enable(enabled bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.enabled = enabled
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.units)
}

func (q *Queue) PendingDiscontinuities() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.pendingDiscontinuities
}

func (q *Queue) Format() *base.Format {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.format
}

func (q *Queue) SetFormat(format *base.Format) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.format = format
}

// LatestEnqueuedMeta 最后入队的AccessUnit信息，DurationUs为推测的帧间隔。没有时返回nil
func (q *Queue) LatestEnqueuedMeta() *base.AccessUnitMeta {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.latestEnqueued == nil {
		return nil
	}
	m := *q.latestEnqueued
	return &m
}

func (q *Queue) LatestDequeuedMeta() *base.AccessUnitMeta {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.latestDequeued == nil {
		return nil
	}
	m := *q.latestDequeued
	return &m
}

func (q *Queue) LastQueuedTimeUs() int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.lastQueuedTimeUs
}

// EstimatedBytesPerSec 为0表示还没有估算出来
func (q *Queue) EstimatedBytesPerSec() int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.estimatedBytesPerSec
}

// IsFinished 最后入队的时间戳接近durationUs，或者已经终止
func (q *Queue) IsFinished(durationUs int64) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if durationUs > 0 {
		diff := durationUs - q.lastQueuedTimeUs
		if diff < finishToleranceUs && diff > -finishToleranceUs {
			return true
		}
	}
	return q.finalResult != nil
}

// ----- private -------------------------------------------------------------------------------------------------------

func (q *Queue) dequeueLocked() (*base.AccessUnit, error) {
	au := q.popFront()
	if au.IsDiscontinuity() {
		if au.Discontinuity.IsFormatChangeFor(q.kind) {
			q.format = nil
		}
		q.pendingDiscontinuities--
		return au, base.ErrDiscontinuity
	}

	q.latestDequeued = &base.AccessUnitMeta{
		TimeUs: au.TimeUs,
		IsSync: au.IsSync,
	}
	if au.Format != nil {
		q.format = au.Format
	}
	return au, nil
}

func (q *Queue) popFront() *base.AccessUnit {
	au := q.units[0]
	q.units[0] = nil
	q.units = q.units[1:]
	return au
}

// 调用方持有锁
func (q *Queue) updateLatestEnqueuedMeta(au *base.AccessUnit) {
	if q.latestEnqueued == nil {
		q.latestEnqueued = &base.AccessUnitMeta{
			TimeUs: au.TimeUs,
			IsSync: au.IsSync,
		}
		return
	}

	latestTimeUs := q.latestEnqueued.TimeUs
	if au.TimeUs > latestTimeUs {
		q.latestEnqueued = &base.AccessUnitMeta{
			TimeUs:     au.TimeUs,
			DurationUs: au.TimeUs - latestTimeUs,
			IsSync:     au.IsSync,
		}
	} else if q.latestEnqueued.DurationUs == 0 {
		// B帧
		q.latestEnqueued.DurationUs = latestTimeUs - au.TimeUs
	}
}

// 调用方持有锁
func (q *Queue) bufferedDurationUs() int64 {
	var (
		durationUs int64
		bytes      int64
		minTimeUs  = base.NoTimestamp
		maxTimeUs  = base.NoTimestamp
	)
	for _, au := range q.units {
		if au.IsDiscontinuity() {
			if minTimeUs != base.NoTimestamp {
				durationUs += maxTimeUs - minTimeUs
			}
			minTimeUs = base.NoTimestamp
			maxTimeUs = base.NoTimestamp
			continue
		}
		bytes += int64(len(au.Payload))
		if !au.HasTime() {
			continue
		}
		if minTimeUs == base.NoTimestamp || au.TimeUs < minTimeUs {
			minTimeUs = au.TimeUs
		}
		if maxTimeUs == base.NoTimestamp || au.TimeUs > maxTimeUs {
			maxTimeUs = au.TimeUs
		}
	}
	if minTimeUs != base.NoTimestamp {
		durationUs += maxTimeUs - minTimeUs
	}

	if q.estimatedBytesPerSec == 0 && durationUs > estimateSpanUs {
		q.estimatedBytesPerSec = bytes / 2
		Log.Debugf("[%s] estimated bytes per sec. value=%d", q.uniqueKey, q.estimatedBytesPerSec)
	}
	return durationUs
}
