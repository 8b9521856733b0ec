// Copyright 2022, Chef.  All rights reserved.
// https://github.com/q191201771/lal
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package tsparser

import (
	"fmt"

	"github.com/q191201771/tsextractor/pkg/base"
	"github.com/q191201771/tsextractor/pkg/trackqueue"
)

// SyncEvent 喂一个packet时，如果有同步帧被送入了某个track队列，通过SyncEvent带回
//
// 同一个packet最多带回一个同步帧
type SyncEvent struct {
	initOffset int64

	hasReturnedData bool
	offset          int64
	queue           *trackqueue.Queue
	timeUs          int64
}

// NewSyncEvent
//
// @param offset: 本次喂入的packet在数据源中的偏移
func NewSyncEvent(offset int64) *SyncEvent {
	return &SyncEvent{
		initOffset: offset,
		offset:     offset,
		timeUs:     base.NoTimestamp,
	}
}

func (e *SyncEvent) Reset() {
	e.hasReturnedData = false
	e.offset = e.initOffset
	e.queue = nil
	e.timeUs = base.NoTimestamp
}

func (e *SyncEvent) HasReturnedData() bool {
	return e.hasReturnedData
}

// InitOffset 创建时传入的packet偏移
func (e *SyncEvent) InitOffset() int64 {
	return e.initOffset
}

// Offset 同步帧所在PES的第一个packet的偏移，从这里开始喂数据可以解出该同步帧
func (e *SyncEvent) Offset() int64 {
	return e.offset
}

// Queue 同步帧所属的track队列
func (e *SyncEvent) Queue() *trackqueue.Queue {
	return e.queue
}

func (e *SyncEvent) TimeUs() int64 {
	return e.timeUs
}

func (e *SyncEvent) DebugString() string {
	if !e.hasReturnedData {
		return fmt.Sprintf("[%p] init=%d, no data", e, e.initOffset)
	}
	return fmt.Sprintf("[%p] init=%d, offset=%d, time=%d, queue=%s", e, e.initOffset, e.offset, e.timeUs, e.queue.UniqueKey())
}

func (e *SyncEvent) init(offset int64, queue *trackqueue.Queue, timeUs int64) {
	e.hasReturnedData = true
	e.offset = offset
	e.queue = queue
	e.timeUs = timeUs
}
