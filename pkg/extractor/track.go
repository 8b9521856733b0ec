// Copyright 2022, Chef.  All rights reserved.
// https://github.com/q191201771/lal
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package extractor

import (
	"github.com/q191201771/tsextractor/pkg/base"
	"github.com/q191201771/tsextractor/pkg/syncindex"
	"github.com/q191201771/tsextractor/pkg/trackqueue"
)

type ReadOption struct {
	// SeekTimeUs 为 base.NoTimestamp 时不seek
	SeekTimeUs int64
	SeekMode   base.SeekMode
}

func NewSeekReadOption(timeUs int64, mode base.SeekMode) *ReadOption {
	return &ReadOption{
		SeekTimeUs: timeUs,
		SeekMode:   mode,
	}
}

// Track 一个基本流
//
// 每个Track同一时刻只允许一个读取方，不同Track可以在不同协程中并发读取
type Track struct {
	extractor *Extractor
	queue     *trackqueue.Queue

	// 加扰的流为nil
	index *syncindex.Index

	// 由extractor的会话锁保护
	durationUs int64
}

func (t *Track) UniqueKey() string {
	return t.queue.UniqueKey()
}

func (t *Track) Kind() base.MediaKind {
	return t.queue.Kind()
}

// Format 返回的是拷贝。格式还未确定（比如刚发生过格式变化）时返回nil
func (t *Track) Format() *base.Format {
	f := t.queue.Format()
	if f == nil {
		return nil
	}
	ret := f.Clone()
	t.extractor.mu.Lock()
	if ret.DurationUs == 0 {
		ret.DurationUs = t.durationUs
	}
	t.extractor.mu.Unlock()
	return ret
}

func (t *Track) IsSeekReference() bool {
	return t.extractor.SeekTrack() == t
}

// Read 读取下一个AccessUnit，数据不够时驱动extractor继续喂数据
//
// 只有seek参考track会响应opt中的seek请求，其他track忽略。
//
// @return 读到discontinuity标记时err为 base.ErrDiscontinuity ；
//
//	数据读完时为 base.ErrEndOfStream ；数据源出错时为该错误
func (t *Track) Read(opt *ReadOption) (*base.AccessUnit, error) {
	e := t.extractor
	if opt != nil && opt.SeekTimeUs != base.NoTimestamp && t.IsSeekReference() {
		if err := e.SeekTo(opt.SeekTimeUs, opt.SeekMode); err != nil {
			return nil, err
		}
	}

	if err := e.feedUntilBufferAvailable(t.queue); err != nil {
		return nil, err
	}
	return t.queue.Dequeue()
}
