// Copyright 2021, Chef.  All rights reserved.
// https://github.com/q191201771/lal
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

// Package syncindex 单个track的时间戳到文件偏移的有序索引
//
// 非并发安全，由extractor的会话锁保护
package syncindex

import (
	"sort"

	"github.com/q191201771/tsextractor/pkg/base"
)

type SyncPoint struct {
	TimeUs int64
	Offset int64
}

type Option struct {
	// HighWater 索引条数上限
	HighWater int

	// TrimCount 达到上限时一次淘汰的条数
	TrimCount int
}

const DefaultHighWater = 327680

var defaultOption = Option{
	HighWater: DefaultHighWater,
	TrimCount: DefaultHighWater / 4,
}

type ModOption func(option *Option)

type Index struct {
	option Option
	points []SyncPoint
}

func New(modOptions ...ModOption) *Index {
	option := defaultOption
	for _, fn := range modOptions {
		fn(&option)
	}
	// 至少保留刚插入的那一条
	if option.HighWater < 2 {
		option.HighWater = 2
	}
	if option.TrimCount < 1 {
		option.TrimCount = 1
	}
	if option.TrimCount > option.HighWater-1 {
		option.TrimCount = option.HighWater - 1
	}
	return &Index{
		option: option,
	}
}

// Add 时间戳相同时覆盖offset
//
// 插入后条数达到上限时，淘汰离本次插入点较远的一端的 TrimCount 条
func (idx *Index) Add(timeUs int64, offset int64) {
	n := len(idx.points)
	if n == 0 || idx.points[n-1].TimeUs < timeUs {
		idx.points = append(idx.points, SyncPoint{TimeUs: timeUs, Offset: offset})
	} else {
		i := sort.Search(n, func(i int) bool {
			return idx.points[i].TimeUs >= timeUs
		})
		if idx.points[i].TimeUs == timeUs {
			idx.points[i].Offset = offset
			return
		}
		idx.points = append(idx.points, SyncPoint{})
		copy(idx.points[i+1:], idx.points[i:])
		idx.points[i] = SyncPoint{TimeUs: timeUs, Offset: offset}
	}

	if len(idx.points) >= idx.option.HighWater {
		idx.trim(timeUs)
	}
}

// Resolve 根据seek模式选择同步点
//
// 先找到第一个时间戳大于targetUs的位置，
// SeekNextSync 取该位置，超出末尾时取最后一个；
// 其他模式取前一个，在开头之前时取第一个。
//
// @return ok: 索引为空时为false
func (idx *Index) Resolve(targetUs int64, mode base.SeekMode) (sp SyncPoint, ok bool) {
	n := len(idx.points)
	if n == 0 {
		return sp, false
	}

	i := sort.Search(n, func(i int) bool {
		return idx.points[i].TimeUs > targetUs
	})

	switch mode {
	case base.SeekNextSync:
		if i == n {
			Log.Warnf("next sync not found, starting from the latest sync. target=%d", targetUs)
			i--
		}
	case base.SeekClosestSync, base.SeekClosest:
		Log.Warnf("closest mode is not supported, falling back to previous sync. mode=%s", mode.ReadableString())
		fallthrough
	default:
		if i == 0 {
			Log.Warnf("previous sync not found, starting from the earliest sync. target=%d", targetUs)
		} else {
			i--
		}
	}
	return idx.points[i], true
}

func (idx *Index) Len() int {
	return len(idx.points)
}

func (idx *Index) First() (SyncPoint, bool) {
	if len(idx.points) == 0 {
		return SyncPoint{}, false
	}
	return idx.points[0], true
}

func (idx *Index) Last() (SyncPoint, bool) {
	if len(idx.points) == 0 {
		return SyncPoint{}, false
	}
	return idx.points[len(idx.points)-1], true
}

func (idx *Index) Clear() {
	idx.points = nil
}

func (idx *Index) trim(timeUs int64) {
	n := len(idx.points)
	count := idx.option.TrimCount
	if count > n {
		count = n
	}
	firstTimeUs := idx.points[0].TimeUs
	lastTimeUs := idx.points[n-1].TimeUs
	if timeUs-firstTimeUs > lastTimeUs-timeUs {
		idx.points = append(idx.points[:0], idx.points[count:]...)
		Log.Debugf("trim sync index head. count=%d, remain=%d", count, len(idx.points))
	} else {
		idx.points = idx.points[:n-count]
		Log.Debugf("trim sync index tail. count=%d, remain=%d", count, len(idx.points))
	}
}
