// Copyright 2020, Chef.  All rights reserved.
// https://github.com/q191201771/lal
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package base

import (
	"fmt"
	"math"
)

// NoTimestamp 时间戳未知
const NoTimestamp int64 = math.MinInt64

type MediaKind int

const (
	MediaKindUnknown MediaKind = iota
	MediaKindAudio
	MediaKindVideo
	MediaKindText
)

func (k MediaKind) ReadableString() string {
	switch k {
	case MediaKindAudio:
		return "audio"
	case MediaKindVideo:
		return "video"
	case MediaKindText:
		return "text"
	}
	return "unknown"
}

// DiscontinuityType 是位掩码，时间类和格式类可以同时存在
type DiscontinuityType uint32

const (
	DiscontinuityNone         DiscontinuityType = 0
	DiscontinuityTime         DiscontinuityType = 1
	DiscontinuityAudioFormat  DiscontinuityType = 2
	DiscontinuityVideoFormat  DiscontinuityType = 4
	DiscontinuityAbsoluteTime DiscontinuityType = 8
	DiscontinuityTimeOffset   DiscontinuityType = 16

	DiscontinuitySeek         = DiscontinuityTime
	DiscontinuityFormatChange = DiscontinuityAudioFormat | DiscontinuityVideoFormat
	DiscontinuityFormatOnly   = DiscontinuityFormatChange
)

// IsFormatChangeFor 该discontinuity对于kind类型的track是否意味着格式变化
func (d DiscontinuityType) IsFormatChangeFor(kind MediaKind) bool {
	switch kind {
	case MediaKindAudio:
		return d&DiscontinuityAudioFormat != 0
	case MediaKindVideo:
		return d&DiscontinuityVideoFormat != 0
	}
	return false
}

// DiscontinuityExtra discontinuity附带的信息
type DiscontinuityExtra struct {
	// MediaTimeUs seek时，实际seek到的时间点。没有时为 NoTimestamp
	MediaTimeUs int64
}

// AccessUnit
//
// 一个基本流中可独立解码的单元（比如一帧视频，一个AAC帧）。
//
// 由 tsparser 创建，push进 trackqueue 后由队列独占，dequeue时所有权转移给调用方。
//
// 当 Discontinuity 不为 DiscontinuityNone 时，该对象是一个discontinuity标记，不携带数据。
type AccessUnit struct {
	Payload []byte
	TimeUs  int64 // 单位微秒，未知时为 NoTimestamp
	IsSync  bool  // 是否可作为解码起点，比如视频关键帧
	Damaged bool  // 数据不完整，比如continuity_counter不连续。队列会直接丢弃

	// Format 不为nil时，表示从该单元开始格式发生变化
	Format *Format

	Discontinuity DiscontinuityType
	Extra         *DiscontinuityExtra
}

// AccessUnitMeta 不包含数据的AccessUnit信息快照
type AccessUnitMeta struct {
	TimeUs     int64
	DurationUs int64 // 推测的单帧时长，未知时为0
	IsSync     bool
}

func NewDiscontinuityAccessUnit(typ DiscontinuityType, extra *DiscontinuityExtra) *AccessUnit {
	return &AccessUnit{
		TimeUs:        NoTimestamp,
		Discontinuity: typ,
		Extra:         extra,
	}
}

func (au *AccessUnit) IsDiscontinuity() bool {
	return au.Discontinuity != DiscontinuityNone
}

func (au *AccessUnit) HasTime() bool {
	return au.TimeUs != NoTimestamp
}

func (au *AccessUnit) DebugString() string {
	if au.IsDiscontinuity() {
		return fmt.Sprintf("discontinuity(%d)", au.Discontinuity)
	}
	return fmt.Sprintf("au(time=%d, sync=%t, len=%d)", au.TimeUs, au.IsSync, len(au.Payload))
}
