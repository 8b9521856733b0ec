// Copyright 2021, Chef.  All rights reserved.
// https://github.com/q191201771/lal
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package base

type SeekMode int

const (
	SeekPreviousSync SeekMode = iota
	SeekNextSync
	SeekClosestSync
	SeekClosest
)

func (m SeekMode) ReadableString() string {
	switch m {
	case SeekPreviousSync:
		return "previous_sync"
	case SeekNextSync:
		return "next_sync"
	case SeekClosestSync:
		return "closest_sync"
	case SeekClosest:
		return "closest"
	}
	return "unknown"
}

// ParseSeekMode 与 ReadableString 对应，无法识别时返回 SeekPreviousSync
func ParseSeekMode(s string) SeekMode {
	switch s {
	case "next_sync":
		return SeekNextSync
	case "closest_sync":
		return SeekClosestSync
	case "closest":
		return SeekClosest
	}
	return SeekPreviousSync
}
