// Copyright 2022, Chef.  All rights reserved.
// https://github.com/q191201771/lal
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package extractor

import "github.com/q191201771/tsextractor/pkg/base"

// Observer extractor内部事件的回调
//
// 除 OnSeek 外都在持有会话锁时回调，实现方不要阻塞，也不要回调extractor
type Observer interface {
	OnTrackAdded(kind base.MediaKind, format *base.Format)

	// OnPacket 成功读取一个packet
	OnPacket(offset int64)

	// OnResync 在offset处丢失了packet对齐
	OnResync(offset int64)

	OnSyncPoint(kind base.MediaKind, timeUs int64, offset int64)

	OnSeek(targetUs int64, mode base.SeekMode, costMs int64, err error)
}

type defaultObserver struct{}

func (defaultObserver) OnTrackAdded(kind base.MediaKind, format *base.Format) {}
func (defaultObserver) OnPacket(offset int64) {}
func (defaultObserver) OnResync(offset int64) {}
func (defaultObserver) OnSyncPoint(kind base.MediaKind, timeUs int64, offset int64) {}
func (defaultObserver) OnSeek(targetUs int64, mode base.SeekMode, costMs int64, err error) {}
