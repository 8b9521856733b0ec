// Copyright 2021, Chef.  All rights reserved.
// https://github.com/q191201771/lal
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package base

import (
	"github.com/q191201771/naza/pkg/mock"
	"github.com/q191201771/naza/pkg/nazalog"
)

var Log = nazalog.GetGlobalLogger()

// Clock 所有读取物理时间的地方都通过它
var Clock = mock.NewStdClock()

// TsPacketSize 固定的transport packet大小
const TsPacketSize = 188

// SyncByte transport packet的首字节
const SyncByte = 0x47
