// Copyright 2022, Chef.  All rights reserved.
// https://github.com/q191201771/lal
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package base

import (
	"encoding/hex"
	"fmt"

	"github.com/q191201771/naza/pkg/nazabytes"
	"github.com/q191201771/naza/pkg/nazalog"
)

// LogDump 解析出错时，用于打印出错数据的内容
//
// 日志级别为trace时每次都打印，为debug时最多打印debugMaxNum次，其他级别不打印
type LogDump struct {
	log         nazalog.Logger
	debugMaxNum int

	debugCount int
}

func NewLogDump(log nazalog.Logger, debugMaxNum int) LogDump {
	return LogDump{
		log:         log,
		debugMaxNum: debugMaxNum,
	}
}

// ShouldDump 调用 Outf 或 OutHex 之前先判断，避免不打印时构造实参的开销
func (ld *LogDump) ShouldDump() bool {
	switch ld.log.GetOption().Level {
	case nazalog.LevelTrace:
		return true
	case nazalog.LevelDebug:
		if ld.debugCount >= ld.debugMaxNum {
			return false
		}
		ld.debugCount++
		return true
	}
	return false
}

func (ld *LogDump) Outf(format string, v ...interface{}) {
	ld.log.Out(ld.log.GetOption().Level, 3, fmt.Sprintf(format, v...))
}

// OutHex 以hex dump的形式打印b的前maxLen个字节
func (ld *LogDump) OutHex(uniqueKey string, name string, b []byte, maxLen int) {
	ld.log.Out(ld.log.GetOption().Level, 3,
		fmt.Sprintf("[%s] %s. len=%d, hex=\n%s", uniqueKey, name, len(b), hex.Dump(nazabytes.Prefix(b, maxLen))))
}
