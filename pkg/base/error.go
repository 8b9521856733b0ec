// Copyright 2021, Chef.  All rights reserved.
// https://github.com/q191201771/lal
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package base

import (
	"errors"
	"fmt"
)

// ----- 通用的 ---------------------------------------------------------------------------------------------------------

var (
	ErrShortBuffer = errors.New("tsextractor: buffer too short")

	// ErrEndOfStream 没有更多数据了，这不是一个错误，而是一个正常的终止状态
	ErrEndOfStream = errors.New("tsextractor: end of stream")

	ErrUnsupported = errors.New("tsextractor: unsupported")
)

// ----- pkg/aac -------------------------------------------------------------------------------------------------------

var ErrAac = errors.New("tsextractor.aac: fxxk")

// ----- pkg/h2645 -----------------------------------------------------------------------------------------------------

var ErrH2645 = errors.New("tsextractor.h2645: fxxk")

// ----- pkg/mpegts ----------------------------------------------------------------------------------------------------

var (
	ErrMpegts = errors.New("tsextractor.mpegts: fxxk")

	// ErrTsSyncByte packet的首字节不是0x47，也即丢失了对齐
	ErrTsSyncByte = errors.New("tsextractor.mpegts: sync byte not found")

	ErrTsMalformed = errors.New("tsextractor.mpegts: malformed")
)

func NewErrTsMalformed(format string, v ...interface{}) error {
	return fmt.Errorf("%w. %s", ErrTsMalformed, fmt.Sprintf(format, v...))
}

// ----- pkg/trackqueue ------------------------------------------------------------------------------------------------

var (
	// ErrDiscontinuity dequeue到的是一个discontinuity标记
	ErrDiscontinuity = errors.New("tsextractor.trackqueue: discontinuity")

	// ErrWouldBlock 队列为空，且还可能有数据到来
	ErrWouldBlock = errors.New("tsextractor.trackqueue: would block")
)

// ----- pkg/extractor -------------------------------------------------------------------------------------------------

var (
	ErrResyncTimeout = errors.New("tsextractor.extractor: resync timeout")
	ErrNoTrack       = errors.New("tsextractor.extractor: no track found")
)

func NewErrResyncTimeout(offset int64, costMs int64) error {
	return fmt.Errorf("%w. offset=%d, cost=%dms", ErrResyncTimeout, offset, costMs)
}

// ----- pkg/datasource ------------------------------------------------------------------------------------------------

var (
	// ErrSizeUnknown 直播类的数据源没有总大小
	ErrSizeUnknown    = errors.New("tsextractor.datasource: size unknown")
	ErrSourceDisposed = errors.New("tsextractor.datasource: disposed")
	ErrReadTimeout    = errors.New("tsextractor.datasource: read timeout")

	// ErrDataEvicted 要读取的数据已经被淘汰
	ErrDataEvicted = errors.New("tsextractor.datasource: data evicted")
)

// ----- pkg/srtsource -------------------------------------------------------------------------------------------------

var ErrSrt = errors.New("tsextractor.srtsource: fxxk")

// ---------------------------------------------------------------------------------------------------------------------
