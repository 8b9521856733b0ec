// Copyright 2022, Chef.  All rights reserved.
// https://github.com/q191201771/lal
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package datasource

import (
	"io"
	"sync"
	"time"

	"github.com/q191201771/tsextractor/pkg/base"
)

type LiveSourceOption struct {
	// ReadTimeoutMs ReadAt 等待数据的最长时间，为0表示一直等待
	ReadTimeoutMs int

	// MaxBufferSize 缓存超过该大小时淘汰最老的一半数据，为0表示不淘汰
	MaxBufferSize int
}

var defaultLiveSourceOption = LiveSourceOption{
	ReadTimeoutMs: 10000,
	MaxBufferSize: 64 * 1024 * 1024,
}

type ModLiveSourceOption func(option *LiveSourceOption)

// LiveSource 数据由外部持续写入（比如从网络接收），读取方按偏移读取，数据不够时阻塞等待
type LiveSource struct {
	option LiveSourceOption

	mu         sync.Mutex
	data       []byte
	baseOffset int64 // data[0] 在整个流中的偏移
	closeErr   error
	notify     chan struct{}
}

func NewLiveSource(modOptions ...ModLiveSourceOption) *LiveSource {
	option := defaultLiveSourceOption
	for _, fn := range modOptions {
		fn(&option)
	}
	return &LiveSource{
		option: option,
		notify: make(chan struct{}),
	}
}

// Write 追加数据，唤醒等待中的读取方
func (l *LiveSource) Write(b []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closeErr != nil {
		return 0, base.ErrSourceDisposed
	}
	l.data = append(l.data, b...)
	if l.option.MaxBufferSize > 0 && len(l.data) > l.option.MaxBufferSize {
		evict := len(l.data) / 2
		Log.Warnf("live source buffer full, evict. size=%d, evict=%d, base=%d", len(l.data), evict, l.baseOffset)
		l.data = append([]byte(nil), l.data[evict:]...)
		l.baseOffset += int64(evict)
	}
	l.wakeup()
	return len(b), nil
}

// ReadFrom 持续从r读取数据直到出错，r读完后关闭该源
func (l *LiveSource) ReadFrom(r io.Reader) (int64, error) {
	var total int64
	buf := make([]byte, 1316)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			if _, werr := l.Write(buf[:n]); werr != nil {
				return total, werr
			}
			total += int64(n)
		}
		if err != nil {
			if err == io.EOF {
				l.CloseWithError(nil)
				return total, nil
			}
			l.CloseWithError(err)
			return total, err
		}
	}
}

// CloseWithError 之后的读取，数据读完时返回err。err为nil时使用 io.EOF
func (l *LiveSource) CloseWithError(err error) {
	if err == nil {
		err = io.EOF
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closeErr != nil {
		return
	}
	l.closeErr = err
	l.wakeup()
}

func (l *LiveSource) ReadAt(p []byte, off int64) (int, error) {
	var timeout <-chan time.Time
	if l.option.ReadTimeoutMs > 0 {
		timer := time.NewTimer(time.Duration(l.option.ReadTimeoutMs) * time.Millisecond)
		defer timer.Stop()
		timeout = timer.C
	}

	for {
		l.mu.Lock()
		if off < l.baseOffset {
			l.mu.Unlock()
			return 0, base.ErrDataEvicted
		}
		end := l.baseOffset + int64(len(l.data))
		if off+int64(len(p)) <= end || l.closeErr != nil {
			var n int
			if off < end {
				n = copy(p, l.data[off-l.baseOffset:])
			}
			closeErr := l.closeErr
			l.mu.Unlock()
			if n < len(p) {
				return n, closeErr
			}
			return n, nil
		}
		notify := l.notify
		l.mu.Unlock()

		select {
		case <-notify:
		case <-timeout:
			return 0, base.ErrReadTimeout
		}
	}
}

func (l *LiveSource) Size() (int64, error) {
	return 0, base.ErrSizeUnknown
}

// Buffered 当前已经写入的总字节数
func (l *LiveSource) Buffered() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.baseOffset + int64(len(l.data))
}

// 调用方持有锁
func (l *LiveSource) wakeup() {
	close(l.notify)
	l.notify = make(chan struct{})
}
