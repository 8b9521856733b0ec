// Copyright 2022, Chef.  All rights reserved.
// https://github.com/q191201771/lal
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

// Package srtsource 从srt连接接收transport stream，作为 datasource.DataSource 供extractor读取
//
// 依赖libsrt（cgo）
package srtsource

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/haivision/srtgo"
	"github.com/q191201771/naza/pkg/nazaatomic"
	"github.com/q191201771/naza/pkg/nazaerrors"
	"github.com/q191201771/tsextractor/pkg/base"
	"github.com/q191201771/tsextractor/pkg/datasource"
)

type Option struct {
	Host string
	Port uint16

	// Listen 为true时作为listener等待对端推流，否则作为caller主动连接对端
	Listen bool

	StreamId  string
	LatencyMs int

	ConnectTimeoutMs int

	LiveSourceOption datasource.LiveSourceOption
}

var defaultOption = Option{
	Host:             "127.0.0.1",
	Port:             6001,
	Listen:           false,
	LatencyMs:        120,
	ConnectTimeoutMs: 10000,
	LiveSourceOption: datasource.LiveSourceOption{
		ReadTimeoutMs: 10000,
		MaxBufferSize: 64 * 1024 * 1024,
	},
}

type ModOption func(option *Option)

// SrtSource 实现了 datasource.DataSource
type SrtSource struct {
	uniqueKey string
	option    Option

	live     *datasource.LiveSource
	listener *srtgo.SrtSocket
	socket   *srtgo.SrtSocket

	readBytes nazaatomic.Uint64
	disposed  nazaatomic.Bool
}

func New(modOptions ...ModOption) *SrtSource {
	option := defaultOption
	for _, fn := range modOptions {
		fn(&option)
	}
	s := &SrtSource{
		uniqueKey: base.GenUkSrtSource(),
		option:    option,
	}
	s.live = datasource.NewLiveSource(func(o *datasource.LiveSourceOption) {
		*o = option.LiveSourceOption
	})
	Log.Infof("[%s] lifecycle new srt source. option=%+v", s.uniqueKey, option)
	return s
}

// Start 建立连接（阻塞直到连接成功、失败或超时），成功后在后台接收数据
func (s *SrtSource) Start(ctx context.Context) error {
	ch := make(chan connectResult, 1)
	go func() {
		socket, err := s.connect()
		ch <- connectResult{socket, err}
	}()

	var timeout <-chan time.Time
	if !s.option.Listen && s.option.ConnectTimeoutMs > 0 {
		timer := time.NewTimer(time.Duration(s.option.ConnectTimeoutMs) * time.Millisecond)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case r := <-ch:
		if r.err != nil {
			return r.err
		}
		s.socket = r.socket
	case <-timeout:
		go drainConnect(ch)
		return fmt.Errorf("%w. connect timeout. host=%s, port=%d", base.ErrSrt, s.option.Host, s.option.Port)
	case <-ctx.Done():
		go drainConnect(ch)
		if s.listener != nil {
			s.listener.Close()
		}
		return ctx.Err()
	}

	Log.Infof("[%s] srt connected. host=%s, port=%d, listen=%t", s.uniqueKey, s.option.Host, s.option.Port, s.option.Listen)
	go s.runReadLoop(ctx)
	return nil
}

func (s *SrtSource) ReadAt(p []byte, off int64) (int, error) {
	return s.live.ReadAt(p, off)
}

func (s *SrtSource) Size() (int64, error) {
	return s.live.Size()
}

func (s *SrtSource) Dispose() error {
	if !s.disposed.CompareAndSwap(false, true) {
		return nil
	}
	Log.Infof("[%s] lifecycle dispose srt source. read bytes=%d", s.uniqueKey, s.readBytes.Load())
	s.live.CloseWithError(base.ErrSourceDisposed)
	if s.socket != nil {
		s.socket.Close()
	}
	if s.listener != nil {
		s.listener.Close()
	}
	return nil
}

func (s *SrtSource) UniqueKey() string {
	return s.uniqueKey
}

func (s *SrtSource) ReadBytes() uint64 {
	return s.readBytes.Load()
}

// ----- private -------------------------------------------------------------------------------------------------------

func (s *SrtSource) connect() (*srtgo.SrtSocket, error) {
	options := make(map[string]string)
	options["transtype"] = "live"
	options["latency"] = strconv.Itoa(s.option.LatencyMs)
	if s.option.StreamId != "" {
		options["streamid"] = s.option.StreamId
	}

	if s.option.Listen {
		s.listener = srtgo.NewSrtSocket(s.option.Host, s.option.Port, options)
		if s.listener == nil {
			return nil, nazaerrors.Wrap(base.ErrSrt)
		}
		if err := s.listener.Listen(1); err != nil {
			return nil, nazaerrors.Wrap(err)
		}
		socket, addr, err := s.listener.Accept()
		if err != nil {
			return nil, nazaerrors.Wrap(err)
		}
		Log.Infof("[%s] accept srt connection. addr=%s", s.uniqueKey, addr.String())
		return socket, nil
	}

	socket := srtgo.NewSrtSocket(s.option.Host, s.option.Port, options)
	if socket == nil {
		return nil, nazaerrors.Wrap(base.ErrSrt)
	}
	if err := socket.Connect(); err != nil {
		socket.Close()
		return nil, nazaerrors.Wrap(err)
	}
	return socket, nil
}

func (s *SrtSource) runReadLoop(ctx context.Context) {
	buf := make([]byte, 1500)
	for {
		if ctx.Err() != nil {
			s.live.CloseWithError(ctx.Err())
			break
		}
		n, err := s.socket.Read(buf)
		if n > 0 {
			s.readBytes.Add(uint64(n))
			if _, werr := s.live.Write(buf[:n]); werr != nil {
				break
			}
		}
		if err != nil {
			if errors.Is(err, srtgo.EConnLost) {
				Log.Infof("[%s] srt connection lost.", s.uniqueKey)
				s.live.CloseWithError(nil)
			} else {
				Log.Warnf("[%s] srt read failed. err=%+v", s.uniqueKey, err)
				s.live.CloseWithError(err)
			}
			break
		}
	}
	_ = s.Dispose()
}

type connectResult struct {
	socket *srtgo.SrtSocket
	err    error
}

// 超时后才连上的连接需要关闭
func drainConnect(ch <-chan connectResult) {
	if r := <-ch; r.socket != nil {
		r.socket.Close()
	}
}
