// Copyright 2022, Chef.  All rights reserved.
// https://github.com/q191201771/lal
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

//go:build srt
// +build srt

package main

import (
	"context"

	"github.com/q191201771/tsextractor/pkg/datasource"
	"github.com/q191201771/tsextractor/pkg/srtsource"
)

func openSrtSource(ctx context.Context, input InputConfig) (datasource.DataSource, func(), error) {
	s := srtsource.New(func(option *srtsource.Option) {
		option.Host = input.SrtHost
		option.Port = input.SrtPort
		option.Listen = input.SrtListen
		option.StreamId = input.SrtStreamId
		option.LatencyMs = input.SrtLatencyMs
		option.LiveSourceOption.ReadTimeoutMs = input.ReadTimeoutMs
	})
	if err := s.Start(ctx); err != nil {
		_ = s.Dispose()
		return nil, nil, err
	}
	return s, func() { _ = s.Dispose() }, nil
}
