// Copyright 2022, Chef.  All rights reserved.
// https://github.com/q191201771/lal
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

//go:build !srt
// +build !srt

package main

import (
	"context"
	"fmt"

	"github.com/q191201771/tsextractor/pkg/base"
	"github.com/q191201771/tsextractor/pkg/datasource"
)

// srt输入依赖libsrt，需要使用 -tags srt 编译
func openSrtSource(ctx context.Context, input InputConfig) (datasource.DataSource, func(), error) {
	return nil, nil, fmt.Errorf("%w. build with -tags srt to enable srt input", base.ErrUnsupported)
}
