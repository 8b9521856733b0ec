// Copyright 2022, Chef.  All rights reserved.
// https://github.com/q191201771/lal
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package main

import (
	"context"
	"fmt"
	"os"

	"github.com/q191201771/tsextractor/pkg/base"
	"github.com/q191201771/tsextractor/pkg/datasource"
)

// openSource 返回的dispose用于提前结束读取，可以重复调用
func openSource(ctx context.Context, input InputConfig) (source datasource.DataSource, dispose func(), err error) {
	switch input.Type {
	case InputTypeFile:
		fs, err := datasource.OpenFile(input.Filename)
		if err != nil {
			return nil, nil, err
		}
		return fs, func() { _ = fs.Dispose() }, nil
	case InputTypeStdin:
		ls := datasource.NewLiveSource(func(option *datasource.LiveSourceOption) {
			option.ReadTimeoutMs = input.ReadTimeoutMs
		})
		go func() {
			n, err := ls.ReadFrom(os.Stdin)
			Log.Infof("stdin done. n=%d, err=%+v", n, err)
		}()
		return ls, func() { ls.CloseWithError(base.ErrSourceDisposed) }, nil
	case InputTypeSrt:
		return openSrtSource(ctx, input)
	}
	return nil, nil, fmt.Errorf("%w. input type=%s", base.ErrUnsupported, input.Type)
}
