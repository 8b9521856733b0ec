// Copyright 2021, Chef.  All rights reserved.
// https://github.com/q191201771/lal
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package innertest

import (
	"io"

	"github.com/q191201771/tsextractor/pkg/datasource"
	"github.com/q191201771/tsextractor/pkg/extractor"
	"github.com/q191201771/tsextractor/pkg/mpegts"
	"github.com/q191201771/tsextractor/pkg/tsmetrics"
)

// 数据源：file, buffer, live(stdin)
var (
	_ datasource.DataSource = &datasource.FileSource{}
	_ datasource.DataSource = &datasource.BufferSource{}
	_ datasource.DataSource = &datasource.LiveSource{}
	_ io.Writer             = &datasource.LiveSource{}
	_ io.ReaderFrom         = &datasource.LiveSource{}
)

var _ extractor.Observer = &tsmetrics.Metrics{}

var _ io.Writer = &mpegts.FileWriter{}
