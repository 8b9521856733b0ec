// Copyright 2020, Chef.  All rights reserved.
// https://github.com/q191201771/lal
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package base

// 版本信息相关
// 一部分版本信息使用了naza.bininfo，另外一些信息在本文件提供

// 版本，该变量由外部脚本修改维护
const TsExtractorVersion = "v0.3.0"

var (
	TsExtractorLibraryName = "tsextractor"
	TsExtractorGithubRepo  = "github.com/q191201771/tsextractor"
	TsExtractorGithubSite  = "https://github.com/q191201771/tsextractor"

	// e.g. tsextractor v0.3.0 (github.com/q191201771/tsextractor)
	TsExtractorFullInfo = TsExtractorLibraryName + " " + TsExtractorVersion + " (" + TsExtractorGithubRepo + ")"
)
