// Copyright 2020, Chef.  All rights reserved.
// https://github.com/q191201771/lal
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package base

import "github.com/q191201771/naza/pkg/unique"

const (
	UkPreExtractor = "TSEXTRACTOR"
	UkPreTsParser  = "TSPARSER"
	UkPreSrtSource = "SRTSRC"
	UkPreTrack     = "TRACK"
)

func GenUkExtractor() string {
	return siUkExtractor.GenUniqueKey()
}

func GenUkTsParser() string {
	return siUkTsParser.GenUniqueKey()
}

func GenUkSrtSource() string {
	return siUkSrtSource.GenUniqueKey()
}

func GenUkTrack() string {
	return siUkTrack.GenUniqueKey()
}

var (
	siUkExtractor *unique.SingleGenerator
	siUkTsParser  *unique.SingleGenerator
	siUkSrtSource *unique.SingleGenerator
	siUkTrack     *unique.SingleGenerator
)

func init() {
	siUkExtractor = unique.NewSingleGenerator(UkPreExtractor)
	siUkTsParser = unique.NewSingleGenerator(UkPreTsParser)
	siUkSrtSource = unique.NewSingleGenerator(UkPreSrtSource)
	siUkTrack = unique.NewSingleGenerator(UkPreTrack)
}
