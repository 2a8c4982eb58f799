package storage

import "impactwatch/pkg/logx"

var nilLogger = logx.Nop()
