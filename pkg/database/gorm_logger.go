// Copyright 2025 Superlearn Team
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package database

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gorm.io/gorm/logger"
)

// GormLogger routes gorm's logging through the shared zap logger so SQL
// output lands in the same sink as application logs.
type GormLogger struct {
	level         logger.LogLevel
	slowThreshold time.Duration
	log           *zap.SugaredLogger
}

var _ logger.Interface = (*GormLogger)(nil)

func NewGormLogger(level logger.LogLevel, slowThreshold time.Duration, zapLogger *zap.Logger) *GormLogger {
	return &GormLogger{
		level:         level,
		slowThreshold: slowThreshold,
		// skip the gorm callback frames so the caller site is the query
		log: zapLogger.WithOptions(zap.AddCallerSkip(2)).Sugar(),
	}
}

func (l *GormLogger) LogMode(level logger.LogLevel) logger.Interface {
	l.level = level
	return l
}

func (l *GormLogger) Info(_ context.Context, msg string, data ...interface{}) {
	if l.level >= logger.Info {
		l.log.Infof(msg, data...)
	}
}

func (l *GormLogger) Warn(_ context.Context, msg string, data ...interface{}) {
	if l.level >= logger.Warn {
		l.log.Warnf(msg, data...)
	}
}

func (l *GormLogger) Error(_ context.Context, msg string, data ...interface{}) {
	if l.level >= logger.Error {
		l.log.Errorf(msg, data...)
	}
}

func (l *GormLogger) Trace(_ context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level <= logger.Silent {
		return
	}

	elapsed := time.Since(begin)
	sql, rows := fc()

	switch {
	case err != nil && l.level >= logger.Error && !errors.Is(err, logger.ErrRecordNotFound):
		l.log.Errorf("`%s` [rows: %d, elapsed: %s], err: %v", sql, rows, elapsed, err)
	case l.slowThreshold > 0 && elapsed > l.slowThreshold && l.level >= logger.Warn:
		l.log.Warnf("`%s` [rows: %d, elapsed: %s] slow query", sql, rows, elapsed)
	case l.level >= logger.Info:
		l.log.Debugf("`%s` [rows: %d, elapsed: %s]", sql, rows, elapsed)
	}
}
