// Copyright 2021 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package logger

import (
	"os"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	LogContainer     logContainer
	loggerInit       sync.Once
	simpleLoggerInit sync.Once
	coreInit         sync.Once
)

type logContainer struct {
	logger       *zap.Logger
	simpleLogger *zap.SugaredLogger

	level zap.AtomicLevel
	core  zapcore.Core
	// Sinks attached after startup. Loggers are handed out from package
	// init functions long before the configuration has been read.
	file    sinks
	console sinks
}

// GetLogger returns the pointer to the logger and creates one if none exists
func (l *logContainer) GetLogger() *zap.Logger {
	loggerInit.Do(func() {
		l.logger = zap.New(l.getCombinedCore())
	})
	return l.logger
}

// GetSimpleLogger returns the pointer to the sugared logger and creates one
// if none exists
func (l *logContainer) GetSimpleLogger() *zap.SugaredLogger {
	simpleLoggerInit.Do(func() {
		logger := zap.New(l.getCombinedCore())
		l.simpleLogger = logger.Sugar()
	})
	return l.simpleLogger
}

// SetLevel changes the minimum level of every logger handed out so far.
func (l *logContainer) SetLevel(lvl zapcore.Level) {
	l.getCombinedCore()
	l.level.SetLevel(lvl)
}

// AttachFile adds a JSON log file next to stdout. The file is truncated.
func (l *logContainer) AttachFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	l.file.add(zapcore.AddSync(f))
	return nil
}

// AttachConsole mirrors the console output to ws, usually a UART.
func (l *logContainer) AttachConsole(ws zapcore.WriteSyncer) {
	l.console.add(ws)
}

// Sync flushes every sink.
func (l *logContainer) Sync() error {
	return multierr.Combine(l.file.Sync(), l.console.Sync())
}

// String mirrors zap.String
func (l *logContainer) String(key string, val string) zap.Field {
	return zap.String(key, val)
}

// Int mirrors zap.Int
func (l *logContainer) Int(key string, val int) zap.Field {
	return zap.Int(key, val)
}

// Uint32 mirrors zap.Uint32
func (l *logContainer) Uint32(key string, val uint32) zap.Field {
	return zap.Uint32(key, val)
}

func getConsoleEncoder() zapcore.Encoder {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	return zapcore.NewConsoleEncoder(encoderConfig)
}

func getPlainEncoder() zapcore.Encoder {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	return zapcore.NewConsoleEncoder(encoderConfig)
}

func getJsonEncoder() zapcore.Encoder {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.EpochTimeEncoder
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	return zapcore.NewJSONEncoder(encoderConfig)
}

func (l *logContainer) getCombinedCore() zapcore.Core {
	coreInit.Do(func() {
		l.level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
		l.core = zapcore.NewTee(
			zapcore.NewCore(getConsoleEncoder(), zapcore.Lock(os.Stderr), l.level),
			// Serial consoles get no color escapes.
			zapcore.NewCore(getPlainEncoder(), &l.console, l.level),
			zapcore.NewCore(getJsonEncoder(), &l.file, l.level),
		)
	})
	return l.core
}

// sinks fans writes out to a set of write syncers that can grow at runtime.
type sinks struct {
	mu sync.Mutex
	ws []zapcore.WriteSyncer
}

func (s *sinks) add(ws zapcore.WriteSyncer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ws = append(s.ws, ws)
}

func (s *sinks) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var err error
	for _, w := range s.ws {
		_, werr := w.Write(p)
		err = multierr.Append(err, werr)
	}
	return len(p), err
}

func (s *sinks) Sync() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var err error
	for _, w := range s.ws {
		err = multierr.Append(err, w.Sync())
	}
	return err
}
