// Copyright (C) MongoDB, Inc. 2026-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package logger configures logrus for checks and bridges the driver's log
// output into the same logger.
package logger

import (
	"io"

	"github.com/bombsimon/logrusr/v4"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// Keys used for structured fields.
const (
	KeyCheck        = "check"
	KeyDatabase     = "db"
	KeyCollection   = "coll"
	KeyCommand      = "command"
	KeyCode         = "code"
	KeyExpectedCode = "expectedCode"
	KeyOutcome      = "outcome"
	KeyReason       = "reason"
)

// DefaultMaxDocumentLength bounds the extended JSON the driver logs per
// command or reply.
const DefaultMaxDocumentLength uint = 1000

// New returns a logrus logger writing text to out at the named level
// ("debug", "info", "warn", ...).
func New(level string, out io.Writer) (*logrus.Logger, error) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid log level %q", level)
	}

	l := logrus.New()
	l.SetOutput(out)
	l.SetLevel(lvl)
	l.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:    true,
		DisableQuote:     true,
		QuoteEmptyFields: true,
	})
	return l, nil
}

// Discard returns a logger that drops everything.
func Discard() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// DriverOptions returns driver logger options that send command logs to l.
// Commands are logged at debug level only when l has debug enabled.
func DriverOptions(l *logrus.Logger) *options.LoggerOptions {
	sink := logrusr.New(l).GetSink()

	level := options.LogLevelInfo
	if l.IsLevelEnabled(logrus.DebugLevel) {
		level = options.LogLevelDebug
	}

	return options.Logger().
		SetSink(sink).
		SetMaxDocumentLength(DefaultMaxDocumentLength).
		SetComponentLevel(options.LogComponentCommand, level)
}
