// Copyright (C) MongoDB, Inc. 2026-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package assert contains MongoDB-specific extensions to testify's "assert"
// package.
package assert

import (
	"errors"
	"fmt"

	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/v2/mongo"
)

type tHelper interface {
	Helper()
}

// CommandErrorCode returns the server error code carried by err and whether
// err is a command error at all.
func CommandErrorCode(err error) (int32, bool) {
	var cmdErr mongo.CommandError
	if errors.As(err, &cmdErr) {
		return cmdErr.Code, true
	}
	return 0, false
}

// CommandFailedWithCode asserts that err is a command error with the given
// server error code. A nil error, a non-command error and a command error
// with another code all fail the assertion.
func CommandFailedWithCode(t assert.TestingT, err error, code int32, msgAndArgs ...interface{}) bool {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}

	if err == nil {
		return assert.Fail(t, fmt.Sprintf("command succeeded, expected failure with code %d", code), msgAndArgs...)
	}

	got, ok := CommandErrorCode(err)
	if !ok {
		return assert.Fail(t, fmt.Sprintf("expected command error with code %d, got %T: %v", code, err, err),
			msgAndArgs...)
	}
	if got != code {
		return assert.Fail(t, fmt.Sprintf("command failed with code %d, expected code %d: %v", got, code, err),
			msgAndArgs...)
	}
	return true
}

// EqualBSON asserts that the expected and actual BSON binary values are equal.
// If the values are not equal, it prints both the binary and Extended JSON diff
// of the BSON values. The provided BSON value types must implement the
// fmt.Stringer interface.
func EqualBSON(t assert.TestingT, expected, actual interface{}) bool {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}

	return assert.Equal(t,
		expected,
		actual,
		`expected and actual BSON values do not match
As Extended JSON:
Expected: %s
Actual  : %s`,
		expected.(fmt.Stringer).String(),
		actual.(fmt.Stringer).String())
}
