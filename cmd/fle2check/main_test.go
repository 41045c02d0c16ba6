// Copyright (C) MongoDB, Inc. 2026-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	pkgerrors "github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/mongodb-labs/fle2check/internal/mockserver"
	"github.com/mongodb-labs/fle2check/internal/runner"
	"github.com/mongodb-labs/fle2check/internal/testconfig"
)

func TestExitCode(t *testing.T) {
	assertion := &runner.AssertionError{Message: runner.FailureMessage, Succeeded: true}

	assert.Equal(t, ExitSuccess, exitCode(nil))
	assert.Equal(t, ExitAssertion, exitCode(assertion))
	assert.Equal(t, ExitAssertion, exitCode(pkgerrors.Wrap(assertion, "check")))
	assert.Equal(t, ExitError, exitCode(errors.New("connection refused")))
	assert.Equal(t, ExitError, exitCode(runner.ErrNoTestData))
}

// clearEnv isolates a test from configuration in the environment and the working directory.
func clearEnv(t *testing.T) {
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	for _, name := range []string{
		testconfig.EnvURI,
		testconfig.EnvTestDataFile,
		testconfig.EnvStrict,
		testconfig.EnvLogLevel,
		testconfig.EnvRequireAPIVersion,
		testconfig.EnvCAFile,
		testconfig.EnvCompressor,
	} {
		t.Setenv(name, "")
	}
}

func TestExecuteConfigurationErrors(t *testing.T) {
	clearEnv(t)
	require.NoError(t, os.WriteFile("testdata.json", []byte(`{"setParameters": {}}`), 0o600))
	t.Setenv(testconfig.EnvCAFile, "ca.pem")

	testCases := []struct {
		name string
		args []string
		want string
	}{
		{"unknown TestData format", []string{"--test-data", "testdata.json"}, "unsupported TestData file extension"},
		{"missing TestData file", []string{"--test-data", "missing.yml"}, "error reading TestData file"},
		{"bad log level", []string{"--log-level", "loud"}, "loud"},
		{"positional args", []string{"extra"}, "unknown command"},
		{"empty uri", []string{"--uri", "", "--timeout", "1s"}, "--uri must not be empty"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			code := execute(tc.args, &stdout, &stderr)
			assert.Equal(t, ExitError, code)
			assert.Contains(t, stderr.String(), tc.want)
		})
	}
}

func TestExecuteSkipsWhenFlagDisabled(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "testdata.yml")
	require.NoError(t, os.WriteFile(path, []byte("setParameters:\n  featureFlagFLE2: false\n"), 0o600))

	var stdout, stderr bytes.Buffer
	code := execute([]string{"--test-data", path, "--uri", "mongodb://localhost:1"}, &stdout, &stderr)
	assert.Equal(t, ExitSuccess, code, stderr.String())
	assert.Equal(t, "skipped\n", stdout.String())
}

func TestExecuteStrictWithoutTestData(t *testing.T) {
	clearEnv(t)

	var stdout, stderr bytes.Buffer
	code := execute([]string{"--strict", "--uri", "mongodb://localhost:1"}, &stdout, &stderr)
	assert.Equal(t, ExitError, code)
	assert.Equal(t, "failed\n", stdout.String())
	assert.Contains(t, stderr.String(), "strict mode")
}

func TestExecuteAgainstServer(t *testing.T) {
	testCases := []struct {
		name    string
		replies map[string]bson.D
		code    int
		stdout  string
	}{
		{
			"create rejected",
			map[string]bson.D{"create": mockserver.CommandError(runner.ErrCodeEncryptedCollectionOnStandalone,
				"Location6346402", "Encrypted collections are not supported on standalone")},
			ExitSuccess,
			"passed\n",
		},
		{"create succeeds", nil, ExitAssertion, "failed\n"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			clearEnv(t)

			srv, err := mockserver.New(tc.replies)
			require.NoError(t, err)
			t.Cleanup(func() { _ = srv.Close() })

			var stdout, stderr bytes.Buffer
			code := execute([]string{"--uri", srv.URI(), "--timeout", "10s"}, &stdout, &stderr)
			assert.Equal(t, tc.code, code, stderr.String())
			assert.Equal(t, tc.stdout, stdout.String())
			assert.Equal(t, []string{"drop", "create"}, srv.Commands())
		})
	}
}
