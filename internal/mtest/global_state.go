// Copyright (C) MongoDB, Inc. 2026-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package mtest

import (
	"github.com/sirupsen/logrus"

	"github.com/mongodb-labs/fle2check/internal/testconfig"
)

// Config returns the configuration the test context was set up with.
func Config() *testconfig.Config {
	return testContext.cfg
}

// Logger returns the logger shared by the test context.
func Logger() *logrus.Logger {
	return testContext.log
}

// ServerVersion returns the server version of the cluster. This assumes that all nodes in the cluster have the same
// version.
func (*T) ServerVersion() string {
	return testContext.serverVersion
}

// TestData returns the TestData loaded for this run, or nil if none was configured.
func (*T) TestData() *testconfig.TestData {
	return testContext.cfg.TestData
}
