// Copyright (C) MongoDB, Inc. 2026-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package mtest

import (
	"github.com/mongodb-labs/fle2check/internal/testconfig"
)

// SetupOptions is the type used to configure mtest setup
type SetupOptions struct {
	// Config is the test configuration. Defaults to testconfig.Load().
	Config *testconfig.Config
}

// NewSetupOptions creates an empty SetupOptions struct
func NewSetupOptions() *SetupOptions {
	return &SetupOptions{}
}

// SetConfig sets the configuration to run with.
func (so *SetupOptions) SetConfig(cfg *testconfig.Config) *SetupOptions {
	so.Config = cfg
	return so
}
