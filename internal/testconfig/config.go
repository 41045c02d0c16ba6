// Copyright (C) MongoDB, Inc. 2026-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package testconfig holds the configuration a check runs with: how to reach
// the deployment and the TestData the surrounding harness started it with.
package testconfig

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
)

// DefaultURI is used when MONGODB_URI is not set.
const DefaultURI = "mongodb://localhost:27017"

// Environment variables read by Load.
const (
	EnvURI               = "MONGODB_URI"
	EnvCAFile            = "MONGO_GO_DRIVER_CA_FILE"
	EnvCompressor        = "MONGO_GO_DRIVER_COMPRESSOR"
	EnvRequireAPIVersion = "REQUIRE_API_VERSION"
	EnvTestDataFile      = "TEST_DATA_FILE"
	EnvLogLevel          = "FLE2CHECK_LOG_LEVEL"
	EnvStrict            = "FLE2CHECK_STRICT"
)

// Config is the process configuration of a check.
type Config struct {
	// BaseURI is the connection string as configured, without the options
	// added by URI.
	BaseURI           string
	CAFile            string
	Compressor        string
	RequireAPIVersion bool
	LogLevel          string

	// Strict requires TestData to be present instead of treating its absence
	// as "every feature enabled".
	Strict bool

	// TestData is nil when no TestData file was configured.
	TestData *TestData
}

// Load builds a Config from the environment. Variables from a ".env" file in
// the working directory are loaded first if the file exists; variables that
// are already set take precedence.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(errors.Cause(err)) {
		return nil, errors.Wrap(err, "error loading .env file")
	}

	cfg := &Config{
		BaseURI:    os.Getenv(EnvURI),
		CAFile:     os.Getenv(EnvCAFile),
		Compressor: os.Getenv(EnvCompressor),
		LogLevel:   os.Getenv(EnvLogLevel),
	}
	if cfg.BaseURI == "" {
		cfg.BaseURI = DefaultURI
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	cfg.RequireAPIVersion = os.Getenv(EnvRequireAPIVersion) == "true"

	if s := os.Getenv(EnvStrict); s != "" {
		strict, err := strconv.ParseBool(s)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid %s value %q", EnvStrict, s)
		}
		cfg.Strict = strict
	}

	td, err := LoadTestData(os.Getenv(EnvTestDataFile))
	if err != nil {
		return nil, err
	}
	cfg.TestData = td

	return cfg, nil
}

// URI returns the connection string with the TLS and compressor options
// required by the configuration appended.
func (c *Config) URI() string {
	uri := c.BaseURI
	if c.CAFile != "" {
		uri = AddOptionsToURI(uri, "tls=true&tlsCAFile=", c.CAFile)
	}
	if c.Compressor != "" {
		uri = AddOptionsToURI(uri, "compressors=", c.Compressor)
	}
	return uri
}

// AddOptionsToURI appends connection string options to a URI.
func AddOptionsToURI(uri string, opts ...string) string {
	if !strings.ContainsRune(uri, '?') {
		if !strings.HasSuffix(uri, "/") {
			uri += "/"
		}

		uri += "?"
	} else {
		uri += "&"
	}

	for _, opt := range opts {
		uri += opt
	}

	return uri
}
