// Copyright (C) MongoDB, Inc. 2026-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package testconfig

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// FeatureFlagFLE2 is the server parameter that enables Queryable Encryption
// (FLE 2) on servers where it is still behind a feature flag.
const FeatureFlagFLE2 = "featureFlagFLE2"

// TestData is the configuration a test harness started the deployment with.
type TestData struct {
	// SetParameters holds the server parameters passed at startup. Values are
	// booleans, numbers or strings.
	SetParameters map[string]interface{} `yaml:"setParameters" toml:"setParameters"`
}

// LoadTestData reads TestData from path. The format is chosen by extension:
// ".yml" and ".yaml" are YAML, ".toml" is TOML. An empty path returns nil,
// which callers treat as "no TestData".
func LoadTestData(path string) (*TestData, error) {
	if path == "" {
		return nil, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "error reading TestData file %q", path)
	}

	td := &TestData{}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yml", ".yaml":
		err = yaml.Unmarshal(data, td)
	case ".toml":
		err = toml.Unmarshal(data, td)
	default:
		return nil, errors.Errorf("unsupported TestData file extension %q", ext)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "error decoding TestData file %q", path)
	}
	return td, nil
}

// Flag returns the boolean value of the server parameter name and whether it
// was set at all.
func (td *TestData) Flag(name string) (value bool, present bool, err error) {
	if td == nil {
		return false, false, nil
	}
	raw, ok := td.SetParameters[name]
	if !ok {
		return false, false, nil
	}

	switch v := raw.(type) {
	case bool:
		return v, true, nil
	case string:
		b, err := strconv.ParseBool(v)
		if err != nil {
			return false, true, errors.Wrapf(err, "parameter %s", name)
		}
		return b, true, nil
	case int:
		return v != 0, true, nil
	case int64:
		return v != 0, true, nil
	case float64:
		return v != 0, true, nil
	default:
		return false, true, errors.Errorf("parameter %s has unsupported type %T", name, raw)
	}
}

// FeatureEnabled reports whether the feature guarded by the server parameter
// name is enabled. A nil td enables every feature so checks still run when
// invoked by hand. A flag that is not set also counts as enabled; only an
// explicit false disables the feature.
func FeatureEnabled(td *TestData, name string) (bool, error) {
	value, present, err := td.Flag(name)
	if err != nil {
		return false, err
	}
	if !present {
		return true, nil
	}
	return value, nil
}
