// Copyright (C) MongoDB, Inc. 2026-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package mtest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/mongodb-labs/fle2check/internal/testconfig"
)

func mustRaw(t *testing.T, doc bson.D) bson.Raw {
	t.Helper()

	b, err := bson.Marshal(doc)
	require.NoError(t, err)
	return b
}

func TestTopologyKind(t *testing.T) {
	testCases := []struct {
		name  string
		hello bson.D
		want  TopologyKind
	}{
		{"standalone", bson.D{{"isWritablePrimary", true}, {"ok", 1}}, Single},
		{"replica set", bson.D{{"isWritablePrimary", true}, {"setName", "rs0"}}, ReplicaSet},
		{"mongos", bson.D{{"isWritablePrimary", true}, {"msg", "isdbgrid"}}, Sharded},
		{"load balanced", bson.D{{"serviceId", bson.NewObjectID()}, {"msg", "isdbgrid"}}, LoadBalanced},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := topologyKind(mustRaw(t, tc.hello))
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}

	_, err := topologyKind(mustRaw(t, bson.D{{"ok", 1}}))
	assert.Error(t, err)
}

func TestParameterEnabled(t *testing.T) {
	params := mustRaw(t, bson.D{
		{"enableTestCommands", int32(1)},
		{"disabledInt", int64(0)},
		{"featureFlagFLE2", bson.D{{"value", true}}},
		{"boolTrue", true},
		{"boolFalse", false},
	})

	assert.True(t, parameterEnabled(params, "enableTestCommands"))
	assert.False(t, parameterEnabled(params, "disabledInt"))
	assert.True(t, parameterEnabled(params, "boolTrue"))
	assert.False(t, parameterEnabled(params, "boolFalse"))
	assert.False(t, parameterEnabled(params, "featureFlagFLE2"), "documents are not truthy")
	assert.False(t, parameterEnabled(params, "missing"))
}

func TestCompareServerVersions(t *testing.T) {
	testCases := []struct {
		v1, v2 string
		sign   int
	}{
		{"6.0", "6.0.3", 0},
		{"6.0.0", "6.0.3", -1},
		{"7.0.1", "6.0", 1},
		{"5.0", "6.0", -1},
		{"10.0", "9.9", 1},
	}
	for _, tc := range testCases {
		got := CompareServerVersions(tc.v1, tc.v2)
		switch {
		case tc.sign == 0:
			assert.Zero(t, got, "%s vs %s", tc.v1, tc.v2)
		case tc.sign < 0:
			assert.Negative(t, got, "%s vs %s", tc.v1, tc.v2)
		default:
			assert.Positive(t, got, "%s vs %s", tc.v1, tc.v2)
		}
	}
}

func TestOptions(t *testing.T) {
	opts := NewOptions().
		CreateClient(false).
		MinServerVersion("6.0").
		MaxServerVersion("8.0").
		Topologies(Single, ReplicaSet).
		TestCommandsEnabled(true).
		FeatureFlag("featureFlagFLE2")

	mt := &T{}
	for _, fn := range opts.optFuncs {
		fn(mt)
	}

	require.NotNil(t, mt.createClient)
	assert.False(t, *mt.createClient)
	assert.Equal(t, "6.0", mt.minServerVersion)
	assert.Equal(t, "8.0", mt.maxServerVersion)
	assert.Equal(t, []TopologyKind{Single, ReplicaSet}, mt.validTopologies)
	require.NotNil(t, mt.testCommands)
	assert.True(t, *mt.testCommands)
	assert.Equal(t, []string{"featureFlagFLE2"}, mt.featureFlags)
}

func TestVerifyFeatureFlagConstraints(t *testing.T) {
	saved := testContext.cfg
	t.Cleanup(func() { testContext.cfg = saved })

	testContext.cfg = &testconfig.Config{}
	assert.NoError(t, verifyFeatureFlagConstraints([]string{testconfig.FeatureFlagFLE2}), "no TestData enables every flag")

	testContext.cfg = &testconfig.Config{TestData: &testconfig.TestData{
		SetParameters: map[string]interface{}{testconfig.FeatureFlagFLE2: false},
	}}
	assert.Error(t, verifyFeatureFlagConstraints([]string{testconfig.FeatureFlagFLE2}))
	assert.NoError(t, verifyFeatureFlagConstraints(nil))
}

func TestVerifyTopologyConstraints(t *testing.T) {
	saved := testContext.topoKind
	t.Cleanup(func() { testContext.topoKind = saved })
	testContext.topoKind = Single

	assert.NoError(t, verifyTopologyConstraints(nil))
	assert.NoError(t, verifyTopologyConstraints([]TopologyKind{ReplicaSet, Single}))
	assert.Error(t, verifyTopologyConstraints([]TopologyKind{ReplicaSet, Sharded}))
}

func TestVerifyVersionConstraints(t *testing.T) {
	saved := testContext.serverVersion
	t.Cleanup(func() { testContext.serverVersion = saved })
	testContext.serverVersion = "6.0.5"

	assert.NoError(t, verifyVersionConstraints("", ""))
	assert.NoError(t, verifyVersionConstraints("6.0", "7.0"))
	assert.Error(t, verifyVersionConstraints("7.0", ""))
	assert.Error(t, verifyVersionConstraints("", "5.0"))
}
