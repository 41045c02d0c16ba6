// Copyright (C) MongoDB, Inc. 2026-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package mtest runs integration tests against a live deployment. Setup and Teardown are called from TestMain; tests
// wrap their *testing.T with New and declare the environment they need through Options. Tests whose environment is not
// available are skipped.
package mtest

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/event"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
	"go.mongodb.org/mongo-driver/v2/mongo/writeconcern"

	"github.com/mongodb-labs/fle2check/internal/failpoint"
	"github.com/mongodb-labs/fle2check/internal/logger"
	"github.com/mongodb-labs/fle2check/internal/testconfig"
)

var (
	// MajorityWc is the majority write concern.
	MajorityWc = writeconcern.Majority()
	// PrimaryRp is the primary read preference.
	PrimaryRp = readpref.Primary()
)

// T is a wrapper around testing.T.
type T struct {
	*testing.T

	// members for only this T instance
	createClient     *bool
	failPointNames   []string
	minServerVersion string
	maxServerVersion string
	validTopologies  []TopologyKind
	testCommands     *bool
	featureFlags     []string

	// options copied to sub-tests
	clientOpts *options.ClientOptions

	baseOpts *Options // used to create subtests

	// command monitoring
	monitorLock sync.Mutex
	started     []*event.CommandStartedEvent
	succeeded   []*event.CommandSucceededEvent
	failed      []*event.CommandFailedEvent

	Client *mongo.Client
}

func newT(wrapped *testing.T, opts ...*Options) *T {
	t := &T{
		T: wrapped,
	}
	for _, opt := range opts {
		for _, optFn := range opt.optFuncs {
			optFn(t)
		}
	}

	if err := t.verifyConstraints(); err != nil {
		t.Skipf("skipping due to environmental constraints: %v", err)
	}

	t.baseOpts = NewOptions().ClientOptions(t.clientOpts)
	return t
}

// New creates a new T instance with the given options. If the current environment does not satisfy constraints
// specified in the options, the test will be skipped automatically.
func New(wrapped *testing.T, opts ...*Options) *T {
	// All tests that use mtest.New() are expected to be integration tests, so skip them when the
	// -short flag is included in the "go test" command.
	if testing.Short() {
		wrapped.Skip("skipping mtest integration test in short mode")
	}

	t := newT(wrapped, opts...)
	if t.createClient == nil || *t.createClient {
		t.createTestClient()
	}

	wrapped.Cleanup(t.cleanup)
	return t
}

// cleanup disables fail points and disconnects the client. It is intended to be called by [testing.T.Cleanup].
func (t *T) cleanup() {
	if t.Client == nil {
		return
	}
	t.ClearFailPoints()
	_ = t.Client.Disconnect(context.Background())
}

// Run creates a new T instance for a sub-test and runs the given callback.
func (t *T) Run(name string, callback func(mt *T)) {
	t.RunOpts(name, NewOptions(), callback)
}

// RunOpts creates a new T instance for a sub-test with the given options. If the current environment does not satisfy
// constraints specified in the options, the new sub-test will be skipped automatically. If the test is not skipped,
// the callback will be run with the new T instance and its own client.
func (t *T) RunOpts(name string, opts *Options, callback func(mt *T)) {
	t.T.Run(name, func(wrapped *testing.T) {
		sub := newT(wrapped, t.baseOpts, opts)
		if sub.createClient == nil || *sub.createClient {
			sub.createTestClient()
		}
		wrapped.Cleanup(sub.cleanup)

		// clear any events that may have happened during setup and run the test
		sub.ClearEvents()
		callback(sub)
	})
}

// GetAllStartedEvents returns a slice of all CommandStartedEvent instances for this test. This can be called multiple
// times.
func (t *T) GetAllStartedEvents() []*event.CommandStartedEvent {
	t.monitorLock.Lock()
	defer t.monitorLock.Unlock()

	return append([]*event.CommandStartedEvent(nil), t.started...)
}

// GetAllSucceededEvents returns a slice of all CommandSucceededEvent instances for this test.
func (t *T) GetAllSucceededEvents() []*event.CommandSucceededEvent {
	t.monitorLock.Lock()
	defer t.monitorLock.Unlock()

	return append([]*event.CommandSucceededEvent(nil), t.succeeded...)
}

// GetAllFailedEvents returns a slice of all CommandFailedEvent instances for this test.
func (t *T) GetAllFailedEvents() []*event.CommandFailedEvent {
	t.monitorLock.Lock()
	defer t.monitorLock.Unlock()

	return append([]*event.CommandFailedEvent(nil), t.failed...)
}

// StartedCommandNames returns the names of the commands started so far, in order.
func (t *T) StartedCommandNames() []string {
	var names []string
	for _, evt := range t.GetAllStartedEvents() {
		names = append(names, evt.CommandName)
	}
	return names
}

// ClearEvents clears the existing command monitoring events.
func (t *T) ClearEvents() {
	t.monitorLock.Lock()
	defer t.monitorLock.Unlock()

	t.started = t.started[:0]
	t.succeeded = t.succeeded[:0]
	t.failed = t.failed[:0]
}

// CollectionExists reports whether the collection coll exists in the database db.
func (t *T) CollectionExists(db, coll string) bool {
	t.Helper()

	names, err := testContext.client.Database(db).ListCollectionNames(context.Background(), bson.D{{"name", coll}})
	if err != nil {
		t.Fatalf("error listing collections in %s: %v", db, err)
	}
	return len(names) > 0
}

// SetFailPoint sets a fail point for the client associated with T. Commands to create the failpoint will appear
// in command monitoring channels. The fail point will automatically be disabled after this test has run.
func (t *T) SetFailPoint(fp failpoint.FailPoint) {
	t.Helper()

	if err := t.Client.Database("admin").RunCommand(context.Background(), fp).Err(); err != nil {
		t.Fatalf("error setting fail point %s: %v", fp.ConfigureFailPoint, err)
	}
	t.failPointNames = append(t.failPointNames, fp.ConfigureFailPoint)
}

// ClearFailPoints disables all previously set failpoints for this test.
func (t *T) ClearFailPoints() {
	db := t.Client.Database("admin")
	for _, fp := range t.failPointNames {
		if err := db.RunCommand(context.Background(), failpoint.Off(fp)).Err(); err != nil {
			t.Fatalf("error clearing fail point %s: %v", fp, err)
		}
	}
	t.failPointNames = t.failPointNames[:0]
}

func (t *T) createTestClient() {
	clientOpts := t.clientOpts
	if clientOpts == nil {
		// default opts
		clientOpts = options.Client().SetWriteConcern(MajorityWc).SetReadPreference(PrimaryRp)
	}
	if clientOpts.ServerAPIOptions == nil && testContext.cfg.RequireAPIVersion {
		clientOpts.SetServerAPIOptions(options.ServerAPI(options.ServerAPIVersion1))
	}
	if clientOpts.LoggerOptions == nil {
		clientOpts.SetLoggerOptions(logger.DriverOptions(testContext.log))
	}

	// Setup command monitor
	var customMonitor = clientOpts.Monitor
	clientOpts.SetMonitor(&event.CommandMonitor{
		Started: func(ctx context.Context, cse *event.CommandStartedEvent) {
			if customMonitor != nil && customMonitor.Started != nil {
				customMonitor.Started(ctx, cse)
			}
			t.monitorLock.Lock()
			defer t.monitorLock.Unlock()
			t.started = append(t.started, cse)
		},
		Succeeded: func(ctx context.Context, cse *event.CommandSucceededEvent) {
			if customMonitor != nil && customMonitor.Succeeded != nil {
				customMonitor.Succeeded(ctx, cse)
			}
			t.monitorLock.Lock()
			defer t.monitorLock.Unlock()
			t.succeeded = append(t.succeeded, cse)
		},
		Failed: func(ctx context.Context, cfe *event.CommandFailedEvent) {
			if customMonitor != nil && customMonitor.Failed != nil {
				customMonitor.Failed(ctx, cfe)
			}
			t.monitorLock.Lock()
			defer t.monitorLock.Unlock()
			t.failed = append(t.failed, cfe)
		},
	})

	// Pass in uriOpts first so clientOpts wins if there are any conflicting settings.
	uriOpts := options.Client().ApplyURI(testContext.cfg.URI())
	var err error
	t.Client, err = mongo.Connect(uriOpts, clientOpts)
	if err != nil {
		t.Fatalf("error creating client: %v", err)
	}
}

// verifyVersionConstraints returns an error if the cluster's server version is not in the range [min, max]. Server
// versions will only be checked if they are non-empty.
func verifyVersionConstraints(min, max string) error {
	if min != "" && CompareServerVersions(testContext.serverVersion, min) < 0 {
		return fmt.Errorf("server version %q is lower than min required version %q", testContext.serverVersion, min)
	}
	if max != "" && CompareServerVersions(testContext.serverVersion, max) > 0 {
		return fmt.Errorf("server version %q is higher than max version %q", testContext.serverVersion, max)
	}
	return nil
}

// verifyTopologyConstraints returns an error if the cluster's topology kind does not match one of the provided
// kinds. If the topologies slice is empty, nil is returned without any additional checks.
func verifyTopologyConstraints(topologies []TopologyKind) error {
	if len(topologies) == 0 {
		return nil
	}

	for _, topo := range topologies {
		if topo == testContext.topoKind {
			return nil
		}
	}
	return fmt.Errorf("topology kind %q does not match any of the required kinds %q", testContext.topoKind, topologies)
}

func verifyFeatureFlagConstraints(flags []string) error {
	for _, name := range flags {
		enabled, err := testconfig.FeatureEnabled(testContext.cfg.TestData, name)
		if err != nil {
			return err
		}
		if !enabled {
			return fmt.Errorf("feature flag %q is disabled in TestData", name)
		}
	}
	return nil
}

// verifyConstraints returns an error if the current environment does not match the constraints specified for the test.
func (t *T) verifyConstraints() error {
	if err := verifyVersionConstraints(t.minServerVersion, t.maxServerVersion); err != nil {
		return err
	}
	if err := verifyTopologyConstraints(t.validTopologies); err != nil {
		return err
	}
	if err := verifyFeatureFlagConstraints(t.featureFlags); err != nil {
		return err
	}
	if t.testCommands != nil && *t.testCommands != testContext.testCommands {
		return fmt.Errorf("test requires enableTestCommands value: %v, cluster value: %v", *t.testCommands,
			testContext.testCommands)
	}
	return nil
}
