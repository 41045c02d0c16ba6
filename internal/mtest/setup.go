// Copyright (C) MongoDB, Inc. 2026-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package mtest

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
	"go.mongodb.org/mongo-driver/v2/mongo/writeconcern"

	"github.com/mongodb-labs/fle2check/internal/logger"
	"github.com/mongodb-labs/fle2check/internal/testconfig"
)

// Background is the context used for setup and teardown.
var Background = context.Background()

// testContext holds the global context for the integration tests. The testContext members should only be initialized
// once during the global setup in TestMain. These variables should only be accessed indirectly through T instances.
var testContext struct {
	cfg              *testconfig.Config
	log              *logrus.Logger
	client           *mongo.Client // client used for setup and teardown
	topoKind         TopologyKind
	serverVersion    string
	testCommands     bool
	serverParameters bson.Raw
}

func setupClient(opts *options.ClientOptions) (*mongo.Client, error) {
	// set ServerAPIOptions to latest version if required
	if opts.ServerAPIOptions == nil && testContext.cfg.RequireAPIVersion {
		opts.SetServerAPIOptions(options.ServerAPI(options.ServerAPIVersion1))
	}
	return mongo.Connect(opts.ApplyURI(testContext.cfg.URI()).SetWriteConcern(writeconcern.Majority()))
}

// Setup initializes the current testing context.
// This function must only be called one time and must be called before any tests run.
func Setup(setupOpts ...*SetupOptions) error {
	var cfg *testconfig.Config
	for _, so := range setupOpts {
		if so != nil && so.Config != nil {
			cfg = so.Config
		}
	}
	if cfg == nil {
		var err error
		if cfg, err = testconfig.Load(); err != nil {
			return fmt.Errorf("error loading test configuration: %w", err)
		}
	}
	testContext.cfg = cfg

	var err error
	testContext.log, err = logger.New(cfg.LogLevel, os.Stderr)
	if err != nil {
		return err
	}

	testContext.client, err = setupClient(options.Client())
	if err != nil {
		return fmt.Errorf("error connecting test client: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(Background, 2*time.Second)
	defer cancel()
	if err := testContext.client.Ping(pingCtx, readpref.Primary()); err != nil {
		return fmt.Errorf("ping error: %w; make sure the deployment is running on URI %v", err, cfg.BaseURI)
	}

	admin := testContext.client.Database("admin")

	hello, err := admin.RunCommand(Background, bson.D{{"hello", 1}}).Raw()
	if err != nil {
		return fmt.Errorf("hello error: %w", err)
	}
	if testContext.topoKind, err = topologyKind(hello); err != nil {
		return err
	}

	biRes, err := admin.RunCommand(Background, bson.D{{"buildInfo", 1}}).Raw()
	if err != nil {
		return fmt.Errorf("buildInfo error: %w", err)
	}
	version, err := biRes.LookupErr("version")
	if err != nil {
		return errors.New("no version string in buildInfo response")
	}
	testContext.serverVersion = version.StringValue()

	testContext.serverParameters, err = admin.RunCommand(Background, bson.D{{"getParameter", "*"}}).Raw()
	if err != nil {
		return fmt.Errorf("error getting serverParameters: %w", err)
	}
	testContext.testCommands = parameterEnabled(testContext.serverParameters, "enableTestCommands")

	testContext.log.WithFields(logrus.Fields{
		"topology":      testContext.topoKind,
		"serverVersion": testContext.serverVersion,
		"testCommands":  testContext.testCommands,
	}).Debug("test context initialized")
	return nil
}

// Teardown cleans up resources initialized by Setup.
// This function must be called once after all tests have finished running.
func Teardown() error {
	if err := testContext.client.Disconnect(Background); err != nil {
		return fmt.Errorf("error disconnecting test client: %w", err)
	}
	return nil
}

// topologyKind derives the kind of deployment from a hello reply.
func topologyKind(hello bson.Raw) (TopologyKind, error) {
	if _, err := hello.LookupErr("serviceId"); err == nil {
		return LoadBalanced, nil
	}
	if msg, err := hello.LookupErr("msg"); err == nil && msg.StringValue() == "isdbgrid" {
		return Sharded, nil
	}
	if _, err := hello.LookupErr("setName"); err == nil {
		return ReplicaSet, nil
	}
	if _, err := hello.LookupErr("isWritablePrimary"); err == nil {
		return Single, nil
	}
	return "", fmt.Errorf("could not detect topology kind from hello reply %s", hello)
}

// parameterEnabled reports whether the server parameter name is set to a truthy value.
func parameterEnabled(params bson.Raw, name string) bool {
	val, err := params.LookupErr(name)
	if err != nil {
		return false
	}
	if b, ok := val.BooleanOK(); ok {
		return b
	}
	if i, ok := val.AsInt64OK(); ok {
		return i != 0
	}
	return false
}

// CompareServerVersions compares two version number strings (i.e. positive integers separated by
// periods). Comparisons are done to the lesser precision of the two versions. For example, 3.2 is
// considered equal to 3.2.11, whereas 3.2.0 is considered less than 3.2.11.
//
// Returns a positive int if version1 is greater than version2, a negative int if version1 is less
// than version2, and 0 if version1 is equal to version2.
func CompareServerVersions(v1 string, v2 string) int {
	n1 := strings.Split(v1, ".")
	n2 := strings.Split(v2, ".")

	for i := 0; i < int(math.Min(float64(len(n1)), float64(len(n2)))); i++ {
		i1, err := strconv.Atoi(n1[i])
		if err != nil {
			return 1
		}

		i2, err := strconv.Atoi(n2[i])
		if err != nil {
			return -1
		}

		difference := i1 - i2
		if difference != 0 {
			return difference
		}
	}

	return 0
}
