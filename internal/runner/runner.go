// Copyright (C) MongoDB, Inc. 2026-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package runner checks that a standalone server refuses to create an
// encrypted collection.
//
// A Runner executes a fixed sequence against one deployment: it consults the
// featureFlagFLE2 server parameter in TestData and skips when the feature is
// explicitly disabled, drops the target collection, sends a create command
// carrying an encryptedFields option and requires the server to reject it
// with error code 6346402.
package runner

import (
	"context"
	"errors"
	"fmt"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/tidwall/pretty"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/mongodb-labs/fle2check/internal/encryptedfields"
	"github.com/mongodb-labs/fle2check/internal/logger"
	"github.com/mongodb-labs/fle2check/internal/testconfig"
)

const (
	// DatabaseName is the database the check runs in.
	DatabaseName = "create_encrypted_collection_db"

	// CollectionName is the collection the check tries to create.
	CollectionName = "basic"

	// ErrCodeEncryptedCollectionOnStandalone is returned by servers that
	// refuse to create an encrypted collection outside a replica set or
	// sharded cluster.
	ErrCodeEncryptedCollectionOnStandalone int32 = 6346402

	// ErrCodeNamespaceNotFound is returned by drop for a missing collection
	// on servers older than 7.0.
	ErrCodeNamespaceNotFound int32 = 26

	// FailureMessage is reported when the server does not reject the create
	// command as expected.
	FailureMessage = "Create with encryptedFields passed on standalone"
)

// ErrNoTestData is returned in strict mode when no TestData was supplied.
var ErrNoTestData = errors.New("no TestData configured; strict mode requires explicit feature flags")

// Outcome is the result of Run.
type Outcome int

// These constants are the possible outcomes of Run.
const (
	OutcomeFailed Outcome = iota
	OutcomeSkipped
	OutcomePassed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeFailed:
		return "failed"
	case OutcomeSkipped:
		return "skipped"
	case OutcomePassed:
		return "passed"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// AssertionError reports that the server answered the create command, but not
// with the expected rejection.
type AssertionError struct {
	Message      string
	ExpectedCode int32
	// ActualCode is the code of the server error, or 0 if the command
	// succeeded.
	ActualCode int32
	// Succeeded is true if the server created the collection.
	Succeeded bool
	// Cause is the server error, nil if the command succeeded.
	Cause error
}

func (e *AssertionError) Error() string {
	if e.Succeeded {
		return fmt.Sprintf("%s: expected command to fail with code %d, but it succeeded", e.Message, e.ExpectedCode)
	}
	return fmt.Sprintf("%s: expected command to fail with code %d, got code %d: %v",
		e.Message, e.ExpectedCode, e.ActualCode, e.Cause)
}

// Unwrap returns the server error, if any.
func (e *AssertionError) Unwrap() error {
	return e.Cause
}

// Commander sends a database command and reports its error, if any. Server
// errors are expected to be returned as mongo.CommandError.
type Commander interface {
	RunCommand(ctx context.Context, db string, cmd interface{}) error
}

// ClientCommander sends commands through a driver Client.
type ClientCommander struct {
	Client *mongo.Client
}

var _ Commander = ClientCommander{}

// NewClientCommander returns a Commander backed by client.
func NewClientCommander(client *mongo.Client) ClientCommander {
	return ClientCommander{Client: client}
}

// RunCommand runs cmd against the database db.
func (c ClientCommander) RunCommand(ctx context.Context, db string, cmd interface{}) error {
	return c.Client.Database(db).RunCommand(ctx, cmd).Err()
}

// Runner performs the check. The zero value is not usable; use New.
type Runner struct {
	cmd             Commander
	testData        *testconfig.TestData
	strict          bool
	log             *logrus.Logger
	dbName          string
	encryptedFields encryptedfields.EncryptedFields
}

// Option configures a Runner.
type Option func(*Runner)

// WithTestData sets the TestData the feature gate consults. Without it, the
// check behaves as if every feature flag is enabled.
func WithTestData(td *testconfig.TestData) Option {
	return func(r *Runner) {
		r.testData = td
	}
}

// WithStrictConfig makes a missing TestData an error instead of enabling the
// check.
func WithStrictConfig(strict bool) Option {
	return func(r *Runner) {
		r.strict = strict
	}
}

// WithLogger sets the logger. Defaults to a logger that discards output.
func WithLogger(l *logrus.Logger) Option {
	return func(r *Runner) {
		r.log = l
	}
}

// WithDatabase overrides DatabaseName.
func WithDatabase(name string) Option {
	return func(r *Runner) {
		r.dbName = name
	}
}

// WithEncryptedFields overrides the encryptedFields sent with the create
// command. Defaults to encryptedfields.Sample().
func WithEncryptedFields(ef encryptedfields.EncryptedFields) Option {
	return func(r *Runner) {
		r.encryptedFields = ef
	}
}

// New returns a Runner that sends its commands through cmd.
func New(cmd Commander, opts ...Option) *Runner {
	r := &Runner{
		cmd:             cmd,
		dbName:          DatabaseName,
		encryptedFields: encryptedfields.Sample(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.log == nil {
		r.log = logger.Discard()
	}
	return r
}

// Run executes the check. It returns OutcomeSkipped if featureFlagFLE2 is
// disabled and OutcomePassed if the server rejected the create command with
// ErrCodeEncryptedCollectionOnStandalone. Otherwise it returns OutcomeFailed
// and an error: an *AssertionError for an unexpected server answer, or an
// error from configuration or from reaching the server.
func (r *Runner) Run(ctx context.Context) (Outcome, error) {
	log := r.log.WithFields(logrus.Fields{
		logger.KeyCheck:      "create_encrypted_collection",
		logger.KeyDatabase:   r.dbName,
		logger.KeyCollection: CollectionName,
	})

	enabled, err := r.featureEnabled()
	if err != nil {
		return OutcomeFailed, err
	}
	if !enabled {
		log.WithField(logger.KeyReason, testconfig.FeatureFlagFLE2+" is disabled").Info("skipping check")
		return OutcomeSkipped, nil
	}

	if err := r.encryptedFields.Validate(); err != nil {
		return OutcomeFailed, pkgerrors.Wrap(err, "invalid encryptedFields")
	}

	if err := r.dropTarget(ctx); err != nil {
		return OutcomeFailed, err
	}

	create := CreateCommand(CollectionName, r.encryptedFields)
	if r.log.IsLevelEnabled(logrus.DebugLevel) {
		log.WithField(logger.KeyCommand, PrettyJSON(create)).Debug("sending create command")
	}

	err = r.cmd.RunCommand(ctx, r.dbName, create)
	if err := r.checkCreateResult(err); err != nil {
		var ae *AssertionError
		if errors.As(err, &ae) {
			log.WithFields(logrus.Fields{
				logger.KeyCode:         ae.ActualCode,
				logger.KeyExpectedCode: ae.ExpectedCode,
			}).Error(ae.Message)
		}
		return OutcomeFailed, err
	}

	log.WithField(logger.KeyOutcome, OutcomePassed).Info("server rejected encrypted collection")
	return OutcomePassed, nil
}

func (r *Runner) featureEnabled() (bool, error) {
	if r.testData == nil && r.strict {
		return false, ErrNoTestData
	}
	enabled, err := testconfig.FeatureEnabled(r.testData, testconfig.FeatureFlagFLE2)
	if err != nil {
		return false, pkgerrors.Wrap(err, "error reading feature flag")
	}
	return enabled, nil
}

// dropTarget drops the target collection. A missing collection is not an
// error.
func (r *Runner) dropTarget(ctx context.Context) error {
	err := r.cmd.RunCommand(ctx, r.dbName, bson.D{{"drop", CollectionName}})
	if err == nil {
		return nil
	}

	var cmdErr mongo.CommandError
	if errors.As(err, &cmdErr) && cmdErr.Code == ErrCodeNamespaceNotFound {
		return nil
	}
	return pkgerrors.Wrapf(err, "error dropping %s.%s", r.dbName, CollectionName)
}

// checkCreateResult classifies the error returned by the create command.
func (r *Runner) checkCreateResult(err error) error {
	if err == nil {
		return &AssertionError{
			Message:      FailureMessage,
			ExpectedCode: ErrCodeEncryptedCollectionOnStandalone,
			Succeeded:    true,
		}
	}

	var cmdErr mongo.CommandError
	if !errors.As(err, &cmdErr) {
		return pkgerrors.Wrapf(err, "error creating %s.%s", r.dbName, CollectionName)
	}
	if cmdErr.Code != ErrCodeEncryptedCollectionOnStandalone {
		return &AssertionError{
			Message:      FailureMessage,
			ExpectedCode: ErrCodeEncryptedCollectionOnStandalone,
			ActualCode:   cmdErr.Code,
			Cause:        err,
		}
	}
	return nil
}

// CreateCommand returns the create command for coll with the encryptedFields
// option set to ef.
func CreateCommand(coll string, ef encryptedfields.EncryptedFields) bson.D {
	return bson.D{
		{"create", coll},
		{"encryptedFields", ef},
	}
}

// PrettyJSON renders doc as indented relaxed extended JSON.
func PrettyJSON(doc interface{}) string {
	ej, err := bson.MarshalExtJSON(doc, false, false)
	if err != nil {
		return fmt.Sprintf("%v", doc)
	}
	return string(pretty.Pretty(ej))
}
