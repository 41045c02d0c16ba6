// Copyright (C) MongoDB, Inc. 2026-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Command fle2check checks that a standalone server refuses to create a
// collection with encryptedFields.
//
// Configuration is read from the environment (see internal/testconfig) and
// may be overridden by flags. The exit status is 0 if the check passed or was
// skipped, 1 if the server did not reject the create command as expected and
// 2 for any other error.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/mongodb-labs/fle2check/internal/logger"
	"github.com/mongodb-labs/fle2check/internal/runner"
	"github.com/mongodb-labs/fle2check/internal/testconfig"
)

// Exit codes.
const (
	ExitSuccess   = 0
	ExitAssertion = 1
	ExitError     = 2
)

const defaultTimeout = 30 * time.Second

type cli struct {
	stdout, stderr io.Writer

	uri      string
	testData string
	strict   bool
	logLevel string
	timeout  time.Duration
}

func main() {
	os.Exit(execute(os.Args[1:], os.Stdout, os.Stderr))
}

// execute runs the root command with args and returns the process exit code.
func execute(args []string, stdout, stderr io.Writer) int {
	c := &cli{stdout: stdout, stderr: stderr}
	cmd := c.newRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	err := cmd.Execute()
	if err != nil {
		fmt.Fprintf(stderr, "fle2check: %v\n", err)
	}
	return exitCode(err)
}

func exitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var ae *runner.AssertionError
	if errors.As(err, &ae) {
		return ExitAssertion
	}
	return ExitError
}

func (c *cli) newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fle2check",
		Short: "Check that a standalone server rejects encrypted collections",
		Long: `Drop create_encrypted_collection_db.basic, then try to create it with an
encryptedFields option. The check passes if the server rejects the command
with error code 6346402.

The check is skipped if the TestData file sets featureFlagFLE2 to false.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := c.config(cmd)
			if err != nil {
				return err
			}
			return c.run(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVar(&c.uri, "uri", "", "connection string (default: $"+testconfig.EnvURI+" or "+testconfig.DefaultURI+")")
	cmd.Flags().StringVar(&c.testData, "test-data", "", "YAML or TOML TestData file (default: $"+testconfig.EnvTestDataFile+")")
	cmd.Flags().BoolVar(&c.strict, "strict", false, "fail if no TestData is configured")
	cmd.Flags().StringVar(&c.logLevel, "log-level", "", "log level (default: $"+testconfig.EnvLogLevel+" or info)")
	cmd.Flags().DurationVar(&c.timeout, "timeout", defaultTimeout, "time limit for the whole check")
	return cmd
}

// config loads the configuration from the environment and applies the flags
// that were set explicitly.
func (c *cli) config(cmd *cobra.Command) (*testconfig.Config, error) {
	cfg, err := testconfig.Load()
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("uri") {
		if c.uri == "" {
			return nil, errors.New("--uri must not be empty")
		}
		cfg.BaseURI = c.uri
	}
	if flags.Changed("strict") {
		cfg.Strict = c.strict
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = c.logLevel
	}
	if flags.Changed("test-data") {
		if cfg.TestData, err = testconfig.LoadTestData(c.testData); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

func (c *cli) run(ctx context.Context, cfg *testconfig.Config) error {
	log, err := logger.New(cfg.LogLevel, c.stderr)
	if err != nil {
		return err
	}

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	clientOpts := options.Client().
		ApplyURI(cfg.URI()).
		SetLoggerOptions(logger.DriverOptions(log))
	if cfg.RequireAPIVersion {
		clientOpts.SetServerAPIOptions(options.ServerAPI(options.ServerAPIVersion1))
	}

	client, err := mongo.Connect(clientOpts)
	if err != nil {
		return errors.Wrap(err, "error creating client")
	}
	defer func() {
		if err := client.Disconnect(context.Background()); err != nil {
			log.WithError(err).Warn("error disconnecting client")
		}
	}()

	r := runner.New(runner.NewClientCommander(client),
		runner.WithTestData(cfg.TestData),
		runner.WithStrictConfig(cfg.Strict),
		runner.WithLogger(log),
	)
	outcome, err := r.Run(ctx)
	fmt.Fprintln(c.stdout, outcome)
	return err
}
