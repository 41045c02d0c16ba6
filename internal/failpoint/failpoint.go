// Copyright (C) MongoDB, Inc. 2026-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package failpoint builds configureFailPoint commands for servers started
// with enableTestCommands.
package failpoint

import (
	"go.mongodb.org/mongo-driver/v2/bson"
)

const (
	// ModeOff is the fail point mode that disables the fail point.
	ModeOff = "off"

	// FailCommand is the name of the fail point that makes the server fail
	// selected commands.
	FailCommand = "failCommand"
)

// FailPoint is used to configure a server fail point. It is intended to be
// passed as the command argument to RunCommand.
//
// For more information about fail points, see
// https://github.com/mongodb/specifications/tree/HEAD/source/transactions/tests#server-fail-point
type FailPoint struct {
	ConfigureFailPoint string `bson:"configureFailPoint"`
	// Mode should be a string or Mode.
	Mode interface{} `bson:"mode"`
	Data Data        `bson:"data,omitempty"`
}

// Mode configures when a fail point will be enabled. It is used to set the
// FailPoint.Mode field.
type Mode struct {
	Times int32 `bson:"times,omitempty"`
	Skip  int32 `bson:"skip,omitempty"`
}

// Data configures how a fail point will behave. It is used to set the
// FailPoint.Data field.
type Data struct {
	FailCommands []string `bson:"failCommands,omitempty"`
	ErrorCode    int32    `bson:"errorCode,omitempty"`
}

// FailCommandOnce returns a failCommand fail point that fails the next
// execution of command with errorCode.
func FailCommandOnce(command string, errorCode int32) FailPoint {
	return FailPoint{
		ConfigureFailPoint: FailCommand,
		Mode:               Mode{Times: 1},
		Data: Data{
			FailCommands: []string{command},
			ErrorCode:    errorCode,
		},
	}
}

// Off returns the command that disables the fail point name.
func Off(name string) bson.D {
	return bson.D{
		{"configureFailPoint", name},
		{"mode", ModeOff},
	}
}
