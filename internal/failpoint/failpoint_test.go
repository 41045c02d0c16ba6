// Copyright (C) MongoDB, Inc. 2026-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package failpoint

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"

	mongoassert "github.com/mongodb-labs/fle2check/internal/assert"
)

func TestFailCommandOnce(t *testing.T) {
	t.Parallel()

	got, err := bson.Marshal(FailCommandOnce("create", 72))
	require.NoError(t, err)

	want, err := bson.Marshal(bson.D{
		{"configureFailPoint", "failCommand"},
		{"mode", bson.D{{"times", int32(1)}}},
		{"data", bson.D{
			{"failCommands", bson.A{"create"}},
			{"errorCode", int32(72)},
		}},
	})
	require.NoError(t, err)

	mongoassert.EqualBSON(t, bson.Raw(want), bson.Raw(got))
}

func TestOff(t *testing.T) {
	t.Parallel()

	cmd := Off(FailCommand)
	require.Len(t, cmd, 2)
	assert.Equal(t, "failCommand", cmd[0].Value)
	assert.Equal(t, ModeOff, cmd[1].Value)
}
