// Copyright (C) MongoDB, Inc. 2026-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package mockserver

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

func newClient(t *testing.T, srv *Server, opts ...*options.ClientOptions) *mongo.Client {
	t.Helper()

	clientOpts := options.Client().ApplyURI(srv.URI()).SetServerSelectionTimeout(5 * time.Second)
	client, err := mongo.Connect(append([]*options.ClientOptions{clientOpts}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = client.Disconnect(context.Background())
	})
	return client
}

func TestServer(t *testing.T) {
	testCases := []struct {
		name string
		opts *options.ClientOptions
	}{
		{"legacy handshake", options.Client()},
		{"versioned API", options.Client().SetServerAPIOptions(options.ServerAPI(options.ServerAPIVersion1))},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			srv, err := New(map[string]bson.D{
				"create": CommandError(6346402, "Location6346402", "not supported on standalone"),
			})
			require.NoError(t, err)
			t.Cleanup(func() { _ = srv.Close() })

			db := newClient(t, srv, tc.opts).Database("db")

			require.NoError(t, db.RunCommand(context.Background(), bson.D{{"drop", "coll"}}).Err())

			err = db.RunCommand(context.Background(), bson.D{{"create", "coll"}}).Err()
			var cmdErr mongo.CommandError
			require.True(t, errors.As(err, &cmdErr), "expected mongo.CommandError, got %T: %v", err, err)
			assert.Equal(t, int32(6346402), cmdErr.Code)
			assert.Equal(t, "Location6346402", cmdErr.Name)

			assert.Equal(t, []string{"drop", "create"}, srv.Commands())
		})
	}
}

func TestServerClose(t *testing.T) {
	srv, err := New(nil)
	require.NoError(t, err)

	client := newClient(t, srv)
	require.NoError(t, client.Ping(context.Background(), nil))
	require.NoError(t, client.Disconnect(context.Background()))
	assert.Equal(t, []string{"ping"}, srv.Commands())

	assert.NoError(t, srv.Close())
}
