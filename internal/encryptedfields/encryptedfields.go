// Copyright (C) MongoDB, Inc. 2026-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package encryptedfields models the "encryptedFields" option of the create
// command: which fields of a collection are encrypted, with which data key,
// and which queries the server allows on them.
package encryptedfields

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/v2/bson"
)

const (
	// BinarySubtypeUUID is the BSON binary subtype for a standard UUID.
	BinarySubtypeUUID byte = 0x04

	// EncryptedStateCollection is the suffix of the ESC state collection.
	EncryptedStateCollection = "esc"

	// EncryptedCompactionCollection is the suffix of the ECOC state collection.
	EncryptedCompactionCollection = "ecoc"

	// QueryTypeEquality allows equality queries on an encrypted field.
	QueryTypeEquality = "equality"

	// QueryTypeRange allows range queries on an encrypted field.
	QueryTypeRange = "range"
)

// SampleKeyID is the data key identifier used by Sample.
var SampleKeyID = uuid.MustParse("11d58b8a-0c6c-4d69-a0bd-70c6d9befae9")

// EncryptedFields is the value of the "encryptedFields" create option.
type EncryptedFields struct {
	EscCollection  string  `bson:"escCollection,omitempty"`
	EcocCollection string  `bson:"ecocCollection,omitempty"`
	Fields         []Field `bson:"fields"`
}

// Field describes one encrypted field.
type Field struct {
	Path     string      `bson:"path"`
	KeyID    bson.Binary `bson:"keyId"`
	BsonType string      `bson:"bsonType"`
	// Queries is nil, a single Query or a []Query. The server accepts a
	// document or an array for this key.
	Queries interface{} `bson:"queries,omitempty"`
}

// Query describes one query capability of an encrypted field.
type Query struct {
	QueryType  string `bson:"queryType"`
	Contention *int64 `bson:"contention,omitempty"`
}

// UUIDBinary encodes id as a BSON binary value with the UUID subtype.
func UUIDBinary(id uuid.UUID) bson.Binary {
	data := make([]byte, len(id))
	copy(data, id[:])
	return bson.Binary{Subtype: BinarySubtypeUUID, Data: data}
}

// NewField returns a Field for path encrypted with the key identified by
// keyID. One query is encoded as a document and several as an array.
func NewField(path string, keyID uuid.UUID, bsonType string, queries ...Query) Field {
	f := Field{
		Path:     path,
		KeyID:    UUIDBinary(keyID),
		BsonType: bsonType,
	}
	switch len(queries) {
	case 0:
	case 1:
		f.Queries = queries[0]
	default:
		f.Queries = queries
	}
	return f
}

// Sample returns the encryptedFields document sent to standalone
// servers: a single equality-queryable string field "firstName".
func Sample() EncryptedFields {
	return EncryptedFields{
		Fields: []Field{
			NewField("firstName", SampleKeyID, "string", Query{QueryType: QueryTypeEquality}),
		},
	}
}

// QueryList returns the queries of f as a slice regardless of how they are
// encoded.
func (f Field) QueryList() ([]Query, error) {
	switch q := f.Queries.(type) {
	case nil:
		return nil, nil
	case Query:
		return []Query{q}, nil
	case *Query:
		if q == nil {
			return nil, nil
		}
		return []Query{*q}, nil
	case []Query:
		return q, nil
	default:
		return nil, fmt.Errorf("queries must be a Query or []Query, got %T", f.Queries)
	}
}

// Validate reports the first structural problem in ef. The server performs
// its own validation; this only catches payloads that could not express a
// well-formed request.
func (ef EncryptedFields) Validate() error {
	if len(ef.Fields) == 0 {
		return errors.New("encryptedFields must contain at least one field")
	}

	seen := make(map[string]struct{}, len(ef.Fields))
	for i, f := range ef.Fields {
		if f.Path == "" {
			return errors.Errorf("field %d: path must not be empty", i)
		}
		if _, ok := seen[f.Path]; ok {
			return errors.Errorf("field %d: duplicate path %q", i, f.Path)
		}
		seen[f.Path] = struct{}{}

		if f.KeyID.Subtype != BinarySubtypeUUID {
			return errors.Errorf("field %q: keyId must have binary subtype %#x, got %#x",
				f.Path, BinarySubtypeUUID, f.KeyID.Subtype)
		}
		if len(f.KeyID.Data) != 16 {
			return errors.Errorf("field %q: keyId must be 16 bytes, got %d", f.Path, len(f.KeyID.Data))
		}
		if f.BsonType == "" {
			return errors.Errorf("field %q: bsonType must not be empty", f.Path)
		}

		queries, err := f.QueryList()
		if err != nil {
			return errors.Wrapf(err, "field %q", f.Path)
		}
		for _, q := range queries {
			if q.QueryType == "" {
				return errors.Errorf("field %q: queryType must not be empty", f.Path)
			}
		}
	}
	return nil
}

// StateCollectionNames returns the names of the ESC and ECOC state
// collections that accompany the encrypted collection coll. Names not set in
// ef default to "enxcol_.<coll>.esc" and "enxcol_.<coll>.ecoc".
func StateCollectionNames(ef EncryptedFields, coll string) (esc, ecoc string) {
	esc = ef.EscCollection
	if esc == "" {
		esc = defaultStateCollectionName(coll, EncryptedStateCollection)
	}
	ecoc = ef.EcocCollection
	if ecoc == "" {
		ecoc = defaultStateCollectionName(coll, EncryptedCompactionCollection)
	}
	return esc, ecoc
}

func defaultStateCollectionName(coll, suffix string) string {
	return "enxcol_." + coll + "." + suffix
}
