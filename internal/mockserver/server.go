// Copyright (C) MongoDB, Inc. 2026-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package mockserver is a minimal in-process standalone mongod for tests. It
// speaks enough of the wire protocol for a driver client to connect, answers
// the handshake itself and replies to every other command from a table.
package mockserver

import (
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/x/bsonx/bsoncore"
	"go.mongodb.org/mongo-driver/v2/x/mongo/driver/wiremessage"
)

// MaxWireVersion is the wire version the server reports (MongoDB 7.0).
const MaxWireVersion = 21

var handshakeCommands = map[string]bool{
	"hello":    true,
	"isMaster": true,
	"ismaster": true,
}

// OK is the reply to a command that succeeded.
func OK() bson.D {
	return bson.D{{"ok", 1.0}}
}

// CommandError is the reply to a command that failed with code.
func CommandError(code int32, codeName, errmsg string) bson.D {
	return bson.D{
		{"ok", 0.0},
		{"errmsg", errmsg},
		{"code", code},
		{"codeName", codeName},
	}
}

// Server accepts driver connections on a loopback port.
type Server struct {
	ln      net.Listener
	replies map[string]bson.D

	mu       sync.Mutex
	conns    map[net.Conn]struct{}
	commands []string
	closed   bool

	wg sync.WaitGroup
}

// New starts a server that answers each command named in replies with the
// given document. Commands not in replies succeed with OK.
func New(replies map[string]bson.D) (*Server, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, errors.Wrap(err, "error listening")
	}

	s := &Server{
		ln:      ln,
		replies: replies,
		conns:   make(map[net.Conn]struct{}),
	}
	s.wg.Add(1)
	go s.accept()
	return s, nil
}

// URI returns a connection string for a direct connection to s.
func (s *Server) URI() string {
	return fmt.Sprintf("mongodb://%s/?directConnection=true", s.ln.Addr())
}

// Commands returns the names of the commands received so far, in order. The
// handshake and endSessions are not recorded.
func (s *Server) Commands() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]string(nil), s.commands...)
}

// Close stops accepting connections, closes the open ones and waits for all
// connection handlers to return.
func (s *Server) Close() error {
	s.mu.Lock()
	s.closed = true
	err := s.ln.Close()
	for conn := range s.conns {
		_ = conn.Close()
	}
	s.mu.Unlock()

	s.wg.Wait()
	return err
}

func (s *Server) accept() {
	defer s.wg.Done()

	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}

		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			_ = conn.Close()
			return
		}
		s.conns[conn] = struct{}{}
		s.wg.Add(1)
		s.mu.Unlock()

		go s.serve(conn)
	}
}

func (s *Server) serve(conn net.Conn) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		_ = conn.Close()
	}()

	for {
		requestID, opcode, body, err := readMessage(conn)
		if err != nil {
			return
		}

		var reply []byte
		switch opcode {
		case wiremessage.OpMsg:
			cmd, err := readMsgCommand(body)
			if err != nil {
				return
			}
			if reply, err = appendMsgReply(requestID, s.reply(cmd)); err != nil {
				return
			}
		case wiremessage.OpQuery:
			cmd, err := readQueryCommand(body)
			if err != nil {
				return
			}
			if reply, err = appendQueryReply(requestID, s.reply(cmd)); err != nil {
				return
			}
		default:
			return
		}

		if _, err := conn.Write(reply); err != nil {
			return
		}
	}
}

func (s *Server) reply(cmd bson.Raw) bson.D {
	name := cmd.Index(0).Key()
	if handshakeCommands[name] {
		return helloReply()
	}
	// sent by Client.Disconnect
	if name == "endSessions" {
		return OK()
	}

	s.mu.Lock()
	s.commands = append(s.commands, name)
	s.mu.Unlock()

	if reply, ok := s.replies[name]; ok {
		return reply
	}
	return OK()
}

func helloReply() bson.D {
	return bson.D{
		{"helloOk", true},
		{"isWritablePrimary", true},
		{"ismaster", true},
		{"maxBsonObjectSize", int32(16 * 1024 * 1024)},
		{"maxMessageSizeBytes", int32(48000000)},
		{"maxWriteBatchSize", int32(100000)},
		{"logicalSessionTimeoutMinutes", int32(30)},
		{"minWireVersion", int32(0)},
		{"maxWireVersion", int32(MaxWireVersion)},
		{"ok", 1.0},
	}
}

// readMessage reads one wire message and returns its request ID, opcode and
// the bytes after the header.
func readMessage(r io.Reader) (int32, wiremessage.OpCode, []byte, error) {
	header := make([]byte, 16)
	if _, err := io.ReadFull(r, header); err != nil {
		return 0, 0, nil, err
	}

	length, requestID, _, opcode, _, ok := wiremessage.ReadHeader(header)
	if !ok || length < 16 {
		return 0, 0, nil, errors.New("malformed message header")
	}

	body := make([]byte, length-16)
	if _, err := io.ReadFull(r, body); err != nil {
		return 0, 0, nil, err
	}
	return requestID, opcode, body, nil
}

func readMsgCommand(body []byte) (bson.Raw, error) {
	_, rem, ok := wiremessage.ReadMsgFlags(body)
	if !ok {
		return nil, errors.New("malformed OP_MSG flags")
	}

	stype, rem, ok := wiremessage.ReadMsgSectionType(rem)
	if !ok {
		return nil, errors.New("malformed OP_MSG section")
	}
	if stype != wiremessage.SingleDocument {
		return nil, errors.Errorf("unsupported OP_MSG section type %v", stype)
	}

	doc, _, ok := wiremessage.ReadMsgSectionSingleDocument(rem)
	if !ok {
		return nil, errors.New("malformed OP_MSG body")
	}
	return bson.Raw(doc), nil
}

func readQueryCommand(body []byte) (bson.Raw, error) {
	_, rem, ok := wiremessage.ReadQueryFlags(body)
	if !ok {
		return nil, errors.New("malformed OP_QUERY flags")
	}
	if _, rem, ok = wiremessage.ReadQueryFullCollectionName(rem); !ok {
		return nil, errors.New("malformed OP_QUERY namespace")
	}
	if _, rem, ok = wiremessage.ReadQueryNumberToSkip(rem); !ok {
		return nil, errors.New("malformed OP_QUERY numberToSkip")
	}
	if _, rem, ok = wiremessage.ReadQueryNumberToReturn(rem); !ok {
		return nil, errors.New("malformed OP_QUERY numberToReturn")
	}
	doc, _, ok := wiremessage.ReadQueryQuery(rem)
	if !ok {
		return nil, errors.New("malformed OP_QUERY query")
	}

	// {$query: <command>, $readPreference: ...}
	if wrapped, err := bson.Raw(doc).LookupErr("$query"); err == nil {
		if cmd, ok := wrapped.DocumentOK(); ok {
			return cmd, nil
		}
	}
	return bson.Raw(doc), nil
}

func appendMsgReply(responseTo int32, reply bson.D) ([]byte, error) {
	doc, err := bson.Marshal(reply)
	if err != nil {
		return nil, err
	}

	idx, wm := wiremessage.AppendHeaderStart(nil, wiremessage.NextRequestID(), responseTo, wiremessage.OpMsg)
	wm = wiremessage.AppendMsgFlags(wm, 0)
	wm = wiremessage.AppendMsgSectionType(wm, wiremessage.SingleDocument)
	wm = bsoncore.AppendDocument(wm, doc)
	return bsoncore.UpdateLength(wm, idx, int32(len(wm[idx:]))), nil
}

func appendQueryReply(responseTo int32, reply bson.D) ([]byte, error) {
	doc, err := bson.Marshal(reply)
	if err != nil {
		return nil, err
	}

	idx, wm := wiremessage.AppendHeaderStart(nil, wiremessage.NextRequestID(), responseTo, wiremessage.OpReply)
	wm = bsoncore.AppendInt32(wm, 0) // response flags
	wm = bsoncore.AppendInt64(wm, 0) // cursor ID
	wm = bsoncore.AppendInt32(wm, 0) // starting from
	wm = bsoncore.AppendInt32(wm, 1) // number returned
	wm = bsoncore.AppendDocument(wm, doc)
	return bsoncore.UpdateLength(wm, idx, int32(len(wm[idx:]))), nil
}
