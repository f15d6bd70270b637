package main

import (
	"context"
	"testing"

	txm "github.com/Astronomax/transaction-manager"
)

func TestServerInsertCommitGet(t *testing.T) {
	s := newServer(txm.DefaultConfig())
	defer s.engine.Close()
	ctx := context.Background()

	if resp, err := s.Begin(ctx, &beginRequest{sessionRequest{Session: "a"}}); err != nil || resp.Error != "" {
		t.Fatalf("Begin: err=%v resp=%+v", err, resp)
	}

	insResp, err := s.Insert(ctx, &dmlRequest{sessionRequest: sessionRequest{Session: "a"}, Key: 5, Payload: "hello"})
	if err != nil || insResp.Error != "" {
		t.Fatalf("Insert: err=%v resp=%+v", err, insResp)
	}

	if resp, err := s.Commit(ctx, &commitRequest{sessionRequest{Session: "a"}}); err != nil || resp.Error != "" {
		t.Fatalf("Commit: err=%v resp=%+v", err, resp)
	}

	if _, err := s.Begin(ctx, &beginRequest{sessionRequest{Session: "b"}}); err != nil {
		t.Fatalf("Begin(b): %v", err)
	}
	getResp, err := s.Get(ctx, &dmlRequest{sessionRequest: sessionRequest{Session: "b"}, Key: 5})
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !getResp.Found || getResp.Payload != "hello" {
		t.Fatalf("Get = %+v, want found hello", getResp)
	}
}

func TestServerDuplicateInsertFails(t *testing.T) {
	s := newServer(txm.DefaultConfig())
	defer s.engine.Close()
	ctx := context.Background()

	mustBegin(t, s, "a")
	mustInsert(t, s, "a", 5, "x")
	mustCommit(t, s, "a")

	mustBegin(t, s, "b")
	resp, err := s.Insert(ctx, &dmlRequest{sessionRequest: sessionRequest{Session: "b"}, Key: 5, Payload: "y"})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if resp.Error == "" {
		t.Fatalf("expected duplicate-key error, got none")
	}
}

func mustBegin(t *testing.T, s *server, session string) {
	t.Helper()
	resp, err := s.Begin(context.Background(), &beginRequest{sessionRequest{Session: session}})
	if err != nil || resp.Error != "" {
		t.Fatalf("Begin(%s): err=%v resp=%+v", session, err, resp)
	}
}

func mustInsert(t *testing.T, s *server, session string, key int64, payload any) {
	t.Helper()
	resp, err := s.Insert(context.Background(), &dmlRequest{sessionRequest: sessionRequest{Session: session}, Key: key, Payload: payload})
	if err != nil || resp.Error != "" {
		t.Fatalf("Insert(%s): err=%v resp=%+v", session, err, resp)
	}
}

func mustCommit(t *testing.T, s *server, session string) {
	t.Helper()
	resp, err := s.Commit(context.Background(), &commitRequest{sessionRequest{Session: session}})
	if err != nil || resp.Error != "" {
		t.Fatalf("Commit(%s): err=%v resp=%+v", session, err, resp)
	}
}
