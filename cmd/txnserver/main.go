// Command txnserver is a thin, illustrative gRPC/HTTP wrapper around the
// txm engine (SPEC_FULL.md §4.M). It is a convenience shell, not a wire
// protocol the engine depends on: every RPC here is a direct call into
// txm.Engine, serialized to/from JSON by hand, in the same spirit as the
// teacher's cmd/server — no protobuf codegen, a manual grpc.ServiceDesc,
// and a gRPC JSON codec shared with a parallel net/http mux.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"net"
	"net/http"
	"sync"

	"google.golang.org/grpc"

	txm "github.com/Astronomax/transaction-manager"
	"github.com/Astronomax/transaction-manager/internal/gcsched"
	"github.com/Astronomax/transaction-manager/internal/mvcc"
)

var (
	flagHTTP   = flag.String("http", ":8080", "HTTP listen address (empty to disable)")
	flagGRPC   = flag.String("grpc", ":9090", "gRPC listen address (empty to disable)")
	flagConfig = flag.String("config", "", "path to a YAML config file (defaults if empty or missing)")
)

// sessionRequest carries the caller's session id alongside whatever a given
// RPC needs; txnserver keeps one txm.Fiber per session id so repeated
// Begin/Insert/Commit calls from the same client share a transaction.
type sessionRequest struct {
	Session string `json:"session"`
}

type beginRequest struct {
	sessionRequest
}
type beginResponse struct {
	Error string `json:"error,omitempty"`
}

type commitRequest struct {
	sessionRequest
}
type commitResponse struct {
	Error string `json:"error,omitempty"`
}

type rollbackRequest struct {
	sessionRequest
}
type rollbackResponse struct {
	Error string `json:"error,omitempty"`
}

type dmlRequest struct {
	sessionRequest
	Space   string `json:"space"`
	Key     int64  `json:"key"`
	Payload any    `json:"payload,omitempty"`
}
type dmlResponse struct {
	Payload any    `json:"payload,omitempty"`
	Found   bool   `json:"found"`
	Error   string `json:"error,omitempty"`
}

// record is the demo space's tuple payload: a key plus an arbitrary
// user-supplied value, so the space's KeyFunc never has to guess the
// concrete numeric type JSON decoding handed it.
type record struct {
	Key   int64
	Value any
}

// jsonCodec lets the gRPC server/client exchange plain JSON bodies instead
// of protobuf-encoded ones, matching the teacher's manual-codec approach.
type jsonCodec struct{}

func (jsonCodec) Name() string                       { return "json" }
func (jsonCodec) Marshal(v any) ([]byte, error)       { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

// TxnServer is the RPC surface exposed over gRPC; server implements it.
type TxnServer interface {
	Begin(context.Context, *beginRequest) (*beginResponse, error)
	Commit(context.Context, *commitRequest) (*commitResponse, error)
	Rollback(context.Context, *rollbackRequest) (*rollbackResponse, error)
	Insert(context.Context, *dmlRequest) (*dmlResponse, error)
	Replace(context.Context, *dmlRequest) (*dmlResponse, error)
	Delete(context.Context, *dmlRequest) (*dmlResponse, error)
	Get(context.Context, *dmlRequest) (*dmlResponse, error)
}

func registerTxnServer(s *grpc.Server, srv TxnServer) {
	s.RegisterService(&grpc.ServiceDesc{
		ServiceName: "txnserver.Txn",
		HandlerType: (*TxnServer)(nil),
		Methods: []grpc.MethodDesc{
			{MethodName: "Begin", Handler: _Txn_Begin_Handler},
			{MethodName: "Commit", Handler: _Txn_Commit_Handler},
			{MethodName: "Rollback", Handler: _Txn_Rollback_Handler},
			{MethodName: "Insert", Handler: _Txn_Insert_Handler},
			{MethodName: "Replace", Handler: _Txn_Replace_Handler},
			{MethodName: "Delete", Handler: _Txn_Delete_Handler},
			{MethodName: "Get", Handler: _Txn_Get_Handler},
		},
		Streams:  []grpc.StreamDesc{},
		Metadata: "txnserver",
	}, srv)
}

func _Txn_Begin_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(beginRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(TxnServer).Begin(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/txnserver.Txn/Begin"}
	handler := func(ctx context.Context, req any) (any, error) { return srv.(TxnServer).Begin(ctx, req.(*beginRequest)) }
	return interceptor(ctx, in, info, handler)
}

func _Txn_Commit_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(commitRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(TxnServer).Commit(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/txnserver.Txn/Commit"}
	handler := func(ctx context.Context, req any) (any, error) { return srv.(TxnServer).Commit(ctx, req.(*commitRequest)) }
	return interceptor(ctx, in, info, handler)
}

func _Txn_Rollback_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(rollbackRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(TxnServer).Rollback(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/txnserver.Txn/Rollback"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(TxnServer).Rollback(ctx, req.(*rollbackRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _Txn_Insert_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(dmlRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(TxnServer).Insert(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/txnserver.Txn/Insert"}
	handler := func(ctx context.Context, req any) (any, error) { return srv.(TxnServer).Insert(ctx, req.(*dmlRequest)) }
	return interceptor(ctx, in, info, handler)
}

func _Txn_Replace_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(dmlRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(TxnServer).Replace(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/txnserver.Txn/Replace"}
	handler := func(ctx context.Context, req any) (any, error) { return srv.(TxnServer).Replace(ctx, req.(*dmlRequest)) }
	return interceptor(ctx, in, info, handler)
}

func _Txn_Delete_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(dmlRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(TxnServer).Delete(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/txnserver.Txn/Delete"}
	handler := func(ctx context.Context, req any) (any, error) { return srv.(TxnServer).Delete(ctx, req.(*dmlRequest)) }
	return interceptor(ctx, in, info, handler)
}

func _Txn_Get_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(dmlRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(TxnServer).Get(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/txnserver.Txn/Get"}
	handler := func(ctx context.Context, req any) (any, error) { return srv.(TxnServer).Get(ctx, req.(*dmlRequest)) }
	return interceptor(ctx, in, info, handler)
}

// server owns the engine plus one demo space ("default") and maps session
// ids to the fiber that tracks each session's in-progress transaction.
type server struct {
	engine *txm.Engine
	space  *mvcc.Space

	mu      sync.Mutex
	fibers  map[string]*txm.Fiber
}

// secondaryValueKey indexes the demo space on the user-supplied payload
// itself, not just its primary key, so the server exercises a genuine
// second index rather than a duplicate of the primary one. Non-numeric
// payloads fall back to the row's own key, which is already guaranteed
// unique by the primary index.
func secondaryValueKey(t *mvcc.Tuple) int64 {
	rec := t.Payload.(record)
	switch v := rec.Value.(type) {
	case int64:
		return v
	case float64:
		return int64(v)
	default:
		return rec.Key
	}
}

func newServer(cfg txm.Config) *server {
	eng := txm.NewEngine(cfg)
	primaryKey := func(t *mvcc.Tuple) int64 { return t.Payload.(record).Key }
	sp, err := eng.Catalog().CreateSpace("default", primaryKey, secondaryValueKey)
	if err != nil {
		log.Fatalf("txnserver: creating default space: %v", err)
	}
	return &server{
		engine: eng,
		space:  sp,
		fibers: make(map[string]*txm.Fiber),
	}
}

func (s *server) fiberFor(session string) *txm.Fiber {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.fibers[session]
	if !ok {
		f = txm.NewFiber()
		s.fibers[session] = f
	}
	return f
}

func (s *server) Begin(ctx context.Context, req *beginRequest) (*beginResponse, error) {
	fiber := s.fiberFor(req.Session)
	if err := s.engine.Begin(fiber); err != nil {
		return &beginResponse{Error: err.Error()}, nil
	}
	return &beginResponse{}, nil
}

func (s *server) Commit(ctx context.Context, req *commitRequest) (*commitResponse, error) {
	fiber := s.fiberFor(req.Session)
	if err := s.engine.Commit(fiber); err != nil {
		return &commitResponse{Error: err.Error()}, nil
	}
	return &commitResponse{}, nil
}

func (s *server) Rollback(ctx context.Context, req *rollbackRequest) (*rollbackResponse, error) {
	fiber := s.fiberFor(req.Session)
	if err := s.engine.Rollback(fiber); err != nil {
		return &rollbackResponse{Error: err.Error()}, nil
	}
	return &rollbackResponse{}, nil
}

func (s *server) Insert(ctx context.Context, req *dmlRequest) (*dmlResponse, error) {
	fiber := s.fiberFor(req.Session)
	tuple := mvcc.NewTuple(record{Key: req.Key, Value: req.Payload})
	_, err := s.engine.Insert(fiber, s.space, tuple)
	if err != nil {
		return &dmlResponse{Error: err.Error()}, nil
	}
	return &dmlResponse{Payload: req.Payload, Found: true}, nil
}

func (s *server) Replace(ctx context.Context, req *dmlRequest) (*dmlResponse, error) {
	fiber := s.fiberFor(req.Session)
	tuple := mvcc.NewTuple(record{Key: req.Key, Value: req.Payload})
	_, err := s.engine.Replace(fiber, s.space, tuple)
	if err != nil {
		return &dmlResponse{Error: err.Error()}, nil
	}
	return &dmlResponse{Payload: req.Payload, Found: true}, nil
}

func (s *server) Delete(ctx context.Context, req *dmlRequest) (*dmlResponse, error) {
	fiber := s.fiberFor(req.Session)
	old, err := s.engine.Delete(fiber, s.space, req.Key)
	if err != nil {
		return &dmlResponse{Error: err.Error()}, nil
	}
	return &dmlResponse{Payload: tuplePayload(old), Found: old != nil}, nil
}

func (s *server) Get(ctx context.Context, req *dmlRequest) (*dmlResponse, error) {
	fiber := s.fiberFor(req.Session)
	tuple, err := s.engine.Get(fiber, s.space, req.Key)
	if err != nil {
		return &dmlResponse{Error: err.Error()}, nil
	}
	return &dmlResponse{Payload: tuplePayload(tuple), Found: tuple != nil}, nil
}

func tuplePayload(t *mvcc.Tuple) any {
	if t == nil {
		return nil
	}
	if rec, ok := t.Payload.(record); ok {
		return rec.Value
	}
	return t.Payload
}

// HTTP handlers mirror the gRPC methods one-for-one over JSON, reusing the
// exact same server methods — the wire format is the only thing that
// differs.
func (s *server) httpBegin(w http.ResponseWriter, r *http.Request) {
	var req beginRequest
	if !decodeOrBadRequest(w, r, &req) {
		return
	}
	resp, _ := s.Begin(r.Context(), &req)
	writeJSON(w, resp)
}

func (s *server) httpCommit(w http.ResponseWriter, r *http.Request) {
	var req commitRequest
	if !decodeOrBadRequest(w, r, &req) {
		return
	}
	resp, _ := s.Commit(r.Context(), &req)
	writeJSON(w, resp)
}

func (s *server) httpRollback(w http.ResponseWriter, r *http.Request) {
	var req rollbackRequest
	if !decodeOrBadRequest(w, r, &req) {
		return
	}
	resp, _ := s.Rollback(r.Context(), &req)
	writeJSON(w, resp)
}

func (s *server) httpInsert(w http.ResponseWriter, r *http.Request) {
	var req dmlRequest
	if !decodeOrBadRequest(w, r, &req) {
		return
	}
	resp, _ := s.Insert(r.Context(), &req)
	writeJSON(w, resp)
}

func (s *server) httpReplace(w http.ResponseWriter, r *http.Request) {
	var req dmlRequest
	if !decodeOrBadRequest(w, r, &req) {
		return
	}
	resp, _ := s.Replace(r.Context(), &req)
	writeJSON(w, resp)
}

func (s *server) httpDelete(w http.ResponseWriter, r *http.Request) {
	var req dmlRequest
	if !decodeOrBadRequest(w, r, &req) {
		return
	}
	resp, _ := s.Delete(r.Context(), &req)
	writeJSON(w, resp)
}

func (s *server) httpGet(w http.ResponseWriter, r *http.Request) {
	var req dmlRequest
	if !decodeOrBadRequest(w, r, &req) {
		return
	}
	resp, _ := s.Get(r.Context(), &req)
	writeJSON(w, resp)
}

func decodeOrBadRequest(w http.ResponseWriter, r *http.Request, v any) bool {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, "invalid JSON: "+err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func main() {
	flag.Parse()

	cfg, err := txm.LoadConfig(*flagConfig)
	if err != nil {
		log.Fatalf("txnserver: loading config: %v", err)
	}

	srv := newServer(cfg)
	defer srv.engine.Close()

	sweeper, err := gcsched.New(srv.engine.Manager(), cfg.SweepCronExpr, cfg.GCStepsSize, cfg.LogVerbose)
	if err != nil {
		log.Fatalf("txnserver: building GC scheduler: %v", err)
	}
	sweeper.Start()
	defer sweeper.Stop()

	if *flagGRPC != "" {
		go func() {
			lis, err := net.Listen("tcp", *flagGRPC)
			if err != nil {
				log.Printf("gRPC listen error: %v", err)
				return
			}
			gs := grpc.NewServer()
			registerTxnServer(gs, srv)
			log.Printf("gRPC listening on %s", *flagGRPC)
			if err := gs.Serve(lis); err != nil {
				log.Printf("gRPC serve error: %v", err)
			}
		}()
	}

	if *flagHTTP != "" {
		mux := http.NewServeMux()
		mux.HandleFunc("/api/begin", srv.httpBegin)
		mux.HandleFunc("/api/commit", srv.httpCommit)
		mux.HandleFunc("/api/rollback", srv.httpRollback)
		mux.HandleFunc("/api/insert", srv.httpInsert)
		mux.HandleFunc("/api/replace", srv.httpReplace)
		mux.HandleFunc("/api/delete", srv.httpDelete)
		mux.HandleFunc("/api/get", srv.httpGet)
		log.Printf("HTTP listening on %s", *flagHTTP)
		if err := http.ListenAndServe(*flagHTTP, mux); err != nil {
			log.Fatalf("HTTP serve error: %v", err)
		}
	} else {
		select {}
	}
}
