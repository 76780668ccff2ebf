package producer

import (
	"context"

	"google.golang.org/grpc/metadata"

	"github.com/dazzleduck/flightsql-server/internal/auth"
	"github.com/dazzleduck/flightsql-server/internal/authz"
	"github.com/dazzleduck/flightsql-server/internal/engine/enginetest"
	"github.com/dazzleduck/flightsql-server/internal/model"
	"github.com/dazzleduck/flightsql-server/internal/policy"
	"github.com/dazzleduck/flightsql-server/internal/registry"
)

var testSecret = []byte("producer-test-secret")

func newTestServer(rows []model.AccessRow, mode authz.Mode) *Server {
	verifier := auth.NewVerifier(testSecret)
	store := policy.NewStaticStore(rows)
	srv := New(verifier, store, mode, nil, enginetest.New(), registry.New(), nil)
	return srv
}

// authedContext builds a context carrying a valid bearer token for user,
// the shape every RPC entry point requires before it can see headers.
func authedContext(user string, groups []string) context.Context {
	verifier := auth.NewVerifier(testSecret)
	token, err := verifier.Sign(user, groups)
	if err != nil {
		panic(err)
	}
	md := metadata.Pairs("authorization", "Bearer "+token)
	return metadata.NewIncomingContext(context.Background(), md)
}

func withHeaders(ctx context.Context, kv map[string]string) context.Context {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		md = metadata.MD{}
	} else {
		md = md.Copy()
	}
	for k, v := range kv {
		md.Set(k, v)
	}
	return metadata.NewIncomingContext(ctx, md)
}

// fakeServerStream is the minimal grpc.ServerStream double the DoGet/DoAction
// fakes below embed; every RPC under test only ever touches Context().
type fakeServerStream struct {
	ctx context.Context
}

func (f *fakeServerStream) SetHeader(metadata.MD) error { return nil }
func (f *fakeServerStream) SendHeader(metadata.MD) error { return nil }
func (f *fakeServerStream) SetTrailer(metadata.MD)       {}
func (f *fakeServerStream) Context() context.Context     { return f.ctx }
func (f *fakeServerStream) SendMsg(m interface{}) error  { return nil }
func (f *fakeServerStream) RecvMsg(m interface{}) error  { return nil }
