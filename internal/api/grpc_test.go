package api

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/SrJCBM/BDD-Avanzada/internal/store"
	"github.com/SrJCBM/BDD-Avanzada/internal/tables"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

func newTestGRPCClient(t *testing.T, seed string, leader Leadership) *GRPCClient {
	t.Helper()
	path := filepath.Join(t.TempDir(), "seed.json")
	require.NoError(t, os.WriteFile(path, []byte(seed), 0o644))

	svc := tables.NewService(store.NewMemStore(), tables.WithSeedFile(path))
	impl := NewGRPCServer(svc)
	impl.Leader = leader

	lis := bufconn.Listen(1 << 20)
	gs := grpc.NewServer()
	RegisterTableServiceServer(gs, impl)
	go gs.Serve(lis)
	t.Cleanup(gs.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return NewGRPCClient(conn)
}

func TestGRPC_SeedGetList(t *testing.T) {
	ctx := context.Background()
	c := newTestGRPCClient(t, `{"clientes":[{"id":1,"nombre":"A"},{"id":2,"nombre":"B"}]}`, nil)

	out, err := c.Seed(ctx)
	require.NoError(t, err)
	m := out.AsMap()
	assert.Equal(t, []interface{}{"clientes"}, m["tables"])
	assert.Equal(t, float64(2), m["totalRecords"])

	out, err = c.Get(ctx, "clientes", "1")
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"id": float64(1), "nombre": "A"}, out.AsMap()["data"])

	out, err = c.List(ctx, "clientes")
	require.NoError(t, err)
	assert.Equal(t, float64(2), out.AsMap()["count"])
	assert.Len(t, out.AsMap()["data"], 2)
}

func TestGRPC_Put(t *testing.T) {
	ctx := context.Background()
	c := newTestGRPCClient(t, `{}`, nil)

	out, err := c.Put(ctx, "productos", []byte(`{"id":7,"nombre":"X"}`))
	require.NoError(t, err)
	assert.Equal(t, float64(7), out.AsMap()["id"])
	assert.Equal(t, "productos", out.AsMap()["table"])

	out, err = c.Get(ctx, "productos", "7")
	require.NoError(t, err)
	assert.Equal(t, "X", out.AsMap()["data"].(map[string]interface{})["nombre"])
}

func TestGRPC_ErrorCodes(t *testing.T) {
	ctx := context.Background()
	c := newTestGRPCClient(t, `{"clientes": 5}`, nil)

	_, err := c.Put(ctx, "productos", []byte(`{"nombre":"X"}`))
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = c.Get(ctx, "productos", "404")
	assert.Equal(t, codes.NotFound, status.Code(err))

	_, err = c.Get(ctx, "", "1")
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = c.Seed(ctx)
	assert.Equal(t, codes.Internal, status.Code(err))
}

func TestGRPC_FollowerRejectsWrites(t *testing.T) {
	ctx := context.Background()
	c := newTestGRPCClient(t, `{}`, fakeLeader{addr: "10.0.0.5:7001"})

	_, err := c.Put(ctx, "productos", []byte(`{"id":1}`))
	assert.Equal(t, codes.FailedPrecondition, status.Code(err))

	_, err = c.List(ctx, "productos")
	assert.NoError(t, err)
}
