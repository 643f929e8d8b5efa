package api

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"

	"github.com/SrJCBM/BDD-Avanzada/internal/tables"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// The gRPC service exchanges google.protobuf.Struct messages, so records of
// any shape pass through without generated types.
//
//	Seed {}                       -> {tables, totalRecords, elapsedMs}
//	Put  {table, record}          -> {table, id, data}
//	Get  {table, id}              -> {table, id, data}
//	List {table}                  -> {table, count, data}
const (
	serviceName = "tables.v1.TableService"
	methodSeed  = "/" + serviceName + "/Seed"
	methodPut   = "/" + serviceName + "/Put"
	methodGet   = "/" + serviceName + "/Get"
	methodList  = "/" + serviceName + "/List"
)

// TableServiceServer is the server API for the table service.
type TableServiceServer interface {
	Seed(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Put(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Get(context.Context, *structpb.Struct) (*structpb.Struct, error)
	List(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type unaryCall func(TableServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(fullMethod string, call unaryCall) func(interface{}, context.Context, func(interface{}) error, grpc.UnaryServerInterceptor) (interface{}, error) {
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(TableServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req interface{}) (interface{}, error) {
			return call(srv.(TableServiceServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// TableServiceDesc describes the service for grpc.Server.RegisterService.
var TableServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*TableServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Seed", Handler: unaryHandler(methodSeed, TableServiceServer.Seed)},
		{MethodName: "Put", Handler: unaryHandler(methodPut, TableServiceServer.Put)},
		{MethodName: "Get", Handler: unaryHandler(methodGet, TableServiceServer.Get)},
		{MethodName: "List", Handler: unaryHandler(methodList, TableServiceServer.List)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "tables.proto",
}

// RegisterTableServiceServer registers srv on s.
func RegisterTableServiceServer(s grpc.ServiceRegistrar, srv TableServiceServer) {
	s.RegisterService(&TableServiceDesc, srv)
}

// GRPCServer implements TableServiceServer.
// It wraps a tables.Service and exposes it over gRPC.
type GRPCServer struct {
	Tables *tables.Service
	Leader Leadership
}

var _ TableServiceServer = (*GRPCServer)(nil)

// NewGRPCServer creates a new gRPC server with the given service.
func NewGRPCServer(svc *tables.Service) *GRPCServer {
	return &GRPCServer{
		Tables: svc,
	}
}

func (s *GRPCServer) checkLeader() error {
	if s.Leader == nil || s.Leader.IsLeader() {
		return nil
	}
	if addr := s.Leader.LeaderAddr(); addr != "" {
		return status.Errorf(codes.FailedPrecondition, "not leader; leader is %s", addr)
	}
	return status.Error(codes.Unavailable, "not leader and no leader known")
}

// Seed reloads every table from the configured seed file.
func (s *GRPCServer) Seed(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	if err := s.checkLeader(); err != nil {
		return nil, err
	}
	res, err := s.Tables.Seed(ctx)
	if err != nil {
		return nil, toStatus(err)
	}

	names := make([]interface{}, len(res.Tables))
	for i, t := range res.Tables {
		names[i] = t
	}
	return newStruct(map[string]interface{}{
		"tables":       names,
		"totalRecords": res.TotalRecords,
		"elapsedMs":    res.Elapsed.Milliseconds(),
	})
}

// Put creates or replaces the record in the "record" field.
func (s *GRPCServer) Put(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if err := s.checkLeader(); err != nil {
		return nil, err
	}
	table := stringField(req, "table")
	if table == "" {
		return nil, status.Error(codes.InvalidArgument, "table is required")
	}
	recVal, ok := req.GetFields()["record"]
	if !ok {
		return nil, status.Error(codes.InvalidArgument, "record is required")
	}
	body, err := recVal.MarshalJSON()
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "invalid record: %v", err)
	}

	res, err := s.Tables.Put(ctx, table, body)
	if err != nil {
		return nil, toStatus(err)
	}

	var id interface{}
	if err := json.Unmarshal(res.ID, &id); err != nil {
		return nil, status.Errorf(codes.Internal, "could not encode id: %v", err)
	}
	data, err := recordValue(res.Record)
	if err != nil {
		return nil, err
	}
	return newStruct(map[string]interface{}{"table": res.Table, "id": id, "data": data})
}

// Get fetches one record by table and id.
func (s *GRPCServer) Get(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	table, id := stringField(req, "table"), stringField(req, "id")
	if table == "" || id == "" {
		return nil, status.Error(codes.InvalidArgument, "table and id are required")
	}

	rec, err := s.Tables.Get(ctx, table, id)
	if err != nil {
		return nil, toStatus(err)
	}
	data, err := recordValue(rec)
	if err != nil {
		return nil, err
	}
	return newStruct(map[string]interface{}{"table": table, "id": id, "data": data})
}

// List returns every record of a table.
func (s *GRPCServer) List(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	table := stringField(req, "table")
	if table == "" {
		return nil, status.Error(codes.InvalidArgument, "table is required")
	}

	records, err := s.Tables.List(ctx, table)
	if err != nil {
		return nil, toStatus(err)
	}
	data := make([]interface{}, len(records))
	for i, rec := range records {
		v, err := recordValue(rec)
		if err != nil {
			return nil, err
		}
		data[i] = v
	}
	return newStruct(map[string]interface{}{"table": table, "count": len(records), "data": data})
}

// toStatus maps table errors to gRPC status codes.
func toStatus(err error) error {
	var te *tables.Error
	if !errors.As(err, &te) {
		return status.Error(codes.Internal, err.Error())
	}
	msg := te.Summary
	if d := te.Detail(); d != "" {
		msg += ": " + d
	}
	switch te.Kind {
	case tables.KindInvalid:
		return status.Error(codes.InvalidArgument, msg)
	case tables.KindNotFound:
		return status.Errorf(codes.NotFound, "%s: %s/%s", msg, te.Table, te.ID)
	}
	return status.Error(codes.Internal, msg)
}

// stringField reads a string or number field; numbers use their shortest
// decimal form so {"id": 1} addresses the record stored as "1".
func stringField(s *structpb.Struct, name string) string {
	v, ok := s.GetFields()[name]
	if !ok {
		return ""
	}
	switch k := v.GetKind().(type) {
	case *structpb.Value_StringValue:
		return k.StringValue
	case *structpb.Value_NumberValue:
		return strconv.FormatFloat(k.NumberValue, 'f', -1, 64)
	}
	return ""
}

func recordValue(rec tables.Record) (map[string]interface{}, error) {
	var m map[string]interface{}
	if err := json.Unmarshal(rec.Bytes(), &m); err != nil {
		return nil, status.Errorf(codes.Internal, "could not decode record: %v", err)
	}
	return m, nil
}

func newStruct(m map[string]interface{}) (*structpb.Struct, error) {
	s, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "could not encode response: %v", err)
	}
	return s, nil
}

// GRPCClient calls a remote TableService.
type GRPCClient struct {
	cc grpc.ClientConnInterface
}

func NewGRPCClient(cc grpc.ClientConnInterface) *GRPCClient {
	return &GRPCClient{cc: cc}
}

func (c *GRPCClient) invoke(ctx context.Context, method string, in map[string]interface{}) (*structpb.Struct, error) {
	req, err := structpb.NewStruct(in)
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, method, req, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *GRPCClient) Seed(ctx context.Context) (*structpb.Struct, error) {
	return c.invoke(ctx, methodSeed, map[string]interface{}{})
}

// Put sends record, which must be a JSON object.
func (c *GRPCClient) Put(ctx context.Context, table string, record []byte) (*structpb.Struct, error) {
	var rec map[string]interface{}
	if err := json.Unmarshal(record, &rec); err != nil {
		return nil, err
	}
	return c.invoke(ctx, methodPut, map[string]interface{}{"table": table, "record": rec})
}

func (c *GRPCClient) Get(ctx context.Context, table, id string) (*structpb.Struct, error) {
	return c.invoke(ctx, methodGet, map[string]interface{}{"table": table, "id": id})
}

func (c *GRPCClient) List(ctx context.Context, table string) (*structpb.Struct, error) {
	return c.invoke(ctx, methodList, map[string]interface{}{"table": table})
}
