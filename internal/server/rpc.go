package server

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"

	"accessguard/internal/platform/apperr"
)

// The API carries google.protobuf.Struct messages in both directions so that it can be served
// without generated stubs. Each service is described by hand below.

type unaryFunc func(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)

// rpcService is a hand-built gRPC service: a name and its unary methods.
type rpcService struct {
	name    string
	methods map[string]unaryFunc
}

func (s rpcService) fullMethod(method string) string {
	return "/" + s.name + "/" + method
}

// desc builds the grpc.ServiceDesc. Handlers are closures, so the registered implementation is
// only a placeholder.
func (s rpcService) desc() *grpc.ServiceDesc {
	d := &grpc.ServiceDesc{
		ServiceName: s.name,
		HandlerType: (*interface{})(nil),
		Metadata:    s.name,
	}
	for name, fn := range s.methods {
		d.Methods = append(d.Methods, grpc.MethodDesc{
			MethodName: name,
			Handler:    unaryHandler(s.fullMethod(name), fn),
		})
	}
	return d
}

func unaryHandler(fullMethod string, fn unaryFunc) func(interface{}, context.Context, func(interface{}) error, grpc.UnaryServerInterceptor) (interface{}, error) {
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		call := func(ctx context.Context, req interface{}) (interface{}, error) {
			out, err := fn(ctx, req.(*structpb.Struct))
			if err != nil {
				return nil, apperr.GRPCStatus(err)
			}
			return out, nil
		}
		if interceptor == nil {
			return call(ctx, in)
		}
		return interceptor(ctx, in, &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}, call)
	}
}

// register adds every service to s.
func register(s grpc.ServiceRegistrar, services ...rpcService) {
	for _, svc := range services {
		s.RegisterService(svc.desc(), struct{}{})
	}
}

// args reads typed fields from a request struct. Missing fields read as zero values.
type args struct{ fields map[string]*structpb.Value }

func argsOf(req *structpb.Struct) args {
	if req == nil {
		return args{}
	}
	return args{fields: req.GetFields()}
}

func (a args) str(key string) string {
	return strings.TrimSpace(a.fields[key].GetStringValue())
}

// raw returns a string field untrimmed, for secrets.
func (a args) raw(key string) string {
	return a.fields[key].GetStringValue()
}

func (a args) boolean(key string) bool {
	return a.fields[key].GetBoolValue()
}

func (a args) integer(key string) (int, error) {
	v, ok := a.fields[key]
	if !ok || v == nil {
		return 0, nil
	}
	switch k := v.GetKind().(type) {
	case *structpb.Value_NumberValue:
		return int(k.NumberValue), nil
	case *structpb.Value_StringValue:
		n, err := strconv.Atoi(strings.TrimSpace(k.StringValue))
		if err != nil {
			return 0, apperr.Validation(fmt.Sprintf("%s must be an integer", key))
		}
		return n, nil
	default:
		return 0, apperr.Validation(fmt.Sprintf("%s must be an integer", key))
	}
}

func (a args) strings(key string) []string {
	list := a.fields[key].GetListValue()
	if list == nil {
		if s := a.str(key); s != "" {
			return []string{s}
		}
		return nil
	}
	out := make([]string, 0, len(list.GetValues()))
	for _, v := range list.GetValues() {
		if s := strings.TrimSpace(v.GetStringValue()); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func (a args) object(key string) map[string]any {
	s := a.fields[key].GetStructValue()
	if s == nil {
		return nil
	}
	return s.AsMap()
}

// time parses an RFC 3339 field; an empty field returns def.
func (a args) time(key string, def time.Time) (time.Time, error) {
	s := a.str(key)
	if s == "" {
		return def, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, apperr.Validation(fmt.Sprintf("%s must be an RFC 3339 timestamp", key))
	}
	return t, nil
}

// respond converts v to a Struct through its JSON form, so json tags name the fields.
func respond(v any) (*structpb.Struct, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	return structpb.NewStruct(m)
}
