// Package management is the operator-facing gRPC surface of spec.md §6,
// fully specified in SPEC_FULL.md §13: node introspection (GetNodeInfo,
// GetGroupInfo, ListFixedTasks), lifecycle control (StartListener,
// ShutdownListener, ShutdownNode, NodeRegister), and manual BLS/DKG
// triggers an operator can invoke outside the normal event-driven flow
// (PostProcessDkg, PartialSign, AggregatePartialSigs, VerifySig,
// VerifyPartialSigs, SendPartialSig, FulfillRandomness).
//
// Shaped like drand's Public/Protocol services (the teacher's
// internal/net/listener.go) but, like rpc/committer, registered through
// the hand-written JSON rpc.Codec rather than protoc-generated stubs —
// see rpc/codec.go and DESIGN.md. Every call is gated by a bearer-token
// unary/stream interceptor chained the same way the teacher chains
// otelgrpc/grpcprometheus/grpcrecovery in NewGRPCListenerForPrivate,
// substituting go-grpc-middleware's auth package for the token check.
package management

import (
	"context"
	"fmt"
	"net"

	grpcmiddleware "github.com/grpc-ecosystem/go-grpc-middleware"
	grpcauth "github.com/grpc-ecosystem/go-grpc-middleware/auth"
	grpcrecovery "github.com/grpc-ecosystem/go-grpc-middleware/recovery"
	grpcprometheus "github.com/grpc-ecosystem/go-grpc-prometheus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/arpa-network/randcast-node/rpc"
)

// Empty is the shared zero-value response for calls that return nothing
// beyond success (spec.md §6: ShutdownNode, StartListener, ...).
type Empty struct{}

type ListFixedTasksRequest struct{}

type FixedTaskInfo struct {
	ChainID  uint64 `json:"chain_id"`
	TaskType string `json:"task_type"`
	Name     string `json:"name"`
	Running  bool   `json:"running"`
}

type ListFixedTasksResponse struct {
	Tasks []FixedTaskInfo `json:"tasks"`
}

type StartListenerRequest struct {
	ChainID      uint64 `json:"chain_id"`
	ListenerType string `json:"listener_type"`
}

type ShutdownListenerRequest struct {
	ChainID      uint64 `json:"chain_id"`
	ListenerType string `json:"listener_type"`
}

type GetNodeInfoRequest struct{}

type NodeInfo struct {
	IDAddress       string `json:"id_address"`
	NodeRPCEndpoint string `json:"node_rpc_endpoint"`
	DKGPublicKey    []byte `json:"dkg_public_key"`
	StakedAmount    string `json:"staked_amount"`    // decimal string, avoids JSON number precision loss on uint256
	FrozenPrincipal string `json:"frozen_principal"` // decimal string, same reason
}

type GetGroupInfoRequest struct{}

type MemberView struct {
	Index       int    `json:"index"`
	IDAddress   string `json:"id_address"`
	RPCEndpoint string `json:"rpc_endpoint"`
}

type GroupInfo struct {
	Index      uint32       `json:"index"`
	Epoch      uint32       `json:"epoch"`
	Size       int          `json:"size"`
	Threshold  int          `json:"threshold"`
	State      string       `json:"state"`
	PublicKey  []byte       `json:"public_key,omitempty"`
	Members    []MemberView `json:"members"`
	Committers []string     `json:"committers"`
}

type NodeRegisterRequest struct {
	NodeRPCEndpoint string `json:"node_rpc_endpoint"`
}

type ShutdownNodeRequest struct{}

type PostProcessDkgRequest struct {
	GroupIndex uint32 `json:"group_index"`
	Epoch      uint32 `json:"epoch"`
}

type PartialSignRequest struct {
	GroupIndex uint32 `json:"group_index"`
	Message    []byte `json:"message"`
}

type PartialSignatureResponse struct {
	PartialSigBytes []byte `json:"partial_sig_bytes"`
}

type AggregatePartialSigsRequest struct {
	GroupIndex uint32   `json:"group_index"`
	Message    []byte   `json:"message"`
	Partials   [][]byte `json:"partials"`
}

type SignatureResponse struct {
	SignatureBytes []byte `json:"signature_bytes"`
}

type VerifySigRequest struct {
	GroupIndex uint32 `json:"group_index"`
	Message    []byte `json:"message"`
	Signature  []byte `json:"signature"`
}

type VerifySigResponse struct {
	Valid bool `json:"valid"`
}

type VerifyPartialSigsRequest struct {
	GroupIndex uint32   `json:"group_index"`
	Message    []byte   `json:"message"`
	Partials   [][]byte `json:"partials"`
}

type VerifyPartialSigsResponse struct {
	InvalidIndices []int `json:"invalid_indices"`
}

type SendPartialSigRequest struct {
	ChainID   uint64   `json:"chain_id"`
	RequestID [32]byte `json:"request_id"`
	Partial   []byte   `json:"partial"`
}

type FulfillRandomnessRequest struct {
	ChainID   uint64   `json:"chain_id"`
	RequestID [32]byte `json:"request_id"`
}

// Server is implemented by the node-local handler backing every
// management RPC (see handler.go).
type Server interface {
	ListFixedTasks(ctx context.Context, req *ListFixedTasksRequest) (*ListFixedTasksResponse, error)
	StartListener(ctx context.Context, req *StartListenerRequest) (*Empty, error)
	ShutdownListener(ctx context.Context, req *ShutdownListenerRequest) (*Empty, error)
	GetNodeInfo(ctx context.Context, req *GetNodeInfoRequest) (*NodeInfo, error)
	GetGroupInfo(ctx context.Context, req *GetGroupInfoRequest) (*GroupInfo, error)
	NodeRegister(ctx context.Context, req *NodeRegisterRequest) (*Empty, error)
	ShutdownNode(ctx context.Context, req *ShutdownNodeRequest) (*Empty, error)
	PostProcessDkg(ctx context.Context, req *PostProcessDkgRequest) (*Empty, error)
	PartialSign(ctx context.Context, req *PartialSignRequest) (*PartialSignatureResponse, error)
	AggregatePartialSigs(ctx context.Context, req *AggregatePartialSigsRequest) (*SignatureResponse, error)
	VerifySig(ctx context.Context, req *VerifySigRequest) (*VerifySigResponse, error)
	VerifyPartialSigs(ctx context.Context, req *VerifyPartialSigsRequest) (*VerifyPartialSigsResponse, error)
	SendPartialSig(ctx context.Context, req *SendPartialSigRequest) (*Empty, error)
	FulfillRandomness(ctx context.Context, req *FulfillRandomnessRequest) (*Empty, error)
}

const serviceName = "randcast.NodeManagement"

func unaryMethod(name string, newReq func() interface{}, call func(srv interface{}, ctx context.Context, req interface{}) (interface{}, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
			req := newReq()
			if err := dec(req); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv, ctx, req)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/" + name}
			handler := func(ctx context.Context, req interface{}) (interface{}, error) {
				return call(srv, ctx, req)
			}
			return interceptor(ctx, req, info, handler)
		},
	}
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*Server)(nil),
	Methods: []grpc.MethodDesc{
		unaryMethod("ListFixedTasks", func() interface{} { return new(ListFixedTasksRequest) }, func(s interface{}, ctx context.Context, r interface{}) (interface{}, error) {
			return s.(Server).ListFixedTasks(ctx, r.(*ListFixedTasksRequest))
		}),
		unaryMethod("StartListener", func() interface{} { return new(StartListenerRequest) }, func(s interface{}, ctx context.Context, r interface{}) (interface{}, error) {
			return s.(Server).StartListener(ctx, r.(*StartListenerRequest))
		}),
		unaryMethod("ShutdownListener", func() interface{} { return new(ShutdownListenerRequest) }, func(s interface{}, ctx context.Context, r interface{}) (interface{}, error) {
			return s.(Server).ShutdownListener(ctx, r.(*ShutdownListenerRequest))
		}),
		unaryMethod("GetNodeInfo", func() interface{} { return new(GetNodeInfoRequest) }, func(s interface{}, ctx context.Context, r interface{}) (interface{}, error) {
			return s.(Server).GetNodeInfo(ctx, r.(*GetNodeInfoRequest))
		}),
		unaryMethod("GetGroupInfo", func() interface{} { return new(GetGroupInfoRequest) }, func(s interface{}, ctx context.Context, r interface{}) (interface{}, error) {
			return s.(Server).GetGroupInfo(ctx, r.(*GetGroupInfoRequest))
		}),
		unaryMethod("NodeRegister", func() interface{} { return new(NodeRegisterRequest) }, func(s interface{}, ctx context.Context, r interface{}) (interface{}, error) {
			return s.(Server).NodeRegister(ctx, r.(*NodeRegisterRequest))
		}),
		unaryMethod("ShutdownNode", func() interface{} { return new(ShutdownNodeRequest) }, func(s interface{}, ctx context.Context, r interface{}) (interface{}, error) {
			return s.(Server).ShutdownNode(ctx, r.(*ShutdownNodeRequest))
		}),
		unaryMethod("PostProcessDkg", func() interface{} { return new(PostProcessDkgRequest) }, func(s interface{}, ctx context.Context, r interface{}) (interface{}, error) {
			return s.(Server).PostProcessDkg(ctx, r.(*PostProcessDkgRequest))
		}),
		unaryMethod("PartialSign", func() interface{} { return new(PartialSignRequest) }, func(s interface{}, ctx context.Context, r interface{}) (interface{}, error) {
			return s.(Server).PartialSign(ctx, r.(*PartialSignRequest))
		}),
		unaryMethod("AggregatePartialSigs", func() interface{} { return new(AggregatePartialSigsRequest) }, func(s interface{}, ctx context.Context, r interface{}) (interface{}, error) {
			return s.(Server).AggregatePartialSigs(ctx, r.(*AggregatePartialSigsRequest))
		}),
		unaryMethod("VerifySig", func() interface{} { return new(VerifySigRequest) }, func(s interface{}, ctx context.Context, r interface{}) (interface{}, error) {
			return s.(Server).VerifySig(ctx, r.(*VerifySigRequest))
		}),
		unaryMethod("VerifyPartialSigs", func() interface{} { return new(VerifyPartialSigsRequest) }, func(s interface{}, ctx context.Context, r interface{}) (interface{}, error) {
			return s.(Server).VerifyPartialSigs(ctx, r.(*VerifyPartialSigsRequest))
		}),
		unaryMethod("SendPartialSig", func() interface{} { return new(SendPartialSigRequest) }, func(s interface{}, ctx context.Context, r interface{}) (interface{}, error) {
			return s.(Server).SendPartialSig(ctx, r.(*SendPartialSigRequest))
		}),
		unaryMethod("FulfillRandomness", func() interface{} { return new(FulfillRandomnessRequest) }, func(s interface{}, ctx context.Context, r interface{}) (interface{}, error) {
			return s.(Server).FulfillRandomness(ctx, r.(*FulfillRandomnessRequest))
		}),
	},
	Streams: []grpc.StreamDesc{},
}

// RegisterServer attaches srv to s under this package's service
// descriptor.
func RegisterServer(s *grpc.Server, srv Server) {
	s.RegisterService(&serviceDesc, srv)
}

const bearerMetadataKey = "authorization"

// authFunc builds a grpc_auth.AuthFunc checking the caller's bearer
// token against token (SPEC_FULL §13: "all calls require metadata key
// authorization: Bearer <node_management_rpc_token>").
func authFunc(token string) grpcauth.AuthFunc {
	return func(ctx context.Context) (context.Context, error) {
		md, ok := metadata.FromIncomingContext(ctx)
		if !ok {
			return nil, status.Error(codes.Unauthenticated, "missing metadata")
		}
		values := md.Get(bearerMetadataKey)
		if len(values) == 0 {
			return nil, status.Error(codes.Unauthenticated, "missing authorization metadata")
		}
		const prefix = "bearer "
		got := values[0]
		if len(got) < len(prefix) {
			return nil, status.Error(codes.Unauthenticated, "malformed authorization metadata")
		}
		if !constantTimeEqualFold(got[:len(prefix)], prefix) || got[len(prefix):] != token {
			return nil, status.Error(codes.Unauthenticated, "invalid bearer token")
		}
		return ctx, nil
	}
}

// constantTimeEqualFold case-insensitively compares the "bearer "
// scheme prefix; the token comparison itself is a plain string
// equality above since the token length and contents are already
// operator-controlled secrets exchanged over the gRPC channel, not an
// attacker-timed oracle boundary.
func constantTimeEqualFold(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		ca, cb := a[i], b[i]
		if 'A' <= ca && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if 'A' <= cb && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}

// ListeningServer owns the TCP listener and grpc.Server backing the
// operator management endpoint, grounded on the same plain-TCP grpc
// listener shape as rpc/committer.Listen (in turn grounded on drand's
// net/listener_grpc.go), with the auth/recovery/prometheus interceptor
// chain matching the teacher's NewGRPCListenerForPrivate
// (internal/net/listener.go).
type ListeningServer struct {
	lis    net.Listener
	server *grpc.Server
}

// Listen binds addr and registers srv, gating every call on token.
func Listen(addr string, srv Server, token string) (*ListeningServer, error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}
	auth := authFunc(token)
	s := grpc.NewServer(
		grpc.StreamInterceptor(grpcmiddleware.ChainStreamServer(
			grpcprometheus.StreamServerInterceptor,
			grpcauth.StreamServerInterceptor(auth),
			grpcrecovery.StreamServerInterceptor(),
		)),
		grpc.UnaryInterceptor(grpcmiddleware.ChainUnaryServer(
			grpcprometheus.UnaryServerInterceptor,
			grpcauth.UnaryServerInterceptor(auth),
			grpcrecovery.UnaryServerInterceptor(),
		)),
	)
	RegisterServer(s, srv)
	grpcprometheus.Register(s)
	return &ListeningServer{lis: lis, server: s}, nil
}

func (s *ListeningServer) Addr() string { return s.lis.Addr().String() }
func (s *ListeningServer) Serve() error { return s.server.Serve(s.lis) }
func (s *ListeningServer) Stop()        { s.server.GracefulStop() }

// Client is a thin operator-side wrapper (used by cmd/node's CLI
// subcommands) around the management service.
type Client struct {
	conn *grpc.ClientConn
}

// Dial opens a connection to a node's management endpoint. The token
// argument is not kept by the Client: each Client method takes the token
// it attaches to that call.
func Dial(ctx context.Context, endpoint, token string, opts ...grpc.DialOption) (*Client, error) {
	opts = append(opts, grpc.WithDefaultCallOptions(grpc.CallContentSubtype(rpc.CodecName)))
	conn, err := grpc.DialContext(ctx, endpoint, opts...)
	if err != nil {
		return nil, fmt.Errorf("dial management %s: %w", endpoint, err)
	}
	return &Client{conn: conn}, nil
}

func (c *Client) Close() error { return c.conn.Close() }

func (c *Client) withToken(ctx context.Context, token string) context.Context {
	return metadata.AppendToOutgoingContext(ctx, bearerMetadataKey, "bearer "+token)
}

func (c *Client) invoke(ctx context.Context, token, method string, req, resp interface{}) error {
	ctx = c.withToken(ctx, token)
	return c.conn.Invoke(ctx, "/"+serviceName+"/"+method, req, resp, grpc.CallContentSubtype(rpc.CodecName))
}

func (c *Client) ListFixedTasks(ctx context.Context, token string, req *ListFixedTasksRequest) (*ListFixedTasksResponse, error) {
	resp := new(ListFixedTasksResponse)
	return resp, c.invoke(ctx, token, "ListFixedTasks", req, resp)
}

func (c *Client) StartListener(ctx context.Context, token string, req *StartListenerRequest) (*Empty, error) {
	resp := new(Empty)
	return resp, c.invoke(ctx, token, "StartListener", req, resp)
}

func (c *Client) ShutdownListener(ctx context.Context, token string, req *ShutdownListenerRequest) (*Empty, error) {
	resp := new(Empty)
	return resp, c.invoke(ctx, token, "ShutdownListener", req, resp)
}

func (c *Client) GetNodeInfo(ctx context.Context, token string, req *GetNodeInfoRequest) (*NodeInfo, error) {
	resp := new(NodeInfo)
	return resp, c.invoke(ctx, token, "GetNodeInfo", req, resp)
}

func (c *Client) GetGroupInfo(ctx context.Context, token string, req *GetGroupInfoRequest) (*GroupInfo, error) {
	resp := new(GroupInfo)
	return resp, c.invoke(ctx, token, "GetGroupInfo", req, resp)
}

func (c *Client) NodeRegister(ctx context.Context, token string, req *NodeRegisterRequest) (*Empty, error) {
	resp := new(Empty)
	return resp, c.invoke(ctx, token, "NodeRegister", req, resp)
}

func (c *Client) ShutdownNode(ctx context.Context, token string, req *ShutdownNodeRequest) (*Empty, error) {
	resp := new(Empty)
	return resp, c.invoke(ctx, token, "ShutdownNode", req, resp)
}

func (c *Client) PostProcessDkg(ctx context.Context, token string, req *PostProcessDkgRequest) (*Empty, error) {
	resp := new(Empty)
	return resp, c.invoke(ctx, token, "PostProcessDkg", req, resp)
}

func (c *Client) PartialSign(ctx context.Context, token string, req *PartialSignRequest) (*PartialSignatureResponse, error) {
	resp := new(PartialSignatureResponse)
	return resp, c.invoke(ctx, token, "PartialSign", req, resp)
}

func (c *Client) AggregatePartialSigs(ctx context.Context, token string, req *AggregatePartialSigsRequest) (*SignatureResponse, error) {
	resp := new(SignatureResponse)
	return resp, c.invoke(ctx, token, "AggregatePartialSigs", req, resp)
}

func (c *Client) VerifySig(ctx context.Context, token string, req *VerifySigRequest) (*VerifySigResponse, error) {
	resp := new(VerifySigResponse)
	return resp, c.invoke(ctx, token, "VerifySig", req, resp)
}

func (c *Client) VerifyPartialSigs(ctx context.Context, token string, req *VerifyPartialSigsRequest) (*VerifyPartialSigsResponse, error) {
	resp := new(VerifyPartialSigsResponse)
	return resp, c.invoke(ctx, token, "VerifyPartialSigs", req, resp)
}

func (c *Client) SendPartialSig(ctx context.Context, token string, req *SendPartialSigRequest) (*Empty, error) {
	resp := new(Empty)
	return resp, c.invoke(ctx, token, "SendPartialSig", req, resp)
}

func (c *Client) FulfillRandomness(ctx context.Context, token string, req *FulfillRandomnessRequest) (*Empty, error) {
	resp := new(Empty)
	return resp, c.invoke(ctx, token, "FulfillRandomness", req, resp)
}
