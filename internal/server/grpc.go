package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/joseph-ayodele/thesislens/internal/common"
	"github.com/joseph-ayodele/thesislens/internal/delivery"
	"github.com/joseph-ayodele/thesislens/internal/pipeline"
)

// Request metadata keys of the gRPC surface.
const (
	MDCategory      = "x-category"
	MDPromptVersion = "x-prompt-version"
	MDFilename      = "x-filename"
	MDRecipients    = "x-recipients" // repeated or comma separated
	MDRequestID     = "x-request-id"
)

const (
	analysisServiceName   = "thesislens.v1.AnalysisService"
	analyzeFullMethod     = "/" + analysisServiceName + "/Analyze"
	listPromptsFullMethod = "/" + analysisServiceName + "/ListPrompts"
)

// AnalysisServer is the server API of thesislens.v1.AnalysisService. The
// messages are well-known types so no generated code is needed: the PDF goes
// in as BytesValue and the analysis comes back as a Struct.
type AnalysisServer interface {
	Analyze(ctx context.Context, in *wrapperspb.BytesValue) (*structpb.Struct, error)
	ListPrompts(ctx context.Context, in *emptypb.Empty) (*structpb.Struct, error)
}

// AnalysisServiceDesc describes the service for grpc.Server.RegisterService.
var AnalysisServiceDesc = grpc.ServiceDesc{
	ServiceName: analysisServiceName,
	HandlerType: (*AnalysisServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Analyze", Handler: analyzeHandler},
		{MethodName: "ListPrompts", Handler: listPromptsHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "thesislens/v1/analysis.proto",
}

func RegisterAnalysisServer(s grpc.ServiceRegistrar, srv AnalysisServer) {
	s.RegisterService(&AnalysisServiceDesc, srv)
}

func analyzeHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.BytesValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AnalysisServer).Analyze(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: analyzeFullMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(AnalysisServer).Analyze(ctx, req.(*wrapperspb.BytesValue))
	}
	return interceptor(ctx, in, info, handler)
}

func listPromptsHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AnalysisServer).ListPrompts(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: listPromptsFullMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(AnalysisServer).ListPrompts(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

// AnalysisClient calls thesislens.v1.AnalysisService.
type AnalysisClient struct {
	cc grpc.ClientConnInterface
}

func NewAnalysisClient(cc grpc.ClientConnInterface) *AnalysisClient {
	return &AnalysisClient{cc: cc}
}

func (c *AnalysisClient) Analyze(ctx context.Context, in *wrapperspb.BytesValue, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, analyzeFullMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *AnalysisClient) ListPrompts(ctx context.Context, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, listPromptsFullMethod, &emptypb.Empty{}, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// AnalysisService implements AnalysisServer on top of the pipeline.
type AnalysisService struct {
	proc   *pipeline.Processor
	logger *slog.Logger
}

func NewAnalysisService(proc *pipeline.Processor, logger *slog.Logger) *AnalysisService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AnalysisService{proc: proc, logger: logger}
}

func (s *AnalysisService) Analyze(ctx context.Context, in *wrapperspb.BytesValue) (*structpb.Struct, error) {
	md, _ := metadata.FromIncomingContext(ctx)
	req := pipeline.Request{
		Document:      in.GetValue(),
		Filename:      first(md, MDFilename),
		Category:      first(md, MDCategory),
		PromptVersion: first(md, MDPromptVersion),
	}

	var addrs []string
	for _, v := range md.Get(MDRecipients) {
		addrs = append(addrs, strings.Split(v, ",")...)
	}
	var list delivery.RecipientList
	rejected, err := addRecipients(&list, addrs)
	if err != nil {
		return nil, common.GRPCStatus(err)
	}

	out, err := s.proc.Analyze(ctx, req)
	if err != nil {
		return nil, common.GRPCStatus(err)
	}
	deliveries := append(s.proc.Deliver(ctx, out, list.All()), rejected...)

	resp := map[string]any{
		"job_id":         out.JobID.String(),
		"prompt_version": out.PromptVersion,
		"page_count":     out.PageCount,
		"result":         toValue(out.Result),
		"report_pdf":     out.Report.Bytes(), // base64 string in the Struct
		"report_pages":   out.Report.PageCount(),
	}
	if len(deliveries) > 0 {
		resp["deliveries"] = toValue(deliveries)
	}
	st, err := structpb.NewStruct(resp)
	if err != nil {
		s.logger.Error("grpc.analyze.encode_failed", "error", err)
		return nil, common.GRPCStatus(err)
	}
	return st, nil
}

func (s *AnalysisService) ListPrompts(context.Context, *emptypb.Empty) (*structpb.Struct, error) {
	cat := s.proc.Catalog()
	var prompts []any
	for _, p := range cat.Versions() {
		prompts = append(prompts, map[string]any{
			"version":     p.Version,
			"format":      string(p.Format),
			"description": p.Description,
		})
	}
	return structpb.NewStruct(map[string]any{
		"default": cat.DefaultVersion(),
		"prompts": prompts,
	})
}

// toValue turns a JSON-tagged value into the generic shape structpb accepts.
func toValue(v any) any {
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil
	}
	return out
}

func first(md metadata.MD, key string) string {
	if vals := md.Get(key); len(vals) > 0 {
		return strings.TrimSpace(vals[0])
	}
	return ""
}

// UnaryLogging attaches a request id (x-request-id metadata or a fresh one)
// and logs every call.
func UnaryLogging(logger *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		md, _ := metadata.FromIncomingContext(ctx)
		reqID := first(md, MDRequestID)
		if reqID == "" {
			reqID = uuid.NewString()
		}
		ctx = common.WithRequestID(ctx, reqID)

		resp, err := handler(ctx, req)
		attrs := []any{
			"req_id", reqID,
			"method", info.FullMethod,
			"elapsed_ms", time.Since(start).Milliseconds(),
		}
		if err != nil {
			logger.Warn("grpc.request.failed", append(attrs, "error", err)...)
		} else {
			logger.Info("grpc.request", attrs...)
		}
		return resp, err
	}
}
