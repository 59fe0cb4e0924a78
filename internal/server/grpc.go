package server

import (
	"context"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/joseph-ayodele/doctext/internal/common"
	"github.com/joseph-ayodele/doctext/internal/repository"
	"github.com/joseph-ayodele/doctext/internal/services/extraction"
	"github.com/joseph-ayodele/doctext/internal/source"
)

const (
	ServiceName = "doctext.v1.Extractor"

	// MetadataDeclaredMime carries the MIME type of an ExtractFromFile payload.
	MetadataDeclaredMime = "x-declared-mime"
	// MetadataJobID is set on responses when the job log recorded the call.
	MetadataJobID = "x-job-id"
)

// Extractor is what the transports need from the extraction service.
type Extractor interface {
	Extract(ctx context.Context, in source.Input) (extraction.Outcome, error)
	ListJobs(ctx context.Context, limit int) ([]*repository.ExtractJob, error)
}

// ExtractorServer is the doctext.v1.Extractor service.
type ExtractorServer interface {
	ExtractFromFile(ctx context.Context, in *wrapperspb.BytesValue) (*wrapperspb.StringValue, error)
	ExtractFromUrl(ctx context.Context, in *wrapperspb.StringValue) (*wrapperspb.StringValue, error)
}

// ExtractorService serves extractions over gRPC.
type ExtractorService struct {
	svc    Extractor
	logger *slog.Logger
}

func NewExtractorService(svc Extractor, logger *slog.Logger) *ExtractorService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ExtractorService{svc: svc, logger: logger}
}

// RegisterExtractorServer registers srv on s.
func RegisterExtractorServer(s grpc.ServiceRegistrar, srv ExtractorServer) {
	s.RegisterService(&ExtractorServiceDesc, srv)
}

func (s *ExtractorService) ExtractFromFile(ctx context.Context, in *wrapperspb.BytesValue) (*wrapperspb.StringValue, error) {
	mime := declaredMime(ctx)
	v := common.NewValidator().
		Field("value", in.GetValue(), common.Required).
		Field(MetadataDeclaredMime, mime, common.Required, common.DeclaredMime)
	if err := common.ValidateAndReturnError(v); err != nil {
		s.logger.Warn("invalid ExtractFromFile request", "error", err)
		return nil, err
	}
	return s.extract(ctx, source.LocalFile(in.GetValue(), mime))
}

func (s *ExtractorService) ExtractFromUrl(ctx context.Context, in *wrapperspb.StringValue) (*wrapperspb.StringValue, error) {
	url := strings.TrimSpace(in.GetValue())
	v := common.NewValidator().Field("value", url, common.Required, common.MaxLength(2048), common.RemoteURL)
	if err := common.ValidateAndReturnError(v); err != nil {
		s.logger.Warn("invalid ExtractFromUrl request", "error", err)
		return nil, err
	}
	return s.extract(ctx, source.RemoteURL(url, declaredMime(ctx)))
}

func (s *ExtractorService) extract(ctx context.Context, in source.Input) (*wrapperspb.StringValue, error) {
	out, err := s.svc.Extract(ctx, in)
	if out.JobID != uuid.Nil {
		_ = grpc.SetHeader(ctx, metadata.Pairs(MetadataJobID, out.JobID.String()))
	}
	if err != nil {
		return nil, grpcError(err)
	}
	return wrapperspb.String(out.Result.Text), nil
}

func declaredMime(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	if vals := md.Get(MetadataDeclaredMime); len(vals) > 0 {
		return strings.TrimSpace(vals[0])
	}
	return ""
}

// ExtractorServiceDesc describes doctext.v1.Extractor. Requests and responses are the
// well-known wrapper messages, so no generated code is needed on either side.
var ExtractorServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ExtractorServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ExtractFromFile", Handler: extractFromFileHandler},
		{MethodName: "ExtractFromUrl", Handler: extractFromURLHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "doctext/v1/extractor.proto",
}

func extractFromFileHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.BytesValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ExtractorServer).ExtractFromFile(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/ExtractFromFile"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ExtractorServer).ExtractFromFile(ctx, req.(*wrapperspb.BytesValue))
	}
	return interceptor(ctx, in, info, handler)
}

func extractFromURLHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ExtractorServer).ExtractFromUrl(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/ExtractFromUrl"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ExtractorServer).ExtractFromUrl(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

// ExtractorClient calls doctext.v1.Extractor.
type ExtractorClient struct {
	cc grpc.ClientConnInterface
}

func NewExtractorClient(cc grpc.ClientConnInterface) *ExtractorClient {
	return &ExtractorClient{cc: cc}
}

// ExtractFromFile sends the document with its declared MIME type.
func (c *ExtractorClient) ExtractFromFile(ctx context.Context, data []byte, declaredMime string) (string, error) {
	ctx = metadata.AppendToOutgoingContext(ctx, MetadataDeclaredMime, declaredMime)
	out := new(wrapperspb.StringValue)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/ExtractFromFile", wrapperspb.Bytes(data), out); err != nil {
		return "", err
	}
	return out.GetValue(), nil
}

// ExtractFromURL asks the server to fetch and extract a PDF.
func (c *ExtractorClient) ExtractFromURL(ctx context.Context, url string) (string, error) {
	out := new(wrapperspb.StringValue)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/ExtractFromUrl", wrapperspb.String(url), out); err != nil {
		return "", err
	}
	return out.GetValue(), nil
}

// UnaryLoggingInterceptor logs every call with its status and a request ID.
func UnaryLoggingInterceptor(logger *slog.Logger) grpc.UnaryServerInterceptor {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		ctx = common.WithRequestID(ctx, newRequestID())
		start := timeNow()
		resp, err := handler(ctx, req)
		attrs := []any{
			"method", info.FullMethod,
			"request_id", common.RequestIDFromContext(ctx),
			"duration_ms", timeNow().Sub(start).Milliseconds(),
		}
		if err != nil {
			logger.Warn("grpc call failed", append(attrs, "error", err)...)
		} else {
			logger.Info("grpc call ok", attrs...)
		}
		return resp, err
	}
}
