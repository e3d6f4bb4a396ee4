package pose

import (
	"context"
	"fmt"
	"log"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"repcount/internal/frame"
)

const (
	// PoseServiceName is the gRPC service the sidecar registers.
	PoseServiceName = "repcount.pose.v1.PoseService"
	detectMethod    = "/" + PoseServiceName + "/Detect"
)

// GRPCConfig holds configuration for the gRPC detector
type GRPCConfig struct {
	Endpoint    string
	Timeout     time.Duration
	DialOptions []grpc.DialOption // appended after the defaults
}

// GRPCDetector calls a pose sidecar over gRPC. The Detect RPC takes the
// JPEG frame as a google.protobuf.BytesValue and answers with a
// google.protobuf.Struct whose "landmarks" field lists {x, y, visibility}
// objects, so no generated stubs are needed on either side.
type GRPCDetector struct {
	endpoint string
	timeout  time.Duration
	conn     *grpc.ClientConn
}

// NewGRPCDetector connects to the sidecar and waits for it to report SERVING.
func NewGRPCDetector(ctx context.Context, config GRPCConfig) (*GRPCDetector, error) {
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	kacp := keepalive.ClientParameters{
		Time:                10 * time.Second,
		Timeout:             5 * time.Second,
		PermitWithoutStream: true,
	}
	opts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithKeepaliveParams(kacp),
	}, config.DialOptions...)

	conn, err := grpc.NewClient(config.Endpoint, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create client: %v", ErrDetectionUnavailable, err)
	}

	gd := &GRPCDetector{endpoint: config.Endpoint, timeout: timeout, conn: conn}

	checkCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	resp, err := healthpb.NewHealthClient(conn).Check(checkCtx, &healthpb.HealthCheckRequest{Service: PoseServiceName})
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: health check: %v", ErrDetectionUnavailable, err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		conn.Close()
		return nil, fmt.Errorf("%w: pose service status %s", ErrDetectionUnavailable, resp.GetStatus())
	}

	log.Printf("[GRPCPose] Connected to %s", config.Endpoint)
	return gd, nil
}

func (gd *GRPCDetector) Name() string { return BackendGRPC }

// Detect sends one frame and decodes the landmark list.
func (gd *GRPCDetector) Detect(ctx context.Context, f *frame.Frame) (*Result, error) {
	data, err := f.JPEG(frame.DefaultQuality)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, gd.timeout)
	defer cancel()

	start := time.Now()
	reply := &structpb.Struct{}
	if err := gd.conn.Invoke(ctx, detectMethod, wrapperspb.Bytes(data), reply); err != nil {
		if gd.conn.GetState() == connectivity.Shutdown {
			return nil, fmt.Errorf("%w: %v", ErrDetectionUnavailable, err)
		}
		return nil, fmt.Errorf("pose rpc failed: %w", err)
	}

	res := ResultFromStruct(reply)
	res.InferenceTimeMs = float32(time.Since(start).Microseconds()) / 1000
	return res, nil
}

// ResultFromStruct decodes a Detect reply.
func ResultFromStruct(s *structpb.Struct) *Result {
	res := &Result{}
	list := s.GetFields()["landmarks"].GetListValue()
	for _, v := range list.GetValues() {
		fields := v.GetStructValue().GetFields()
		res.Landmarks = append(res.Landmarks, Landmark{
			X:          fields["x"].GetNumberValue(),
			Y:          fields["y"].GetNumberValue(),
			Visibility: fields["visibility"].GetNumberValue(),
		})
	}
	return res
}

// ResultToStruct encodes a Detect reply. Sidecars written in Go and tests
// use it to build responses.
func ResultToStruct(r *Result) (*structpb.Struct, error) {
	items := make([]any, 0, len(r.Landmarks))
	for _, lm := range r.Landmarks {
		items = append(items, map[string]any{
			"x":          lm.X,
			"y":          lm.Y,
			"visibility": lm.Visibility,
		})
	}
	return structpb.NewStruct(map[string]any{"landmarks": items})
}

// Close closes the client connection.
func (gd *GRPCDetector) Close() error {
	return gd.conn.Close()
}

var _ Detector = (*GRPCDetector)(nil)
