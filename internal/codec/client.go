package codec

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/colorsignal/session-controller/internal/history"
)

// #region types
// Prediction is the remote service's answer for the next signal.
type Prediction struct {
	Label       string
	Explanation string
}

// BiasResult counts Big and Small outcomes in the analysed history.
type BiasResult struct {
	Big   int64 `json:"big"`
	Small int64 `json:"small"`
}

// TrendResult reports whether the history is alternating and the current streak length.
type TrendResult struct {
	Switching bool  `json:"switching"`
	Streak    int64 `json:"streak"`
}

// #endregion types

// #region client-struct
// CodecClient wraps the gRPC connection to the prediction service.
type CodecClient struct {
	conn   *grpc.ClientConn
	client PredictionServiceClient
}

// #endregion client-struct

// #region constructor
// NewCodecClient creates a lazily connecting client for addr.
// The connection is not established until the first RPC or Connect.
func NewCodecClient(addr string, opts ...grpc.DialOption) (*CodecClient, error) {
	if len(opts) == 0 {
		opts = []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
	}
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("grpc dial %s: %w", addr, err)
	}
	return &CodecClient{
		conn:   conn,
		client: NewPredictionServiceClient(conn),
	}, nil
}

// NewCodecClientWithService creates a CodecClient with an injected service implementation.
// Used for testing without a real gRPC connection; such a client always reports Ready.
func NewCodecClientWithService(svc PredictionServiceClient) *CodecClient {
	return &CodecClient{client: svc}
}

// #endregion constructor

// #region liveness
// Close shuts down the gRPC connection.
func (c *CodecClient) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

// State reports the connectivity state of the underlying channel.
func (c *CodecClient) State() connectivity.State {
	if c.conn == nil {
		return connectivity.Ready
	}
	return c.conn.GetState()
}

// Connect moves an idle channel towards Ready.
func (c *CodecClient) Connect() {
	if c.conn != nil {
		c.conn.Connect()
	}
}

// WaitForStateChange blocks until the state leaves source or ctx is done.
func (c *CodecClient) WaitForStateChange(ctx context.Context, source connectivity.State) bool {
	if c.conn == nil {
		<-ctx.Done()
		return false
	}
	return c.conn.WaitForStateChange(ctx, source)
}

// #endregion liveness

// #region predict-next
// PredictNext asks the service for the next signal given the full history.
func (c *CodecClient) PredictNext(ctx context.Context, items []history.Observation) (Prediction, error) {
	resp, err := c.client.PredictNext(ctx, historyRequest(items))
	if err != nil {
		return Prediction{}, fmt.Errorf("predict next rpc: %w", err)
	}
	// Returned as received, even with an empty label.
	fields := resp.GetFields()
	return Prediction{
		Label:       fields["prediction"].GetStringValue(),
		Explanation: fields["explanation"].GetStringValue(),
	}, nil
}

// #endregion predict-next

// #region feedback
// UpdatePredictionFeedback submits win/loss flags, oldest first.
func (c *CodecClient) UpdatePredictionFeedback(ctx context.Context, feedback []bool) error {
	values := make([]*structpb.Value, len(feedback))
	for i, win := range feedback {
		values[i] = structpb.NewBoolValue(win)
	}
	if _, err := c.client.UpdatePredictionFeedback(ctx, &structpb.ListValue{Values: values}); err != nil {
		return fmt.Errorf("update feedback rpc: %w", err)
	}
	return nil
}

// #endregion feedback

// #region upload-patterns
// UploadHistoricalPatterns submits pre-validated pattern windows.
func (c *CodecClient) UploadHistoricalPatterns(ctx context.Context, patterns [][]history.Result) error {
	if _, err := c.client.UploadHistoricalPatterns(ctx, encodePatterns(patterns)); err != nil {
		return fmt.Errorf("upload patterns rpc: %w", err)
	}
	return nil
}

// #endregion upload-patterns

// #region get-history
// GetHistory fetches the service-side history used to hydrate a session.
func (c *CodecClient) GetHistory(ctx context.Context) ([]history.Observation, error) {
	resp, err := c.client.GetHistory(ctx, &emptypb.Empty{})
	if err != nil {
		return nil, fmt.Errorf("get history rpc: %w", err)
	}
	items := make([]history.Observation, 0, len(resp.GetValues()))
	for _, v := range resp.GetValues() {
		fields := v.GetStructValue().GetFields()
		r, err := history.NormalizeResult(fields["result"].GetStringValue())
		if err != nil {
			return nil, fmt.Errorf("get history rpc: %w", err)
		}
		items = append(items, history.Observation{
			Result:    r,
			Timestamp: int64(fields["timestamp"].GetNumberValue()),
		})
	}
	return items, nil
}

// #endregion get-history

// #region analysis
// AnalyzeBias counts Big and Small outcomes as seen by the service.
func (c *CodecClient) AnalyzeBias(ctx context.Context, items []history.Observation) (BiasResult, error) {
	resp, err := c.client.AnalyzeBias(ctx, historyRequest(items))
	if err != nil {
		return BiasResult{}, fmt.Errorf("analyze bias rpc: %w", err)
	}
	fields := resp.GetFields()
	return BiasResult{
		Big:   int64(fields["big"].GetNumberValue()),
		Small: int64(fields["small"].GetNumberValue()),
	}, nil
}

// SwitchTrendAnalysis reports alternation and streak length.
func (c *CodecClient) SwitchTrendAnalysis(ctx context.Context, items []history.Observation) (TrendResult, error) {
	resp, err := c.client.SwitchTrendAnalysis(ctx, historyRequest(items))
	if err != nil {
		return TrendResult{}, fmt.Errorf("switch trend rpc: %w", err)
	}
	fields := resp.GetFields()
	return TrendResult{
		Switching: fields["switching"].GetBoolValue(),
		Streak:    int64(fields["streak"].GetNumberValue()),
	}, nil
}

// HistoricalPatternAnalysis returns the stored patterns matching the history.
func (c *CodecClient) HistoricalPatternAnalysis(ctx context.Context, items []history.Observation) ([][]history.Result, error) {
	resp, err := c.client.HistoricalPatternAnalysis(ctx, historyRequest(items))
	if err != nil {
		return nil, fmt.Errorf("pattern analysis rpc: %w", err)
	}
	out := make([][]history.Result, 0, len(resp.GetValues()))
	for _, row := range resp.GetValues() {
		var pattern []history.Result
		for _, v := range row.GetListValue().GetValues() {
			pattern = append(pattern, history.Result(v.GetStringValue()))
		}
		out = append(out, pattern)
	}
	return out, nil
}

// UpdateTimeWindow sets the service-side analysis window.
func (c *CodecClient) UpdateTimeWindow(ctx context.Context, window int64) error {
	if _, err := c.client.UpdateTimeWindow(ctx, wrapperspb.Int64(window)); err != nil {
		return fmt.Errorf("update time window rpc: %w", err)
	}
	return nil
}

// #endregion analysis

// #region encoding
func historyRequest(items []history.Observation) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"history": structpb.NewListValue(encodeHistory(items)),
	}}
}

func encodeHistory(items []history.Observation) *structpb.ListValue {
	values := make([]*structpb.Value, len(items))
	for i, o := range items {
		values[i] = structpb.NewStructValue(&structpb.Struct{Fields: map[string]*structpb.Value{
			"result":    structpb.NewStringValue(string(o.Result)),
			"timestamp": structpb.NewNumberValue(float64(o.Timestamp)),
		}})
	}
	return &structpb.ListValue{Values: values}
}

func encodePatterns(patterns [][]history.Result) *structpb.ListValue {
	rows := make([]*structpb.Value, len(patterns))
	for i, p := range patterns {
		cells := make([]*structpb.Value, len(p))
		for j, r := range p {
			cells[j] = structpb.NewStringValue(string(r))
		}
		rows[i] = structpb.NewListValue(&structpb.ListValue{Values: cells})
	}
	return &structpb.ListValue{Values: rows}
}

// #endregion encoding
