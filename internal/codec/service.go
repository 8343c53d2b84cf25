package codec

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// #region method-names
const serviceName = "colorsignal.v1.PredictionService"

const (
	predictNextMethod               = "/" + serviceName + "/PredictNext"
	updatePredictionFeedbackMethod  = "/" + serviceName + "/UpdatePredictionFeedback"
	uploadHistoricalPatternsMethod  = "/" + serviceName + "/UploadHistoricalPatterns"
	getHistoryMethod                = "/" + serviceName + "/GetHistory"
	analyzeBiasMethod               = "/" + serviceName + "/AnalyzeBias"
	switchTrendAnalysisMethod       = "/" + serviceName + "/SwitchTrendAnalysis"
	historicalPatternAnalysisMethod = "/" + serviceName + "/HistoricalPatternAnalysis"
	updateTimeWindowMethod          = "/" + serviceName + "/UpdateTimeWindow"
)

// #endregion method-names

// #region service-client
// PredictionServiceClient is the wire-level client of the prediction service.
// Payloads are protobuf well-known types so no generated package is needed.
type PredictionServiceClient interface {
	PredictNext(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	UpdatePredictionFeedback(ctx context.Context, in *structpb.ListValue, opts ...grpc.CallOption) (*emptypb.Empty, error)
	UploadHistoricalPatterns(ctx context.Context, in *structpb.ListValue, opts ...grpc.CallOption) (*emptypb.Empty, error)
	GetHistory(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.ListValue, error)
	AnalyzeBias(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	SwitchTrendAnalysis(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	HistoricalPatternAnalysis(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.ListValue, error)
	UpdateTimeWindow(ctx context.Context, in *wrapperspb.Int64Value, opts ...grpc.CallOption) (*emptypb.Empty, error)
}

type predictionServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewPredictionServiceClient binds the service stubs to a connection.
func NewPredictionServiceClient(cc grpc.ClientConnInterface) PredictionServiceClient {
	return &predictionServiceClient{cc: cc}
}

// #endregion service-client

// #region stubs
func (c *predictionServiceClient) PredictNext(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, predictNextMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *predictionServiceClient) UpdatePredictionFeedback(ctx context.Context, in *structpb.ListValue, opts ...grpc.CallOption) (*emptypb.Empty, error) {
	out := new(emptypb.Empty)
	if err := c.cc.Invoke(ctx, updatePredictionFeedbackMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *predictionServiceClient) UploadHistoricalPatterns(ctx context.Context, in *structpb.ListValue, opts ...grpc.CallOption) (*emptypb.Empty, error) {
	out := new(emptypb.Empty)
	if err := c.cc.Invoke(ctx, uploadHistoricalPatternsMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *predictionServiceClient) GetHistory(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.ListValue, error) {
	out := new(structpb.ListValue)
	if err := c.cc.Invoke(ctx, getHistoryMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *predictionServiceClient) AnalyzeBias(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, analyzeBiasMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *predictionServiceClient) SwitchTrendAnalysis(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, switchTrendAnalysisMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *predictionServiceClient) HistoricalPatternAnalysis(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.ListValue, error) {
	out := new(structpb.ListValue)
	if err := c.cc.Invoke(ctx, historicalPatternAnalysisMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *predictionServiceClient) UpdateTimeWindow(ctx context.Context, in *wrapperspb.Int64Value, opts ...grpc.CallOption) (*emptypb.Empty, error) {
	out := new(emptypb.Empty)
	if err := c.cc.Invoke(ctx, updateTimeWindowMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// #endregion stubs
