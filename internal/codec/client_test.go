package codec

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/colorsignal/session-controller/internal/history"
)

// #region mock
type mockPredictionService struct {
	PredictionServiceClient

	predictReq  *structpb.Struct
	predictResp *structpb.Struct
	predictErr  error

	feedbackReq *structpb.ListValue
	feedbackErr error

	uploadReq *structpb.ListValue
	uploadErr error

	historyResp *structpb.ListValue
	historyErr  error

	biasResp  *structpb.Struct
	trendResp *structpb.Struct
	patResp   *structpb.ListValue

	windowReq *wrapperspb.Int64Value
}

func (m *mockPredictionService) PredictNext(_ context.Context, in *structpb.Struct, _ ...grpc.CallOption) (*structpb.Struct, error) {
	m.predictReq = in
	return m.predictResp, m.predictErr
}

func (m *mockPredictionService) UpdatePredictionFeedback(_ context.Context, in *structpb.ListValue, _ ...grpc.CallOption) (*emptypb.Empty, error) {
	m.feedbackReq = in
	return &emptypb.Empty{}, m.feedbackErr
}

func (m *mockPredictionService) UploadHistoricalPatterns(_ context.Context, in *structpb.ListValue, _ ...grpc.CallOption) (*emptypb.Empty, error) {
	m.uploadReq = in
	return &emptypb.Empty{}, m.uploadErr
}

func (m *mockPredictionService) GetHistory(_ context.Context, _ *emptypb.Empty, _ ...grpc.CallOption) (*structpb.ListValue, error) {
	return m.historyResp, m.historyErr
}

func (m *mockPredictionService) AnalyzeBias(_ context.Context, _ *structpb.Struct, _ ...grpc.CallOption) (*structpb.Struct, error) {
	return m.biasResp, nil
}

func (m *mockPredictionService) SwitchTrendAnalysis(_ context.Context, _ *structpb.Struct, _ ...grpc.CallOption) (*structpb.Struct, error) {
	return m.trendResp, nil
}

func (m *mockPredictionService) HistoricalPatternAnalysis(_ context.Context, _ *structpb.Struct, _ ...grpc.CallOption) (*structpb.ListValue, error) {
	return m.patResp, nil
}

func (m *mockPredictionService) UpdateTimeWindow(_ context.Context, in *wrapperspb.Int64Value, _ ...grpc.CallOption) (*emptypb.Empty, error) {
	m.windowReq = in
	return &emptypb.Empty{}, nil
}

func mustStruct(t *testing.T, m map[string]any) *structpb.Struct {
	t.Helper()
	s, err := structpb.NewStruct(m)
	require.NoError(t, err)
	return s
}

func mustList(t *testing.T, v []any) *structpb.ListValue {
	t.Helper()
	l, err := structpb.NewList(v)
	require.NoError(t, err)
	return l
}

var sampleHistory = []history.Observation{
	{Result: history.Big, Timestamp: 1700000000001},
	{Result: history.Small, Timestamp: 1700000000002},
}

// #endregion mock

// #region constructor-tests
func TestNewCodecClientIsLazy(t *testing.T) {
	client, err := NewCodecClient("localhost:0")
	require.NoError(t, err)
	defer client.Close()

	assert.Equal(t, connectivity.Idle, client.State())
}

func TestInjectedServiceReportsReady(t *testing.T) {
	c := NewCodecClientWithService(&mockPredictionService{})

	assert.Equal(t, connectivity.Ready, c.State())
	assert.NoError(t, c.Close())
}

// #endregion constructor-tests

// #region predict-tests
func TestPredictNext_Success(t *testing.T) {
	mock := &mockPredictionService{
		predictResp: mustStruct(t, map[string]any{"prediction": "Big", "explanation": "streak"}),
	}
	c := NewCodecClientWithService(mock)

	got, err := c.PredictNext(context.Background(), sampleHistory)
	require.NoError(t, err)

	assert.Equal(t, Prediction{Label: "Big", Explanation: "streak"}, got)
	items := mock.predictReq.GetFields()["history"].GetListValue().GetValues()
	require.Len(t, items, 2)
	first := items[0].GetStructValue().GetFields()
	assert.Equal(t, "Big", first["result"].GetStringValue())
	assert.Equal(t, float64(1700000000001), first["timestamp"].GetNumberValue())
}

func TestPredictNext_WrapsError(t *testing.T) {
	rpcErr := errors.New("network down")
	c := NewCodecClientWithService(&mockPredictionService{predictErr: rpcErr})

	_, err := c.PredictNext(context.Background(), sampleHistory)

	require.Error(t, err)
	assert.ErrorIs(t, err, rpcErr)
	assert.Contains(t, err.Error(), "predict next rpc")
}

func TestPredictNext_EmptyLabelIsReturnedAsIs(t *testing.T) {
	mock := &mockPredictionService{predictResp: mustStruct(t, map[string]any{"explanation": "no signal yet"})}
	c := NewCodecClientWithService(mock)

	got, err := c.PredictNext(context.Background(), sampleHistory)

	require.NoError(t, err)
	assert.Equal(t, Prediction{Label: "", Explanation: "no signal yet"}, got)
}

// #endregion predict-tests

// #region feedback-tests
func TestUpdatePredictionFeedback(t *testing.T) {
	mock := &mockPredictionService{}
	c := NewCodecClientWithService(mock)

	require.NoError(t, c.UpdatePredictionFeedback(context.Background(), []bool{true, false}))

	vals := mock.feedbackReq.GetValues()
	require.Len(t, vals, 2)
	assert.True(t, vals[0].GetBoolValue())
	assert.False(t, vals[1].GetBoolValue())
}

func TestUpdatePredictionFeedback_Error(t *testing.T) {
	c := NewCodecClientWithService(&mockPredictionService{feedbackErr: errors.New("boom")})

	err := c.UpdatePredictionFeedback(context.Background(), []bool{true})

	assert.ErrorContains(t, err, "update feedback rpc")
}

// #endregion feedback-tests

// #region upload-tests
func TestUploadHistoricalPatterns(t *testing.T) {
	mock := &mockPredictionService{}
	c := NewCodecClientWithService(mock)

	err := c.UploadHistoricalPatterns(context.Background(), [][]history.Result{
		{history.Big, history.Small, history.Big},
		{history.Small, history.Big, history.Small},
	})
	require.NoError(t, err)

	rows := mock.uploadReq.GetValues()
	require.Len(t, rows, 2)
	assert.Equal(t, "Small", rows[1].GetListValue().GetValues()[0].GetStringValue())
}

// #endregion upload-tests

// #region history-tests
func TestGetHistory(t *testing.T) {
	mock := &mockPredictionService{
		historyResp: mustList(t, []any{
			map[string]any{"result": "Big", "timestamp": 10.0},
			map[string]any{"result": " Small ", "timestamp": 11.0},
		}),
	}
	c := NewCodecClientWithService(mock)

	got, err := c.GetHistory(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []history.Observation{
		{Result: history.Big, Timestamp: 10},
		{Result: history.Small, Timestamp: 11},
	}, got)
}

func TestGetHistory_InvalidResult(t *testing.T) {
	mock := &mockPredictionService{
		historyResp: mustList(t, []any{map[string]any{"result": "Medium", "timestamp": 1.0}}),
	}
	c := NewCodecClientWithService(mock)

	_, err := c.GetHistory(context.Background())

	assert.ErrorContains(t, err, "invalid result")
}

// #endregion history-tests

// #region analysis-tests
func TestAnalysisCalls(t *testing.T) {
	mock := &mockPredictionService{
		biasResp:  mustStruct(t, map[string]any{"big": 3.0, "small": 2.0}),
		trendResp: mustStruct(t, map[string]any{"switching": true, "streak": 1.0}),
		patResp:   mustList(t, []any{[]any{"Big", "Big", "Small"}}),
	}
	c := NewCodecClientWithService(mock)
	ctx := context.Background()

	bias, err := c.AnalyzeBias(ctx, sampleHistory)
	require.NoError(t, err)
	assert.Equal(t, BiasResult{Big: 3, Small: 2}, bias)

	trend, err := c.SwitchTrendAnalysis(ctx, sampleHistory)
	require.NoError(t, err)
	assert.Equal(t, TrendResult{Switching: true, Streak: 1}, trend)

	pats, err := c.HistoricalPatternAnalysis(ctx, sampleHistory)
	require.NoError(t, err)
	assert.Equal(t, [][]history.Result{{history.Big, history.Big, history.Small}}, pats)

	require.NoError(t, c.UpdateTimeWindow(ctx, 15))
	assert.Equal(t, int64(15), mock.windowReq.GetValue())
}

// #endregion analysis-tests

// #region wire-tests
// stubServer answers PredictNext over a real gRPC channel.
type stubServer struct {
	got *structpb.Struct
}

func stubServiceDesc() grpc.ServiceDesc {
	return grpc.ServiceDesc{
		ServiceName: serviceName,
		HandlerType: (*any)(nil),
		Methods: []grpc.MethodDesc{
			{
				MethodName: "PredictNext",
				Handler: func(srv any, ctx context.Context, dec func(any) error, _ grpc.UnaryServerInterceptor) (any, error) {
					in := new(structpb.Struct)
					if err := dec(in); err != nil {
						return nil, err
					}
					srv.(*stubServer).got = in
					return structpb.NewStruct(map[string]any{"prediction": "Small", "explanation": "wire"})
				},
			},
			{
				MethodName: "UpdatePredictionFeedback",
				Handler: func(_ any, _ context.Context, dec func(any) error, _ grpc.UnaryServerInterceptor) (any, error) {
					in := new(structpb.ListValue)
					if err := dec(in); err != nil {
						return nil, err
					}
					return nil, status.Error(codes.Unavailable, "backend unavailable")
				},
			},
		},
	}
}

func TestWireRoundTripOverBufconn(t *testing.T) {
	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	stub := &stubServer{}
	desc := stubServiceDesc()
	srv.RegisterService(&desc, stub)
	go srv.Serve(lis)
	t.Cleanup(srv.Stop)

	c, err := NewCodecClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })

	got, err := c.PredictNext(context.Background(), sampleHistory)
	require.NoError(t, err)
	assert.Equal(t, "Small", got.Label)
	assert.Len(t, stub.got.GetFields()["history"].GetListValue().GetValues(), 2)
	assert.Equal(t, connectivity.Ready, c.State())

	err = c.UpdatePredictionFeedback(context.Background(), []bool{true})
	require.Error(t, err)
	assert.Equal(t, codes.Unavailable, status.Code(errors.Unwrap(err)))
}

// #endregion wire-tests
