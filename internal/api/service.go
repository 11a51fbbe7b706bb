package api

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"

	"buffet/pkg/buffet"
)

// TradingServer is the server API of the buffet.v1.Trading service. Every
// message is a structpb.Struct carrying the JSON form of the buffet wire
// types.
type TradingServer interface {
	CreateStrategy(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CreateBacktest(context.Context, *structpb.Struct) (*structpb.Struct, error)
	RunBacktest(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetBacktest(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListBacktestTrades(context.Context, *structpb.Struct) (*structpb.Struct, error)
	MarketDataUpdate(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SubmitOrder(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CancelOrder(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListPositions(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type unaryCall func(TradingServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(method string, call unaryCall) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(TradingServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{
				Server:     srv,
				FullMethod: buffet.FullMethod(method),
			}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(TradingServer), ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// TradingServiceDesc describes the buffet.v1.Trading service for
// grpc.Server.RegisterService.
var TradingServiceDesc = grpc.ServiceDesc{
	ServiceName: buffet.ServiceName,
	HandlerType: (*TradingServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryHandler(buffet.MethodCreateStrategy, TradingServer.CreateStrategy),
		unaryHandler(buffet.MethodCreateBacktest, TradingServer.CreateBacktest),
		unaryHandler(buffet.MethodRunBacktest, TradingServer.RunBacktest),
		unaryHandler(buffet.MethodGetBacktest, TradingServer.GetBacktest),
		unaryHandler(buffet.MethodListBacktestTrades, TradingServer.ListBacktestTrades),
		unaryHandler(buffet.MethodMarketDataUpdate, TradingServer.MarketDataUpdate),
		unaryHandler(buffet.MethodSubmitOrder, TradingServer.SubmitOrder),
		unaryHandler(buffet.MethodCancelOrder, TradingServer.CancelOrder),
		unaryHandler(buffet.MethodListPositions, TradingServer.ListPositions),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "buffet/v1/trading.proto",
}

// RegisterTradingServer registers srv on the given gRPC server instance.
func RegisterTradingServer(s grpc.ServiceRegistrar, srv TradingServer) {
	s.RegisterService(&TradingServiceDesc, srv)
}
