package service

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/cory-johannsen/crypdoebucks/internal/game/buck"
	"github.com/cory-johannsen/crypdoebucks/internal/game/combat"
	"github.com/cory-johannsen/crypdoebucks/internal/ledger"
)

// AccountMetadataKey carries the caller's account id on every request.
const AccountMetadataKey = "x-bucks-account"

// Minter creates bucks.
type Minter interface {
	CreateBuck(ctx context.Context, caller buck.AccountID, req ledger.MintRequest) (buck.TokenID, error)
}

// Fighter resolves fights.
type Fighter interface {
	Fight(ctx context.Context, caller buck.AccountID, attackerID, defenderID buck.TokenID) (combat.Result, error)
}

// Reader answers ledger queries.
type Reader interface {
	GetBuck(ctx context.Context, id buck.TokenID) (buck.Buck, error)
	OwnerOf(ctx context.Context, id buck.TokenID) (buck.AccountID, error)
	BalanceOf(ctx context.Context, account buck.AccountID, id buck.TokenID) (uint64, error)
	Events(ctx context.Context, after uint64, limit int) ([]ledger.Event, error)
	MetadataURI(id buck.TokenID) string
	ExpandURI(id buck.TokenID) string
}

// Server implements BuckServiceServer on top of the ledger components.
type Server struct {
	minter Minter
	engine Fighter
	reader Reader
	bus    *ledger.Bus
	logger *zap.Logger
}

// NewServer creates a Server.
//
// Precondition: every argument is non-nil.
func NewServer(minter Minter, engine Fighter, reader Reader, bus *ledger.Bus, logger *zap.Logger) *Server {
	return &Server{minter: minter, engine: engine, reader: reader, bus: bus, logger: logger}
}

// NewGRPCServer returns a grpc.Server with srv registered and request
// logging installed.
func NewGRPCServer(srv BuckServiceServer, logger *zap.Logger, opts ...grpc.ServerOption) *grpc.Server {
	opts = append(opts,
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(UnaryLoggingInterceptor(logger)),
		grpc.ChainStreamInterceptor(StreamLoggingInterceptor(logger)),
	)
	gs := grpc.NewServer(opts...)
	RegisterBuckServiceServer(gs, srv)
	return gs
}

// callerFrom extracts the caller account from incoming metadata.
func callerFrom(ctx context.Context) (buck.AccountID, error) {
	md, _ := metadata.FromIncomingContext(ctx)
	vals := md.Get(AccountMetadataKey)
	if len(vals) == 0 || strings.TrimSpace(vals[0]) == "" {
		return "", status.Errorf(codes.Unauthenticated, "missing %s metadata", AccountMetadataKey)
	}
	return buck.AccountID(vals[0]), nil
}

func invalidArgument(err error) error {
	return status.Error(codes.InvalidArgument, err.Error())
}

// CreateBuck mints a buck on behalf of the calling account.
func (s *Server) CreateBuck(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	caller, err := callerFrom(ctx)
	if err != nil {
		return nil, err
	}
	req, err := mintRequestFromStruct(in)
	if err != nil {
		return nil, invalidArgument(err)
	}
	id, err := s.minter.CreateBuck(ctx, caller, req)
	if err != nil {
		return nil, toStatus(err)
	}
	return newStruct(map[string]*structpb.Value{fieldID: uintValue(uint64(id))}), nil
}

// Fight resolves a fight on behalf of the attacker's owner.
func (s *Server) Fight(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	caller, err := callerFrom(ctx)
	if err != nil {
		return nil, err
	}
	atk, err := tokenField(in, fieldAttackerID)
	if err != nil {
		return nil, invalidArgument(err)
	}
	def, err := tokenField(in, fieldDefenderID)
	if err != nil {
		return nil, invalidArgument(err)
	}
	res, err := s.engine.Fight(ctx, caller, atk, def)
	if err != nil {
		return nil, toStatus(err)
	}
	return fightResultToStruct(FightResult(res)), nil
}

// OwnerOf returns the owner of a minted id.
func (s *Server) OwnerOf(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	id, err := tokenField(in, fieldID)
	if err != nil {
		return nil, invalidArgument(err)
	}
	owner, err := s.reader.OwnerOf(ctx, id)
	if err != nil {
		return nil, toStatus(err)
	}
	return newStruct(map[string]*structpb.Value{fieldOwner: structpb.NewStringValue(string(owner))}), nil
}

// BalanceOf returns 1 when account owns id, else 0.
func (s *Server) BalanceOf(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	account, err := accountField(in, fieldAccount)
	if err != nil {
		return nil, invalidArgument(err)
	}
	id, err := tokenField(in, fieldID)
	if err != nil {
		return nil, invalidArgument(err)
	}
	bal, err := s.reader.BalanceOf(ctx, account, id)
	if err != nil {
		return nil, toStatus(err)
	}
	return newStruct(map[string]*structpb.Value{fieldBalance: uintValue(bal)}), nil
}

// GetBuck returns the attributes of a minted id.
func (s *Server) GetBuck(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	id, err := tokenField(in, fieldID)
	if err != nil {
		return nil, invalidArgument(err)
	}
	b, err := s.reader.GetBuck(ctx, id)
	if err != nil {
		return nil, toStatus(err)
	}
	return buckToStruct(id, b), nil
}

// MetadataURI returns the collection template and its expansion for id.
func (s *Server) MetadataURI(_ context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	id, err := tokenField(in, fieldID)
	if err != nil {
		return nil, invalidArgument(err)
	}
	return newStruct(map[string]*structpb.Value{
		fieldURI:      structpb.NewStringValue(s.reader.MetadataURI(id)),
		fieldExpanded: structpb.NewStringValue(s.reader.ExpandURI(id)),
	}), nil
}

// ListEvents returns one page of the event log.
func (s *Server) ListEvents(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	after, err := optionalUint(in, fieldAfter, math.MaxUint64)
	if err != nil {
		return nil, invalidArgument(err)
	}
	limit, err := optionalUint(in, fieldLimit, ledger.MaxEventPage)
	if err != nil {
		return nil, invalidArgument(err)
	}
	events, err := s.reader.Events(ctx, after, int(limit))
	if err != nil {
		return nil, toStatus(err)
	}
	vals := make([]*structpb.Value, len(events))
	for i, e := range events {
		vals[i] = structpb.NewStructValue(eventToStruct(e))
	}
	return newStruct(map[string]*structpb.Value{fieldEvents: structpb.NewListValue(&structpb.ListValue{Values: vals})}), nil
}

// WatchEvents replays the log after the requested seq and then streams new
// events as they commit. Each seq is sent at most once, in order.
func (s *Server) WatchEvents(in *structpb.Struct, stream EventStream) error {
	ctx := stream.Context()
	last, err := optionalUint(in, fieldAfter, math.MaxUint64)
	if err != nil {
		return invalidArgument(err)
	}

	// Subscribe before catching up so nothing committed in between is missed.
	sub := s.bus.Subscribe(ledger.DefaultSubscriptionBuffer)
	defer sub.Close()

	for {
		page, err := s.reader.Events(ctx, last, ledger.MaxEventPage)
		if err != nil {
			return toStatus(err)
		}
		for _, e := range page {
			if err := stream.Send(eventToStruct(e)); err != nil {
				return err
			}
			last = e.Seq
		}
		if len(page) < ledger.MaxEventPage {
			break
		}
	}

	for {
		select {
		case <-ctx.Done():
			return toStatus(ctx.Err())
		case e, ok := <-sub.C:
			if !ok {
				// Dropped for falling behind, or the bus shut down.
				return status.Errorf(codes.Unavailable, "event stream closed; resume after seq %d", last)
			}
			if e.Seq <= last {
				continue
			}
			if err := stream.Send(eventToStruct(e)); err != nil {
				return err
			}
			last = e.Seq
		}
	}
}

// UnaryLoggingInterceptor logs every unary call with its status code.
func UnaryLoggingInterceptor(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		logCall(ctx, logger, info.FullMethod, start, err)
		return resp, err
	}
}

// StreamLoggingInterceptor logs every stream when it ends.
func StreamLoggingInterceptor(logger *zap.Logger) grpc.StreamServerInterceptor {
	return func(srv interface{}, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		start := time.Now()
		err := handler(srv, ss)
		logCall(ss.Context(), logger, info.FullMethod, start, err)
		return err
	}
}

func logCall(ctx context.Context, logger *zap.Logger, method string, start time.Time, err error) {
	code := status.Code(err)
	fields := []zap.Field{
		zap.String("method", method),
		zap.String("code", code.String()),
		zap.Duration("elapsed", time.Since(start)),
	}
	if caller, cerr := callerFrom(ctx); cerr == nil {
		fields = append(fields, zap.String("caller", string(caller)))
	}
	switch code {
	case codes.OK, codes.Canceled:
		logger.Debug("rpc", fields...)
	case codes.Internal, codes.Unknown, codes.DataLoss:
		logger.Error("rpc", append(fields, zap.Error(err))...)
	default:
		logger.Info("rpc", append(fields, zap.String("error", fmt.Sprint(err)))...)
	}
}
