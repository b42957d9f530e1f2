package service

import (
	"context"
	"fmt"
	"io"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/cory-johannsen/crypdoebucks/internal/game/buck"
	"github.com/cory-johannsen/crypdoebucks/internal/ledger"
)

// Client calls bucks.v1.BuckService on behalf of one account. Ledger errors
// returned by the server satisfy errors.Is against the buck sentinels.
type Client struct {
	conn    *grpc.ClientConn
	account buck.AccountID
}

// Dial connects to addr without transport security.
//
// Precondition: addr is host:port.
// Postcondition: Returns a Client the caller must Close, or a non-nil error.
func Dial(addr string, account buck.AccountID, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithStatsHandler(otelgrpc.NewClientHandler()),
	}, opts...)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", addr, err)
	}
	return &Client{conn: conn, account: account}, nil
}

// Close releases the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) outgoing(ctx context.Context) context.Context {
	if c.account == "" {
		return ctx
	}
	return metadata.AppendToOutgoingContext(ctx, AccountMetadataKey, string(c.account))
}

func (c *Client) invoke(ctx context.Context, method string, in *structpb.Struct) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.conn.Invoke(c.outgoing(ctx), FullMethod(method), in, out); err != nil {
		return nil, FromStatus(err)
	}
	return out, nil
}

// CreateBuck mints a buck and returns its id.
func (c *Client) CreateBuck(ctx context.Context, req ledger.MintRequest) (buck.TokenID, error) {
	out, err := c.invoke(ctx, MethodCreateBuck, mintRequestToStruct(req))
	if err != nil {
		return 0, err
	}
	return tokenField(out, fieldID)
}

// Fight attacks defender with attacker.
func (c *Client) Fight(ctx context.Context, attacker, defender buck.TokenID) (FightResult, error) {
	out, err := c.invoke(ctx, MethodFight, newStruct(map[string]*structpb.Value{
		fieldAttackerID: uintValue(uint64(attacker)),
		fieldDefenderID: uintValue(uint64(defender)),
	}))
	if err != nil {
		return FightResult{}, err
	}
	return fightResultFromStruct(out)
}

// OwnerOf returns the owner of id.
func (c *Client) OwnerOf(ctx context.Context, id buck.TokenID) (buck.AccountID, error) {
	out, err := c.invoke(ctx, MethodOwnerOf, idRequest(id))
	if err != nil {
		return "", err
	}
	return accountField(out, fieldOwner)
}

// BalanceOf returns 1 if account owns id, otherwise 0.
func (c *Client) BalanceOf(ctx context.Context, account buck.AccountID, id buck.TokenID) (uint64, error) {
	out, err := c.invoke(ctx, MethodBalanceOf, newStruct(map[string]*structpb.Value{
		fieldAccount: structpb.NewStringValue(string(account)),
		fieldID:      uintValue(uint64(id)),
	}))
	if err != nil {
		return 0, err
	}
	return uintField(out, fieldBalance, 1)
}

// GetBuck returns the attributes of id.
func (c *Client) GetBuck(ctx context.Context, id buck.TokenID) (buck.Buck, error) {
	out, err := c.invoke(ctx, MethodGetBuck, idRequest(id))
	if err != nil {
		return buck.Buck{}, err
	}
	return buckFromStruct(out)
}

// MetadataURI returns the collection template and its expansion for id.
func (c *Client) MetadataURI(ctx context.Context, id buck.TokenID) (template, expanded string, err error) {
	out, err := c.invoke(ctx, MethodMetadataURI, idRequest(id))
	if err != nil {
		return "", "", err
	}
	if template, err = stringField(out, fieldURI); err != nil {
		return "", "", err
	}
	expanded, err = stringField(out, fieldExpanded)
	return template, expanded, err
}

// ListEvents returns up to limit events with Seq > after.
func (c *Client) ListEvents(ctx context.Context, after uint64, limit int) ([]ledger.Event, error) {
	in := newStruct(map[string]*structpb.Value{fieldAfter: uintValue(after)})
	if limit > 0 {
		in.Fields[fieldLimit] = uintValue(uint64(limit))
	}
	out, err := c.invoke(ctx, MethodListEvents, in)
	if err != nil {
		return nil, err
	}
	vals := out.GetFields()[fieldEvents].GetListValue().GetValues()
	events := make([]ledger.Event, 0, len(vals))
	for _, v := range vals {
		e, err := eventFromStruct(v.GetStructValue())
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, nil
}

// WatchEvents streams events with Seq > after to fn until ctx is done, the
// server ends the stream, or fn returns an error.
func (c *Client) WatchEvents(ctx context.Context, after uint64, fn func(ledger.Event) error) error {
	desc := &ServiceDesc.Streams[0]
	stream, err := c.conn.NewStream(c.outgoing(ctx), desc, FullMethod(MethodWatchEvents))
	if err != nil {
		return FromStatus(err)
	}
	if err := stream.SendMsg(newStruct(map[string]*structpb.Value{fieldAfter: uintValue(after)})); err != nil {
		return FromStatus(err)
	}
	if err := stream.CloseSend(); err != nil {
		return FromStatus(err)
	}
	for {
		msg := new(structpb.Struct)
		if err := stream.RecvMsg(msg); err != nil {
			if err == io.EOF {
				return nil
			}
			return FromStatus(err)
		}
		e, err := eventFromStruct(msg)
		if err != nil {
			return err
		}
		if err := fn(e); err != nil {
			return err
		}
	}
}

func idRequest(id buck.TokenID) *structpb.Struct {
	return newStruct(map[string]*structpb.Value{fieldID: uintValue(uint64(id))})
}
