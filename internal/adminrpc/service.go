// Package adminrpc exposes the change-request approval workflow (C6)
// and the schema descriptor (C3) over gRPC for back-office tooling —
// a shop floor manager's admin console, not the sync clients
// themselves, which only ever speak the HTTP push/pull protocol.
//
// There is no generated protobuf message set for this service in the
// dependency surface this module draws from, so requests and
// responses are carried as google.golang.org/protobuf/types/known/
// structpb.Struct, the same dynamic-payload pattern the rest of the
// sync core uses for row JSON.
package adminrpc

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/enginerepair/engshopsync/internal/apperr"
	"github.com/enginerepair/engshopsync/internal/compat"
	"github.com/enginerepair/engshopsync/internal/model"
	"github.com/enginerepair/engshopsync/internal/ownership"
	"github.com/enginerepair/engshopsync/internal/permissions"
	"github.com/enginerepair/engshopsync/internal/schema"
	"github.com/enginerepair/engshopsync/internal/workflow"
)

// Service implements the AdminService RPCs registered in
// servicedesc.go.
type Service struct {
	Pool   *pgxpool.Pool
	Compat *compat.Gate
}

func NewService(pool *pgxpool.Pool) *Service {
	return &Service{Pool: pool, Compat: compat.New(pool)}
}

func reviewerFrom(ctx context.Context) workflow.Party {
	return workflow.Party{UserID: UserID(ctx), Username: Username(ctx)}
}

func (s *Service) requireApprover(ctx context.Context) error {
	ok, err := permissions.Has(ctx, s.Pool, UserID(ctx), permissions.CodeApproveChanges)
	if err != nil {
		return status.Error(codes.Internal, "permission lookup failed")
	}
	if !ok {
		return status.Error(codes.PermissionDenied, "missing approve_changes permission")
	}
	return nil
}

// ApplyChangeRequest applies a pending change request, identified by
// the "change_request_id" field on the request struct.
func (s *Service) ApplyChangeRequest(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if err := s.requireApprover(ctx); err != nil {
		return nil, err
	}
	id, ok := req.Fields["change_request_id"]
	if !ok || id.GetStringValue() == "" {
		return nil, status.Error(codes.InvalidArgument, "change_request_id is required")
	}

	if err := workflow.Apply(ctx, s.Pool, id.GetStringValue(), reviewerFrom(ctx)); err != nil {
		return nil, toGRPCError(err)
	}
	return structpb.NewStruct(map[string]any{"ok": true, "change_request_id": id.GetStringValue()})
}

// RejectChangeRequest rejects a pending change request. Optional
// "note" field carries the reviewer's rationale.
func (s *Service) RejectChangeRequest(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if err := s.requireApprover(ctx); err != nil {
		return nil, err
	}
	id, ok := req.Fields["change_request_id"]
	if !ok || id.GetStringValue() == "" {
		return nil, status.Error(codes.InvalidArgument, "change_request_id is required")
	}
	note := ""
	if n, ok := req.Fields["note"]; ok {
		note = n.GetStringValue()
	}

	if err := workflow.Reject(ctx, s.Pool, id.GetStringValue(), reviewerFrom(ctx), note); err != nil {
		return nil, toGRPCError(err)
	}
	return structpb.NewStruct(map[string]any{"ok": true, "change_request_id": id.GetStringValue()})
}

// GetSchema returns the current schema version and hash (spec.md
// §4.3, §4.9), mirroring the unauthenticated HTTP /sync/schema
// endpoint for tooling that already holds an admin gRPC channel.
func (s *Service) GetSchema(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	snap, err := schema.Introspect(ctx, s.Pool)
	if err != nil {
		return nil, status.Error(codes.Internal, "schema introspection failed")
	}
	hash, err := schema.Hash(snap)
	if err != nil {
		return nil, status.Error(codes.Internal, "schema hash failed")
	}
	return structpb.NewStruct(map[string]any{
		"version": float64(compat.CurrentVersion),
		"hash":    hash,
	})
}

// ReassignOwner is the administrative row-ownership override spec.md
// §9 describes as intentionally outside the sync path: fields
// "table", "row_id", "new_owner_id", "new_owner_username", and
// "current_payload" (a nested struct mirroring the row's current
// projection, re-appended to the change log so the reassignment is
// itself observable on the next pull).
func (s *Service) ReassignOwner(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if err := s.requireApprover(ctx); err != nil {
		return nil, err
	}
	table := model.Table(req.Fields["table"].GetStringValue())
	if !table.Valid() {
		return nil, status.Error(codes.InvalidArgument, "unknown table")
	}
	rowID := req.Fields["row_id"].GetStringValue()
	newOwnerID := req.Fields["new_owner_id"].GetStringValue()
	newOwnerUsername := req.Fields["new_owner_username"].GetStringValue()
	if rowID == "" || newOwnerID == "" || newOwnerUsername == "" {
		return nil, status.Error(codes.InvalidArgument, "row_id, new_owner_id and new_owner_username are required")
	}

	var payload model.Payload
	if p, ok := req.Fields["current_payload"]; ok && p.GetStructValue() != nil {
		payload = model.Payload(p.GetStructValue().AsMap())
	}

	if err := ownership.Reassign(ctx, s.Pool, table, rowID, newOwnerID, newOwnerUsername, payload); err != nil {
		return nil, toGRPCError(err)
	}
	return structpb.NewStruct(map[string]any{"ok": true, "row_id": rowID})
}

func toGRPCError(err error) error {
	aerr, ok := apperr.As(err)
	if !ok {
		return status.Error(codes.Internal, "internal error")
	}
	var code codes.Code
	switch aerr.Code {
	case apperr.CodeValidation:
		code = codes.InvalidArgument
	case apperr.CodeNotFound:
		code = codes.NotFound
	case apperr.CodeForbidden:
		code = codes.PermissionDenied
	case apperr.CodeAuthRequired:
		code = codes.Unauthenticated
	case apperr.CodeConflictSchema:
		code = codes.FailedPrecondition
	case apperr.CodeRateLimited:
		code = codes.ResourceExhausted
	default:
		code = codes.Internal
	}
	return status.Error(code, fmt.Sprintf("%s: %s", aerr.Code, aerr.Message))
}
