// Package firestore implements the service repositories on Cloud Firestore using
// the document layout crews/{crewId}/... and conversations/{conversationId}/messages.
package firestore

import (
	"context"
	"crewcomms/src/types"
	"errors"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	colCrews            = "crews"
	colMembers          = "members"
	colInvitations      = "invitations"
	colNotifications    = "notifications"
	colJobNotifications = "jobNotifications"
	colConversations    = "conversations"
	colMessages         = "messages"
)

var errClientNil = errors.New("firestore client is nil")

// translate maps transport errors onto the app's error kinds.
func translate(op string, err error) error {
	if err == nil {
		return nil
	}
	var ae *types.AppError
	if errors.As(err, &ae) {
		return err
	}
	switch status.Code(err) {
	case codes.NotFound:
		return types.WrapError(types.KIND_NOT_FOUND, op, err)
	case codes.AlreadyExists, codes.Aborted:
		return types.WrapError(types.KIND_CONFLICT, op, err)
	case codes.Unavailable, codes.DeadlineExceeded:
		return types.WrapError(types.KIND_NETWORK_UNAVAILABLE, op, err)
	case codes.PermissionDenied:
		return types.WrapError(types.KIND_PERMISSION_DENIED, op, err)
	case codes.Unauthenticated:
		return types.WrapError(types.KIND_UNAUTHENTICATED, op, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return types.WrapError(types.KIND_NETWORK_UNAVAILABLE, op, err)
	}
	return types.WrapError(types.KIND_INTERNAL, op, err)
}

func isNotFound(err error) bool {
	return status.Code(err) == codes.NotFound
}

// collect decodes every document of the iterator into T.
func collect[T any](op string, it *firestore.DocumentIterator) ([]*T, error) {
	defer it.Stop()
	var out []*T
	for {
		snap, err := it.Next()
		if errors.Is(err, iterator.Done) {
			return out, nil
		}
		if err != nil {
			return nil, translate(op, err)
		}
		v := new(T)
		if err := snap.DataTo(v); err != nil {
			return nil, translate(op, err)
		}
		out = append(out, v)
	}
}

// deleteAll removes every document of q in batches and returns how many went.
func deleteAll(ctx context.Context, client *firestore.Client, q firestore.Query) (int, error) {
	bw := client.BulkWriter(ctx)
	n := 0
	it := q.Documents(ctx)
	defer it.Stop()
	for {
		snap, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			bw.End()
			return n, translate("deleteAll", err)
		}
		if _, err := bw.Delete(snap.Ref); err != nil {
			bw.End()
			return n, translate("deleteAll", err)
		}
		n++
	}
	bw.End()
	return n, nil
}
