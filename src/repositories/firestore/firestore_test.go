package firestore

import (
	"context"
	"crewcomms/src/types"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestTranslateMapsGrpcCodes(t *testing.T) {
	cases := []struct {
		code codes.Code
		want error
	}{
		{codes.NotFound, types.ErrNotFound},
		{codes.AlreadyExists, types.ErrConflict},
		{codes.Aborted, types.ErrConflict},
		{codes.Unavailable, types.ErrNetworkUnavailable},
		{codes.DeadlineExceeded, types.ErrNetworkUnavailable},
		{codes.PermissionDenied, types.ErrPermissionDenied},
		{codes.Unauthenticated, types.ErrUnauthenticated},
	}
	for _, c := range cases {
		err := translate("op", status.Error(c.code, "boom"))
		assert.ErrorIs(t, err, c.want, c.code.String())
	}
	assert.Equal(t, types.KIND_INTERNAL, types.KindOf(translate("op", status.Error(codes.Internal, "x"))))
}

func TestTranslateKeepsAppErrorsAndNil(t *testing.T) {
	assert.NoError(t, translate("op", nil))

	nf := types.NotFound("GetCrew", "crew", "c1")
	assert.Same(t, nf, translate("op", nf))

	wrapped := fmt.Errorf("tx: %w", types.PermissionDenied("op", types.PERM_SEND_MESSAGES))
	assert.ErrorIs(t, translate("op", wrapped), types.ErrPermissionDenied)

	assert.True(t, types.Retryable(translate("op", context.DeadlineExceeded)))
	assert.False(t, types.Retryable(translate("op", errors.New("decode"))))
}
