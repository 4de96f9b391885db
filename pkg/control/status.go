package control

import (
	"context"
	stderrors "errors"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/core-tools/hsu-launchpad/pkg/errors"
)

// errorTypeKey carries the DomainError type in the trailer
const errorTypeKey = "launchpad-error-type"

var codeByType = map[errors.ErrorType]codes.Code{
	errors.ErrorTypeValidation:  codes.InvalidArgument,
	errors.ErrorTypeNotFound:    codes.NotFound,
	errors.ErrorTypeSpawn:       codes.FailedPrecondition,
	errors.ErrorTypeRuntimeExit: codes.Aborted,
	errors.ErrorTypeTermination: codes.Internal,
	errors.ErrorTypeLookupMiss:  codes.NotFound,
	errors.ErrorTypeIO:          codes.Unavailable,
	errors.ErrorTypeNetwork:     codes.Unavailable,
	errors.ErrorTypeInternal:    codes.Internal,
	errors.ErrorTypeCancelled:   codes.Canceled,
}

// toStatus converts err to a gRPC status error and records its type
func toStatus(err error, setTrailer func(metadata.MD) error) error {
	if err == nil {
		return nil
	}
	var domainErr *errors.DomainError
	if !stderrors.As(err, &domainErr) {
		return status.Error(codes.Unknown, err.Error())
	}
	if setTrailer != nil {
		_ = setTrailer(metadata.Pairs(errorTypeKey, string(domainErr.Type)))
	}
	code, ok := codeByType[domainErr.Type]
	if !ok {
		code = codes.Unknown
	}
	message := err.Error()
	if err == error(domainErr) {
		message = domainErr.Message
		if domainErr.Cause != nil {
			message += ": " + domainErr.Cause.Error()
		}
	}
	return status.Error(code, message)
}

func unaryTrailer(ctx context.Context) func(metadata.MD) error {
	return func(md metadata.MD) error {
		return grpc.SetTrailer(ctx, md)
	}
}

func streamTrailer(stream grpc.ServerStream) func(metadata.MD) error {
	return func(md metadata.MD) error {
		stream.SetTrailer(md)
		return nil
	}
}

// fromStatus rebuilds a DomainError from a gRPC error and its trailer
func fromStatus(err error, trailer metadata.MD) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return errors.NewNetworkError("gRPC call failed", err)
	}

	if values := trailer.Get(errorTypeKey); len(values) > 0 {
		return errors.NewDomainError(errors.ErrorType(values[0]), st.Message(), nil)
	}

	switch st.Code() {
	case codes.Canceled, codes.DeadlineExceeded:
		return errors.NewCancelledError(st.Message(), err)
	case codes.Unavailable:
		return errors.NewNetworkError(st.Message(), err)
	case codes.InvalidArgument:
		return errors.NewValidationError(st.Message(), nil)
	case codes.NotFound:
		return errors.NewNotFoundError(st.Message(), nil)
	}
	return errors.NewInternalError(st.Message(), err)
}
