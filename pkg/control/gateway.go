package control

import (
	"context"
	"io"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"

	"github.com/core-tools/hsu-launchpad/pkg/domain"
	"github.com/core-tools/hsu-launchpad/pkg/errors"
	"github.com/core-tools/hsu-launchpad/pkg/logging"
)

func NewGRPCClientGateway(grpcClientConnection grpc.ClientConnInterface, logger logging.Logger) domain.Contract {
	return &grpcClientGateway{
		conn:   grpcClientConnection,
		logger: logger,
	}
}

type grpcClientGateway struct {
	conn   grpc.ClientConnInterface
	logger logging.Logger
}

func (gw *grpcClientGateway) invoke(ctx context.Context, method string, req, resp interface{}) error {
	var trailer metadata.MD
	err := gw.conn.Invoke(ctx, fullMethod(method), req, resp,
		grpc.CallContentSubtype(CodecName),
		grpc.Trailer(&trailer))
	if err != nil {
		gw.logger.Errorf("%s client gateway: %v", method, err)
		return fromStatus(err, trailer)
	}
	gw.logger.Debugf("%s client gateway done", method)
	return nil
}

func (gw *grpcClientGateway) Start(ctx context.Context, applicationID, systemID string) error {
	return gw.invoke(ctx, methodStart, &systemRequest{ApplicationID: applicationID, SystemID: systemID}, &empty{})
}

func (gw *grpcClientGateway) Stop(ctx context.Context, systemID string) error {
	return gw.invoke(ctx, methodStop, &systemRequest{SystemID: systemID}, &empty{})
}

func (gw *grpcClientGateway) ForceStop(ctx context.Context, applicationID, systemID string) (domain.ForceStopSummary, error) {
	var summary domain.ForceStopSummary
	err := gw.invoke(ctx, methodForceStop, &systemRequest{ApplicationID: applicationID, SystemID: systemID}, &summary)
	return summary, err
}

func (gw *grpcClientGateway) Deploy(ctx context.Context, applicationID, systemID string) error {
	return gw.invoke(ctx, methodDeploy, &systemRequest{ApplicationID: applicationID, SystemID: systemID}, &empty{})
}

func (gw *grpcClientGateway) StartAll(ctx context.Context, applicationID string) error {
	return gw.invoke(ctx, methodStartAll, &applicationRequest{ApplicationID: applicationID}, &empty{})
}

func (gw *grpcClientGateway) Status(ctx context.Context) ([]domain.ProcessInfo, error) {
	var resp statusResponse
	if err := gw.invoke(ctx, methodStatus, &empty{}, &resp); err != nil {
		return nil, err
	}
	return resp.Processes, nil
}

func (gw *grpcClientGateway) History(ctx context.Context, systemID string, limit int) ([]domain.RunRecord, error) {
	var resp historyResponse
	if err := gw.invoke(ctx, methodHistory, &historyRequest{SystemID: systemID, Limit: limit}, &resp); err != nil {
		return nil, err
	}
	return resp.Runs, nil
}

func (gw *grpcClientGateway) ListApplications(ctx context.Context) ([]domain.Application, error) {
	var resp applicationsResponse
	if err := gw.invoke(ctx, methodListApplications, &empty{}, &resp); err != nil {
		return nil, err
	}
	return resp.Applications, nil
}

func (gw *grpcClientGateway) AddApplication(ctx context.Context, name, directory string) (domain.Application, error) {
	var app domain.Application
	err := gw.invoke(ctx, methodAddApplication, &applicationRequest{Name: name, Directory: directory}, &app)
	return app, err
}

func (gw *grpcClientGateway) UpdateApplication(ctx context.Context, applicationID, name, directory string) (domain.Application, error) {
	var app domain.Application
	err := gw.invoke(ctx, methodUpdateApplication, &applicationRequest{ApplicationID: applicationID, Name: name, Directory: directory}, &app)
	return app, err
}

func (gw *grpcClientGateway) DeleteApplication(ctx context.Context, applicationID string) error {
	return gw.invoke(ctx, methodDeleteApplication, &applicationRequest{ApplicationID: applicationID}, &empty{})
}

func (gw *grpcClientGateway) AddSystem(ctx context.Context, applicationID string, system domain.System) (domain.System, error) {
	var created domain.System
	err := gw.invoke(ctx, methodAddSystem, &systemUpsertRequest{ApplicationID: applicationID, System: system}, &created)
	return created, err
}

func (gw *grpcClientGateway) UpdateSystem(ctx context.Context, applicationID string, system domain.System) (domain.System, error) {
	var updated domain.System
	err := gw.invoke(ctx, methodUpdateSystem, &systemUpsertRequest{ApplicationID: applicationID, System: system}, &updated)
	return updated, err
}

func (gw *grpcClientGateway) DeleteSystem(ctx context.Context, applicationID, systemID string) error {
	return gw.invoke(ctx, methodDeleteSystem, &systemRequest{ApplicationID: applicationID, SystemID: systemID}, &empty{})
}

// Events opens the server stream and hands each event to fn
func (gw *grpcClientGateway) Events(ctx context.Context, fn func(domain.Event) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	stream, err := gw.conn.NewStream(ctx, &serviceDesc.Streams[0], fullMethod(streamEvents),
		grpc.CallContentSubtype(CodecName))
	if err != nil {
		gw.logger.Errorf("Events client gateway: %v", err)
		return fromStatus(err, nil)
	}
	if err := stream.SendMsg(&empty{}); err != nil {
		return fromStatus(err, nil)
	}
	if err := stream.CloseSend(); err != nil {
		return fromStatus(err, nil)
	}

	for {
		var ev domain.Event
		if err := stream.RecvMsg(&ev); err != nil {
			if err == io.EOF {
				return nil
			}
			if ctx.Err() != nil {
				return errors.NewCancelledError("event stream closed", ctx.Err())
			}
			return fromStatus(err, stream.Trailer())
		}
		if err := fn(ev); err != nil {
			return err
		}
	}
}
