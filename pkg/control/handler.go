package control

import (
	"context"

	"google.golang.org/grpc"

	"github.com/core-tools/hsu-launchpad/pkg/domain"
	"github.com/core-tools/hsu-launchpad/pkg/logging"
)

func RegisterGRPCServerHandler(grpcServerRegistrar grpc.ServiceRegistrar, handler domain.Contract, logger logging.Logger) {
	grpcServerRegistrar.RegisterService(&serviceDesc, &grpcServerHandler{
		handler: handler,
		logger:  logger,
	})
}

type grpcServerHandler struct {
	handler domain.Contract
	logger  logging.Logger
}

func (h *grpcServerHandler) serve() *grpcServerHandler {
	return h
}

// done logs the outcome of a unary call and converts its error
func (h *grpcServerHandler) done(ctx context.Context, method string, response interface{}, err error) (interface{}, error) {
	if err != nil {
		h.logger.Errorf("%s server handler: %v", method, err)
		return nil, toStatus(err, unaryTrailer(ctx))
	}
	h.logger.Debugf("%s server handler done", method)
	return response, nil
}

func (h *grpcServerHandler) start(ctx context.Context, req *systemRequest) (interface{}, error) {
	err := h.handler.Start(ctx, req.ApplicationID, req.SystemID)
	return h.done(ctx, methodStart, &empty{}, err)
}

func (h *grpcServerHandler) stop(ctx context.Context, req *systemRequest) (interface{}, error) {
	err := h.handler.Stop(ctx, req.SystemID)
	return h.done(ctx, methodStop, &empty{}, err)
}

func (h *grpcServerHandler) forceStop(ctx context.Context, req *systemRequest) (interface{}, error) {
	summary, err := h.handler.ForceStop(ctx, req.ApplicationID, req.SystemID)
	return h.done(ctx, methodForceStop, &summary, err)
}

func (h *grpcServerHandler) deploy(ctx context.Context, req *systemRequest) (interface{}, error) {
	err := h.handler.Deploy(ctx, req.ApplicationID, req.SystemID)
	return h.done(ctx, methodDeploy, &empty{}, err)
}

func (h *grpcServerHandler) startAll(ctx context.Context, req *applicationRequest) (interface{}, error) {
	err := h.handler.StartAll(ctx, req.ApplicationID)
	return h.done(ctx, methodStartAll, &empty{}, err)
}

func (h *grpcServerHandler) status(ctx context.Context, req *empty) (interface{}, error) {
	processes, err := h.handler.Status(ctx)
	return h.done(ctx, methodStatus, &statusResponse{Processes: processes}, err)
}

func (h *grpcServerHandler) history(ctx context.Context, req *historyRequest) (interface{}, error) {
	runs, err := h.handler.History(ctx, req.SystemID, req.Limit)
	return h.done(ctx, methodHistory, &historyResponse{Runs: runs}, err)
}

func (h *grpcServerHandler) listApplications(ctx context.Context, req *empty) (interface{}, error) {
	apps, err := h.handler.ListApplications(ctx)
	return h.done(ctx, methodListApplications, &applicationsResponse{Applications: apps}, err)
}

func (h *grpcServerHandler) addApplication(ctx context.Context, req *applicationRequest) (interface{}, error) {
	app, err := h.handler.AddApplication(ctx, req.Name, req.Directory)
	return h.done(ctx, methodAddApplication, &app, err)
}

func (h *grpcServerHandler) updateApplication(ctx context.Context, req *applicationRequest) (interface{}, error) {
	app, err := h.handler.UpdateApplication(ctx, req.ApplicationID, req.Name, req.Directory)
	return h.done(ctx, methodUpdateApplication, &app, err)
}

func (h *grpcServerHandler) deleteApplication(ctx context.Context, req *applicationRequest) (interface{}, error) {
	err := h.handler.DeleteApplication(ctx, req.ApplicationID)
	return h.done(ctx, methodDeleteApplication, &empty{}, err)
}

func (h *grpcServerHandler) addSystem(ctx context.Context, req *systemUpsertRequest) (interface{}, error) {
	system, err := h.handler.AddSystem(ctx, req.ApplicationID, req.System)
	return h.done(ctx, methodAddSystem, &system, err)
}

func (h *grpcServerHandler) updateSystem(ctx context.Context, req *systemUpsertRequest) (interface{}, error) {
	system, err := h.handler.UpdateSystem(ctx, req.ApplicationID, req.System)
	return h.done(ctx, methodUpdateSystem, &system, err)
}

func (h *grpcServerHandler) deleteSystem(ctx context.Context, req *systemRequest) (interface{}, error) {
	err := h.handler.DeleteSystem(ctx, req.ApplicationID, req.SystemID)
	return h.done(ctx, methodDeleteSystem, &empty{}, err)
}

// events streams sink events until the client goes away
func (h *grpcServerHandler) events(stream grpc.ServerStream) error {
	req := new(empty)
	if err := stream.RecvMsg(req); err != nil {
		return err
	}

	h.logger.Infof("Events subscriber connected")
	err := h.handler.Events(stream.Context(), func(ev domain.Event) error {
		return stream.SendMsg(&ev)
	})
	if err != nil && stream.Context().Err() == nil {
		h.logger.Errorf("Events server handler: %v", err)
		return toStatus(err, streamTrailer(stream))
	}
	h.logger.Infof("Events subscriber disconnected")
	return nil
}
