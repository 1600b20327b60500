package remote

import (
	"context"
	"net/http"

	"connectrpc.com/connect"
)

// NewHandler mounts one unary connect handler per session-service procedure
// and returns an http.Handler serving all of them. Taxonomy errors from the
// service are translated to connect codes on the way out.
func NewHandler(svc Service, opts ...connect.HandlerOption) http.Handler {
	handlerOpts := append([]connect.HandlerOption{connect.WithCodec(jsonCodec{})}, opts...)

	mux := http.NewServeMux()
	mux.Handle(ProcedureCreateSession, unaryHandler(ProcedureCreateSession, svc.CreateSession, handlerOpts))
	mux.Handle(ProcedureRegisterVariable, unaryHandler(ProcedureRegisterVariable, svc.RegisterVariable, handlerOpts))
	mux.Handle(ProcedureGetVariable, unaryHandler(ProcedureGetVariable, svc.GetVariable, handlerOpts))
	mux.Handle(ProcedureSetVariable, unaryHandler(ProcedureSetVariable, svc.SetVariable, handlerOpts))
	mux.Handle(ProcedureDeleteVariable, unaryHandler(ProcedureDeleteVariable, svc.DeleteVariable, handlerOpts))
	mux.Handle(ProcedureListVariables, unaryHandler(ProcedureListVariables, svc.ListVariables, handlerOpts))
	mux.Handle(ProcedureGetVariables, unaryHandler(ProcedureGetVariables, svc.GetVariables, handlerOpts))
	mux.Handle(ProcedureUpdateVariables, unaryHandler(ProcedureUpdateVariables, svc.UpdateVariables, handlerOpts))
	mux.Handle(ProcedureDeleteSession, unaryHandler(ProcedureDeleteSession, svc.DeleteSession, handlerOpts))
	return mux
}

func unaryHandler[Req, Res any](procedure string, call func(context.Context, *Req) (*Res, error), opts []connect.HandlerOption) http.Handler {
	return connect.NewUnaryHandler(procedure,
		func(ctx context.Context, req *connect.Request[Req]) (*connect.Response[Res], error) {
			resp, err := call(ctx, req.Msg)
			if err != nil {
				return nil, toConnectError(err)
			}
			return connect.NewResponse(resp), nil
		},
		opts...,
	)
}
