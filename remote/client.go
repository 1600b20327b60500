package remote

import (
	"context"
	"time"

	"connectrpc.com/connect"
)

const defaultCallTimeout = 10 * time.Second

// Client implements Service over connect RPC. Every call carries a timeout
// so no RPC path can block indefinitely; a timed-out call surfaces as a
// transient error to the retry layer.
type Client struct {
	timeout time.Duration

	createSession    *connect.Client[CreateSessionRequest, CreateSessionResponse]
	registerVariable *connect.Client[RegisterVariableRequest, RegisterVariableResponse]
	getVariable      *connect.Client[GetVariableRequest, GetVariableResponse]
	setVariable      *connect.Client[SetVariableRequest, SetVariableResponse]
	deleteVariable   *connect.Client[DeleteVariableRequest, DeleteVariableResponse]
	listVariables    *connect.Client[ListVariablesRequest, ListVariablesResponse]
	getVariables     *connect.Client[GetVariablesRequest, GetVariablesResponse]
	updateVariables  *connect.Client[UpdateVariablesRequest, UpdateVariablesResponse]
	deleteSession    *connect.Client[DeleteSessionRequest, DeleteSessionResponse]
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithCallTimeout sets the per-call timeout applied to every RPC.
func WithCallTimeout(d time.Duration) ClientOption {
	return func(c *Client) { c.timeout = d }
}

// NewClient creates a session-service client against baseURL.
func NewClient(httpClient connect.HTTPClient, baseURL string, opts ...ClientOption) *Client {
	connectOpts := []connect.ClientOption{connect.WithCodec(jsonCodec{})}

	c := &Client{
		timeout:          defaultCallTimeout,
		createSession:    connect.NewClient[CreateSessionRequest, CreateSessionResponse](httpClient, baseURL+ProcedureCreateSession, connectOpts...),
		registerVariable: connect.NewClient[RegisterVariableRequest, RegisterVariableResponse](httpClient, baseURL+ProcedureRegisterVariable, connectOpts...),
		getVariable:      connect.NewClient[GetVariableRequest, GetVariableResponse](httpClient, baseURL+ProcedureGetVariable, connectOpts...),
		setVariable:      connect.NewClient[SetVariableRequest, SetVariableResponse](httpClient, baseURL+ProcedureSetVariable, connectOpts...),
		deleteVariable:   connect.NewClient[DeleteVariableRequest, DeleteVariableResponse](httpClient, baseURL+ProcedureDeleteVariable, connectOpts...),
		listVariables:    connect.NewClient[ListVariablesRequest, ListVariablesResponse](httpClient, baseURL+ProcedureListVariables, connectOpts...),
		getVariables:     connect.NewClient[GetVariablesRequest, GetVariablesResponse](httpClient, baseURL+ProcedureGetVariables, connectOpts...),
		updateVariables:  connect.NewClient[UpdateVariablesRequest, UpdateVariablesResponse](httpClient, baseURL+ProcedureUpdateVariables, connectOpts...),
		deleteSession:    connect.NewClient[DeleteSessionRequest, DeleteSessionResponse](httpClient, baseURL+ProcedureDeleteSession, connectOpts...),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func callUnary[Req, Res any](ctx context.Context, timeout time.Duration, client *connect.Client[Req, Res], req *Req) (*Res, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := client.CallUnary(ctx, connect.NewRequest(req))
	if err != nil {
		return nil, fromConnectError(err)
	}
	return resp.Msg, nil
}

func (c *Client) CreateSession(ctx context.Context, req *CreateSessionRequest) (*CreateSessionResponse, error) {
	return callUnary(ctx, c.timeout, c.createSession, req)
}

func (c *Client) RegisterVariable(ctx context.Context, req *RegisterVariableRequest) (*RegisterVariableResponse, error) {
	return callUnary(ctx, c.timeout, c.registerVariable, req)
}

func (c *Client) GetVariable(ctx context.Context, req *GetVariableRequest) (*GetVariableResponse, error) {
	return callUnary(ctx, c.timeout, c.getVariable, req)
}

func (c *Client) SetVariable(ctx context.Context, req *SetVariableRequest) (*SetVariableResponse, error) {
	return callUnary(ctx, c.timeout, c.setVariable, req)
}

func (c *Client) DeleteVariable(ctx context.Context, req *DeleteVariableRequest) (*DeleteVariableResponse, error) {
	return callUnary(ctx, c.timeout, c.deleteVariable, req)
}

func (c *Client) ListVariables(ctx context.Context, req *ListVariablesRequest) (*ListVariablesResponse, error) {
	return callUnary(ctx, c.timeout, c.listVariables, req)
}

func (c *Client) GetVariables(ctx context.Context, req *GetVariablesRequest) (*GetVariablesResponse, error) {
	return callUnary(ctx, c.timeout, c.getVariables, req)
}

func (c *Client) UpdateVariables(ctx context.Context, req *UpdateVariablesRequest) (*UpdateVariablesResponse, error) {
	return callUnary(ctx, c.timeout, c.updateVariables, req)
}

func (c *Client) DeleteSession(ctx context.Context, req *DeleteSessionRequest) (*DeleteSessionResponse, error) {
	return callUnary(ctx, c.timeout, c.deleteSession, req)
}
