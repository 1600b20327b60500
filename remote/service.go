package remote

import "context"

// Service is the RemoteSessionService contract. The bridged backend consumes
// it; Client implements it over connect RPC and MemoryService implements it
// in-process. The remote side owns the variables and serializes all
// operations within a session (single writer per session).
type Service interface {
	CreateSession(ctx context.Context, req *CreateSessionRequest) (*CreateSessionResponse, error)
	RegisterVariable(ctx context.Context, req *RegisterVariableRequest) (*RegisterVariableResponse, error)
	GetVariable(ctx context.Context, req *GetVariableRequest) (*GetVariableResponse, error)
	SetVariable(ctx context.Context, req *SetVariableRequest) (*SetVariableResponse, error)
	DeleteVariable(ctx context.Context, req *DeleteVariableRequest) (*DeleteVariableResponse, error)
	ListVariables(ctx context.Context, req *ListVariablesRequest) (*ListVariablesResponse, error)
	GetVariables(ctx context.Context, req *GetVariablesRequest) (*GetVariablesResponse, error)
	UpdateVariables(ctx context.Context, req *UpdateVariablesRequest) (*UpdateVariablesResponse, error)
	DeleteSession(ctx context.Context, req *DeleteSessionRequest) (*DeleteSessionResponse, error)
}
