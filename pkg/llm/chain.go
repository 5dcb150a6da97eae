package llm

import "context"

// CompleteFunc is the signature of Client.Complete.
type CompleteFunc func(ctx context.Context, req Request) (Response, error)

// Middleware decorates a Client.
type Middleware func(next Client) Client

type wrapped struct {
	complete CompleteFunc
	model    string
}

func (w wrapped) Complete(ctx context.Context, req Request) (Response, error) {
	return w.complete(ctx, req)
}

func (w wrapped) ModelName() string { return w.model }

// Wrap turns fn into a Client reporting the given model name. Middleware uses it
// to decorate next while keeping next's model name.
func Wrap(model string, fn CompleteFunc) Client {
	return wrapped{complete: fn, model: model}
}

// Chain applies middleware to base, the first one outermost.
func Chain(base Client, middleware ...Middleware) Client {
	for i := len(middleware) - 1; i >= 0; i-- {
		base = middleware[i](base)
	}
	return base
}
