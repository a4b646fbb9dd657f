package llm

import "context"

// Defaulted fills unset request options from a configured default set
// before passing the request on. Options a flow sets itself win.
type Defaulted struct {
	next     Generator
	defaults *Options
}

func NewDefaulted(next Generator, defaults Options) *Defaulted {
	return &Defaulted{next: next, defaults: &defaults}
}

func (g *Defaulted) Generate(ctx context.Context, req *Request) (*Response, error) {
	if g.defaults.IsZero() {
		return g.next.Generate(ctx, req)
	}

	withDefaults := *req
	withDefaults.Options = req.Options.WithDefaults(g.defaults)
	return g.next.Generate(ctx, &withDefaults)
}
