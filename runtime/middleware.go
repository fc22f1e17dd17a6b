package phototheory

// Middleware wraps a handler.
type Middleware func(Handler) Handler

// Chain composes middlewares so the first one runs outermost:
//
//	Chain(m1, m2)(h) == m1(m2(h))
//
// Nil entries are skipped.
func Chain(mws ...Middleware) Middleware {
	return func(h Handler) Handler {
		for i := len(mws) - 1; i >= 0; i-- {
			if mws[i] != nil {
				h = mws[i](h)
			}
		}
		return h
	}
}

// Use appends middlewares that wrap every route, in the order given. They see the request after
// routing, so Context.Params is set.
func (a *App) Use(mws ...Middleware) *App {
	a.middlewares = append(a.middlewares, mws...)
	return a
}

func (a *App) applyMiddlewares(h Handler) Handler {
	return Chain(a.middlewares...)(h)
}
