package phototheory

// JSONHandler decodes the request body into Req, calls fn, and answers 200 with fn's result as
// JSON. Unlike BindJSON it does not insist on a content-type. An empty or malformed body is
// app.bad_request.
func JSONHandler[Req, Resp any](fn func(*Context, Req) (Resp, error)) Handler {
	return func(ctx *Context) (*Response, error) {
		var in Req
		if err := decodeJSONBody(ctx.Request.Body, &in); err != nil {
			return nil, err
		}
		out, err := fn(ctx, in)
		if err != nil {
			return nil, err
		}
		return JSON(200, out)
	}
}
