package identity_test

import (
	"context"
	"encoding/json"

	"github.com/goliatone/go-router"
)

// stubContext is a request-shaped router.Context for handler and
// middleware tests: headers, params, and locals are plain maps, and
// the response side records what was written.
type stubContext struct {
	method  string
	path    string
	body    []byte
	headers map[string]string
	params  map[string]string
	query   map[string]string
	cookies map[string]string
	locals  map[any]any
	ctx     context.Context

	statusCode int
	jsonBody   any
	sentString string
	nextCalled bool
}

var _ router.Context = (*stubContext)(nil)

func newStubContext() *stubContext {
	return &stubContext{
		method:  "GET",
		path:    "/",
		headers: map[string]string{},
		params:  map[string]string{},
		query:   map[string]string{},
		cookies: map[string]string{},
		locals:  map[any]any{},
		ctx:     context.Background(),
	}
}

func (c *stubContext) Next() error {
	c.nextCalled = true
	return nil
}

func (c *stubContext) Context() context.Context       { return c.ctx }
func (c *stubContext) SetContext(ctx context.Context) { c.ctx = ctx }
func (c *stubContext) Path() string                   { return c.path }
func (c *stubContext) Method() string                 { return c.method }
func (c *stubContext) Body() []byte                   { return c.body }

func (c *stubContext) Status(code int) router.Context {
	c.statusCode = code
	return c
}

func (c *stubContext) SendString(s string) error {
	c.sentString = s
	return nil
}

func (c *stubContext) Send(b []byte) error {
	c.sentString = string(b)
	return nil
}

func (c *stubContext) JSON(code int, val any) error {
	c.statusCode = code
	c.jsonBody = val
	return nil
}

func (c *stubContext) NoContent(code int) error {
	c.statusCode = code
	return nil
}

func (c *stubContext) Render(name string, bind any, layout ...string) error { return nil }
func (c *stubContext) Redirect(path string, status ...int) error            { return nil }
func (c *stubContext) RedirectToRoute(name string, data router.ViewContext, status ...int) error {
	return nil
}
func (c *stubContext) RedirectBack(fallback string, status ...int) error { return nil }

func (c *stubContext) SetHeader(key, val string) router.Context {
	c.headers[key] = val
	return c
}

func (c *stubContext) Header(key string) string { return c.headers[key] }

func (c *stubContext) Get(key string, defaultValue any) any {
	if v, ok := c.locals[key]; ok {
		return v
	}
	return defaultValue
}

func (c *stubContext) GetBool(key string, defaultValue bool) bool {
	if v, ok := c.locals[key].(bool); ok {
		return v
	}
	return defaultValue
}

func (c *stubContext) GetInt(key string, def int) int {
	if v, ok := c.locals[key].(int); ok {
		return v
	}
	return def
}

func (c *stubContext) Set(key string, val any) { c.locals[key] = val }

func (c *stubContext) Bind(i any) error      { return json.Unmarshal(c.body, i) }
func (c *stubContext) BindJSON(i any) error  { return json.Unmarshal(c.body, i) }
func (c *stubContext) BindXML(i any) error   { return nil }
func (c *stubContext) BindQuery(i any) error { return nil }

func (c *stubContext) CookieParser(i any) error { return nil }

func (c *stubContext) Cookie(cookie *router.Cookie) {
	if cookie != nil {
		c.cookies[cookie.Name] = cookie.Value
	}
}

func (c *stubContext) Cookies(key string, defaultValue ...string) string {
	if v, ok := c.cookies[key]; ok {
		return v
	}
	if len(defaultValue) > 0 {
		return defaultValue[0]
	}
	return ""
}

func (c *stubContext) Param(key string, defaultValue ...string) string {
	if v, ok := c.params[key]; ok {
		return v
	}
	if len(defaultValue) > 0 {
		return defaultValue[0]
	}
	return ""
}

func (c *stubContext) ParamsInt(key string, defaultValue int) int { return defaultValue }

func (c *stubContext) Query(key string, defaultValue string) string {
	if v, ok := c.query[key]; ok {
		return v
	}
	return defaultValue
}

func (c *stubContext) QueryInt(key string, defaultValue int) int { return defaultValue }

func (c *stubContext) Queries() map[string]string { return c.query }

// GetString resolves request headers, matching how the adapter backs
// the middleware token lookup.
func (c *stubContext) GetString(key string, defaultValue string) string {
	if v, ok := c.headers[key]; ok {
		return v
	}
	if v, ok := c.locals[key].(string); ok {
		return v
	}
	return defaultValue
}

func (c *stubContext) Locals(key any, value ...any) any {
	if len(value) > 0 {
		c.locals[key] = value[0]
		return value[0]
	}
	return c.locals[key]
}

func (c *stubContext) OriginalURL() string { return c.path }

func (c *stubContext) OnNext(callback func() error) {}

func (c *stubContext) Referer() string { return c.headers["Referer"] }
