package httpx

import "github.com/google/uuid"

type Method string

const (
	GET    Method = "GET"
	POST   Method = "POST"
	PUT    Method = "PUT"
	DELETE Method = "DELETE"
	PATCH  Method = "PATCH"
)

func (m Method) String() string {
	return string(m)
}

// RequestOption collects everything needed to build one request.
type RequestOption struct {
	Method    Method
	Path      string
	Headers   map[string]string
	Body      interface{}
	Query     map[string]string
	RequestID string
}

type Option func(option *RequestOption)

func newRequestOption(opts ...Option) *RequestOption {
	option := &RequestOption{
		Method:    GET,
		Headers:   map[string]string{},
		Query:     map[string]string{},
		RequestID: uuid.New().String(),
	}
	for _, opt := range opts {
		opt(option)
	}
	return option
}

func WithMethod(method Method) Option {
	return func(option *RequestOption) {
		option.Method = method
	}
}

func WithMethodGet() Option    { return WithMethod(GET) }
func WithMethodPost() Option   { return WithMethod(POST) }
func WithMethodPut() Option    { return WithMethod(PUT) }
func WithMethodDelete() Option { return WithMethod(DELETE) }

func WithPath(path string) Option {
	return func(option *RequestOption) {
		option.Path = path
	}
}

func WithBody(body interface{}) Option {
	return func(option *RequestOption) {
		option.Body = body
	}
}

func WithHeader(key, value string) Option {
	return func(option *RequestOption) {
		option.Headers[key] = value
	}
}

func WithBearer(token string) Option {
	return func(option *RequestOption) {
		if token != "" {
			option.Headers["Authorization"] = "Bearer " + token
		}
	}
}

func WithQuery(key, value string) Option {
	return func(option *RequestOption) {
		option.Query[key] = value
	}
}
