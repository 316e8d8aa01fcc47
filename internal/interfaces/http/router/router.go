// Package router mounts route groups under the versioned API prefix.
package router

import (
	"net/http"
	"path"

	"github.com/gin-gonic/gin"
)

// Mounter attaches its routes below a parent group
type Mounter interface {
	Mount(parent gin.IRouter)
}

// API collects the groups served under /api/<version>
type API struct {
	engine     *gin.Engine
	version    string
	middleware []gin.HandlerFunc
	mounters   []Mounter
}

// Option configures an API
type Option func(*API)

// WithVersion sets the version segment of the prefix, v1 by default
func WithVersion(version string) Option {
	return func(a *API) { a.version = version }
}

// WithMiddleware adds middleware that runs for versioned routes only; probes
// registered on the engine directly do not see it
func WithMiddleware(middleware ...gin.HandlerFunc) Option {
	return func(a *API) { a.middleware = append(a.middleware, middleware...) }
}

// NewAPI creates an API over engine
func NewAPI(engine *gin.Engine, opts ...Option) *API {
	a := &API{engine: engine, version: "v1"}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Prefix is the path every mounted group lives under
func (a *API) Prefix() string {
	return "/api/" + a.version
}

// Add queues groups for Mount
func (a *API) Add(mounters ...Mounter) *API {
	a.mounters = append(a.mounters, mounters...)
	return a
}

// Mount registers every queued group with the engine
func (a *API) Mount() {
	api := a.engine.Group(a.Prefix(), a.middleware...)
	for _, m := range a.mounters {
		m.Mount(api)
	}
}

// Route is one method and path of a Group
type Route struct {
	Method   string
	Path     string
	handlers []gin.HandlerFunc
}

// Group is a prefix with its routes, middleware and nested groups. Routes
// are only attached to gin when the group is mounted.
type Group struct {
	prefix     string
	middleware []gin.HandlerFunc
	routes     []Route
	children   []*Group
}

// NewGroup creates a group under prefix
func NewGroup(prefix string, middleware ...gin.HandlerFunc) *Group {
	return &Group{prefix: prefix, middleware: middleware}
}

// Handle adds a route
func (g *Group) Handle(method, relativePath string, handlers ...gin.HandlerFunc) *Group {
	g.routes = append(g.routes, Route{Method: method, Path: relativePath, handlers: handlers})
	return g
}

func (g *Group) GET(relativePath string, handlers ...gin.HandlerFunc) *Group {
	return g.Handle(http.MethodGet, relativePath, handlers...)
}

func (g *Group) POST(relativePath string, handlers ...gin.HandlerFunc) *Group {
	return g.Handle(http.MethodPost, relativePath, handlers...)
}

func (g *Group) PUT(relativePath string, handlers ...gin.HandlerFunc) *Group {
	return g.Handle(http.MethodPut, relativePath, handlers...)
}

// Group adds a nested group and returns it
func (g *Group) Group(prefix string, middleware ...gin.HandlerFunc) *Group {
	child := NewGroup(prefix, middleware...)
	g.children = append(g.children, child)
	return child
}

// Mount implements Mounter
func (g *Group) Mount(parent gin.IRouter) {
	rg := parent.Group(g.prefix, g.middleware...)
	for _, r := range g.routes {
		rg.Handle(r.Method, r.Path, r.handlers...)
	}
	for _, child := range g.children {
		child.Mount(rg)
	}
}

// Routes lists "METHOD /path" for the group and its children, relative to
// where the group is mounted
func (g *Group) Routes() []string {
	var out []string
	g.walk("/", func(method, full string) { out = append(out, method+" "+full) })
	return out
}

func (g *Group) walk(base string, visit func(method, full string)) {
	prefix := path.Join(base, g.prefix)
	for _, r := range g.routes {
		visit(r.Method, path.Join(prefix, r.Path))
	}
	for _, child := range g.children {
		child.walk(prefix, visit)
	}
}
