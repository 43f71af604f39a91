package adb

import (
	"fmt"
	"net"
	"strconv"

	lru "github.com/hashicorp/golang-lru/v2"
)

const registrySize = 16

// Registry hands out one Server per address. It is created once at startup
// and passed to whatever needs a server.
type Registry struct {
	base    ServerConfig
	servers *lru.Cache[string, *Server]
}

// NewRegistry returns a registry whose servers share base for everything
// except host and port.
func NewRegistry(base ServerConfig) *Registry {
	servers, err := lru.New[string, *Server](registrySize)
	if err != nil {
		panic(err)
	}
	return &Registry{base: base, servers: servers}
}

// Default returns the server at the configured base address.
func (r *Registry) Default() *Server {
	host, port := r.base.Host, r.base.Port
	if host == "" {
		host = DefaultHost
	}
	if port == 0 {
		port = AdbPort
	}
	return r.server(host, port)
}

// Get returns the server for an address of the form host:port.
func (r *Registry) Get(address string) (*Server, error) {
	if address == "" {
		return r.Default(), nil
	}
	host, portStr, err := net.SplitHostPort(address)
	if err != nil {
		return nil, WrapErrorf(err, ParseError, "invalid server address %q", address)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 || port > 65535 {
		return nil, Errorf(ParseError, "invalid server port in %q", address)
	}
	if host == "" {
		host = DefaultHost
	}
	return r.server(host, port), nil
}

func (r *Registry) server(host string, port int) *Server {
	key := net.JoinHostPort(host, strconv.Itoa(port))
	if s, ok := r.servers.Get(key); ok {
		return s
	}

	config := r.base
	config.Host = host
	config.Port = port
	s := NewServer(config)
	r.servers.Add(key, s)
	return s
}

func (r *Registry) String() string {
	return fmt.Sprintf("adb registry (%d servers)", r.servers.Len())
}
