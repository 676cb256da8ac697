package registry

import (
	"fmt"

	"recipe-api/config"

	consulapi "github.com/hashicorp/consul/api"
)

// ServiceRegistry registers this process with a discovery backend.
type ServiceRegistry interface {
	// Register adds one service instance together with its health check.
	Register(reg *consulapi.AgentServiceRegistration) error
	// Deregister removes an instance by its unique ID.
	Deregister(id string) error
}

// ServiceID identifies one listener of one process, e.g. "recipe-api-http-10.0.0.5-8080".
func ServiceID(name, protocol, host string, port int) string {
	return fmt.Sprintf("%s-%s-%s-%d", name, protocol, host, port)
}

// Registrations describes the HTTP listener and, when enabled, the gRPC
// listener of this process.
func Registrations(cfg *config.Config) []*consulapi.AgentServiceRegistration {
	host := cfg.Consul.ServiceHost

	httpID := ServiceID(cfg.ServiceName, "http", host, cfg.HTTPPort)
	regs := []*consulapi.AgentServiceRegistration{{
		ID:      httpID,
		Name:    cfg.ServiceName,
		Tags:    []string{"http", "rest"},
		Address: host,
		Port:    cfg.HTTPPort,
		Meta:    map[string]string{"protocol": "http"},
		Check:   CreateHTTPCheck(httpID, host, cfg.HTTPPort, "/health", "10s", "2s"),
	}}

	if cfg.GRPCPort > 0 {
		grpcID := ServiceID(cfg.ServiceName, "grpc", host, cfg.GRPCPort)
		regs = append(regs, &consulapi.AgentServiceRegistration{
			ID:      grpcID,
			Name:    cfg.ServiceName + "-grpc",
			Tags:    []string{"grpc"},
			Address: host,
			Port:    cfg.GRPCPort,
			Meta:    map[string]string{"protocol": "grpc"},
			Check:   CreateGRPCCheck(grpcID, fmt.Sprintf("%s:%d", host, cfg.GRPCPort), "10s", "2s", false),
		})
	}
	return regs
}

// CreateHTTPCheck creates a Consul HTTP health check against checkPath.
func CreateHTTPCheck(serviceID, serviceHost string, servicePort int, checkPath string, interval, timeout string) *consulapi.AgentServiceCheck {
	return &consulapi.AgentServiceCheck{
		CheckID:                        fmt.Sprintf("check_%s_http", serviceID),
		Name:                           fmt.Sprintf("HTTP Check for %s", serviceID),
		HTTP:                           fmt.Sprintf("http://%s:%d%s", serviceHost, servicePort, checkPath),
		Method:                         "GET",
		Interval:                       interval,
		Timeout:                        timeout,
		DeregisterCriticalServiceAfter: "1m",
	}
}

// CreateGRPCCheck creates a Consul check that calls the standard gRPC health service.
func CreateGRPCCheck(serviceID, grpcTarget string, interval, timeout string, useTLS bool) *consulapi.AgentServiceCheck {
	return &consulapi.AgentServiceCheck{
		CheckID:                        fmt.Sprintf("check_%s_grpc", serviceID),
		Name:                           fmt.Sprintf("gRPC Check for %s", serviceID),
		GRPC:                           grpcTarget,
		GRPCUseTLS:                     useTLS,
		Interval:                       interval,
		Timeout:                        timeout,
		DeregisterCriticalServiceAfter: "1m",
	}
}
