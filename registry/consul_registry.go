package registry

import (
	"fmt"

	"recipe-api/config"

	consulapi "github.com/hashicorp/consul/api"
	"go.uber.org/zap"
)

type consulRegistry struct {
	client *consulapi.Client
	logger *zap.SugaredLogger
}

var _ ServiceRegistry = (*consulRegistry)(nil)

// NewConsulRegistry connects to the Consul agent at cfg.Address.
func NewConsulRegistry(cfg config.ConsulConfig, logger *zap.Logger) (ServiceRegistry, error) {
	sugar := logger.Named("consul").Sugar()

	consulConfig := consulapi.DefaultConfig()
	consulConfig.Address = cfg.Address

	client, err := consulapi.NewClient(consulConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create consul client: %w", err)
	}

	if _, err := client.Agent().NodeName(); err != nil {
		return nil, fmt.Errorf("cannot connect to consul agent at %s: %w", cfg.Address, err)
	}
	sugar.Infow("Connected to Consul agent", "address", cfg.Address)

	return &consulRegistry{client: client, logger: sugar}, nil
}

func (r *consulRegistry) Register(reg *consulapi.AgentServiceRegistration) error {
	if err := r.client.Agent().ServiceRegister(reg); err != nil {
		r.logger.Errorw("Failed to register service with Consul", "service_id", reg.ID, "service_name", reg.Name, "error", err)
		return fmt.Errorf("failed to register service '%s': %w", reg.Name, err)
	}
	r.logger.Infow("Registered service with Consul", "service_id", reg.ID, "service_name", reg.Name, "address", reg.Address, "port", reg.Port)
	return nil
}

func (r *consulRegistry) Deregister(id string) error {
	if err := r.client.Agent().ServiceDeregister(id); err != nil {
		r.logger.Errorw("Failed to deregister service from Consul", "service_id", id, "error", err)
		return fmt.Errorf("failed to deregister service '%s': %w", id, err)
	}
	r.logger.Infow("Deregistered service from Consul", "service_id", id)
	return nil
}

// RegisterAll registers regs in order and returns a function that deregisters
// the ones that succeeded. On error, already registered entries are removed.
func RegisterAll(r ServiceRegistry, regs []*consulapi.AgentServiceRegistration) (func(), error) {
	var done []string
	deregister := func() {
		for i := len(done) - 1; i >= 0; i-- {
			_ = r.Deregister(done[i])
		}
	}

	for _, reg := range regs {
		if err := r.Register(reg); err != nil {
			deregister()
			return func() {}, err
		}
		done = append(done, reg.ID)
	}
	return deregister, nil
}
