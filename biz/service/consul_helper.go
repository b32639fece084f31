package service

import (
	"fmt"

	"github.com/hashicorp/consul/api"
)

// ConsulHelper wraps registration and discovery for book server nodes. The
// consul agent must already be running.
type ConsulHelper struct {
	client *api.Client
}

func NewConsulHelper(addr string) (*ConsulHelper, error) {
	cfg := api.DefaultConfig()
	cfg.Address = addr
	cli, err := api.NewClient(cfg)
	if err != nil {
		return nil, err
	}
	return &ConsulHelper{client: cli}, nil
}

// NewConsulHelperWithAddrs tries each address in turn and keeps the first
// agent that answers.
func NewConsulHelperWithAddrs(addrs []string) (*ConsulHelper, error) {
	var lastErr error
	for _, addr := range addrs {
		cfg := api.DefaultConfig()
		cfg.Address = addr
		cli, err := api.NewClient(cfg)
		if err == nil {
			_, errPing := cli.Agent().Self()
			if errPing == nil {
				return &ConsulHelper{client: cli}, nil
			}
			lastErr = errPing
		} else {
			lastErr = err
		}
	}
	return nil, fmt.Errorf("all consul addresses failed: %v", lastErr)
}

// RegisterBookNode registers this book server with a TCP health check on the
// raw transport port.
func (c *ConsulHelper) RegisterBookNode(nodeID, host string, port int) error {
	reg := &api.AgentServiceRegistration{
		ID:      nodeID,
		Name:    "l2book",
		Address: host,
		Port:    port,
		Check: &api.AgentServiceCheck{
			TCP:      fmt.Sprintf("%s:%d", host, port),
			Interval: "10s",
			Timeout:  "2s",
		},
	}
	return c.client.Agent().ServiceRegister(reg)
}

// DiscoverBookNodes lists the registered book servers.
func (c *ConsulHelper) DiscoverBookNodes() ([]*api.AgentService, error) {
	services, err := c.client.Agent().Services()
	if err != nil {
		return nil, err
	}
	var result []*api.AgentService
	for _, svc := range services {
		if svc.Service == "l2book" {
			result = append(result, svc)
		}
	}
	return result, nil
}

func (c *ConsulHelper) Client() *api.Client {
	return c.client
}
