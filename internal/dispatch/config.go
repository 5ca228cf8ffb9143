package dispatch

import "fmt"

// Config configures the broker.
type Config struct {
	QueueCapacity   int `yaml:"queue_capacity"`   // per queue, 0 = unbounded
	DefaultPriority int `yaml:"default_priority"` // informational, always 1
}

// Validate checks the broker configuration.
func (c *Config) Validate() error {
	if c.QueueCapacity < 0 {
		return fmt.Errorf("broker.queue_capacity must not be negative")
	}
	if c.DefaultPriority != 0 && c.DefaultPriority != int(DefaultPriority) {
		return fmt.Errorf("broker.default_priority must be %d", DefaultPriority)
	}
	return nil
}

// WorkersConfig sizes the worker pools.
type WorkersConfig struct {
	Generic int            `yaml:"generic"` // generic queue pool size
	Default int            `yaml:"default"` // any queue not listed in Pools
	Pools   map[string]int `yaml:"pools"`   // queue name -> pool size
}

// Default pool sizes.
const (
	DefaultGenericWorkers = 4
	DefaultQueueWorkers   = 1
)

// Validate checks the worker configuration.
func (c *WorkersConfig) Validate() error {
	if c.Generic < 0 {
		return fmt.Errorf("workers.generic must not be negative")
	}
	if c.Default < 0 {
		return fmt.Errorf("workers.default must not be negative")
	}
	for name, size := range c.Pools {
		if size < 0 {
			return fmt.Errorf("workers.pools.%s must not be negative", name)
		}
	}
	return nil
}

// SizeFor returns the pool size for queue.
func (c WorkersConfig) SizeFor(queue string) int {
	if size, ok := c.Pools[queue]; ok && size > 0 {
		return size
	}
	if queue == GenericQueue {
		if c.Generic > 0 {
			return c.Generic
		}
		return DefaultGenericWorkers
	}
	if c.Default > 0 {
		return c.Default
	}
	return DefaultQueueWorkers
}
