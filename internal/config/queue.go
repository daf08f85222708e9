package config

import (
	"errors"
	"time"
)

const defaultPublishTimeout = 5 * time.Second

type QueueConfig struct {
	QueueUser      string        `mapstructure:"queue-user"`
	QueuePassword  string        `mapstructure:"queue-password"`
	Url            string        `mapstructure:"url"`
	Exchange       string        `mapstructure:"exchange"`
	RoutingKey     string        `mapstructure:"routing-key"`
	PublishTimeout time.Duration `mapstructure:"publish-timeout"`
}

func (cfg *QueueConfig) Validate() error {
	if cfg.Url == "" {
		return errors.New("missing queue url")
	}
	if cfg.RoutingKey == "" {
		return errors.New("missing queue routing-key")
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = defaultPublishTimeout
	}
	return nil
}
