package bootstrap

import (
	"github.com/kbukum/gridstore/config"
)

// Config is satisfied by any struct embedding config.ServiceConfig whose
// ApplyDefaults and Validate cover its own sections.
type Config interface {
	GetServiceConfig() *config.ServiceConfig
	ApplyDefaults()
	Validate() error
}
