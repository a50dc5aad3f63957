package sse

import (
	"context"
	"fmt"

	"github.com/kbukum/gridstore/component"
)

var (
	_ component.Component   = (*Component)(nil)
	_ component.Describable = (*Component)(nil)
)

// Component ties a Hub's lifetime to the component registry.
type Component struct {
	hub  *Hub
	path string
}

// NewComponent wraps hub, served at path.
func NewComponent(hub *Hub, path string) *Component {
	return &Component{hub: hub, path: path}
}

func (c *Component) Name() string { return "sse" }

func (c *Component) Start(_ context.Context) error { return nil }

// Stop closes every open stream.
func (c *Component) Stop(_ context.Context) error {
	c.hub.Stop()
	return nil
}

func (c *Component) Health(_ context.Context) component.Health {
	return component.Health{
		Name:    c.Name(),
		Status:  component.StatusHealthy,
		Message: fmt.Sprintf("%d clients connected", c.hub.ClientCount()),
	}
}

func (c *Component) Describe() component.Description {
	return component.Description{
		Name:    "Event Stream",
		Type:    "sse",
		Details: "GET " + c.path,
	}
}
