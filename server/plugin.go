package server

import (
	logx "github.com/ije/gox/log"
)

// Plugin is a named set of optional hooks invoked by the dev server. Plugins
// are ordered; each transform hook sees the previous hook's output.
type Plugin struct {
	Name string

	// OnTransform maps served source code to new code. The returned string
	// replaces the code fed to the next plugin and, finally, the transpiler.
	OnTransform func(code string, id string) string

	// OnHotUpdate runs when a watched source file changes, before the update
	// message is broadcast. broadcast delivers extra messages to all clients.
	OnHotUpdate func(file string, broadcast func(HMRMessage))

	// OnServerStart runs once after the HTTP server starts listening.
	OnServerStart func(ctx *ServerContext)
}

// ServerContext is handed to OnServerStart hooks.
type ServerContext struct {
	Config    *ProjectConfig
	Broadcast func(HMRMessage)
}

// pluginHost applies the ordered hook chains. Hook panics are contained so a
// misbehaving plugin can not take down a request handler or the watcher.
type pluginHost struct {
	plugins []Plugin
	log     *logx.Logger
}

// applyTransform folds the code through every OnTransform hook in
// registration order.
func (h *pluginHost) applyTransform(code string, id string) string {
	for _, p := range h.plugins {
		if p.OnTransform == nil {
			continue
		}
		code = h.safeTransform(p, code, id)
	}
	return code
}

func (h *pluginHost) safeTransform(p Plugin, code string, id string) (out string) {
	defer func() {
		if r := recover(); r != nil {
			h.log.Errorf("plugin %q transform panic: %v", p.Name, r)
			out = code
		}
	}()
	return p.OnTransform(code, id)
}

// applyHotUpdate invokes every OnHotUpdate hook in order. Hook failures are
// logged and do not abort the chain.
func (h *pluginHost) applyHotUpdate(file string, broadcast func(HMRMessage)) {
	for _, p := range h.plugins {
		if p.OnHotUpdate == nil {
			continue
		}
		h.safeHotUpdate(p, file, broadcast)
	}
}

func (h *pluginHost) safeHotUpdate(p Plugin, file string, broadcast func(HMRMessage)) {
	defer func() {
		if r := recover(); r != nil {
			h.log.Errorf("plugin %q hot-update panic: %v", p.Name, r)
		}
	}()
	p.OnHotUpdate(file, broadcast)
}

// applyServerStart invokes every OnServerStart hook in order.
func (h *pluginHost) applyServerStart(ctx *ServerContext) {
	for _, p := range h.plugins {
		if p.OnServerStart == nil {
			continue
		}
		func() {
			defer func() {
				if r := recover(); r != nil {
					h.log.Errorf("plugin %q server-start panic: %v", p.Name, r)
				}
			}()
			p.OnServerStart(ctx)
		}()
	}
}
