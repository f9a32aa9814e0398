package controller

import (
	"sync"

	"chat-sync/internal/auth"
	"chat-sync/internal/feed"
	"chat-sync/internal/metadata"
	"chat-sync/internal/readstate"
)

// Registry hands out one controller per authenticated user.
type Registry struct {
	meta    metadata.Service
	feed    feed.Feed
	tracker *readstate.Tracker

	mu          sync.Mutex
	controllers map[string]*Controller
}

// NewRegistry builds an empty registry over shared collaborators.
func NewRegistry(meta metadata.Service, f feed.Feed, tracker *readstate.Tracker) *Registry {
	return &Registry{
		meta:        meta,
		feed:        f,
		tracker:     tracker,
		controllers: make(map[string]*Controller),
	}
}

// For returns the user's controller, creating it on first use.
func (r *Registry) For(session auth.Session) *Controller {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ctl, ok := r.controllers[session.UserID]; ok {
		return ctl
	}
	ctl := New(session, r.meta, r.feed, r.tracker)
	r.controllers[session.UserID] = ctl
	return ctl
}

// Close tears down every controller.
func (r *Registry) Close() {
	r.mu.Lock()
	controllers := make([]*Controller, 0, len(r.controllers))
	for _, ctl := range r.controllers {
		controllers = append(controllers, ctl)
	}
	r.controllers = map[string]*Controller{}
	r.mu.Unlock()

	for _, ctl := range controllers {
		ctl.Close()
	}
}
