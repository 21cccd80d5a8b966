package draw

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"confluenceBot/internal/domain"
	"confluenceBot/internal/ports"
)

// Scene is an in-memory chart: the current object per tag. It implements
// ports.DrawSink and is safe for concurrent use.
type Scene struct {
	mu      sync.RWMutex
	objects map[string]domain.DrawCommand
	logger  ports.Logger
	adds    int
	removes int
}

// NewScene creates an empty scene. logger may be nil.
func NewScene(logger ports.Logger) *Scene {
	return &Scene{objects: make(map[string]domain.DrawCommand), logger: logger}
}

var _ ports.DrawSink = (*Scene)(nil)

// Draw applies cmd: an add replaces the object with the same tag, a remove
// deletes it. Removing an unknown tag is a no-op.
func (s *Scene) Draw(ctx context.Context, cmd domain.DrawCommand) error {
	if cmd.Tag == "" {
		return fmt.Errorf("%w: draw command without tag", ports.ErrInvalidRequest)
	}

	s.mu.Lock()
	switch cmd.Action {
	case domain.DrawAdd:
		s.objects[cmd.Tag] = cmd
		s.adds++
	case domain.DrawRemove:
		delete(s.objects, cmd.Tag)
		s.removes++
	default:
		s.mu.Unlock()
		return fmt.Errorf("%w: unknown draw action %q", ports.ErrInvalidRequest, cmd.Action)
	}
	s.mu.Unlock()

	if s.logger != nil {
		s.logger.Debug(ctx, "Draw", map[string]interface{}{
			"action": cmd.Action,
			"kind":   cmd.Kind,
			"tag":    cmd.Tag,
			"bar":    cmd.Bar,
		})
	}
	return nil
}

// Get returns the object drawn under tag.
func (s *Scene) Get(tag string) (domain.DrawCommand, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cmd, ok := s.objects[tag]
	return cmd, ok
}

// Objects returns the current objects ordered by tag.
func (s *Scene) Objects() []domain.DrawCommand {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.DrawCommand, 0, len(s.objects))
	for _, cmd := range s.objects {
		out = append(out, cmd)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Tag < out[j].Tag })
	return out
}

// Len returns the number of objects on the scene.
func (s *Scene) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}

// Counts returns how many adds and removes were applied.
func (s *Scene) Counts() (adds, removes int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.adds, s.removes
}
