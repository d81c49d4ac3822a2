// Package world holds the in-memory stand-ins for the physical side of the
// system: an orchard of apples that can be queried by volume, and a
// simulated effector that picks them over time.
package world

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"

	"github.com/dusk-indust/applekraken/internal/geometry"
	"github.com/dusk-indust/applekraken/internal/orchestrator"
)

var (
	// ErrUnknownApple is returned for an ID the orchard does not hold.
	ErrUnknownApple = errors.New("world: unknown apple")

	// ErrDuplicateApple is returned when adding an ID twice.
	ErrDuplicateApple = errors.New("world: duplicate apple")
)

var _ orchestrator.EnvironmentQuerier = (*Orchard)(nil)

// Apple is a pickable target at a fixed position.
type Apple struct {
	ID       orchestrator.TargetID
	Position geometry.Vec3
}

// Orchard is a set of apples kept in insertion order. It is safe for
// concurrent use.
type Orchard struct {
	mu     sync.RWMutex
	apples []Apple
	index  map[orchestrator.TargetID]int
}

// NewOrchard returns an orchard holding apples. Duplicate IDs are rejected.
func NewOrchard(apples ...Apple) (*Orchard, error) {
	o := &Orchard{index: make(map[orchestrator.TargetID]int, len(apples))}
	for _, a := range apples {
		if err := o.Add(a); err != nil {
			return nil, err
		}
	}
	return o, nil
}

// Add appends an apple.
func (o *Orchard) Add(a Apple) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if a.ID == "" {
		return fmt.Errorf("%w: empty id", ErrUnknownApple)
	}
	if _, ok := o.index[a.ID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateApple, a.ID)
	}
	o.index[a.ID] = len(o.apples)
	o.apples = append(o.apples, a)
	return nil
}

// QueryApplesInBox returns the apples inside box in insertion order.
func (o *Orchard) QueryApplesInBox(ctx context.Context, box geometry.Obb) ([]orchestrator.TargetID, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := box.Validate(); err != nil {
		return nil, err
	}
	o.mu.RLock()
	defer o.mu.RUnlock()

	var out []orchestrator.TargetID
	for _, a := range o.apples {
		if box.Contains(a.Position) {
			out = append(out, a.ID)
		}
	}
	return out, nil
}

// Position returns where id hangs.
func (o *Orchard) Position(id orchestrator.TargetID) (geometry.Vec3, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	i, ok := o.index[id]
	if !ok {
		return geometry.Vec3{}, false
	}
	return o.apples[i].Position, true
}

// Harvest removes id from the orchard.
func (o *Orchard) Harvest(id orchestrator.TargetID) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	i, ok := o.index[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownApple, id)
	}
	o.apples = append(o.apples[:i], o.apples[i+1:]...)
	delete(o.index, id)
	for j := i; j < len(o.apples); j++ {
		o.index[o.apples[j].ID] = j
	}
	return nil
}

// Len returns the number of apples still hanging.
func (o *Orchard) Len() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.apples)
}

// Apples returns a copy of the apples in insertion order.
func (o *Orchard) Apples() []Apple {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return append([]Apple(nil), o.apples...)
}

// Scatter places n apples uniformly inside box. The same seed always yields
// the same apples. IDs are "apple-000", "apple-001", ...
func Scatter(n int, box geometry.Obb, seed uint64) []Apple {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	apples := make([]Apple, 0, n)
	for i := 0; i < n; i++ {
		local := geometry.Vec3{
			X: (rng.Float64()*2 - 1) * box.HalfExtents.X,
			Y: (rng.Float64()*2 - 1) * box.HalfExtents.Y,
			Z: (rng.Float64()*2 - 1) * box.HalfExtents.Z,
		}
		apples = append(apples, Apple{
			ID:       orchestrator.TargetID(fmt.Sprintf("apple-%03d", i)),
			Position: box.Center.Add(box.Rotation.Rotate(local)),
		})
	}
	return apples
}
