package placement

import (
	"math"
	"time"

	"github.com/golang/geo/r3"
	"github.com/google/uuid"

	"github.com/Tutortoise/ar-wheel-placement/models"
)

const DefaultReuseRadius = 0.25

// Result lists the markers touched by one Update, as copies taken after the
// update was applied.
type Result struct {
	Reused  []models.PlacedMarker
	Created []models.PlacedMarker
}

// Cache owns the placed markers of an AR session. Markers are kept in
// creation order and indexed by id.
//
// A Cache is not safe for concurrent use; confine it to one goroutine.
type Cache struct {
	markers []*models.PlacedMarker
	index   map[string]int

	newID func() string
	now   func() time.Time
}

func NewCache() *Cache {
	return &Cache{
		index: make(map[string]int),
		newID: func() string { return uuid.NewString() },
		now:   time.Now,
	}
}

// Update hides every marker, then lets each pose claim the nearest unclaimed
// marker closer than reuseRadius. Poses are served in input order and a
// marker is claimed at most once per call, so a later pose competing for an
// already claimed marker falls through to the next nearest one or creates a
// new marker. Markers left unclaimed stay hidden.
func (c *Cache) Update(poses []models.Pose3D, reuseRadius float64) Result {
	for _, m := range c.markers {
		m.Visible = false
	}

	var result Result
	now := c.now()
	claimed := make([]bool, len(c.markers), len(c.markers)+len(poses))

	for _, pose := range poses {
		if !finite(pose.Position) {
			continue
		}

		idx, dist := c.nearest(pose.Position, claimed)
		if idx >= 0 && dist < reuseRadius {
			m := c.markers[idx]
			m.Position = pose.Position
			m.Orientation = pose.Orientation
			m.Scale = pose.Scale
			m.ClassIndex = pose.ClassIndex
			m.Visible = true
			m.UpdatedAt = now
			claimed[idx] = true
			result.Reused = append(result.Reused, *m)
			continue
		}

		m := &models.PlacedMarker{
			ID:          c.newID(),
			Position:    pose.Position,
			Orientation: pose.Orientation,
			Scale:       pose.Scale,
			ClassIndex:  pose.ClassIndex,
			Visible:     true,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		c.index[m.ID] = len(c.markers)
		c.markers = append(c.markers, m)
		claimed = append(claimed, true)
		result.Created = append(result.Created, *m)
	}

	return result
}

// nearest scans markers in order; the first of equally distant markers wins.
func (c *Cache) nearest(pos r3.Vector, claimed []bool) (int, float64) {
	best := -1
	bestDist := math.Inf(1)
	for i, m := range c.markers {
		if claimed[i] {
			continue
		}
		if d := m.Position.Distance(pos); d < bestDist {
			best = i
			bestDist = d
		}
	}
	return best, bestDist
}

// Clear removes every marker.
func (c *Cache) Clear() {
	c.markers = nil
	c.index = make(map[string]int)
}

func (c *Cache) Len() int {
	return len(c.markers)
}

func (c *Cache) Get(id string) (models.PlacedMarker, bool) {
	i, ok := c.index[id]
	if !ok {
		return models.PlacedMarker{}, false
	}
	return *c.markers[i], true
}

// Markers returns copies of all markers in creation order.
func (c *Cache) Markers() []models.PlacedMarker {
	out := make([]models.PlacedMarker, len(c.markers))
	for i, m := range c.markers {
		out[i] = *m
	}
	return out
}

func finite(v r3.Vector) bool {
	for _, f := range [3]float64{v.X, v.Y, v.Z} {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return false
		}
	}
	return true
}
