package scene

import (
	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/uuid"
)

type LightKind string

const (
	LightDirectional LightKind = "DIRECTIONAL"
	LightPoint       LightKind = "POINT"
	LightSpot        LightKind = "SPOT"
	LightSky         LightKind = "SKY"
)

type Mobility string

const (
	MobilityStatic     Mobility = "STATIC"
	MobilityStationary Mobility = "STATIONARY"
	MobilityMovable    Mobility = "MOVABLE"
)

// Light is a world light component. GUID is stable across builds so repeated
// bakes of an unchanged scene key their results identically.
type Light struct {
	Name     string
	GUID     uuid.UUID
	Kind     LightKind
	Mobility Mobility

	Enabled         bool
	StaticShadowing bool
	StaticLighting  bool

	Position  mgl32.Vec3
	Direction mgl32.Vec3
	Radius    float32 // 0 means unbounded (directional/sky)

	Color     [3]float32
	Intensity float32

	// Assigned by the build on success.
	PrecomputedValid bool
	ShadowChannel    int
}

// ContributesStatic reports whether the light participates in a static
// lighting build at all.
func (l *Light) ContributesStatic() bool {
	return l.Enabled && (l.StaticShadowing || l.StaticLighting)
}

// Affects reports whether the light is relevant to geometry with the given
// bounds. Unbounded lights affect everything that is enabled for them.
func (l *Light) Affects(bounds Box) bool {
	if !l.ContributesStatic() {
		return false
	}
	if l.Kind == LightSky {
		return false // sky contribution is exported separately
	}
	if l.Radius <= 0 {
		return true
	}
	return bounds.OverlapsSphere(l.Position, l.Radius)
}

// EnsureGUID assigns a GUID if the light does not carry one yet.
func (l *Light) EnsureGUID() {
	if l.GUID == (uuid.UUID{}) {
		l.GUID = uuid.New()
	}
}
