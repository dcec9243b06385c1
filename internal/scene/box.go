package scene

import "github.com/go-gl/mathgl/mgl32"

// Box is an axis-aligned bounding box. The zero value is empty.
type Box struct {
	Min, Max mgl32.Vec3
	valid    bool
}

func (b *Box) Valid() bool { return b.valid }

func (b *Box) Add(p mgl32.Vec3) {
	if !b.valid {
		b.Min, b.Max = p, p
		b.valid = true
		return
	}
	for i := 0; i < 3; i++ {
		if p[i] < b.Min[i] {
			b.Min[i] = p[i]
		}
		if p[i] > b.Max[i] {
			b.Max[i] = p[i]
		}
	}
}

func (b *Box) Union(o Box) {
	if !o.valid {
		return
	}
	b.Add(o.Min)
	b.Add(o.Max)
}

func (b Box) Center() mgl32.Vec3 {
	return b.Min.Add(b.Max).Mul(0.5)
}

func (b Box) Extent() mgl32.Vec3 {
	return b.Max.Sub(b.Min).Mul(0.5)
}

func (b Box) ExpandedBy(d float32) Box {
	if !b.valid {
		return b
	}
	e := mgl32.Vec3{d, d, d}
	return Box{Min: b.Min.Sub(e), Max: b.Max.Add(e), valid: true}
}

// OverlapsSphere reports whether the box intersects a sphere. An empty box
// overlaps nothing.
func (b Box) OverlapsSphere(center mgl32.Vec3, radius float32) bool {
	if !b.valid {
		return false
	}
	var d2 float32
	for i := 0; i < 3; i++ {
		if center[i] < b.Min[i] {
			d := b.Min[i] - center[i]
			d2 += d * d
		} else if center[i] > b.Max[i] {
			d := center[i] - b.Max[i]
			d2 += d * d
		}
	}
	return d2 <= radius*radius
}

func BoxOf(points ...mgl32.Vec3) Box {
	var b Box
	for _, p := range points {
		b.Add(p)
	}
	return b
}
