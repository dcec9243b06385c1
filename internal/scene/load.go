package scene

import (
	"fmt"
	"os"

	"github.com/go-gl/mathgl/mgl32"
	"gopkg.in/yaml.v3"
)

// File format for headless builds and tests. Geometry is intentionally
// simple: quads for mesh components, quad surfaces for BSP brushes.

type fileScene struct {
	Name   string      `yaml:"name"`
	Levels []fileLevel `yaml:"levels"`

	PrecomputeVisibility bool `yaml:"precompute_visibility"`
	ForceNoPrecomputed   bool `yaml:"force_no_precomputed"`
}

type fileLevel struct {
	Name       string `yaml:"name"`
	Persistent bool   `yaml:"persistent"`
	Visible    *bool  `yaml:"visible"`

	ModelComponents []fileModelComponent `yaml:"model_components"`
	Actors          []fileActor          `yaml:"actors"`
}

type fileModelComponent struct {
	CastShadow bool `yaml:"cast_shadow"`
}

type fileActor struct {
	Name     string `yaml:"name"`
	Selected bool   `yaml:"selected"`
	Brush    bool   `yaml:"brush"`

	Meshes   []fileMesh    `yaml:"meshes"`
	Lights   []fileLight   `yaml:"lights"`
	Surfaces []fileSurface `yaml:"surfaces"`
}

type fileMesh struct {
	Name         string     `yaml:"name"`
	Origin       [3]float32 `yaml:"origin"`
	U            [3]float32 `yaml:"u"`
	V            [3]float32 `yaml:"v"`
	LightmapSize int        `yaml:"lightmap_size"`
	CastShadow   *bool      `yaml:"cast_shadow"`
	Mobility     string     `yaml:"mobility"`
}

type fileLight struct {
	Name      string     `yaml:"name"`
	Kind      string     `yaml:"kind"`
	Mobility  string     `yaml:"mobility"`
	Position  [3]float32 `yaml:"position"`
	Direction [3]float32 `yaml:"direction"`
	Radius    float32    `yaml:"radius"`
	Color     [3]float32 `yaml:"color"`
	Intensity float32    `yaml:"intensity"`
	Disabled  bool       `yaml:"disabled"`
	NoStatic  bool       `yaml:"no_static"`
}

type fileSurface struct {
	Corners     [4][3]float32 `yaml:"corners"`
	LightmapRes float32       `yaml:"lightmap_res"`
	Component   int           `yaml:"component"`
	Selected    bool          `yaml:"selected"`
}

// Load reads a scene description from a YAML file.
func Load(path string) (*World, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var fs fileScene
	if err := yaml.Unmarshal(raw, &fs); err != nil {
		return nil, fmt.Errorf("scene %s: %w", path, err)
	}
	return buildWorld(&fs)
}

func buildWorld(fs *fileScene) (*World, error) {
	w := &World{
		Settings: WorldSettings{
			PrecomputeVisibility: fs.PrecomputeVisibility,
			ForceNoPrecomputed:   fs.ForceNoPrecomputed,
		},
	}
	for li, fl := range fs.Levels {
		lvl := &Level{
			Name:       fl.Name,
			Persistent: fl.Persistent,
			Visible:    fl.Visible == nil || *fl.Visible,
		}
		if lvl.Name == "" {
			return nil, fmt.Errorf("level %d: missing name", li)
		}
		if len(fl.ModelComponents) > 0 {
			lvl.Model = NewModel()
			for _, fc := range fl.ModelComponents {
				lvl.Model.AddComponent(fc.CastShadow)
			}
		}
		for _, fa := range fl.Actors {
			actor := &Actor{Name: fa.Name, Selected: fa.Selected, IsBrush: fa.Brush}
			for _, fm := range fa.Meshes {
				verts, indices := MakeQuad(vec3(fm.Origin), vec3(fm.U), vec3(fm.V))
				mc := NewMeshComponent(fm.Name, verts, indices, fm.LightmapSize)
				if fm.CastShadow != nil {
					mc.CastShadow = *fm.CastShadow
				}
				if fm.Mobility != "" {
					mc.ComponentMobility = Mobility(fm.Mobility)
				}
				actor.Primitives = append(actor.Primitives, mc)
			}
			for _, flg := range fa.Lights {
				l := &Light{
					Name:            flg.Name,
					Kind:            LightKind(flg.Kind),
					Mobility:        Mobility(flg.Mobility),
					Enabled:         !flg.Disabled,
					StaticShadowing: !flg.NoStatic,
					StaticLighting:  !flg.NoStatic,
					Position:        vec3(flg.Position),
					Direction:       vec3(flg.Direction),
					Radius:          flg.Radius,
					Color:           flg.Color,
					Intensity:       flg.Intensity,
					ShadowChannel:   -1,
				}
				if l.Mobility == "" {
					l.Mobility = MobilityStatic
				}
				l.EnsureGUID()
				actor.Lights = append(actor.Lights, l)
			}
			for _, fsf := range fa.Surfaces {
				if lvl.Model == nil {
					return nil, fmt.Errorf("level %s: surfaces without model_components", lvl.Name)
				}
				if fsf.Component < 0 || fsf.Component >= len(lvl.Model.Components) {
					return nil, fmt.Errorf("level %s: surface component %d out of range", lvl.Name, fsf.Component)
				}
				var corners [4]mgl32.Vec3
				for i := range corners {
					corners[i] = vec3(fsf.Corners[i])
				}
				res := fsf.LightmapRes
				if res <= 0 {
					res = 1
				}
				idx := lvl.Model.AddQuadSurface(lvl.Model.Components[fsf.Component], actor, corners, res)
				lvl.Model.Surfs[idx].Selected = fsf.Selected
			}
			lvl.Actors = append(lvl.Actors, actor)
		}
		w.Levels = append(w.Levels, lvl)
	}
	if len(w.Levels) == 0 {
		return nil, fmt.Errorf("scene has no levels")
	}
	return w, nil
}

func vec3(a [3]float32) mgl32.Vec3 { return mgl32.Vec3{a[0], a[1], a[2]} }

// MakeQuad builds the vertex and index buffers for a parallelogram spanned by
// u and v at origin, with a tangent basis and planar lightmap UVs.
func MakeQuad(origin, u, v mgl32.Vec3) ([]Vertex, []uint32) {
	tx := u.Normalize()
	ty := v.Normalize()
	tz := u.Cross(v).Normalize()

	corners := [4]mgl32.Vec3{
		origin,
		origin.Add(u),
		origin.Add(u).Add(v),
		origin.Add(v),
	}
	uvs := [4]mgl32.Vec2{{0, 0}, {1, 0}, {1, 1}, {0, 1}}

	verts := make([]Vertex, 4)
	for i := range verts {
		verts[i] = Vertex{
			Position: corners[i],
			UV:       [2]mgl32.Vec2{uvs[i], uvs[i]},
			TangentX: tx,
			TangentY: ty,
			TangentZ: tz,
		}
	}
	return verts, []uint32{0, 1, 2, 0, 2, 3}
}
