// bakeadmin inspects a bake server's data directory: the job index and
// dumped scene sections.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"lightforge.dev/internal/bakejob"
	"lightforge.dev/internal/service"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "jobs":
			jobsCmd(os.Args[2:])
			return
		case "mappings":
			mappingsCmd(os.Args[2:])
			return
		case "inspect":
			inspectCmd(os.Args[2:])
			return
		}
	}
	jobsCmd(os.Args[1:])
}

func openIndex(dataDir string) *service.JobIndex {
	idx, err := service.OpenIndex(filepath.Join(dataDir, "jobs.db"))
	if err != nil {
		fmt.Fprintln(os.Stderr, "open index:", err)
		os.Exit(1)
	}
	return idx
}

func jobsCmd(args []string) {
	fs := flag.NewFlagSet("jobs", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "bake server data directory")
	_ = fs.Parse(args)

	idx := openIndex(*dataDir)
	defer idx.Close()

	jobs, err := idx.Jobs(context.Background())
	if err != nil {
		fmt.Fprintln(os.Stderr, "query:", err)
		os.Exit(1)
	}
	for _, j := range jobs {
		state := "open"
		if j.Closed {
			state = "closed"
		}
		ok := "failed"
		if j.Succeeded {
			ok = "succeeded"
		}
		fmt.Printf("%s\tguid=%s\tquality=%s\tmeshes=%d\tmappings=%d\t%s\t%s\n",
			j.JobID, j.JobGUID, j.Quality, j.MeshCount, j.MappingCount, ok, state)
	}
}

func mappingsCmd(args []string) {
	fs := flag.NewFlagSet("mappings", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "bake server data directory")
	jobID := fs.String("job", "", "job id")
	_ = fs.Parse(args)

	if strings.TrimSpace(*jobID) == "" {
		fmt.Fprintln(os.Stderr, "missing -job")
		os.Exit(2)
	}
	idx := openIndex(*dataDir)
	defer idx.Close()

	n, err := idx.BakedMappingCount(context.Background(), *jobID)
	if err != nil {
		fmt.Fprintln(os.Stderr, "query:", err)
		os.Exit(1)
	}
	fmt.Printf("%s: %d baked mappings\n", *jobID, n)
}

// inspectCmd decodes a dumped export section (see the client's -dump_blobs
// option) and prints its contents.
func inspectCmd(args []string) {
	fs := flag.NewFlagSet("inspect", flag.ExitOnError)
	path := fs.String("file", "", "section blob path")
	_ = fs.Parse(args)

	if strings.TrimSpace(*path) == "" {
		fmt.Fprintln(os.Stderr, "missing -file")
		os.Exit(2)
	}
	raw, err := os.ReadFile(*path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read:", err)
		os.Exit(1)
	}
	sec, err := bakejob.DecodeSection(raw)
	if err != nil {
		fmt.Fprintln(os.Stderr, "decode:", err)
		os.Exit(1)
	}

	fmt.Printf("kind: %s\n", sec.Kind)
	switch sec.Kind {
	case bakejob.SectionHeader:
		h := sec.Header
		fmt.Printf("  job=%s quality=%s level=%q visibility_only=%v\n", h.JobGUID, h.Quality, h.LevelName, h.VisibilityOnly)
	case bakejob.SectionVolumes:
		for _, v := range sec.Volumes {
			fmt.Printf("  volume min=%v max=%v\n", v.Min, v.Max)
		}
	case bakejob.SectionLights:
		for _, l := range sec.Lights {
			fmt.Printf("  light kind=%s stationary=%v intensity=%g radius=%g\n", l.Kind, l.Stationary, l.Intensity, l.Radius)
		}
	case bakejob.SectionMeshes:
		for _, m := range sec.Meshes {
			fmt.Printf("  mesh verts=%d indices=%d cast_shadow=%v\n", len(m.Vertices), len(m.Indices), m.CastShadow)
		}
	case bakejob.SectionMappings:
		for _, m := range sec.Mappings {
			fmt.Printf("  mapping %dx%d process=%v\n", m.SizeX, m.SizeY, m.Process)
		}
	}
}
