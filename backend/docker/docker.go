// Package docker compiles policies for a container runtime. Containers are
// allow-by-default only for what is explicitly mounted (there is no
// host-read-everything fallback), so a deny is realized simply by never
// mounting the denied path. An exception nested inside a deny only matters
// when the denied subtree sits inside a broader mount; the compiler then
// masks the denied subtree with a tmpfs and mounts the exception explicitly,
// never mounting the denied parent directly.
package docker

import (
	"fmt"
	"os"
	"os/exec"
	"sort"

	"github.com/fencerun/fencerun/backend"
	"github.com/fencerun/fencerun/internal/envutil"
	"github.com/fencerun/fencerun/internal/pathutil"
)

// lookPath locates the docker binary. It is a var so tests can override it.
var lookPath = exec.LookPath

// DefaultImage is the container image used when the policy does not name one.
const DefaultImage = "fencerun/agent:latest"

// Backend implements backend.Backend using `docker run` volume mounts.
type Backend struct{}

// New returns a new docker Backend.
func New() *Backend {
	return &Backend{}
}

// Name returns the backend identifier.
func (b *Backend) Name() string {
	return "docker"
}

// Available reports whether the docker binary is on PATH.
func (b *Backend) Available() bool {
	_, err := lookPath("docker")
	return err == nil
}

// CheckDependencies inspects the system for the docker client.
func (b *Backend) CheckDependencies() *backend.DependencyCheck {
	check := &backend.DependencyCheck{}
	if _, err := lookPath("docker"); err != nil {
		check.Errors = append(check.Errors, fmt.Sprintf("docker not found on PATH: %v", err))
	}
	return check
}

// volume is one explicit mount in the container, host path and container
// path identical so the agent sees its familiar layout.
type volume struct {
	path     string
	readOnly bool
	tmpfs    bool
	depth    int
}

// Compile lowers pol into a `docker run` invocation. Exit code 125 is
// reserved by docker run for its own failures (bad flag, rejected mount) and
// is mapped to policy rejection by the launcher.
func (b *Backend) Compile(pol *backend.Policy) (*backend.Invocation, error) {
	dockerPath, err := lookPath("docker")
	if err != nil {
		return nil, fmt.Errorf("docker: %w", err)
	}

	image := pol.Image
	if image == "" {
		image = DefaultImage
	}

	args := []string{"docker", "run", "--rm", "--init", "-i"}
	if pol.TTY {
		args = append(args, "-t")
		// The container gets a fresh environment; carry the terminal type
		// over so interactive programs render correctly.
		if term, ok := envutil.GetEnv(os.Environ(), "TERM"); ok {
			args = append(args, "-e", "TERM="+term)
		}
	}

	for _, v := range buildVolumes(pol) {
		switch {
		case v.tmpfs:
			args = append(args, "--tmpfs", v.path)
		case v.readOnly:
			args = append(args, "-v", v.path+":"+v.path+":ro")
		default:
			args = append(args, "-v", v.path+":"+v.path)
		}
	}

	if pol.Project != "" {
		args = append(args, "-w", pol.Project)
	}
	args = append(args, image)

	return &backend.Invocation{
		Backend:           b.Name(),
		Path:              dockerPath,
		Args:              args,
		PolicyRejectExits: []int{125},
	}, nil
}

// buildVolumes produces the deterministic mount list. Granted paths become
// explicit volumes; denied paths are skipped entirely unless nested inside a
// granted mount, in which case a tmpfs mask hides them; exceptions nested
// inside a masked deny get their own volume. Docker applies mounts by
// destination nesting, but the list is depth-ordered anyway so the emitted
// argv is reproducible.
func buildVolumes(pol *backend.Policy) []volume {
	grants := make([]volume, 0, len(pol.ReadWrite)+len(pol.ReadOnly)+1)
	for _, p := range pol.ReadWrite {
		grants = append(grants, volume{path: p})
	}
	if pol.Project != "" && !containsPath(pol.ReadWrite, pol.Project) {
		grants = append(grants, volume{path: pol.Project})
	}
	for _, p := range pol.ReadOnly {
		grants = append(grants, volume{path: p, readOnly: true})
	}

	// A grant nested inside a denied subtree is an exception: it is mounted,
	// and the deny it escapes is masked below. A grant that IS a denied path
	// cannot happen (categories are mutually exclusive).
	out := make([]volume, 0, len(grants)+len(pol.Deny))
	out = append(out, grants...)

	for _, deny := range pol.Deny {
		masked := false
		for _, g := range grants {
			if pathutil.IsStrictSubpath(g.path, deny) {
				masked = true
				break
			}
		}
		// Not under any mount: invisible already, nothing to emit.
		if masked {
			out = append(out, volume{path: deny, tmpfs: true})
		}
	}

	for i := range out {
		out[i].depth = pathutil.Depth(out[i].path)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].depth != out[j].depth {
			return out[i].depth < out[j].depth
		}
		return out[i].path < out[j].path
	})
	return out
}

func containsPath(list []string, p string) bool {
	for _, v := range list {
		if v == p {
			return true
		}
	}
	return false
}
