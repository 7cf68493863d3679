// Package fencerun confines an untrusted, highly autonomous CLI agent to an
// explicitly approved set of filesystem paths.
//
// The engine takes a declarative, backend-agnostic description of which paths
// may be read, written, or must be hidden (a RuleSet), compiles it into a
// native configuration for one of three backends, and launches the agent
// under that configuration:
//
//   - seatbelt: the macOS deny-by-default sandbox (sandbox-exec), driven by a
//     generated SBPL profile with last-match-wins statement ordering.
//   - bwrap: a Linux namespace sandbox (bubblewrap), driven by an ordered
//     bind-mount list plus a synthesized seccomp BPF filter that blocks the
//     TIOCSTI and TIOCLINUX terminal-injection ioctls.
//   - docker: a container runtime, driven by explicit volume mounts.
//
// All three backends enforce the same property: a denied subtree stays
// unreachable, and an explicitly allowed path nested inside a denied subtree
// stays reachable for its granted mode.
//
// Typical use:
//
//	rs := fencerun.NewRuleSet(nil)
//	rs.Add("~/project", fencerun.ReadWrite)
//	rs.Add("~/project/secrets", fencerun.Deny)
//	inv, err := fencerun.Compile(rs, fencerun.WithSafeMode(true))
//	if err != nil { ... }
//	code, err := fencerun.Launch(ctx, inv, []string{"agent", "--yolo"})
//
// Network access is not restricted by this package.
package fencerun
