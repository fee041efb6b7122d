package policy

// Grant is the cumulative capability set the sandbox receives for one
// execution: filesystem read/write paths, network allowlist, environment
// allowlist, and an optional deterministic random seed.
type Grant struct {
	ReadPaths    []string
	WritePaths   []string
	NetworkHosts []string
	EnvAllowlist []string
	RandomSeed   *uint64
	ProcessSpawn bool
}

func (g *Grant) addReadPath(p string) {
	for _, existing := range g.ReadPaths {
		if existing == p {
			return
		}
	}
	g.ReadPaths = append(g.ReadPaths, p)
}

func (g *Grant) addWritePath(p string) {
	for _, existing := range g.WritePaths {
		if existing == p {
			return
		}
	}
	g.WritePaths = append(g.WritePaths, p)
}

func (g *Grant) addNetworkHost(h string) {
	for _, existing := range g.NetworkHosts {
		if existing == h {
			return
		}
	}
	g.NetworkHosts = append(g.NetworkHosts, h)
}

// MapToolsToCapabilities applies the deterministic tool -> capability
// table, accumulating into a single Grant. Unknown tools add nothing;
// duplicate entries are idempotent.
func MapToolsToCapabilities(tools []string) Grant {
	var g Grant
	for _, tool := range tools {
		switch tool {
		case "Read", "Grep", "Glob", "LS":
			g.addReadPath(".")
		case "Write", "Edit", "MultiEdit":
			g.addWritePath(".")
		case "Bash", "Terminal":
			g.addReadPath(".")
			g.addWritePath(".")
			g.ProcessSpawn = true
		case "WebSearch", "Fetch":
			g.addNetworkHost("*")
		}
	}
	return g
}
