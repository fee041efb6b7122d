package policy

import "testing"

func TestMapToolsToCapabilitiesReadTools(t *testing.T) {
	g := MapToolsToCapabilities([]string{"Read", "Grep", "Glob", "LS"})
	if len(g.ReadPaths) != 1 || g.ReadPaths[0] != "." {
		t.Fatalf("got %v, want single read path '.'", g.ReadPaths)
	}
	if len(g.WritePaths) != 0 {
		t.Fatalf("got %v, want no write paths", g.WritePaths)
	}
}

func TestMapToolsToCapabilitiesWriteTools(t *testing.T) {
	g := MapToolsToCapabilities([]string{"Write", "Edit", "MultiEdit"})
	if len(g.WritePaths) != 1 || g.WritePaths[0] != "." {
		t.Fatalf("got %v, want single write path '.'", g.WritePaths)
	}
}

func TestMapToolsToCapabilitiesBash(t *testing.T) {
	g := MapToolsToCapabilities([]string{"Bash"})
	if len(g.ReadPaths) != 1 || len(g.WritePaths) != 1 || !g.ProcessSpawn {
		t.Fatalf("got %+v, want read+write+process-spawn", g)
	}
}

func TestMapToolsToCapabilitiesNetwork(t *testing.T) {
	g := MapToolsToCapabilities([]string{"WebSearch", "Fetch"})
	if len(g.NetworkHosts) != 1 || g.NetworkHosts[0] != "*" {
		t.Fatalf("got %v, want single '*' network host", g.NetworkHosts)
	}
}

func TestMapToolsToCapabilitiesUnknownAddsNothing(t *testing.T) {
	g := MapToolsToCapabilities([]string{"SomeUnknownTool"})
	if len(g.ReadPaths) != 0 || len(g.WritePaths) != 0 || len(g.NetworkHosts) != 0 || g.ProcessSpawn {
		t.Fatalf("got %+v, want empty grant", g)
	}
}

func TestMapToolsToCapabilitiesIdempotent(t *testing.T) {
	g1 := MapToolsToCapabilities([]string{"Read", "Read", "Grep"})
	g2 := MapToolsToCapabilities([]string{"Read", "Grep"})
	if len(g1.ReadPaths) != len(g2.ReadPaths) {
		t.Fatalf("duplicate tool entries should be idempotent: %v vs %v", g1.ReadPaths, g2.ReadPaths)
	}
}
