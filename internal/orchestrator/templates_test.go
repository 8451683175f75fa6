package orchestrator

import (
	"strings"
	"testing"
)

func TestRenderManifestIncludesConsoles(t *testing.T) {
	ctx := StackContext{
		StackName:      "migasfree",
		OverlayNetwork: "migasfree_net",
		ManagerImage:   "migasfree/manager:latest",
		RelayImage:     "migasfree/relay:latest",
		RelayReplicas:  2,
		ConsoleHosts:   []string{"ws1", "ws2"},
	}

	out, err := RenderManifest(ctx)
	if err != nil {
		t.Fatalf("RenderManifest: %v", err)
	}

	rendered := string(out)
	for _, want := range []string{"migasfree_net", "replicas: 2", "console-ws1", "console-ws2"} {
		if !strings.Contains(rendered, want) {
			t.Errorf("rendered manifest missing %q:\n%s", want, rendered)
		}
	}
}

func TestRenderManifestNoConsoles(t *testing.T) {
	ctx := StackContext{OverlayNetwork: "net", ManagerImage: "m", RelayImage: "r", RelayReplicas: 1}
	out, err := RenderManifest(ctx)
	if err != nil {
		t.Fatalf("RenderManifest: %v", err)
	}
	if strings.Contains(string(out), "console-") {
		t.Errorf("expected no console services, got:\n%s", out)
	}
}
