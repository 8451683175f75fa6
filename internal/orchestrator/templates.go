package orchestrator

import (
	"bytes"
	"fmt"
	"text/template"
)

// StackContext is the template data for rendering a deployable stack
// manifest: image references, replica counts and console hosts. It carries
// no environment variables for the services.
type StackContext struct {
	StackName      string
	OverlayNetwork string
	ManagerImage   string
	RelayImage     string
	RelayReplicas  int
	ConsoleHosts   []string
}

const stackManifestTemplate = `version: "3.8"
networks:
  {{.OverlayNetwork}}:
    external: true
services:
  manager:
    image: {{.ManagerImage}}
    networks: [{{.OverlayNetwork}}]
    deploy:
      replicas: 1
  relay:
    image: {{.RelayImage}}
    networks: [{{.OverlayNetwork}}]
    deploy:
      replicas: {{.RelayReplicas}}
{{- range .ConsoleHosts}}
  console-{{.}}:
    image: {{$.ManagerImage}}
    networks: [{{$.OverlayNetwork}}]
{{- end}}
`

var manifestTmpl = template.Must(template.New("stack").Parse(stackManifestTemplate))

// RenderManifest fills the stack template with ctx and returns the YAML
// document to hand to the Swarm deploy path.
func RenderManifest(ctx StackContext) ([]byte, error) {
	var buf bytes.Buffer
	if err := manifestTmpl.Execute(&buf, ctx); err != nil {
		return nil, fmt.Errorf("orchestrator: rendering stack manifest: %w", err)
	}
	return buf.Bytes(), nil
}
