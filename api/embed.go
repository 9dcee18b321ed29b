// Package api embeds the static description of Conductor's own HTTP surface:
// the dashboard's JSON/SSE routes and the dev platform adapter's webhook.
package api

import "embed"

//go:embed openapi.yaml
var OpenAPISpec []byte

//go:embed swagger-ui/*
var SwaggerUIFS embed.FS
