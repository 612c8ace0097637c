// Package docs holds the OpenAPI description served at /swagger.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "license": {
            "name": "MIT",
            "url": "https://opensource.org/licenses/MIT"
        },
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/health": {"get": {"tags": ["System"], "summary": "Health check", "produces": ["application/json"], "responses": {"200": {"description": "OK"}, "503": {"description": "Unhealthy"}}}},
        "/metrics": {"get": {"tags": ["System"], "summary": "Component statistics", "produces": ["application/json"], "responses": {"200": {"description": "OK"}}}},
        "/v1/packs": {"get": {"tags": ["Packs"], "summary": "List installed packs", "produces": ["application/json"], "responses": {"200": {"description": "OK"}}}},
        "/v1/packs/import": {"post": {"tags": ["Packs"], "summary": "Import a pack archive", "consumes": ["multipart/form-data"], "produces": ["application/json"],
            "parameters": [
                {"type": "file", "name": "archive", "in": "formData", "required": true, "description": "Pack archive"},
                {"type": "boolean", "name": "replace", "in": "query", "description": "Upgrade an installed pack in place"},
                {"type": "boolean", "name": "avoid_collision", "in": "query", "description": "Install under a free pack id"}
            ],
            "responses": {"201": {"description": "Created"}, "400": {"description": "Bad Request"}, "409": {"description": "Conflict"}, "422": {"description": "Unprocessable"}, "424": {"description": "Missing dependencies"}}}},
        "/v1/packs/{id}": {
            "get": {"tags": ["Packs"], "summary": "Get an installed pack", "parameters": [{"type": "string", "name": "id", "in": "path", "required": true}], "responses": {"200": {"description": "OK"}, "404": {"description": "Not installed"}}},
            "delete": {"tags": ["Packs"], "summary": "Uninstall a pack", "parameters": [{"type": "string", "name": "id", "in": "path", "required": true}], "responses": {"204": {"description": "No Content"}, "404": {"description": "Not installed"}}}
        },
        "/v1/packs/{id}/status": {"get": {"tags": ["Packs"], "summary": "Pack runtime status", "parameters": [{"type": "string", "name": "id", "in": "path", "required": true}], "responses": {"200": {"description": "OK"}}}},
        "/v1/packs/{id}/dependencies": {"get": {"tags": ["Packs"], "summary": "Plan the actions needed to satisfy a pack's dependencies", "parameters": [{"type": "string", "name": "id", "in": "path", "required": true}], "responses": {"200": {"description": "OK"}, "404": {"description": "Not installed"}, "422": {"description": "Circular dependency"}}}},
        "/v1/packs/{id}/enable": {"post": {"tags": ["Packs"], "summary": "Enable a pack and load its extension", "parameters": [{"type": "string", "name": "id", "in": "path", "required": true}], "responses": {"200": {"description": "OK"}, "402": {"description": "License required"}, "404": {"description": "Not installed"}, "424": {"description": "Missing dependencies"}}}},
        "/v1/packs/{id}/disable": {"post": {"tags": ["Packs"], "summary": "Unload a pack's extension and disable it", "parameters": [{"type": "string", "name": "id", "in": "path", "required": true}], "responses": {"200": {"description": "OK"}, "404": {"description": "Not installed"}}}},
        "/v1/packs/{id}/export": {"get": {"tags": ["Packs"], "summary": "Download a pack as an archive", "produces": ["application/zip"], "parameters": [{"type": "string", "name": "id", "in": "path", "required": true}], "responses": {"200": {"description": "OK"}, "404": {"description": "Not installed"}}}},
        "/v1/backups": {"post": {"tags": ["Backup"], "summary": "Back up every installed pack to a local file", "responses": {"201": {"description": "Created"}}}},
        "/v1/restore": {"post": {"tags": ["Backup"], "summary": "Restore packs from a backup file", "responses": {"200": {"description": "OK"}}}},
        "/v1/licenses": {"get": {"tags": ["Licenses"], "summary": "List stored licenses", "responses": {"200": {"description": "OK"}}}},
        "/v1/licenses/validate": {"post": {"tags": ["Licenses"], "summary": "Validate an order number", "responses": {"200": {"description": "OK"}, "429": {"description": "Rate limited"}}}},
        "/v1/licenses/trial": {"post": {"tags": ["Licenses"], "summary": "Start a trial for a pack", "responses": {"201": {"description": "Created"}, "404": {"description": "Not installed"}, "409": {"description": "Trial already used"}}}},
        "/v1/licenses/{order}": {"delete": {"tags": ["Licenses"], "summary": "Revoke a license", "parameters": [{"type": "string", "name": "order", "in": "path", "required": true}], "responses": {"204": {"description": "No Content"}, "404": {"description": "Not Found"}}}},
        "/v1/capabilities": {"get": {"tags": ["Extensions"], "summary": "List registered capabilities", "responses": {"200": {"description": "OK"}}}},
        "/v1/extension-points": {"get": {"tags": ["Extensions"], "summary": "List UI extension points", "responses": {"200": {"description": "OK"}}}},
        "/v1/extension-points/{name}/components": {"get": {"tags": ["Extensions"], "summary": "List components placed at an extension point", "parameters": [{"type": "string", "name": "name", "in": "path", "required": true}], "responses": {"200": {"description": "OK"}, "404": {"description": "Not Found"}}}},
        "/v1/catalog": {"get": {"tags": ["Catalog"], "summary": "List packs offered by the catalog", "responses": {"200": {"description": "OK"}, "503": {"description": "Catalog unavailable"}}}},
        "/v1/catalog/updates": {"get": {"tags": ["Catalog"], "summary": "List installed packs with a newer catalog version", "responses": {"200": {"description": "OK"}, "503": {"description": "Catalog unavailable"}}}},
        "/v1/catalog/{id}/install": {"post": {"tags": ["Catalog"], "summary": "Download and install a pack from the catalog", "parameters": [{"type": "string", "name": "id", "in": "path", "required": true}], "responses": {"201": {"description": "Created"}, "404": {"description": "Not Found"}, "503": {"description": "Catalog unavailable"}}}},
        "/v1/history": {"get": {"tags": ["History"], "summary": "Pack lifecycle history, newest first", "responses": {"200": {"description": "OK"}}}}
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{"http"},
	Title:            "Tailor Pack Service API",
	Description:      "Local control API for installing, licensing and loading Tailor Packs",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
