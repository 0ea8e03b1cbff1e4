// Package docs registers the OpenAPI description of the server API.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {
            "name": "secscan maintainers",
            "url": "https://github.com/raysh454/secscan"
        },
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/health": {
            "get": {
                "produces": ["application/json"],
                "tags": ["meta"],
                "summary": "Liveness probe",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/server.HealthResponse"}}
                }
            }
        },
        "/scans": {
            "get": {
                "produces": ["application/json"],
                "tags": ["scans"],
                "summary": "List recorded scans, newest first",
                "parameters": [
                    {"type": "integer", "description": "Maximum number of scans", "name": "limit", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "array", "items": {"$ref": "#/definitions/history.Scan"}}}
                }
            },
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["scans"],
                "summary": "Execute a scan",
                "parameters": [
                    {"description": "Scan request", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/server.ExecuteScanRequest"}}
                ],
                "responses": {
                    "200": {"description": "Scan finished", "schema": {"$ref": "#/definitions/app.ScanReport"}},
                    "202": {"description": "Scan job started", "schema": {"$ref": "#/definitions/app.Job"}},
                    "400": {"description": "Bad request", "schema": {"$ref": "#/definitions/server.ErrorResponse"}},
                    "403": {"description": "Target outside base root", "schema": {"$ref": "#/definitions/server.ErrorResponse"}},
                    "409": {"description": "Scan id already recorded", "schema": {"$ref": "#/definitions/server.ErrorResponse"}}
                }
            }
        },
        "/scans/{scanID}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["scans"],
                "summary": "Get a recorded scan with its outcomes",
                "parameters": [{"type": "string", "name": "scanID", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/app.ScanDetails"}},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/server.ErrorResponse"}}
                }
            }
        },
        "/scans/{scanID}/summary": {
            "get": {
                "produces": ["application/json"],
                "tags": ["scans"],
                "summary": "Get the summary document of a scan",
                "parameters": [{"type": "string", "name": "scanID", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object"}},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/server.ErrorResponse"}}
                }
            }
        },
        "/scans/{scanID}/results": {
            "get": {
                "produces": ["application/json"],
                "tags": ["results"],
                "summary": "List the files in a scan's results directory",
                "parameters": [{"type": "string", "name": "scanID", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "array", "items": {"$ref": "#/definitions/app.ResultFile"}}}
                }
            }
        },
        "/scans/{scanID}/results/{file}": {
            "get": {
                "produces": ["application/octet-stream"],
                "tags": ["results"],
                "summary": "Download one result file",
                "parameters": [
                    {"type": "string", "name": "scanID", "in": "path", "required": true},
                    {"type": "string", "name": "file", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "File contents"},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/server.ErrorResponse"}}
                }
            }
        },
        "/scans/{base}/diff/{head}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["scans"],
                "summary": "Compare the summaries of two scans",
                "parameters": [
                    {"type": "string", "name": "base", "in": "path", "required": true},
                    {"type": "string", "name": "head", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/summary.Comparison"}}
                }
            }
        },
        "/configs/default": {
            "get": {
                "description": "Inspects the target and enables the dependency and container scanners only when their manifests are present.",
                "produces": ["application/json"],
                "tags": ["scans"],
                "summary": "Generate the default scan configuration for a target",
                "parameters": [
                    {"type": "string", "description": "Target path, relative to the base root", "name": "target", "in": "query", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object"}},
                    "400": {"description": "Bad request", "schema": {"$ref": "#/definitions/server.ErrorResponse"}}
                }
            }
        },
        "/maintenance/prune": {
            "post": {
                "produces": ["application/json"],
                "tags": ["maintenance"],
                "summary": "Remove scans past their retention window",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/server.PruneResponse"}}
                }
            }
        },
        "/jobs": {
            "get": {
                "produces": ["application/json"],
                "tags": ["jobs"],
                "summary": "List scan jobs",
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "array", "items": {"$ref": "#/definitions/app.Job"}}}
                }
            }
        },
        "/jobs/{jobID}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["jobs"],
                "summary": "Get a scan job",
                "parameters": [{"type": "string", "name": "jobID", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/app.Job"}},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/server.ErrorResponse"}}
                }
            },
            "delete": {
                "tags": ["jobs"],
                "summary": "Cancel a scan job",
                "parameters": [{"type": "string", "name": "jobID", "in": "path", "required": true}],
                "responses": {"204": {"description": "Canceled"}}
            }
        }
    },
    "definitions": {
        "server.ExecuteScanRequest": {
            "type": "object",
            "properties": {
                "config": {"type": "object"},
                "target": {"type": "string", "example": "projects/webapp"},
                "scan_id": {"type": "string", "example": "2f1c9a"},
                "async": {"type": "boolean"}
            }
        },
        "server.HealthResponse": {
            "type": "object",
            "properties": {
                "status": {"type": "string", "example": "healthy"},
                "timestamp": {"type": "string"}
            }
        },
        "server.PruneResponse": {
            "type": "object",
            "properties": {"pruned": {"type": "integer"}}
        },
        "server.ErrorResponse": {
            "type": "object",
            "properties": {"error": {"type": "string", "example": "not found"}}
        },
        "history.Scan": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "target": {"type": "string"},
                "status": {"type": "string"},
                "exit_code": {"type": "integer"},
                "any_artifact_produced": {"type": "boolean"},
                "aggregate_exit_flag": {"type": "boolean"},
                "total_findings": {"type": "integer"},
                "results_dir": {"type": "string"},
                "retention_days": {"type": "integer"},
                "started_at": {"type": "string"},
                "ended_at": {"type": "string"}
            }
        },
        "app.ScanDetails": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "status": {"type": "string"},
                "outcomes": {"type": "array", "items": {"$ref": "#/definitions/model.ScannerOutcome"}}
            }
        },
        "app.ScanReport": {
            "type": "object",
            "properties": {
                "scan_id": {"type": "string"},
                "status": {"type": "string", "enum": ["completed", "failed"]},
                "exit_code": {"type": "integer"},
                "results_dir": {"type": "string"},
                "results_generated": {"type": "array", "items": {"type": "string"}},
                "summary": {"type": "object"},
                "degraded_scanners": {"type": "array", "items": {"$ref": "#/definitions/model.ScannerOutcome"}},
                "reports": {"type": "array", "items": {"type": "string"}}
            }
        },
        "app.ResultFile": {
            "type": "object",
            "properties": {
                "name": {"type": "string"},
                "scanner": {"type": "string"},
                "size_bytes": {"type": "integer"}
            }
        },
        "app.Job": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "type": {"type": "string"},
                "scan_id": {"type": "string"},
                "target": {"type": "string"},
                "status": {"type": "string", "enum": ["pending", "running", "done", "failed", "canceled"]},
                "error": {"type": "string"},
                "started_at": {"type": "string"},
                "ended_at": {"type": "string"},
                "result": {"$ref": "#/definitions/app.ScanReport"}
            }
        },
        "model.ScannerOutcome": {
            "type": "object",
            "properties": {
                "scanner": {"type": "string"},
                "language": {"type": "string"},
                "status": {"type": "string", "enum": ["completed", "completed-with-warnings", "failed-no-output"]},
                "exit_succeeded": {"type": "boolean"},
                "exit_code": {"type": "integer"},
                "output_artifact_exists": {"type": "boolean"},
                "output_artifact_path": {"type": "string"},
                "reason": {"type": "string"},
                "detail": {"type": "string"},
                "warnings": {"type": "array", "items": {"type": "string"}}
            }
        },
        "summary.Comparison": {
            "type": "object",
            "properties": {
                "base_scan_id": {"type": "string"},
                "head_scan_id": {"type": "string"},
                "base_total": {"type": "integer"},
                "head_total": {"type": "integer"},
                "entries": {"type": "array", "items": {"type": "object"}},
                "chunks": {"type": "array", "items": {"type": "object"}}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "0.1",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "secscan API",
	Description:      "Runs security scanners against server-local targets and serves their results.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
