// Package docs registers the OpenAPI document served under /swagger.
// Regenerate with: swag init -g cmd/ledger/main.go -d ./,./internal/transport/http
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/jobs": {
            "get": {
                "produces": ["application/json"],
                "tags": ["jobs"],
                "summary": "List all jobs ordered by id",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/httptransport.listJobsResp"}}
                }
            },
            "post": {
                "description": "Creates an open job and moves its budget from the client's free balance into escrow.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["jobs"],
                "summary": "Post a new job",
                "parameters": [
                    {"description": "job payload (budget in smallest currency unit)", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/httptransport.postJobDTO"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/httptransport.postJobResp"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/httptransport.apiError"}},
                    "402": {"description": "Payment Required", "schema": {"$ref": "#/definitions/httptransport.apiError"}}
                }
            }
        },
        "/jobs/stats": {
            "get": {
                "produces": ["application/json"],
                "tags": ["jobs"],
                "summary": "Job counts by status",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/service.Stats"}}
                }
            }
        },
        "/jobs/{id}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["jobs"],
                "summary": "Get job by id",
                "parameters": [
                    {"type": "integer", "description": "job id", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/entity.Job"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/httptransport.apiError"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/httptransport.apiError"}}
                }
            }
        },
        "/jobs/{id}/escrow": {
            "get": {
                "produces": ["application/json"],
                "tags": ["jobs"],
                "summary": "Amount currently held in escrow for a job",
                "parameters": [
                    {"type": "integer", "description": "job id", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/httptransport.escrowResp"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/httptransport.apiError"}}
                }
            }
        },
        "/jobs/{id}/accept": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["jobs"],
                "summary": "Accept an open job",
                "parameters": [
                    {"type": "integer", "description": "job id", "name": "id", "in": "path", "required": true},
                    {"description": "freelancer", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/httptransport.acceptJobDTO"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/entity.Job"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/httptransport.apiError"}},
                    "403": {"description": "Forbidden", "schema": {"$ref": "#/definitions/httptransport.apiError"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/httptransport.apiError"}},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/httptransport.apiError"}}
                }
            }
        },
        "/jobs/{id}/release": {
            "post": {
                "description": "Only the job's client may release. Completes the job.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["jobs"],
                "summary": "Release escrowed payment to the freelancer",
                "parameters": [
                    {"type": "integer", "description": "job id", "name": "id", "in": "path", "required": true},
                    {"description": "caller", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/httptransport.releaseJobDTO"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/entity.Job"}},
                    "403": {"description": "Forbidden", "schema": {"$ref": "#/definitions/httptransport.apiError"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/httptransport.apiError"}},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/httptransport.apiError"}}
                }
            }
        },
        "/accounts/{actor}/balance": {
            "get": {
                "produces": ["application/json"],
                "tags": ["accounts"],
                "summary": "Free balance of an actor",
                "parameters": [
                    {"type": "string", "description": "actor address", "name": "actor", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/httptransport.balanceResp"}}
                }
            }
        },
        "/accounts/{actor}/deposits": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["accounts"],
                "summary": "Fund an actor's free balance",
                "parameters": [
                    {"type": "string", "description": "actor address", "name": "actor", "in": "path", "required": true},
                    {"description": "amount in smallest currency unit", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/httptransport.depositDTO"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/httptransport.balanceResp"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/httptransport.apiError"}}
                }
            }
        },
        "/audit": {
            "get": {
                "produces": ["application/json"],
                "tags": ["ledger"],
                "summary": "Verify that value is conserved and every escrow matches its job",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/httptransport.auditResp"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/httptransport.auditResp"}}
                }
            }
        },
        "/events": {
            "get": {
                "description": "Returns events with seq greater than after. With wait, blocks until an event arrives or the wait elapses.",
                "produces": ["application/json"],
                "tags": ["ledger"],
                "summary": "Ledger event feed",
                "parameters": [
                    {"type": "integer", "description": "last seen seq", "name": "after", "in": "query"},
                    {"type": "integer", "description": "max events (default 100, max 1000)", "name": "limit", "in": "query"},
                    {"type": "string", "description": "long-poll duration, e.g. 10s (max 30s)", "name": "wait", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/httptransport.eventsResp"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/httptransport.apiError"}}
                }
            }
        }
    },
    "definitions": {
        "entity.Job": {
            "type": "object",
            "properties": {
                "id": {"type": "integer"},
                "client": {"type": "string"},
                "freelancer": {"type": "string"},
                "description": {"type": "string"},
                "budget": {"type": "integer"},
                "status": {"type": "string", "enum": ["open", "in_progress", "completed"]},
                "created_at": {"type": "string"},
                "updated_at": {"type": "string"}
            }
        },
        "entity.Event": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "seq": {"type": "integer"},
                "kind": {"type": "string", "enum": ["JobPosted", "JobTaken", "JobCompleted"]},
                "job_id": {"type": "integer"},
                "client": {"type": "string"},
                "freelancer": {"type": "string"},
                "description": {"type": "string"},
                "budget": {"type": "integer"},
                "occurred_at": {"type": "string"}
            }
        },
        "escrow.Totals": {
            "type": "object",
            "properties": {
                "free": {"type": "integer"},
                "escrowed": {"type": "integer"},
                "supply": {"type": "integer"}
            }
        },
        "service.Stats": {
            "type": "object",
            "properties": {
                "total": {"type": "integer"},
                "open": {"type": "integer"},
                "in_progress": {"type": "integer"},
                "completed": {"type": "integer"}
            }
        },
        "httptransport.apiError": {
            "type": "object",
            "properties": {"message": {"type": "string"}}
        },
        "httptransport.postJobDTO": {
            "type": "object",
            "required": ["client"],
            "properties": {
                "client": {"type": "string", "maxLength": 256},
                "description": {"type": "string", "maxLength": 10000},
                "budget": {"type": "integer"}
            }
        },
        "httptransport.postJobResp": {
            "type": "object",
            "properties": {"id": {"type": "integer"}}
        },
        "httptransport.acceptJobDTO": {
            "type": "object",
            "required": ["freelancer"],
            "properties": {"freelancer": {"type": "string", "maxLength": 256}}
        },
        "httptransport.releaseJobDTO": {
            "type": "object",
            "required": ["caller"],
            "properties": {"caller": {"type": "string", "maxLength": 256}}
        },
        "httptransport.depositDTO": {
            "type": "object",
            "properties": {"amount": {"type": "integer"}}
        },
        "httptransport.balanceResp": {
            "type": "object",
            "properties": {
                "actor": {"type": "string"},
                "balance": {"type": "integer"}
            }
        },
        "httptransport.escrowResp": {
            "type": "object",
            "properties": {
                "job_id": {"type": "integer"},
                "status": {"type": "string"},
                "escrowed": {"type": "integer"}
            }
        },
        "httptransport.listJobsResp": {
            "type": "object",
            "properties": {
                "jobs": {"type": "array", "items": {"$ref": "#/definitions/entity.Job"}},
                "count": {"type": "integer"}
            }
        },
        "httptransport.eventsResp": {
            "type": "object",
            "properties": {
                "events": {"type": "array", "items": {"$ref": "#/definitions/entity.Event"}},
                "last": {"type": "integer"}
            }
        },
        "httptransport.auditResp": {
            "type": "object",
            "properties": {
                "ok": {"type": "boolean"},
                "stats": {"$ref": "#/definitions/service.Stats"},
                "totals": {"$ref": "#/definitions/escrow.Totals"},
                "error": {"type": "string"}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "Job Escrow Ledger API",
	Description:      "Job ledger with escrowed budgets: post, accept and release jobs.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
