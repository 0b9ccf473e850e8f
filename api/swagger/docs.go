// Package swagger is generated from the handler annotations by swaggo/swag.
// Regenerate with: swag init -g cmd/api/main.go -o api/swagger
package swagger

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
        "/login": {
            "post": {
                "tags": ["auth"],
                "summary": "Login user",
                "parameters": [{"in": "body", "name": "payload", "required": true, "schema": {"$ref": "#/definitions/service.LoginUserRequest"}}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/response.Response"}}, "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/response.Response"}}}
            }
        },
        "/api/transitions": {
            "post": {
                "security": [{"BearerAuth": []}],
                "tags": ["transitions"],
                "summary": "Request a transition",
                "parameters": [{"in": "body", "name": "payload", "required": true, "schema": {"$ref": "#/definitions/service.TransitionRequestDTO"}}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/response.Response"}},
                    "403": {"description": "UNAUTHORIZED", "schema": {"$ref": "#/definitions/response.Response"}},
                    "404": {"description": "NOT_FOUND", "schema": {"$ref": "#/definitions/response.Response"}},
                    "409": {"description": "INVALID_TRANSITION", "schema": {"$ref": "#/definitions/response.Response"}},
                    "422": {"description": "MISSING_REMARKS or SIDE_EFFECT_FAILED", "schema": {"$ref": "#/definitions/response.Response"}},
                    "503": {"description": "CONTENTION", "schema": {"$ref": "#/definitions/response.Response"}}
                }
            }
        },
        "/api/documents": {
            "get": {"security": [{"BearerAuth": []}], "tags": ["documents"], "summary": "List documents", "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/response.Response"}}}},
            "post": {
                "security": [{"BearerAuth": []}],
                "tags": ["documents"],
                "summary": "Create document",
                "parameters": [{"in": "body", "name": "payload", "required": true, "schema": {"$ref": "#/definitions/service.CreateDocumentRequest"}}],
                "responses": {"201": {"description": "Created", "schema": {"$ref": "#/definitions/response.Response"}}}
            }
        },
        "/api/documents/{id}/valid-transitions": {
            "get": {
                "security": [{"BearerAuth": []}],
                "tags": ["transitions"],
                "summary": "Valid transitions",
                "parameters": [{"type": "string", "in": "path", "name": "id", "required": true}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/response.Response"}}}
            }
        },
        "/health": {
            "get": {"tags": ["health"], "summary": "Health check", "responses": {"200": {"description": "OK"}, "503": {"description": "Degraded"}}}
        }
    },
    "definitions": {
        "response.Response": {
            "type": "object",
            "properties": {
                "status": {"type": "string"},
                "status_code": {"type": "integer"},
                "success": {"type": "boolean"},
                "data": {},
                "error_code": {"type": "string"},
                "error": {"type": "string"}
            }
        },
        "service.LoginUserRequest": {
            "type": "object",
            "required": ["email", "password"],
            "properties": {"email": {"type": "string"}, "password": {"type": "string"}}
        },
        "service.TransitionRequestDTO": {
            "type": "object",
            "required": ["document_id", "transition_name"],
            "properties": {
                "document_id": {"type": "string"},
                "transition_name": {"type": "string"},
                "remarks": {"type": "string"},
                "expected_version": {"type": "integer"}
            }
        },
        "service.CreateDocumentRequest": {
            "type": "object",
            "required": ["document_type", "title"],
            "properties": {
                "document_type": {"type": "string"},
                "title": {"type": "string"},
                "amount": {"type": "string"},
                "allocation_id": {"type": "string"},
                "inventory_item_id": {"type": "string"},
                "quantity": {"type": "integer"},
                "links": {"type": "array", "items": {"type": "object"}},
                "details": {"type": "object"},
                "remarks": {"type": "string"}
            }
        }
    },
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "localhost:8080",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "ProcureTrack API",
	Description:      "Document tracking for school procurement: purchase requests, PPMP, ORS, purchase orders, vouchers and cheques.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
