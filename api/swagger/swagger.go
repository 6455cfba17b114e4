package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "SMA Admissions API",
        "description": "Enquiry, admission and aptitude test registration workflow",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http",
        "https"
    ],
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    },
    "tags": [
        {"name": "Authentication", "description": "Back-office login"},
        {"name": "Public", "description": "Intake forms and identifier verification"},
        {"name": "Applications", "description": "Review workflow"},
        {"name": "Attachments", "description": "Documents bound to applications"},
        {"name": "Counters", "description": "Identifier sequences"}
    ],
    "paths": {
        "/auth/login": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Authenticate user",
                "parameters": [{"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/LoginRequest"}}],
                "responses": {
                    "200": {"description": "Token issued", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Invalid credentials", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/public/{category}": {
            "post": {
                "tags": ["Public"],
                "summary": "Submit an enquiry, admission or test registration",
                "parameters": [
                    {"name": "category", "in": "path", "required": true, "type": "string", "enum": ["enquiry", "admission", "registration"]},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/SubmitApplicationRequest"}}
                ],
                "responses": {
                    "201": {"description": "Submitted", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Validation failed", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/public/verify/{externalId}": {
            "get": {
                "tags": ["Public"],
                "summary": "Verify an issued identifier",
                "parameters": [{"name": "externalId", "in": "path", "required": true, "type": "string"}],
                "responses": {
                    "200": {"description": "Approved record", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Unknown identifier", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/applications": {
            "get": {
                "tags": ["Applications"],
                "summary": "List applications",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "category", "in": "query", "type": "string"},
                    {"name": "status", "in": "query", "type": "string"},
                    {"name": "search", "in": "query", "type": "string"},
                    {"name": "grade", "in": "query", "type": "string"},
                    {"name": "from", "in": "query", "type": "string", "format": "date"},
                    {"name": "to", "in": "query", "type": "string", "format": "date"},
                    {"name": "sort", "in": "query", "type": "string"},
                    {"name": "order", "in": "query", "type": "string"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "pageSize", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "Page of applications", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/applications/export": {
            "get": {
                "tags": ["Applications"],
                "summary": "Export applications as CSV",
                "produces": ["text/csv"],
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {"description": "CSV file"}
                }
            }
        },
        "/applications/{id}": {
            "get": {
                "tags": ["Applications"],
                "summary": "Get application with its attachments",
                "security": [{"BearerAuth": []}],
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {
                    "200": {"description": "Application", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "patch": {
                "tags": ["Applications"],
                "summary": "Edit applicant fields",
                "security": [{"BearerAuth": []}],
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {
                    "200": {"description": "Updated", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "delete": {
                "tags": ["Applications"],
                "summary": "Delete an application and release its attachments",
                "security": [{"BearerAuth": []}],
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {
                    "200": {"description": "Deleted, warnings in meta", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/applications/{id}/transition": {
            "post": {
                "tags": ["Applications"],
                "summary": "Approve or reject an application",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/TransitionRequest"}}
                ],
                "responses": {
                    "200": {"description": "Transitioned", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Lost a concurrent transition", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "422": {"description": "Already terminal", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "503": {"description": "Identifier allocation failed", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/applications/{id}/attachments": {
            "get": {
                "tags": ["Attachments"],
                "summary": "List attachments",
                "security": [{"BearerAuth": []}],
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {"200": {"description": "Attachments", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/applications/{id}/attachments/{role}": {
            "put": {
                "tags": ["Attachments"],
                "summary": "Bind or replace the file for a role",
                "consumes": ["multipart/form-data"],
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "role", "in": "path", "required": true, "type": "string"},
                    {"name": "file", "in": "formData", "required": true, "type": "file"}
                ],
                "responses": {
                    "200": {"description": "Bound", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "502": {"description": "Storage failure", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "delete": {
                "tags": ["Attachments"],
                "summary": "Release a role, or every role with *",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "role", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {"200": {"description": "Released, warnings in meta", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/applications/{id}/attachments/{role}/url": {
            "get": {
                "tags": ["Attachments"],
                "summary": "Issue a signed download URL",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "role", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {"200": {"description": "Signed URL", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/applications/{id}/admit-card": {
            "post": {
                "tags": ["Attachments"],
                "summary": "Render and attach an admit card",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/AdmitCardRequest"}}
                ],
                "responses": {"201": {"description": "Issued", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/files/download": {
            "get": {
                "tags": ["Attachments"],
                "summary": "Stream a file using a signed token",
                "parameters": [{"name": "token", "in": "query", "required": true, "type": "string"}],
                "responses": {"200": {"description": "File"}, "403": {"description": "Invalid token"}}
            }
        },
        "/counters/{category}": {
            "get": {
                "tags": ["Counters"],
                "summary": "Current counter value",
                "security": [{"BearerAuth": []}],
                "parameters": [{"name": "category", "in": "path", "required": true, "type": "string"}],
                "responses": {"200": {"description": "Counter", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/applications/{id}/history": {
            "get": {
                "tags": ["Applications"],
                "summary": "Audit trail of an application",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "limit", "in": "query", "type": "integer"}
                ],
                "responses": {"200": {"description": "Entries", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/ops/summary": {
            "get": {
                "tags": ["Ops"],
                "summary": "Process counters",
                "security": [{"BearerAuth": []}],
                "responses": {"200": {"description": "Snapshot", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        }
    },
    "definitions": {
        "LoginRequest": {
            "type": "object",
            "required": ["email", "password"],
            "properties": {
                "email": {"type": "string"},
                "password": {"type": "string"}
            }
        },
        "SubmitApplicationRequest": {
            "type": "object",
            "required": ["applicantName", "email"],
            "properties": {
                "applicantName": {"type": "string"},
                "email": {"type": "string"},
                "phone": {"type": "string"},
                "gradeApplying": {"type": "string"},
                "fields": {"type": "object"}
            }
        },
        "TransitionRequest": {
            "type": "object",
            "required": ["status"],
            "properties": {
                "status": {"type": "string", "enum": ["approved", "rejected"]},
                "notes": {"type": "string"}
            }
        },
        "AdmitCardRequest": {
            "type": "object",
            "required": ["examDate", "examVenue"],
            "properties": {
                "examDate": {"type": "string"},
                "examVenue": {"type": "string"},
                "instructions": {"type": "array", "items": {"type": "string"}},
                "notify": {"type": "boolean"}
            }
        },
        "Pagination": {
            "type": "object",
            "properties": {
                "page": {"type": "integer"},
                "page_size": {"type": "integer"},
                "total_count": {"type": "integer"}
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"},
                "details": {"type": "object"}
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {"type": "object"},
                "error": {"$ref": "#/definitions/APIError"},
                "pagination": {"$ref": "#/definitions/Pagination"},
                "meta": {"type": "object"}
            }
        }
    }
}`

type swaggerDoc struct{}

// ReadDoc returns the Swagger document.
func (s *swaggerDoc) ReadDoc() string {
	return docTemplate
}

func init() {
	swag.Register(swag.Name, &swaggerDoc{})
}
