package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "QR Attendance Gateway",
        "description": "Teacher-facing gateway that opens QR attendance sessions against the college API and tracks who scanned.",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http",
        "https"
    ],
    "tags": [
        {"name": "QR Sessions", "description": "QR attendance workspace of the calling teacher"},
        {"name": "Teacher", "description": "Lookups for the scope selectors"},
        {"name": "Observability", "description": "Health and metrics"}
    ],
    "paths": {
        "/qr-sessions/scope": {
            "put": {
                "tags": ["QR Sessions"],
                "summary": "Select the class meeting for the workspace",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/SelectionRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Invalid payload", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/qr-sessions": {
            "post": {
                "tags": ["QR Sessions"],
                "summary": "Generate a QR attendance session",
                "parameters": [
                    {"name": "payload", "in": "body", "required": false, "schema": {"$ref": "#/definitions/GenerateSessionRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Scope incomplete", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Already generating", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "502": {"description": "Upload or save failed", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/qr-sessions/existing/use": {
            "post": {
                "tags": ["QR Sessions"],
                "summary": "Resume the session already saved for the selected scope",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "No existing session", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/qr-sessions/current": {
            "get": {
                "tags": ["QR Sessions"],
                "summary": "Workspace status",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/qr-sessions/current/stop": {
            "post": {
                "tags": ["QR Sessions"],
                "summary": "Stop the active session",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "No active session", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/qr-sessions/current/refresh": {
            "post": {
                "tags": ["QR Sessions"],
                "summary": "Poll the roster now",
                "responses": {
                    "200": {"description": "OK, meta.skipped is set when another poll was in flight", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/qr-sessions/current/roster/export": {
            "get": {
                "tags": ["QR Sessions"],
                "summary": "Download the live roster",
                "produces": ["text/csv", "application/pdf"],
                "parameters": [
                    {"name": "format", "in": "query", "type": "string", "enum": ["csv", "pdf"]}
                ],
                "responses": {
                    "200": {"description": "File"}
                }
            }
        },
        "/qr-sessions/workspace": {
            "delete": {
                "tags": ["QR Sessions"],
                "summary": "Close the workspace",
                "responses": {
                    "204": {"description": "Released"}
                }
            }
        },
        "/qr-sessions/history": {
            "get": {
                "tags": ["QR Sessions"],
                "summary": "Stopped QR sessions of the teacher",
                "parameters": [
                    {"name": "date_from", "in": "query", "type": "string"},
                    {"name": "date_to", "in": "query", "type": "string"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "page_size", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "503": {"description": "History disabled", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/teacher/allocations": {
            "get": {
                "tags": ["Teacher"],
                "summary": "Subjects and divisions allocated to the teacher",
                "parameters": [
                    {"name": "refresh", "in": "query", "type": "boolean"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/teacher/time-slots": {
            "get": {
                "tags": ["Teacher"],
                "summary": "Timetable slots for a class meeting",
                "parameters": [
                    {"name": "academic_year_id", "in": "query", "type": "string"},
                    {"name": "semester_id", "in": "query", "type": "string"},
                    {"name": "division_id", "in": "query", "type": "string"},
                    {"name": "subject_id", "in": "query", "type": "string"},
                    {"name": "date", "in": "query", "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/metrics/summary": {
            "get": {
                "tags": ["Observability"],
                "summary": "Gateway activity snapshot",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        }
    },
    "definitions": {
        "SelectionRequest": {
            "type": "object",
            "properties": {
                "academic_year_id": {"type": "string"},
                "semester_id": {"type": "string"},
                "division_id": {"type": "string"},
                "subject_id": {"type": "string"},
                "time_slot_id": {"type": "string"},
                "timetable_id": {"type": "string"},
                "timetable_allocation_id": {"type": "string"},
                "date": {"type": "string", "format": "date"}
            }
        },
        "GenerateSessionRequest": {
            "type": "object",
            "properties": {
                "duration_minutes": {"type": "integer", "description": "Blank or non-positive values fall back to 5"},
                "selection": {"$ref": "#/definitions/SelectionRequest"}
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
                "status": {"type": "integer"}
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
