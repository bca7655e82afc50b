// Package docs registers the OpenAPI description served under /swagger.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/health": {
            "get": {
                "tags": ["system"],
                "summary": "Service health",
                "responses": {"200": {"description": "healthy"}, "503": {"description": "database unreachable"}}
            }
        },
        "/api/epas": {
            "get": {
                "tags": ["catalog"],
                "summary": "List Core EPAs",
                "responses": {"200": {"description": "epas and count"}}
            }
        },
        "/api/epas/{epa_id}": {
            "get": {
                "tags": ["catalog"],
                "summary": "Core EPA with its Smaller EPAs and activities",
                "parameters": [{"name": "epa_id", "in": "path", "required": true, "type": "string"}],
                "responses": {"200": {"description": "epa detail"}, "404": {"$ref": "#/responses/Error"}}
            }
        },
        "/api/students": {
            "get": {"tags": ["catalog"], "summary": "List active students", "responses": {"200": {"description": "students and count"}}}
        },
        "/api/faculty": {
            "get": {"tags": ["catalog"], "summary": "List active faculty", "responses": {"200": {"description": "faculty and count"}}}
        },
        "/api/contexts": {
            "get": {"tags": ["catalog"], "summary": "List context types", "responses": {"200": {"description": "contexts and count"}}}
        },
        "/api/technology-levels": {
            "get": {"tags": ["catalog"], "summary": "List technology levels", "responses": {"200": {"description": "technology levels and count"}}}
        },
        "/api/assessments": {
            "post": {
                "tags": ["assessments"],
                "summary": "Record a rating",
                "consumes": ["application/json"],
                "parameters": [{"name": "assessment", "in": "body", "required": true, "schema": {"$ref": "#/definitions/NewAssessment"}}],
                "responses": {"201": {"description": "assessment id"}, "400": {"$ref": "#/responses/Error"}, "404": {"$ref": "#/responses/Error"}}
            }
        },
        "/api/scoring/assessment/{assessment_id}": {
            "get": {
                "tags": ["scoring"],
                "summary": "Indicator score for one assessment",
                "parameters": [{"name": "assessment_id", "in": "path", "required": true, "type": "string"}],
                "responses": {"200": {"description": "indicator score"}, "404": {"$ref": "#/responses/Error"}}
            }
        },
        "/api/scoring/activity/{activity_id}/student/{student_id}": {
            "get": {
                "tags": ["scoring"],
                "summary": "Activity score for a student",
                "parameters": [
                    {"name": "activity_id", "in": "path", "required": true, "type": "string"},
                    {"name": "student_id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {"200": {"description": "activity score"}, "404": {"$ref": "#/responses/Error"}}
            }
        },
        "/api/scoring/epa/{epa_id}/student/{student_id}": {
            "get": {
                "tags": ["scoring"],
                "summary": "Core EPA score for a student, persisted at every level",
                "parameters": [
                    {"name": "epa_id", "in": "path", "required": true, "type": "string"},
                    {"name": "student_id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {"200": {"description": "core EPA score with entrustment"}, "404": {"$ref": "#/responses/Error"}}
            }
        },
        "/api/scoring/student/{student_id}": {
            "get": {
                "tags": ["scoring"],
                "summary": "Comprehensive student profile",
                "parameters": [{"name": "student_id", "in": "path", "required": true, "type": "string"}],
                "responses": {"200": {"description": "profile"}, "404": {"$ref": "#/responses/Error"}}
            }
        },
        "/api/scoring/integration/student/{student_id}": {
            "get": {
                "tags": ["scoring"],
                "summary": "Integration bonus for an ordered EPA pair",
                "parameters": [
                    {"name": "student_id", "in": "path", "required": true, "type": "string"},
                    {"name": "primary", "in": "query", "required": true, "type": "string"},
                    {"name": "secondary", "in": "query", "required": true, "type": "string"}
                ],
                "responses": {"200": {"description": "integration bonus"}, "400": {"$ref": "#/responses/Error"}}
            }
        },
        "/api/scoring/entrustment": {
            "get": {
                "tags": ["scoring"],
                "summary": "Entrustment level for a score",
                "parameters": [{"name": "score", "in": "query", "required": true, "type": "number"}],
                "responses": {"200": {"description": "entrustment level"}, "400": {"$ref": "#/responses/Error"}}
            }
        },
        "/api/reports/student/{student_id}/summary": {
            "get": {
                "tags": ["reports"],
                "summary": "Student summary report",
                "parameters": [{"name": "student_id", "in": "path", "required": true, "type": "string"}],
                "responses": {"200": {"description": "summary"}, "404": {"$ref": "#/responses/Error"}}
            }
        },
        "/api/quality/reliability": {
            "get": {"tags": ["reports"], "summary": "Inter-rater reliability report", "responses": {"200": {"description": "report"}}}
        },
        "/metrics": {
            "get": {"tags": ["system"], "summary": "Runtime and scoring metrics", "responses": {"200": {"description": "metrics"}}}
        }
    },
    "definitions": {
        "NewAssessment": {
            "type": "object",
            "required": ["student_id", "indicator_id", "assessor_id", "base_score", "evidence_type"],
            "properties": {
                "student_id": {"type": "string"},
                "indicator_id": {"type": "string"},
                "assessor_id": {"type": "string"},
                "base_score": {"type": "number", "minimum": 1, "maximum": 5},
                "context_id": {"type": "string"},
                "tech_level_id": {"type": "string"},
                "evidence_type": {"type": "string"},
                "notes": {"type": "string"}
            }
        },
        "Error": {
            "type": "object",
            "properties": {
                "error": {
                    "type": "object",
                    "properties": {
                        "category": {"type": "string"},
                        "code": {"type": "string"},
                        "message": {"type": "string"}
                    }
                },
                "details": {"type": "object", "additionalProperties": {"type": "string"}},
                "request_id": {"type": "string"},
                "timestamp": {"type": "string", "format": "date-time"}
            }
        }
    },
    "responses": {
        "Error": {"description": "error", "schema": {"$ref": "#/definitions/Error"}}
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "EPA Scoring API",
	Description:      "Competency scoring for Entrustable Professional Activities.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
