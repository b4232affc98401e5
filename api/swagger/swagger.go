package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "ACMST Admission API",
        "description": "Multi-party approval pipeline for student admissions",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "in": "header", "name": "Authorization"}
    },
    "tags": [
        {"name": "Auth", "description": "Login, refresh and password management"},
        {"name": "Admissions", "description": "Admission files and pipeline transitions"},
        {"name": "Health Checks", "description": "Medical examination records"},
        {"name": "Conditions", "description": "Coordinator-imposed academic prerequisites"},
        {"name": "Workflows", "description": "Declarative rule engine"},
        {"name": "Notifications", "description": "Outbound email queue"},
        {"name": "Audit", "description": "Audit trail, reports and exports"},
        {"name": "Dashboard", "description": "Pipeline overview"}
    ],
    "paths": {
        "/auth/login": {
            "post": {
                "tags": ["Auth"],
                "summary": "Authenticate and issue a token pair",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/LoginRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Invalid credentials", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/auth/refresh": {
            "post": {
                "tags": ["Auth"],
                "summary": "Exchange a refresh token for a new pair",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/RefreshRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/admissions": {
            "get": {
                "tags": ["Admissions"],
                "summary": "List admission files",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "state", "in": "query", "type": "string", "description": "Comma-separated pipeline states"},
                    {"name": "programId", "in": "query", "type": "string"},
                    {"name": "batchId", "in": "query", "type": "string"},
                    {"name": "coordinatorId", "in": "query", "type": "string"},
                    {"name": "search", "in": "query", "type": "string"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "page_size", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Admissions"],
                "summary": "Open a new admission file",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateAdmissionRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Duplicate national ID", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/admissions/{id}": {
            "get": {
                "tags": ["Admissions"],
                "summary": "Get an admission file with approvals, conditions and health checks",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "put": {
                "tags": ["Admissions"],
                "summary": "Update applicant data on a draft file",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/UpdateAdmissionRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/admissions/{id}/submit": {
            "post": {
                "tags": ["Admissions"],
                "summary": "Submit a draft file to the ministry stage",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Invalid transition", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/admissions/{id}/ministry/approve": {
            "post": {
                "tags": ["Admissions"],
                "summary": "Record ministry approval",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "schema": {"$ref": "#/definitions/DecisionRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/admissions/{id}/coordinator/conditional": {
            "post": {
                "tags": ["Admissions"],
                "summary": "Approve conditionally, pending academic prerequisites",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "schema": {"$ref": "#/definitions/DecisionRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/admissions/{id}/cancel": {
            "post": {
                "tags": ["Admissions"],
                "summary": "Cancel a file from any non-terminal state",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "schema": {"$ref": "#/definitions/DecisionRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/admissions/{id}/health-checks": {
            "get": {
                "tags": ["Health Checks"],
                "summary": "List health checks of a file",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Health Checks"],
                "summary": "Open a health check for a file in the health stage",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/HealthCheckRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/admissions/{id}/conditions": {
            "post": {
                "tags": ["Conditions"],
                "summary": "Attach a condition during coordinator review",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ConditionPayload"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/conditions/{id}/complete": {
            "post": {
                "tags": ["Conditions"],
                "summary": "Mark a condition fulfilled; last one auto-advances the file",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "schema": {"$ref": "#/definitions/ResolveConditionRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/conditions/{id}/reset": {
            "post": {
                "tags": ["Conditions"],
                "summary": "Reopen an overdue condition to pending",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/workflows": {
            "get": {
                "tags": ["Workflows"],
                "summary": "List workflows",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Workflows"],
                "summary": "Create a workflow",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateWorkflowRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/workflows/{id}/rules": {
            "post": {
                "tags": ["Workflows"],
                "summary": "Add a rule to a workflow",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateRuleRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "422": {"description": "Rule validation failed", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/workflows/execute": {
            "post": {
                "tags": ["Workflows"],
                "summary": "Evaluate active rules against one admission file",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ExecuteWorkflowRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/notifications": {
            "get": {
                "tags": ["Notifications"],
                "summary": "List queued notifications",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "state", "in": "query", "type": "string"},
                    {"name": "priority", "in": "query", "type": "string"},
                    {"name": "record_id", "in": "query", "type": "string"},
                    {"name": "page", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/notifications/{id}/retry": {
            "post": {
                "tags": ["Notifications"],
                "summary": "Force a delivery attempt for one queue entry",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Already resolved", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/audit/trail/{model}/{id}": {
            "get": {
                "tags": ["Audit"],
                "summary": "Chronological trail for one record",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "model", "in": "path", "required": true, "type": "string"},
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/audit/export": {
            "post": {
                "tags": ["Audit"],
                "summary": "Export the audit trail to CSV or PDF",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "format", "in": "query", "type": "string", "enum": ["csv", "pdf"]}
                ],
                "responses": {
                    "200": {"description": "Signed download URL", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/exports/{token}": {
            "get": {
                "tags": ["Audit"],
                "summary": "Download an export via its signed token",
                "parameters": [
                    {"name": "token", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "File stream"},
                    "401": {"description": "Expired or forged token", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/dashboard": {
            "get": {
                "tags": ["Dashboard"],
                "summary": "Pipeline overview with per-state counts",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        }
    },
    "definitions": {
        "LoginRequest": {
            "type": "object",
            "properties": {
                "email": {"type": "string"},
                "password": {"type": "string"}
            },
            "required": ["email", "password"]
        },
        "RefreshRequest": {
            "type": "object",
            "properties": {
                "refresh_token": {"type": "string"}
            },
            "required": ["refresh_token"]
        },
        "CreateAdmissionRequest": {
            "type": "object",
            "properties": {
                "applicantName": {"type": "string"},
                "nationalId": {"type": "string"},
                "email": {"type": "string"},
                "phone": {"type": "string"},
                "gender": {"type": "string"},
                "birthDate": {"type": "string"},
                "nationality": {"type": "string"},
                "address": {"type": "string"},
                "emergencyContact": {"type": "string"},
                "emergencyPhone": {"type": "string"},
                "programId": {"type": "string"},
                "batchId": {"type": "string"},
                "submissionMethod": {"type": "string"},
                "guardians": {"type": "array", "items": {"type": "object"}}
            },
            "required": ["applicantName", "nationalId", "birthDate", "programId", "batchId"]
        },
        "UpdateAdmissionRequest": {
            "type": "object",
            "properties": {
                "applicantName": {"type": "string"},
                "nationalId": {"type": "string"},
                "email": {"type": "string"},
                "phone": {"type": "string"},
                "address": {"type": "string"},
                "programId": {"type": "string"},
                "batchId": {"type": "string"}
            }
        },
        "DecisionRequest": {
            "type": "object",
            "properties": {
                "comments": {"type": "string"}
            }
        },
        "HealthCheckRequest": {
            "type": "object",
            "properties": {
                "hasChronicDiseases": {"type": "boolean"},
                "chronicDiseasesDetails": {"type": "string"},
                "takesMedications": {"type": "boolean"},
                "medicationsDetails": {"type": "string"},
                "hasAllergies": {"type": "boolean"},
                "allergiesDetails": {"type": "string"},
                "hasDisabilities": {"type": "boolean"},
                "disabilitiesDetails": {"type": "string"},
                "bloodType": {"type": "string"},
                "heightCm": {"type": "number"},
                "weightKg": {"type": "number"}
            }
        },
        "ConditionPayload": {
            "type": "object",
            "properties": {
                "subjectName": {"type": "string"},
                "subjectCode": {"type": "string"},
                "level": {"type": "string"},
                "description": {"type": "string"},
                "deadline": {"type": "string"}
            },
            "required": ["subjectName"]
        },
        "ResolveConditionRequest": {
            "type": "object",
            "properties": {
                "notes": {"type": "string"}
            }
        },
        "CreateWorkflowRequest": {
            "type": "object",
            "properties": {
                "name": {"type": "string"},
                "description": {"type": "string"},
                "autoTransitions": {"type": "boolean"},
                "notificationsEnabled": {"type": "boolean"}
            },
            "required": ["name"]
        },
        "CreateRuleRequest": {
            "type": "object",
            "properties": {
                "name": {"type": "string"},
                "fromState": {"type": "string"},
                "toState": {"type": "string"},
                "actionType": {"type": "string"},
                "conditionType": {"type": "string"},
                "timeoutHours": {"type": "integer"},
                "priority": {"type": "integer"}
            },
            "required": ["name", "fromState", "actionType"]
        },
        "ExecuteWorkflowRequest": {
            "type": "object",
            "properties": {
                "admissionFileId": {"type": "string"}
            },
            "required": ["admissionFileId"]
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
