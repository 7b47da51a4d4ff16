package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "SMA Gradebook API",
        "description": "Grade computation, course views, student roster import and consolidated reports for group directors",
        "version": "0.1.0"
    },
    "basePath": "/",
    "schemes": [
        "http"
    ],
    "tags": [
        {
            "name": "Courses",
            "description": "Per grade level course views"
        },
        {
            "name": "Gradebook",
            "description": "Grades, activities and director submissions"
        },
        {
            "name": "Settings",
            "description": "Academic periods and weights"
        },
        {
            "name": "Students",
            "description": "Roster import and export"
        },
        {
            "name": "Consolidated Reports",
            "description": "Cross-subject reports for group directors"
        },
        {
            "name": "Observability",
            "description": "Health and metrics"
        }
    ],
    "paths": {
        "/health": {
            "get": {
                "tags": [
                    "Observability"
                ],
                "summary": "Liveness check",
                "responses": {
                    "200": {
                        "description": "OK"
                    }
                }
            }
        },
        "/ready": {
            "get": {
                "tags": [
                    "Observability"
                ],
                "summary": "Readiness check, pings the record store",
                "responses": {
                    "200": {
                        "description": "Ready"
                    },
                    "503": {
                        "description": "Record store unavailable"
                    }
                }
            }
        },
        "/metrics": {
            "get": {
                "tags": [
                    "Observability"
                ],
                "summary": "Prometheus metrics",
                "produces": [
                    "text/plain"
                ],
                "responses": {
                    "200": {
                        "description": "OK"
                    }
                }
            }
        },
        "/api/v1/metrics/summary": {
            "get": {
                "tags": [
                    "Observability"
                ],
                "summary": "Aggregated service counters",
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/api/v1/teachers/{teacherId}/courses": {
            "get": {
                "tags": [
                    "Courses"
                ],
                "summary": "List a teacher's courses, one view per grade level, grouped by subject",
                "parameters": [
                    {
                        "name": "teacherId",
                        "in": "path",
                        "required": true,
                        "type": "string"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "400": {
                        "description": "Validation error",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "503": {
                        "description": "Record store unavailable",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/api/v1/courses/{id}": {
            "get": {
                "tags": [
                    "Courses"
                ],
                "summary": "Get a course view",
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string",
                        "description": "Exploded course ID ({courseId}_{gradeLevelId})"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "404": {
                        "description": "Not found",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "503": {
                        "description": "Record store unavailable",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/api/v1/courses/{id}/gradebook": {
            "get": {
                "tags": [
                    "Gradebook"
                ],
                "summary": "Gradebook of a course view for a period or the final summary",
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string",
                        "description": "Exploded course ID ({courseId}_{gradeLevelId})"
                    },
                    {
                        "name": "period",
                        "in": "query",
                        "type": "string",
                        "default": "1",
                        "description": "Period number or summary"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "400": {
                        "description": "Validation error",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "404": {
                        "description": "Not found",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "503": {
                        "description": "Record store unavailable",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/api/v1/courses/{id}/grades": {
            "put": {
                "tags": [
                    "Gradebook"
                ],
                "summary": "Save one period's grades, all or nothing",
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string",
                        "description": "Exploded course ID ({courseId}_{gradeLevelId})"
                    },
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/SavePeriodGradesRequest"
                        }
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "400": {
                        "description": "Validation error",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "404": {
                        "description": "Not found",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "409": {
                        "description": "Conflict",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "503": {
                        "description": "Record store unavailable",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/api/v1/courses/{id}/activities": {
            "post": {
                "tags": [
                    "Gradebook"
                ],
                "summary": "Add a task or workshop",
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string",
                        "description": "Exploded course ID ({courseId}_{gradeLevelId})"
                    },
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/AddActivityRequest"
                        }
                    }
                ],
                "responses": {
                    "201": {
                        "description": "Created",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "400": {
                        "description": "Validation error",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "404": {
                        "description": "Not found",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "503": {
                        "description": "Record store unavailable",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/api/v1/courses/{id}/activities/{activityId}": {
            "delete": {
                "tags": [
                    "Gradebook"
                ],
                "summary": "Delete an activity and its grade slots",
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string",
                        "description": "Exploded course ID ({courseId}_{gradeLevelId})"
                    },
                    {
                        "name": "activityId",
                        "in": "path",
                        "required": true,
                        "type": "string"
                    },
                    {
                        "name": "period",
                        "in": "query",
                        "required": true,
                        "type": "integer"
                    },
                    {
                        "name": "kind",
                        "in": "query",
                        "required": true,
                        "type": "string",
                        "enum": [
                            "task",
                            "workshop"
                        ]
                    }
                ],
                "responses": {
                    "204": {
                        "description": "Deleted"
                    },
                    "400": {
                        "description": "Validation error",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "404": {
                        "description": "Not found",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "503": {
                        "description": "Record store unavailable",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/api/v1/courses/{id}/students/{studentId}/summary": {
            "get": {
                "tags": [
                    "Gradebook"
                ],
                "summary": "Every period and the final grade of one student",
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string",
                        "description": "Exploded course ID ({courseId}_{gradeLevelId})"
                    },
                    {
                        "name": "studentId",
                        "in": "path",
                        "required": true,
                        "type": "string"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "404": {
                        "description": "Not found",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "503": {
                        "description": "Record store unavailable",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/api/v1/courses/{id}/director-reports": {
            "post": {
                "tags": [
                    "Gradebook"
                ],
                "summary": "Send a period to the group director",
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string",
                        "description": "Exploded course ID ({courseId}_{gradeLevelId})"
                    },
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/DirectorReportRequest"
                        }
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "400": {
                        "description": "Validation error",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "404": {
                        "description": "Not found",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "503": {
                        "description": "Record store unavailable",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/api/v1/settings/academic": {
            "get": {
                "tags": [
                    "Settings"
                ],
                "summary": "Get academic settings",
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "503": {
                        "description": "Record store unavailable",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            },
            "put": {
                "tags": [
                    "Settings"
                ],
                "summary": "Replace academic settings",
                "parameters": [
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/AcademicSettings"
                        }
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "400": {
                        "description": "Validation error",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "503": {
                        "description": "Record store unavailable",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/api/v1/students/import": {
            "post": {
                "tags": [
                    "Students"
                ],
                "summary": "Import students from a ';' separated file",
                "consumes": [
                    "multipart/form-data",
                    "text/csv"
                ],
                "parameters": [
                    {
                        "name": "file",
                        "in": "formData",
                        "type": "file"
                    },
                    {
                        "name": "gradeLevelId",
                        "in": "query",
                        "type": "string"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "400": {
                        "description": "Validation error",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "413": {
                        "description": "Payload too large",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "422": {
                        "description": "File could not be decoded",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "503": {
                        "description": "Record store unavailable",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/api/v1/students/export": {
            "get": {
                "tags": [
                    "Students"
                ],
                "summary": "Export students in the import layout",
                "produces": [
                    "text/csv"
                ],
                "parameters": [
                    {
                        "name": "gradeLevelId",
                        "in": "query",
                        "type": "string"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "CSV file",
                        "schema": {
                            "type": "file"
                        }
                    },
                    "404": {
                        "description": "Not found",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "503": {
                        "description": "Record store unavailable",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/api/v1/consolidated-reports": {
            "get": {
                "tags": [
                    "Consolidated Reports"
                ],
                "summary": "List a grade level's reports for a period",
                "parameters": [
                    {
                        "name": "gradeLevelId",
                        "in": "query",
                        "required": true,
                        "type": "string"
                    },
                    {
                        "name": "period",
                        "in": "query",
                        "required": true,
                        "type": "integer"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "400": {
                        "description": "Validation error",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "503": {
                        "description": "Record store unavailable",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            },
            "post": {
                "tags": [
                    "Consolidated Reports"
                ],
                "summary": "Merge teacher submissions of one period",
                "parameters": [
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/SubmitReportsRequest"
                        }
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "400": {
                        "description": "Validation error",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "409": {
                        "description": "Conflict",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "503": {
                        "description": "Record store unavailable",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/api/v1/consolidated-reports/{studentId}/{period}": {
            "get": {
                "tags": [
                    "Consolidated Reports"
                ],
                "summary": "Get one student's consolidated report",
                "parameters": [
                    {
                        "name": "studentId",
                        "in": "path",
                        "required": true,
                        "type": "string"
                    },
                    {
                        "name": "period",
                        "in": "path",
                        "required": true,
                        "type": "integer"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "400": {
                        "description": "Validation error",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "404": {
                        "description": "Not found",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "503": {
                        "description": "Record store unavailable",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/api/v1/consolidated-reports/{studentId}/{period}/observation": {
            "put": {
                "tags": [
                    "Consolidated Reports"
                ],
                "summary": "Set the director's general observation",
                "parameters": [
                    {
                        "name": "studentId",
                        "in": "path",
                        "required": true,
                        "type": "string"
                    },
                    {
                        "name": "period",
                        "in": "path",
                        "required": true,
                        "type": "integer"
                    },
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/ObservationRequest"
                        }
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "400": {
                        "description": "Validation error",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "404": {
                        "description": "Not found",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "503": {
                        "description": "Record store unavailable",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        }
    },
    "definitions": {
        "PeriodGradeData": {
            "type": "object",
            "properties": {
                "tasks": {
                    "type": "object",
                    "additionalProperties": {
                        "type": "number",
                        "minimum": 0,
                        "maximum": 10,
                        "x-nullable": true
                    },
                    "description": "Grade per activity ID; null means not graded"
                },
                "workshops": {
                    "type": "object",
                    "additionalProperties": {
                        "type": "number",
                        "minimum": 0,
                        "maximum": 10,
                        "x-nullable": true
                    },
                    "description": "Grade per activity ID; null means not graded"
                },
                "attitude": {
                    "type": "number",
                    "minimum": 0,
                    "maximum": 10,
                    "x-nullable": true
                },
                "exam": {
                    "type": "number",
                    "minimum": 0,
                    "maximum": 10,
                    "x-nullable": true
                },
                "coexistence_issues": {
                    "type": "boolean"
                },
                "late_arrivals": {
                    "type": "boolean"
                },
                "personal_presentation": {
                    "type": "boolean"
                },
                "observations": {
                    "type": "string"
                }
            }
        },
        "SavePeriodGradesRequest": {
            "type": "object",
            "required": [
                "period",
                "entries"
            ],
            "properties": {
                "period": {
                    "type": "integer",
                    "minimum": 1
                },
                "entries": {
                    "type": "array",
                    "items": {
                        "type": "object",
                        "required": [
                            "student_id"
                        ],
                        "properties": {
                            "student_id": {
                                "type": "string"
                            },
                            "data": {
                                "$ref": "#/definitions/PeriodGradeData"
                            }
                        }
                    }
                }
            }
        },
        "AddActivityRequest": {
            "type": "object",
            "required": [
                "period",
                "kind",
                "name"
            ],
            "properties": {
                "period": {
                    "type": "integer",
                    "minimum": 1
                },
                "kind": {
                    "type": "string",
                    "enum": [
                        "task",
                        "workshop"
                    ]
                },
                "name": {
                    "type": "string"
                },
                "date": {
                    "type": "string",
                    "format": "date-time"
                }
            }
        },
        "DirectorReportRequest": {
            "type": "object",
            "required": [
                "period"
            ],
            "properties": {
                "period": {
                    "type": "integer",
                    "minimum": 1
                }
            }
        },
        "AcademicSettings": {
            "type": "object",
            "required": [
                "period_count",
                "period_weights"
            ],
            "properties": {
                "period_count": {
                    "type": "integer",
                    "minimum": 1
                },
                "period_weights": {
                    "type": "object",
                    "additionalProperties": {
                        "type": "number"
                    },
                    "description": "Weight per period number, summing to 100"
                }
            }
        },
        "DirectorReportSubmission": {
            "type": "object",
            "properties": {
                "subject_name": {
                    "type": "string"
                },
                "teacher_id": {
                    "type": "string"
                },
                "definitive": {
                    "type": "number",
                    "minimum": 0,
                    "maximum": 10,
                    "x-nullable": true
                },
                "performance": {
                    "type": "string",
                    "enum": [
                        "SUPERIOR",
                        "ALTO",
                        "BASICO",
                        "BAJO"
                    ]
                },
                "pending_activities": {
                    "type": "array",
                    "items": {
                        "type": "string"
                    }
                },
                "coexistence_issues": {
                    "type": "boolean"
                },
                "late_arrivals": {
                    "type": "boolean"
                },
                "personal_presentation": {
                    "type": "boolean"
                },
                "observations": {
                    "type": "string"
                },
                "submitted_at": {
                    "type": "string",
                    "format": "date-time"
                }
            }
        },
        "TeacherReportSubmission": {
            "type": "object",
            "required": [
                "student_id",
                "grade_level_id",
                "period",
                "subject_id"
            ],
            "properties": {
                "student_id": {
                    "type": "string"
                },
                "grade_level_id": {
                    "type": "string"
                },
                "period": {
                    "type": "integer",
                    "minimum": 1
                },
                "subject_id": {
                    "type": "string"
                },
                "report": {
                    "$ref": "#/definitions/DirectorReportSubmission"
                }
            }
        },
        "SubmitReportsRequest": {
            "type": "object",
            "required": [
                "submissions"
            ],
            "properties": {
                "submissions": {
                    "type": "array",
                    "items": {
                        "$ref": "#/definitions/TeacherReportSubmission"
                    }
                }
            }
        },
        "ObservationRequest": {
            "type": "object",
            "required": [
                "observation"
            ],
            "properties": {
                "observation": {
                    "type": "string"
                }
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {
                    "type": "string"
                },
                "message": {
                    "type": "string"
                },
                "status": {
                    "type": "integer"
                }
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {
                    "type": "object"
                },
                "error": {
                    "$ref": "#/definitions/APIError"
                },
                "meta": {
                    "type": "object"
                }
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
