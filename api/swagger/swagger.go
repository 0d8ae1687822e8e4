package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Guitar Strategies API",
        "description": "Lesson scheduling and booking engine",
        "version": "0.1.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "tags": [
        {"name": "Roster", "description": "Teacher and student registry"},
        {"name": "Availability", "description": "Weekly schedules and blocked time"},
        {"name": "Settings", "description": "Per-teacher booking rules"},
        {"name": "Slots", "description": "Bookable slot discovery"},
        {"name": "Lessons", "description": "Booking and lesson lifecycle"},
        {"name": "Recurring", "description": "Indefinite weekly subscriptions"},
        {"name": "Schedule", "description": "Teacher calendars"},
        {"name": "Invoices", "description": "Monthly statements"}
    ],
    "paths": {
        "/teachers": {
            "post": {
                "tags": ["Roster"],
                "summary": "Register teacher",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateTeacherRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/teachers/{id}": {
            "get": {
                "tags": ["Roster"],
                "summary": "Get teacher",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/students": {
            "post": {
                "tags": ["Roster"],
                "summary": "Register student",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateStudentRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/teachers/{id}/students": {
            "get": {
                "tags": ["Roster"],
                "summary": "List teacher's students",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/teachers/{id}/students/{studentId}": {
            "put": {
                "tags": ["Roster"],
                "summary": "Link student to teacher",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "studentId", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "204": {"description": "No Content"}
                }
            }
        },
        "/teachers/{id}/availability": {
            "get": {
                "tags": ["Availability"],
                "summary": "Get weekly availability",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "put": {
                "tags": ["Availability"],
                "summary": "Replace weekly availability",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/SetScheduleRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Windows overlap", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/teachers/{id}/blocks": {
            "get": {
                "tags": ["Availability"],
                "summary": "List blocked intervals",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "from", "in": "query", "type": "string"},
                    {"name": "to", "in": "query", "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Availability"],
                "summary": "Block an interval",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/BlockTimeRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Overlaps scheduled lesson", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/teachers/{id}/blocks/{blockId}": {
            "delete": {
                "tags": ["Availability"],
                "summary": "Remove blocked interval",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "blockId", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "204": {"description": "No Content"}
                }
            }
        },
        "/teachers/{id}/lesson-settings": {
            "get": {
                "tags": ["Settings"],
                "summary": "Get lesson settings",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "put": {
                "tags": ["Settings"],
                "summary": "Create or replace lesson settings",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/UpsertSettingsRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/teachers/{id}/slots": {
            "get": {
                "tags": ["Slots"],
                "summary": "List bookable slots",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "from", "in": "query", "type": "string"},
                    {"name": "to", "in": "query", "type": "string"},
                    {"name": "tz", "in": "query", "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/teachers/{id}/schedule": {
            "get": {
                "tags": ["Schedule"],
                "summary": "Get teacher schedule",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "from", "in": "query", "type": "string"},
                    {"name": "to", "in": "query", "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/lessons": {
            "post": {
                "tags": ["Lessons"],
                "summary": "Book a single lesson",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/BookLessonRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Slot already taken", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/lessons/batch": {
            "post": {
                "tags": ["Lessons"],
                "summary": "Book a fixed run of weekly lessons",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/BookBatchRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "An occurrence conflicts", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/lessons/{id}": {
            "get": {
                "tags": ["Lessons"],
                "summary": "Get lesson",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/lessons/{id}/cancel": {
            "post": {
                "tags": ["Lessons"],
                "summary": "Cancel lesson",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "schema": {"$ref": "#/definitions/CancelLessonRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Concurrent modification", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/lessons/{id}/complete": {
            "post": {
                "tags": ["Lessons"],
                "summary": "Mark lesson completed",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/recurring-slots": {
            "post": {
                "tags": ["Recurring"],
                "summary": "Open weekly subscription",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateRecurringSlotRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Overlaps an existing lesson", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/recurring-slots/{id}/cancel": {
            "post": {
                "tags": ["Recurring"],
                "summary": "Cancel subscription",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/teachers/{id}/recurring-slots": {
            "get": {
                "tags": ["Recurring"],
                "summary": "List teacher subscriptions",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/students/{id}/recurring-slots": {
            "get": {
                "tags": ["Recurring"],
                "summary": "List student subscriptions",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/students/{id}/invoices/{month}": {
            "get": {
                "tags": ["Invoices"],
                "summary": "Get monthly invoice",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "month", "in": "path", "required": true, "type": "string"},
                    {"name": "format", "in": "query", "type": "string", "enum": ["json", "csv", "pdf"]}
                ],
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        }
    },
    "definitions": {
        "CreateTeacherRequest": {
            "type": "object",
            "required": ["email", "full_name", "timezone"],
            "properties": {
                "email": {"type": "string"},
                "full_name": {"type": "string"},
                "timezone": {"type": "string"}
            }
        },
        "CreateStudentRequest": {
            "type": "object",
            "required": ["email", "full_name"],
            "properties": {
                "email": {"type": "string"},
                "full_name": {"type": "string"}
            }
        },
        "SetScheduleRequest": {
            "type": "object",
            "properties": {
                "windows": {
                    "type": "array",
                    "items": {
                        "type": "object",
                        "properties": {
                            "day_of_week": {"type": "integer"},
                            "start_time": {"type": "string"},
                            "end_time": {"type": "string"}
                        }
                    }
                }
            }
        },
        "BlockTimeRequest": {
            "type": "object",
            "required": ["starts_at", "ends_at"],
            "properties": {
                "starts_at": {"type": "string"},
                "ends_at": {"type": "string"},
                "reason": {"type": "string"}
            }
        },
        "UpsertSettingsRequest": {
            "type": "object",
            "properties": {
                "allows_30_min": {"type": "boolean"},
                "allows_60_min": {"type": "boolean"},
                "price_30_cents": {"type": "integer"},
                "price_60_cents": {"type": "integer"},
                "advance_booking_days": {"type": "integer"}
            }
        },
        "BookLessonRequest": {
            "type": "object",
            "required": ["teacher_id", "student_id", "starts_at", "duration_minutes", "timezone"],
            "properties": {
                "teacher_id": {"type": "string"},
                "student_id": {"type": "string"},
                "starts_at": {"type": "string"},
                "duration_minutes": {"type": "integer", "enum": [30, 60]},
                "timezone": {"type": "string"}
            }
        },
        "BookBatchRequest": {
            "type": "object",
            "required": ["teacher_id", "student_id", "starts_at", "duration_minutes", "timezone", "weeks"],
            "properties": {
                "teacher_id": {"type": "string"},
                "student_id": {"type": "string"},
                "starts_at": {"type": "string"},
                "duration_minutes": {"type": "integer", "enum": [30, 60]},
                "timezone": {"type": "string"},
                "weeks": {"type": "integer", "minimum": 2, "maximum": 52}
            }
        },
        "CancelLessonRequest": {
            "type": "object",
            "properties": {
                "reason": {"type": "string"}
            }
        },
        "CreateRecurringSlotRequest": {
            "type": "object",
            "required": ["teacher_id", "student_id", "day_of_week", "start_time", "duration_minutes"],
            "properties": {
                "teacher_id": {"type": "string"},
                "student_id": {"type": "string"},
                "day_of_week": {"type": "integer", "minimum": 0, "maximum": 6},
                "start_time": {"type": "string"},
                "duration_minutes": {"type": "integer", "enum": [30, 60]}
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
