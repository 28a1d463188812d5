// Package docs registers the OpenAPI document served under /swagger/.
//
// Regenerate with: swag init -g cmd/voicestudio/main.go
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
        "/v1/backends": {
            "get": {
                "produces": ["application/json"],
                "tags": ["backends"],
                "summary": "Backend availability",
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "type": "array",
                            "items": {"$ref": "#/definitions/selector.Status"}
                        }
                    }
                }
            }
        },
        "/v1/generate": {
            "post": {
                "description": "Synthesizes every dialogue line of a project, or a single text, and returns the lines\nin segment and dialogue order. Blank lines are returned as skipped with no audio.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["generate"],
                "summary": "Generate a project",
                "parameters": [
                    {
                        "description": "Project (import format) or text, plus optional settings overrides",
                        "name": "request",
                        "in": "body",
                        "required": true,
                        "schema": {"$ref": "#/definitions/message.GenerateRequest"}
                    }
                ],
                "responses": {
                    "200": {
                        "description": "Ordered line results with base64 audio",
                        "schema": {"$ref": "#/definitions/message.GenerateResponse"}
                    },
                    "400": {
                        "description": "Invalid request or empty project",
                        "schema": {"$ref": "#/definitions/message.Error"}
                    },
                    "502": {
                        "description": "Remote synthesis service error",
                        "schema": {"$ref": "#/definitions/message.Error"}
                    },
                    "503": {
                        "description": "No synthesis backend available",
                        "schema": {"$ref": "#/definitions/message.Error"}
                    }
                }
            }
        },
        "/v1/generate/ws": {
            "get": {
                "description": "Each client message is a generate request ({\"type\":\"generate\", ...}), \"cancel\" or \"ping\".\nLines are sent as {\"type\":\"line\"} events in source order, followed by \"done\", \"error\"\nor \"superseded\" when a newer request on the same connection replaces the run.",
                "tags": ["generate"],
                "summary": "Stream a generation",
                "responses": {}
            }
        },
        "/v1/speak": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["audio/wav"],
                "tags": ["generate"],
                "summary": "Speak a single text",
                "parameters": [
                    {
                        "description": "Text, optional voice and settings overrides",
                        "name": "request",
                        "in": "body",
                        "required": true,
                        "schema": {"$ref": "#/definitions/message.SpeakRequest"}
                    }
                ],
                "responses": {
                    "200": {"description": "Synthesized audio", "schema": {"type": "file"}},
                    "400": {
                        "description": "Empty text or invalid settings",
                        "schema": {"$ref": "#/definitions/message.Error"}
                    },
                    "502": {
                        "description": "Remote synthesis service error",
                        "schema": {"$ref": "#/definitions/message.Error"}
                    },
                    "503": {
                        "description": "No synthesis backend available",
                        "schema": {"$ref": "#/definitions/message.Error"}
                    }
                }
            }
        }
    },
    "definitions": {
        "message.Error": {
            "type": "object",
            "properties": {
                "error": {"type": "string"}
            }
        },
        "message.GenerateRequest": {
            "type": "object",
            "properties": {
                "project": {"type": "object"},
                "settings": {"type": "object"},
                "text": {"type": "string"},
                "voice": {"type": "string"}
            }
        },
        "message.GenerateResponse": {
            "type": "object",
            "properties": {
                "lines": {
                    "type": "array",
                    "items": {"$ref": "#/definitions/message.Line"}
                },
                "run_id": {"type": "string"}
            }
        },
        "message.Line": {
            "type": "object",
            "properties": {
                "audio": {"type": "string"},
                "backend": {"type": "string"},
                "content_type": {"type": "string"},
                "emotion": {"type": "string"},
                "index": {"type": "integer"},
                "run_id": {"type": "string"},
                "segment": {"type": "integer"},
                "sequence": {"type": "integer"},
                "skipped": {"type": "boolean"},
                "speaker": {"type": "string"},
                "text": {"type": "string"},
                "voice": {"type": "string"}
            }
        },
        "message.SpeakRequest": {
            "type": "object",
            "properties": {
                "settings": {"type": "object"},
                "text": {"type": "string"},
                "voice": {"type": "string"}
            }
        },
        "selector.Status": {
            "type": "object",
            "properties": {
                "name": {"type": "string"},
                "reason": {"type": "string"},
                "state": {"type": "string"}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it.
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "voicestudio API",
	Description:      "Multi-character text-to-speech generation with backend fallback.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
