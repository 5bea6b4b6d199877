// Package docs holds the OpenAPI description served at /swagger.
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
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    },
    "paths": {
        "/login": {
            "post": {
                "tags": ["Auth"],
                "summary": "admin login",
                "parameters": [{"in": "body", "name": "login", "required": true, "schema": {"$ref": "#/definitions/loginPayload"}}],
                "responses": {"200": {"description": "token"}, "401": {"description": "wrong password"}}
            }
        },
        "/catalog/products": {
            "get": {
                "tags": ["Catalog"],
                "summary": "list products, newest first",
                "parameters": [
                    {"in": "query", "name": "category", "type": "string"},
                    {"in": "query", "name": "subcategory", "type": "string"},
                    {"in": "query", "name": "q", "type": "string"},
                    {"in": "query", "name": "page", "type": "integer"},
                    {"in": "query", "name": "perPage", "type": "integer"}
                ],
                "responses": {"200": {"description": "products"}}
            }
        },
        "/catalog/products/{id}": {
            "get": {
                "tags": ["Catalog"],
                "summary": "get product detail",
                "parameters": [{"in": "path", "name": "id", "required": true, "type": "string"}],
                "responses": {"200": {"description": "product with gallery"}, "404": {"description": "unknown id"}}
            }
        },
        "/catalog/categories": {
            "get": {"tags": ["Catalog"], "summary": "list categories", "responses": {"200": {"description": "categories"}}}
        },
        "/catalog/categories/{slug}": {
            "get": {
                "tags": ["Catalog"],
                "summary": "get category detail",
                "parameters": [{"in": "path", "name": "slug", "required": true, "type": "string"}],
                "responses": {"200": {"description": "category"}, "404": {"description": "unknown category"}}
            }
        },
        "/catalog/status": {
            "get": {"tags": ["Catalog"], "summary": "snapshot status", "responses": {"200": {"description": "status"}}}
        },
        "/admin/products": {
            "get": {
                "tags": ["Products"],
                "security": [{"BearerAuth": []}],
                "summary": "get the product list",
                "parameters": [
                    {"in": "query", "name": "page", "type": "integer"},
                    {"in": "query", "name": "perPage", "type": "integer"},
                    {"in": "query", "name": "sort", "type": "string", "enum": ["id", "name", "price", "created_at"]},
                    {"in": "query", "name": "order", "type": "string", "enum": ["ASC", "DESC"]},
                    {"in": "query", "name": "q", "type": "string"},
                    {"in": "query", "name": "category", "type": "string"},
                    {"in": "query", "name": "force", "type": "boolean"}
                ],
                "responses": {"200": {"description": "paged products"}, "502": {"description": "store unreachable"}}
            },
            "post": {
                "tags": ["Products"],
                "security": [{"BearerAuth": []}],
                "summary": "create a product",
                "parameters": [{"in": "body", "name": "product", "required": true, "schema": {"$ref": "#/definitions/product"}}],
                "responses": {"201": {"description": "created"}, "400": {"description": "invalid product"}}
            },
            "put": {
                "tags": ["Products"],
                "security": [{"BearerAuth": []}],
                "summary": "replace the product list",
                "responses": {"200": {"description": "write result"}, "409": {"description": "stale version"}}
            }
        },
        "/admin/products/export": {
            "get": {
                "tags": ["Products"],
                "security": [{"BearerAuth": []}],
                "summary": "export the product list",
                "parameters": [{"in": "query", "name": "format", "type": "string", "enum": ["json", "csv", "xlsx"]}],
                "responses": {"200": {"description": "file"}}
            }
        },
        "/admin/products/{id}": {
            "get": {
                "tags": ["Products"],
                "security": [{"BearerAuth": []}],
                "summary": "get product detail",
                "parameters": [{"in": "path", "name": "id", "required": true, "type": "string"}],
                "responses": {"200": {"description": "product"}, "404": {"description": "unknown id"}}
            },
            "put": {
                "tags": ["Products"],
                "security": [{"BearerAuth": []}],
                "summary": "update a product",
                "parameters": [
                    {"in": "path", "name": "id", "required": true, "type": "string"},
                    {"in": "body", "name": "product", "required": true, "schema": {"$ref": "#/definitions/product"}}
                ],
                "responses": {"200": {"description": "product"}, "404": {"description": "unknown id"}}
            },
            "delete": {
                "tags": ["Products"],
                "security": [{"BearerAuth": []}],
                "summary": "delete a product",
                "parameters": [{"in": "path", "name": "id", "required": true, "type": "string"}],
                "responses": {"204": {"description": "deleted"}, "404": {"description": "unknown id"}}
            }
        },
        "/admin/settings": {
            "get": {"tags": ["Settings"], "security": [{"BearerAuth": []}], "summary": "get drive settings", "responses": {"200": {"description": "settings"}}},
            "put": {"tags": ["Settings"], "security": [{"BearerAuth": []}], "summary": "save drive settings", "responses": {"200": {"description": "settings"}}},
            "patch": {"tags": ["Settings"], "security": [{"BearerAuth": []}], "summary": "patch drive settings", "responses": {"200": {"description": "settings"}}},
            "delete": {"tags": ["Settings"], "security": [{"BearerAuth": []}], "summary": "reset drive settings", "responses": {"200": {"description": "settings"}}}
        },
        "/admin/images": {
            "post": {
                "tags": ["Images"],
                "security": [{"BearerAuth": []}],
                "summary": "upload an image",
                "consumes": ["multipart/form-data"],
                "parameters": [{"in": "formData", "name": "file", "required": true, "type": "file"}],
                "responses": {"200": {"description": "stored image"}}
            }
        },
        "/admin/images/batch": {
            "post": {
                "tags": ["Images"],
                "security": [{"BearerAuth": []}],
                "summary": "upload images",
                "consumes": ["multipart/form-data"],
                "parameters": [{"in": "formData", "name": "files", "required": true, "type": "file"}],
                "responses": {"200": {"description": "stored links"}}
            }
        },
        "/admin/sync/status": {
            "get": {"tags": ["Sync"], "security": [{"BearerAuth": []}], "summary": "get sync status", "responses": {"200": {"description": "status"}}}
        },
        "/admin/sync/refresh": {
            "post": {"tags": ["Sync"], "security": [{"BearerAuth": []}], "summary": "refresh the storefront snapshot", "responses": {"200": {"description": "status"}}}
        },
        "/admin/sync/logs": {
            "get": {"tags": ["Sync"], "security": [{"BearerAuth": []}], "summary": "get the sync log", "responses": {"200": {"description": "paged log"}}}
        },
        "/admin/sync/backup": {
            "post": {"tags": ["Sync"], "security": [{"BearerAuth": []}], "summary": "back up the products document", "responses": {"200": {"description": "backup path"}}}
        }
    },
    "definitions": {
        "loginPayload": {
            "type": "object",
            "required": ["password"],
            "properties": {"password": {"type": "string"}}
        },
        "product": {
            "type": "object",
            "required": ["name", "price", "image", "category"],
            "properties": {
                "id": {"type": "string"},
                "name": {"type": "string"},
                "price": {"type": "string"},
                "image": {"type": "string"},
                "images": {"type": "array", "items": {"type": "string"}},
                "description": {"type": "string"},
                "category": {"type": "string"},
                "createdAt": {"type": "string"}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/api/v1",
	Schemes:          []string{},
	Title:            "Vitas Pro storefront API",
	Description:      "Product catalog backed by a single JSON document.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
