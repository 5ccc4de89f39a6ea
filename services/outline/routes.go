// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package outline

import (
	"github.com/gin-gonic/gin"
)

// RegisterRoutes registers all outline routes with the router.
//
// Description:
//
//	Registers all /v1/outline/* endpoints with the given Gin router group.
//	The router group should already have any required middleware applied.
//
// Inputs:
//
//	rg - Gin router group (typically /v1)
//	handlers - The handlers instance
//
// Endpoints:
//
//	POST   /v1/outline/sessions - Create a session
//	DELETE /v1/outline/sessions/:id - Close a session
//	POST   /v1/outline/sessions/:id/open - Open a document
//	POST   /v1/outline/sessions/:id/edit - Report a text change
//	POST   /v1/outline/sessions/:id/filter - Update the filter text
//	POST   /v1/outline/sessions/:id/sort - Toggle sibling sorting
//	POST   /v1/outline/sessions/:id/cursor - Report a caret move
//	POST   /v1/outline/sessions/:id/expand - Expand/collapse by key
//	POST   /v1/outline/sessions/:id/activate - Resolve a navigation target
//	GET    /v1/outline/sessions/:id/tree - Current snapshot
//	GET    /v1/outline/sessions/:id/status - Status and scheduler state
//	GET    /v1/outline/sessions/:id/watch - Snapshot stream (websocket)
//	GET    /v1/outline/health - Health check
//
// Example:
//
//	service := outline.NewService(outline.DefaultServiceConfig())
//	handlers := outline.NewHandlers(service)
//
//	v1 := router.Group("/v1")
//	outline.RegisterRoutes(v1, handlers)
func RegisterRoutes(rg *gin.RouterGroup, handlers *Handlers) {
	ol := rg.Group("/outline")
	{
		// Session lifecycle
		ol.POST("/sessions", handlers.HandleCreateSession)
		ol.DELETE("/sessions/:id", handlers.HandleCloseSession)

		// Document pipeline
		ol.POST("/sessions/:id/open", handlers.HandleOpen)
		ol.POST("/sessions/:id/edit", handlers.HandleEdit)

		// Tree view controls
		ol.POST("/sessions/:id/filter", handlers.HandleFilter)
		ol.POST("/sessions/:id/sort", handlers.HandleSort)
		ol.POST("/sessions/:id/cursor", handlers.HandleCursor)
		ol.POST("/sessions/:id/expand", handlers.HandleExpand)
		ol.POST("/sessions/:id/activate", handlers.HandleActivate)

		// State queries
		ol.GET("/sessions/:id/tree", handlers.HandleTree)
		ol.GET("/sessions/:id/status", handlers.HandleStatus)
		ol.GET("/sessions/:id/watch", handlers.HandleWatch)

		// Health checks
		ol.GET("/health", handlers.HandleHealth)
	}
}
