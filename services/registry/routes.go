// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package registry

import (
	"github.com/gin-gonic/gin"
)

// RegisterRoutes registers all registry routes with the router.
//
// Description:
//
//	Registers all /v1/registry/* endpoints with the given Gin router
//	group. The router group should already have any required
//	middleware applied.
//
// Inputs:
//
//	rg - Gin router group (typically /v1)
//	handlers - The handlers instance
//
// Dataset Endpoints:
//
//	POST   /v1/registry/datasets - Create a dataset
//	GET    /v1/registry/datasets - List datasets
//	GET    /v1/registry/datasets/:id - Dataset statistics
//	DELETE /v1/registry/datasets/:id - Drop a dataset
//	POST   /v1/registry/datasets/:id/clone - Deep-copy a dataset
//
// Record Endpoints:
//
//	POST   /v1/registry/datasets/:id/records - Append a record
//	POST   /v1/registry/datasets/:id/records/bulk - Bulk-load records
//	GET    /v1/registry/datasets/:id/records/:cpf - Two-stage lookup
//	DELETE /v1/registry/datasets/:id/records/:cpf - Mark record deleted
//	DELETE /v1/registry/datasets/:id/index/:cpf - Remove key from index
//
// View Endpoints:
//
//	GET /v1/registry/datasets/:id/traversals/:order - Tree traversal
//	GET /v1/registry/datasets/:id/snapshot - Sorted live snapshot
//
// Health Endpoints:
//
//	GET /v1/registry/health - Health check
//	GET /v1/registry/ready - Readiness check
//
// Example:
//
//	service := registry.NewService(registry.DefaultServiceConfig())
//	handlers := registry.NewHandlers(service)
//
//	v1 := router.Group("/v1")
//	registry.RegisterRoutes(v1, handlers)
func RegisterRoutes(rg *gin.RouterGroup, handlers *Handlers) {
	reg := rg.Group("/registry")
	{
		// Dataset lifecycle
		reg.POST("/datasets", handlers.HandleCreateDataset)
		reg.GET("/datasets", handlers.HandleListDatasets)
		reg.GET("/datasets/:id", handlers.HandleGetDataset)
		reg.DELETE("/datasets/:id", handlers.HandleDeleteDataset)
		reg.POST("/datasets/:id/clone", handlers.HandleCloneDataset)

		// Records
		reg.POST("/datasets/:id/records", handlers.HandleAppendRecord)
		reg.POST("/datasets/:id/records/bulk", handlers.HandleBulkLoad)
		reg.GET("/datasets/:id/records/:cpf", handlers.HandleLookup)
		reg.DELETE("/datasets/:id/records/:cpf", handlers.HandleMarkDeleted)
		reg.DELETE("/datasets/:id/index/:cpf", handlers.HandleRemoveFromIndex)

		// Views
		reg.GET("/datasets/:id/traversals/:order", handlers.HandleTraversal)
		reg.GET("/datasets/:id/snapshot", handlers.HandleSnapshot)

		// Health checks
		reg.GET("/health", handlers.HandleHealth)
		reg.GET("/ready", handlers.HandleReady)
	}
}
