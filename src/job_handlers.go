package main

import (
	"context"
	"crewcomms/src/boot"
	"crewcomms/src/jobmatch"
	"crewcomms/src/models"
	"crewcomms/src/types"
	"net/http"

	"github.com/gin-gonic/gin"
)

func jobHandlers(g *gin.RouterGroup, c *boot.Container) *gin.RouterGroup {
	g.
		POST("/crews/:crewId/jobs", func(ctx *gin.Context) {
			var params types.CrewRequestParams
			if err := ctx.ShouldBindUri(&params); err != nil {
				bindFailed(ctx, c, "ShareJob", err)
				return
			}
			var body types.ShareJobRequestBody
			if err := ctx.ShouldBindJSON(&body); err != nil {
				bindFailed(ctx, c, "ShareJob", err)
				return
			}
			j, err := c.Jobs.ShareJob(ctx.Request.Context(), params.CrewID, ctx.GetString("uid"), jobmatch.ShareInput{
				Job: models.JobSummary{
					JobID:            body.JobID,
					Title:            body.Title,
					Company:          body.Company,
					Classification:   body.Classification,
					ConstructionType: body.ConstructionType,
					HourlyRate:       body.HourlyRate,
					DistanceMiles:    body.DistanceMiles,
					Skills:           body.Skills,
					Location:         body.Location,
				},
				Message:    body.Message,
				IsPriority: body.IsPriority,
				ExpiresAt:  body.ExpiresAt,
			})
			if err != nil {
				abortWithError(ctx, c, "ShareJob", err)
				return
			}
			ctx.JSON(http.StatusCreated, gin.H{"data": j})
		}).
		GET("/crews/:crewId/jobs", func(ctx *gin.Context) {
			var params types.CrewRequestParams
			if err := ctx.ShouldBindUri(&params); err != nil {
				bindFailed(ctx, c, "ListJobs", err)
				return
			}
			list, err := c.Jobs.List(ctx.Request.Context(), params.CrewID, ctx.GetString("uid"))
			if err != nil {
				abortWithError(ctx, c, "ListJobs", err)
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"data": list, "count": len(list)})
		}).
		GET("/crews/:crewId/jobs/:id", func(ctx *gin.Context) {
			var params types.CrewItemRequestParams
			if err := ctx.ShouldBindUri(&params); err != nil {
				bindFailed(ctx, c, "GetJob", err)
				return
			}
			j, err := c.Jobs.Get(ctx.Request.Context(), params.CrewID, params.ID, ctx.GetString("uid"))
			if err != nil {
				abortWithError(ctx, c, "GetJob", err)
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"data": j})
		}).
		POST("/crews/:crewId/jobs/:id/response", func(ctx *gin.Context) {
			var params types.CrewItemRequestParams
			if err := ctx.ShouldBindUri(&params); err != nil {
				bindFailed(ctx, c, "RecordResponse", err)
				return
			}
			var body types.JobResponseRequestBody
			if err := ctx.ShouldBindJSON(&body); err != nil {
				bindFailed(ctx, c, "RecordResponse", err)
				return
			}
			j, err := c.Jobs.RecordResponse(ctx.Request.Context(), params.CrewID, params.ID, ctx.GetString("uid"), body.Response)
			if err != nil {
				abortWithError(ctx, c, "RecordResponse", err)
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"data": j})
		}).
		POST("/crews/:crewId/jobs/:id/viewed", func(ctx *gin.Context) {
			jobStamp(ctx, c, "MarkViewed", c.Jobs.MarkViewed)
		}).
		POST("/crews/:crewId/jobs/:id/applied", func(ctx *gin.Context) {
			jobStamp(ctx, c, "MarkApplied", c.Jobs.MarkApplied)
		}).
		POST("/crews/:crewId/jobs/:id/read", func(ctx *gin.Context) {
			jobStamp(ctx, c, "MarkJobRead", c.Jobs.MarkRead)
		})
	return g
}

type jobStampFunc func(ctx context.Context, crewID, id, userID string) (*models.JobNotification, error)

func jobStamp(ctx *gin.Context, c *boot.Container, op string, fn jobStampFunc) {
	var params types.CrewItemRequestParams
	if err := ctx.ShouldBindUri(&params); err != nil {
		bindFailed(ctx, c, op, err)
		return
	}
	j, err := fn(ctx.Request.Context(), params.CrewID, params.ID, ctx.GetString("uid"))
	if err != nil {
		abortWithError(ctx, c, op, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"data": j})
}
