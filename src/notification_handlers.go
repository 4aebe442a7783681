package main

import (
	"crewcomms/src/boot"
	"crewcomms/src/notification"
	"crewcomms/src/types"
	"net/http"

	"github.com/gin-gonic/gin"
)

func notificationHandlers(g *gin.RouterGroup, c *boot.Container) *gin.RouterGroup {
	g.
		GET("/crews/:crewId/notifications", func(ctx *gin.Context) {
			var params types.CrewRequestParams
			if err := ctx.ShouldBindUri(&params); err != nil {
				bindFailed(ctx, c, "ListNotifications", err)
				return
			}
			list, err := c.Notifications.List(ctx.Request.Context(), params.CrewID, ctx.GetString("uid"))
			if err != nil {
				abortWithError(ctx, c, "ListNotifications", err)
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"data": list, "count": len(list)})
		}).
		GET("/crews/:crewId/notifications/unread", func(ctx *gin.Context) {
			var params types.CrewRequestParams
			if err := ctx.ShouldBindUri(&params); err != nil {
				bindFailed(ctx, c, "UnreadCount", err)
				return
			}
			n, err := c.Notifications.UnreadCount(ctx.Request.Context(), params.CrewID, ctx.GetString("uid"))
			if err != nil {
				abortWithError(ctx, c, "UnreadCount", err)
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"count": n})
		}).
		POST("/crews/:crewId/notifications", func(ctx *gin.Context) {
			var params types.CrewRequestParams
			if err := ctx.ShouldBindUri(&params); err != nil {
				bindFailed(ctx, c, "PublishAnnouncement", err)
				return
			}
			var body types.PublishNotificationRequestBody
			if err := ctx.ShouldBindJSON(&body); err != nil {
				bindFailed(ctx, c, "PublishAnnouncement", err)
				return
			}
			n, err := c.Notifications.PublishAnnouncement(ctx.Request.Context(), params.CrewID, ctx.GetString("uid"), notification.AnnouncementInput{
				Title:       body.Title,
				Message:     body.Message,
				IsImportant: body.IsImportant,
				ActionURL:   body.ActionURL,
			})
			if err != nil {
				abortWithError(ctx, c, "PublishAnnouncement", err)
				return
			}
			ctx.JSON(http.StatusCreated, gin.H{"data": n})
		}).
		POST("/crews/:crewId/notifications/read-all", func(ctx *gin.Context) {
			var params types.CrewRequestParams
			if err := ctx.ShouldBindUri(&params); err != nil {
				bindFailed(ctx, c, "MarkAllRead", err)
				return
			}
			n, err := c.Notifications.MarkAllRead(ctx.Request.Context(), params.CrewID, ctx.GetString("uid"))
			if err != nil {
				abortWithError(ctx, c, "MarkAllRead", err)
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"count": n})
		}).
		POST("/crews/:crewId/notifications/:id/read", func(ctx *gin.Context) {
			var params types.CrewItemRequestParams
			if err := ctx.ShouldBindUri(&params); err != nil {
				bindFailed(ctx, c, "MarkNotificationRead", err)
				return
			}
			n, err := c.Notifications.MarkRead(ctx.Request.Context(), params.CrewID, params.ID, ctx.GetString("uid"))
			if err != nil {
				abortWithError(ctx, c, "MarkNotificationRead", err)
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"data": n})
		}).
		DELETE("/crews/:crewId/notifications/:id", func(ctx *gin.Context) {
			var params types.CrewItemRequestParams
			if err := ctx.ShouldBindUri(&params); err != nil {
				bindFailed(ctx, c, "DeleteNotification", err)
				return
			}
			if err := c.Notifications.Delete(ctx.Request.Context(), params.CrewID, params.ID, ctx.GetString("uid")); err != nil {
				abortWithError(ctx, c, "DeleteNotification", err)
				return
			}
			ctx.Status(http.StatusNoContent)
		}).
		DELETE("/crews/:crewId/notifications", func(ctx *gin.Context) {
			var params types.CrewRequestParams
			if err := ctx.ShouldBindUri(&params); err != nil {
				bindFailed(ctx, c, "ClearAll", err)
				return
			}
			n, err := c.Notifications.ClearAll(ctx.Request.Context(), params.CrewID, ctx.GetString("uid"))
			if err != nil {
				abortWithError(ctx, c, "ClearAll", err)
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"count": n})
		})
	return g
}
