package main

import (
	"crewcomms/src/boot"
	"crewcomms/src/types"
	"net/http"

	"github.com/gin-gonic/gin"
)

func presenceHandlers(g *gin.RouterGroup, c *boot.Container) *gin.RouterGroup {
	g.
		PUT("/presence/status", func(ctx *gin.Context) {
			var body types.SetStatusRequestBody
			if err := ctx.ShouldBindJSON(&body); err != nil {
				bindFailed(ctx, c, "SetStatus", err)
				return
			}
			if err := c.Presence.SetStatus(ctx.Request.Context(), ctx.GetString("uid"), body.Status); err != nil {
				abortWithError(ctx, c, "SetStatus", err)
				return
			}
			ctx.Status(http.StatusNoContent)
		}).
		POST("/presence/heartbeat", func(ctx *gin.Context) {
			if err := c.Presence.Heartbeat(ctx.Request.Context(), ctx.GetString("uid")); err != nil {
				abortWithError(ctx, c, "Heartbeat", err)
				return
			}
			ctx.Status(http.StatusNoContent)
		}).
		POST("/presence/typing", func(ctx *gin.Context) {
			var body types.SetTypingRequestBody
			if err := ctx.ShouldBindJSON(&body); err != nil {
				bindFailed(ctx, c, "SetTyping", err)
				return
			}
			err := c.Presence.SetTyping(ctx.Request.Context(), body.CrewID, body.ConversationID, ctx.GetString("uid"), *body.IsTyping)
			if err != nil {
				abortWithError(ctx, c, "SetTyping", err)
				return
			}
			ctx.Status(http.StatusNoContent)
		}).
		GET("/presence/:userId", func(ctx *gin.Context) {
			userID := ctx.Param("userId")
			p, err := c.Presence.Get(ctx.Request.Context(), userID)
			if err != nil {
				abortWithError(ctx, c, "GetPresence", err)
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"data": p})
		})
	return g
}
