package main

import (
	"crewcomms/src/boot"
	"crewcomms/src/conversation"
	"crewcomms/src/models"
	"crewcomms/src/types"
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
)

const maxAttachmentSize = 25 << 20

func conversationHandlers(g *gin.RouterGroup, c *boot.Container) *gin.RouterGroup {
	g.
		POST("/conversations/direct", func(ctx *gin.Context) {
			var body types.OpenDirectRequestBody
			if err := ctx.ShouldBindJSON(&body); err != nil {
				bindFailed(ctx, c, "OpenDirect", err)
				return
			}
			conv, err := c.Conversations.OpenDirect(ctx.Request.Context(), ctx.GetString("uid"), body.UserID)
			if err != nil {
				abortWithError(ctx, c, "OpenDirect", err)
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"data": conv})
		}).
		GET("/conversations/:conversationId/messages", func(ctx *gin.Context) {
			var params types.ConversationRequestParams
			if err := ctx.ShouldBindUri(&params); err != nil {
				bindFailed(ctx, c, "History", err)
				return
			}
			var query types.HistoryQuery
			if err := ctx.ShouldBindQuery(&query); err != nil {
				bindFailed(ctx, c, "History", err)
				return
			}
			cursor, err := models.DecodeCursor(query.Cursor)
			if err != nil {
				abortWithError(ctx, c, "History", types.ValidationFailed("History", "cursor is invalid"))
				return
			}
			page, err := c.Conversations.History(ctx.Request.Context(), params.ConversationID, ctx.GetString("uid"), cursor, query.Limit)
			if err != nil {
				abortWithError(ctx, c, "History", err)
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"data": page.Messages, "nextCursor": page.NextCursor, "count": len(page.Messages)})
		}).
		POST("/conversations/:conversationId/messages", func(ctx *gin.Context) {
			var params types.ConversationRequestParams
			if err := ctx.ShouldBindUri(&params); err != nil {
				bindFailed(ctx, c, "Send", err)
				return
			}
			var body types.SendMessageRequestBody
			if err := ctx.ShouldBindJSON(&body); err != nil {
				bindFailed(ctx, c, "Send", err)
				return
			}
			msg, err := c.Conversations.Send(ctx.Request.Context(), conversation.SendInput{
				ConversationID:   params.ConversationID,
				SenderID:         ctx.GetString("uid"),
				Content:          body.Content,
				Type:             body.Type,
				Attachments:      body.Attachments,
				ReplyToMessageID: body.ReplyToMessageID,
				ClientMessageID:  body.ClientMessageID,
			})
			if err != nil {
				abortWithError(ctx, c, "Send", err)
				return
			}
			ctx.JSON(http.StatusCreated, gin.H{"data": msg})
		}).
		POST("/conversations/:conversationId/messages/:messageId/read", func(ctx *gin.Context) {
			var params types.MessageRequestParams
			if err := ctx.ShouldBindUri(&params); err != nil {
				bindFailed(ctx, c, "MarkRead", err)
				return
			}
			msg, err := c.Conversations.MarkRead(ctx.Request.Context(), params.ConversationID, ctx.GetString("uid"), params.MessageID)
			if err != nil {
				abortWithError(ctx, c, "MarkRead", err)
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"data": msg})
		}).
		POST("/conversations/:conversationId/messages/:messageId/reactions", func(ctx *gin.Context) {
			var params types.MessageRequestParams
			if err := ctx.ShouldBindUri(&params); err != nil {
				bindFailed(ctx, c, "AddReaction", err)
				return
			}
			var body types.ReactionRequestBody
			if err := ctx.ShouldBindJSON(&body); err != nil {
				bindFailed(ctx, c, "AddReaction", err)
				return
			}
			msg, err := c.Conversations.AddReaction(ctx.Request.Context(), params.ConversationID, ctx.GetString("uid"), params.MessageID, body.Emoji)
			if err != nil {
				abortWithError(ctx, c, "AddReaction", err)
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"data": msg})
		}).
		POST("/conversations/:conversationId/attachments", func(ctx *gin.Context) {
			var params types.ConversationRequestParams
			if err := ctx.ShouldBindUri(&params); err != nil {
				bindFailed(ctx, c, "UploadAttachment", err)
				return
			}
			if c.Attachments == nil {
				abortWithError(ctx, c, "UploadAttachment", types.WrapError(types.KIND_NETWORK_UNAVAILABLE, "UploadAttachment", errors.New("attachment storage is not configured")))
				return
			}
			reqCtx := ctx.Request.Context()
			if err := c.Conversations.CanPost(reqCtx, params.ConversationID, ctx.GetString("uid")); err != nil {
				abortWithError(ctx, c, "UploadAttachment", err)
				return
			}
			fh, err := ctx.FormFile("file")
			if err != nil {
				abortWithError(ctx, c, "UploadAttachment", types.ValidationFailed("UploadAttachment", "file is required"))
				return
			}
			if fh.Size > maxAttachmentSize {
				abortWithError(ctx, c, "UploadAttachment", types.ValidationFailed("UploadAttachment", "file is larger than 25MB"))
				return
			}
			f, err := fh.Open()
			if err != nil {
				abortWithError(ctx, c, "UploadAttachment", err)
				return
			}
			defer f.Close()
			contentType := fh.Header.Get("Content-Type")
			if contentType == "" {
				contentType = "application/octet-stream"
			}
			att, err := c.Attachments.Upload(reqCtx, params.ConversationID, fh.Filename, contentType, f)
			if err != nil {
				log.Printf("[S3] upload for %s failed: %s\n", params.ConversationID, err.Error())
				abortWithError(ctx, c, "UploadAttachment", types.WrapError(types.KIND_NETWORK_UNAVAILABLE, "UploadAttachment", err))
				return
			}
			ctx.JSON(http.StatusCreated, gin.H{"data": att})
		})
	return g
}
