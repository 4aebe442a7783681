package main

import (
	"crewcomms/src/boot"
	"crewcomms/src/membership"
	"crewcomms/src/models"
	"crewcomms/src/types"
	"crewcomms/src/utils"
	"net/http"

	"github.com/gin-gonic/gin"
)

func crewHandlers(g *gin.RouterGroup, c *boot.Container) *gin.RouterGroup {
	g.
		POST("/crews", func(ctx *gin.Context) {
			var body types.CreateCrewRequestBody
			if err := ctx.ShouldBindJSON(&body); err != nil {
				bindFailed(ctx, c, "CreateCrew", err)
				return
			}
			crew, err := c.Crews.CreateCrew(ctx.Request.Context(), ctx.GetString("uid"), membership.CreateCrewInput{
				Name:        body.Name,
				Description: body.Description,
				Visibility:  body.Visibility,
				StormWork:   body.StormWork,
				Preferences: body.Preferences,
			})
			if err != nil {
				abortWithError(ctx, c, "CreateCrew", err)
				return
			}
			ctx.JSON(http.StatusCreated, gin.H{"data": crew})
		}).
		GET("/crews/:crewId", func(ctx *gin.Context) {
			var params types.CrewRequestParams
			if err := ctx.ShouldBindUri(&params); err != nil {
				bindFailed(ctx, c, "GetCrew", err)
				return
			}
			crew, err := c.Crews.GetCrew(ctx.Request.Context(), ctx.GetString("uid"), params.CrewID)
			if err != nil {
				abortWithError(ctx, c, "GetCrew", err)
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"data": crew})
		}).
		PATCH("/crews/:crewId", func(ctx *gin.Context) {
			var params types.CrewRequestParams
			if err := ctx.ShouldBindUri(&params); err != nil {
				bindFailed(ctx, c, "UpdateCrew", err)
				return
			}
			var body types.UpdateCrewRequestBody
			if err := ctx.ShouldBindJSON(&body); err != nil {
				bindFailed(ctx, c, "UpdateCrew", err)
				return
			}
			crew, err := c.Crews.UpdateCrew(ctx.Request.Context(), ctx.GetString("uid"), params.CrewID, membership.UpdateCrewInput{
				Name:        body.Name,
				Description: body.Description,
				Visibility:  body.Visibility,
				StormWork:   body.StormWork,
				Preferences: body.Preferences,
			})
			if err != nil {
				abortWithError(ctx, c, "UpdateCrew", err)
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"data": crew})
		}).
		DELETE("/crews/:crewId", func(ctx *gin.Context) {
			var params types.CrewRequestParams
			if err := ctx.ShouldBindUri(&params); err != nil {
				bindFailed(ctx, c, "DeactivateCrew", err)
				return
			}
			if err := c.Crews.DeactivateCrew(ctx.Request.Context(), ctx.GetString("uid"), params.CrewID); err != nil {
				abortWithError(ctx, c, "DeactivateCrew", err)
				return
			}
			ctx.Status(http.StatusNoContent)
		}).
		POST("/crews/:crewId/join", func(ctx *gin.Context) {
			var params types.CrewRequestParams
			if err := ctx.ShouldBindUri(&params); err != nil {
				bindFailed(ctx, c, "JoinCrew", err)
				return
			}
			member, err := c.Crews.JoinCrew(ctx.Request.Context(), ctx.GetString("uid"), params.CrewID)
			if err != nil {
				abortWithError(ctx, c, "JoinCrew", err)
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"data": member})
		}).
		GET("/crews/:crewId/members", func(ctx *gin.Context) {
			var params types.CrewRequestParams
			if err := ctx.ShouldBindUri(&params); err != nil {
				bindFailed(ctx, c, "ListMembers", err)
				return
			}
			members, err := c.Crews.ListMembers(ctx.Request.Context(), ctx.GetString("uid"), params.CrewID)
			if err != nil {
				abortWithError(ctx, c, "ListMembers", err)
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"data": members, "count": len(members)})
		}).
		GET("/crews/:crewId/members/:userId/permissions", func(ctx *gin.Context) {
			var params types.CrewMemberRequestParams
			if err := ctx.ShouldBindUri(&params); err != nil {
				bindFailed(ctx, c, "GetPermissions", err)
				return
			}
			reqCtx := ctx.Request.Context()
			if err := c.Crews.RequireMember(reqCtx, params.CrewID, ctx.GetString("uid")); err != nil {
				abortWithError(ctx, c, "GetPermissions", err)
				return
			}
			role, ok, err := c.Crews.GetRole(reqCtx, params.CrewID, params.UserID)
			if err != nil {
				abortWithError(ctx, c, "GetPermissions", err)
				return
			}
			if !ok {
				abortWithError(ctx, c, "GetPermissions", types.NotFound("GetPermissions", "member", params.UserID))
				return
			}
			perms, err := c.Crews.Permissions(reqCtx, params.CrewID, params.UserID)
			if err != nil {
				abortWithError(ctx, c, "GetPermissions", err)
				return
			}
			ctx.JSON(http.StatusOK, gin.H{
				"role":        role,
				"roleInfo":    types.RoleDetails[role],
				"permissions": perms.Slice(),
			})
		}).
		PUT("/crews/:crewId/members/:userId/permissions", func(ctx *gin.Context) {
			var params types.CrewMemberRequestParams
			if err := ctx.ShouldBindUri(&params); err != nil {
				bindFailed(ctx, c, "SetPermissionOverrides", err)
				return
			}
			var body types.PermissionOverridesRequestBody
			if err := ctx.ShouldBindJSON(&body); err != nil {
				bindFailed(ctx, c, "SetPermissionOverrides", err)
				return
			}
			member, err := c.Crews.SetPermissionOverrides(ctx.Request.Context(), ctx.GetString("uid"), params.CrewID, params.UserID, types.PermissionOverrides{
				Grant:  body.Grant,
				Revoke: body.Revoke,
			})
			if err != nil {
				abortWithError(ctx, c, "SetPermissionOverrides", err)
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"data": member, "permissions": member.PermissionSet().Slice()})
		}).
		PUT("/crews/:crewId/members/:userId/role", func(ctx *gin.Context) {
			var params types.CrewMemberRequestParams
			if err := ctx.ShouldBindUri(&params); err != nil {
				bindFailed(ctx, c, "UpdateMemberRole", err)
				return
			}
			var body types.UpdateRoleRequestBody
			if err := ctx.ShouldBindJSON(&body); err != nil {
				bindFailed(ctx, c, "UpdateMemberRole", err)
				return
			}
			member, err := c.Crews.UpdateMemberRole(ctx.Request.Context(), ctx.GetString("uid"), params.CrewID, params.UserID, body.Role, body.Announce)
			if err != nil {
				abortWithError(ctx, c, "UpdateMemberRole", err)
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"data": member})
		}).
		DELETE("/crews/:crewId/members/:userId", func(ctx *gin.Context) {
			var params types.CrewMemberRequestParams
			if err := ctx.ShouldBindUri(&params); err != nil {
				bindFailed(ctx, c, "RemoveMember", err)
				return
			}
			if err := c.Crews.RemoveMember(ctx.Request.Context(), ctx.GetString("uid"), params.CrewID, params.UserID); err != nil {
				abortWithError(ctx, c, "RemoveMember", err)
				return
			}
			ctx.Status(http.StatusNoContent)
		}).
		POST("/crews/:crewId/invitations", func(ctx *gin.Context) {
			var params types.CrewRequestParams
			if err := ctx.ShouldBindUri(&params); err != nil {
				bindFailed(ctx, c, "InviteMember", err)
				return
			}
			var body types.InviteMemberRequestBody
			if err := ctx.ShouldBindJSON(&body); err != nil {
				bindFailed(ctx, c, "InviteMember", err)
				return
			}
			inv, err := c.Crews.InviteMember(ctx.Request.Context(), ctx.GetString("uid"), params.CrewID, membership.InviteInput{
				InviteeID: body.InviteeID,
				Email:     body.Email,
				Role:      body.Role,
				Message:   body.Message,
			})
			if err != nil {
				abortWithError(ctx, c, "InviteMember", err)
				return
			}
			ctx.JSON(http.StatusCreated, gin.H{"data": inv})
		}).
		GET("/crews/:crewId/audit", func(ctx *gin.Context) {
			var params types.CrewRequestParams
			if err := ctx.ShouldBindUri(&params); err != nil {
				bindFailed(ctx, c, "CrewAudit", err)
				return
			}
			reqCtx := ctx.Request.Context()
			if err := c.Crews.Authorize(reqCtx, params.CrewID, ctx.GetString("uid"), types.PERM_VIEW_ANALYTICS); err != nil {
				abortWithError(ctx, c, "CrewAudit", err)
				return
			}
			if c.Audit == nil {
				ctx.JSON(http.StatusOK, gin.H{"data": []models.TrailLog{}, "count": 0})
				return
			}
			rows, err := c.Audit.ForCrew(reqCtx, params.CrewID, utils.ParseLimit(ctx.Query("limit"), 50))
			if err != nil {
				abortWithError(ctx, c, "CrewAudit", err)
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"data": rows, "count": len(rows)})
		})
	return g
}

func invitationHandlers(g *gin.RouterGroup, c *boot.Container) *gin.RouterGroup {
	type invitationParams struct {
		CrewID       string `uri:"crewId" binding:"required"`
		InvitationID string `uri:"invitationId" binding:"required"`
	}
	g.
		POST("/invitations/:crewId/:invitationId/accept", func(ctx *gin.Context) {
			var params invitationParams
			if err := ctx.ShouldBindUri(&params); err != nil {
				bindFailed(ctx, c, "AcceptInvitation", err)
				return
			}
			member, err := c.Crews.AcceptInvitation(ctx.Request.Context(), ctx.GetString("uid"), params.CrewID, params.InvitationID)
			if err != nil {
				abortWithError(ctx, c, "AcceptInvitation", err)
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"data": member})
		}).
		POST("/invitations/:crewId/:invitationId/decline", func(ctx *gin.Context) {
			var params invitationParams
			if err := ctx.ShouldBindUri(&params); err != nil {
				bindFailed(ctx, c, "DeclineInvitation", err)
				return
			}
			if err := c.Crews.DeclineInvitation(ctx.Request.Context(), ctx.GetString("uid"), params.CrewID, params.InvitationID); err != nil {
				abortWithError(ctx, c, "DeclineInvitation", err)
				return
			}
			ctx.Status(http.StatusNoContent)
		})
	return g
}
