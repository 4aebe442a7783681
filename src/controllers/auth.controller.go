package controllers

import (
	"crewcomms/src/lib"
	"crewcomms/src/types"
	"crewcomms/src/utils"
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
)

// AuthLogin exchanges a verified Firebase identity for an API token. It runs behind
// middlewares.VerifyIdToken, which sets uid, email and name.
func AuthLogin(ctx *gin.Context) (token *string, status int, err error) {
	uid := ctx.GetString("uid")
	if uid == "" {
		return nil, http.StatusUnauthorized, types.ErrUnauthenticated
	}
	signed, err := utils.GenerateJWT(uid, ctx.GetString("email"), ctx.GetString("name"))
	if err != nil {
		log.Printf("Could not sign token for %s: %s\n", uid, err.Error())
		return nil, http.StatusInternalServerError, err
	}
	return &signed, http.StatusOK, nil
}

// RegisterDevice stores the caller's FCM token for push delivery.
func RegisterDevice(ctx *gin.Context, devices *lib.DeviceTokens) (status int, err error) {
	var body types.RegisterDeviceRequestBody
	if err := ctx.ShouldBindJSON(&body); err != nil {
		return http.StatusBadRequest, types.ValidationFailed("RegisterDevice", "token is required")
	}
	if devices == nil {
		return http.StatusServiceUnavailable, errors.New("push notifications are not configured")
	}
	uid := ctx.GetString("uid")
	platform := ctx.GetHeader("X-Platform")
	if platform == "" {
		platform = "unknown"
	}
	if err := devices.Register(ctx.Request.Context(), uid, body.Token, platform); err != nil {
		return types.HTTPStatus(err), err
	}
	return http.StatusNoContent, nil
}
