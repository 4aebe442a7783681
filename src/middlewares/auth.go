package middlewares

import (
	"crewcomms/src/types"
	"crewcomms/src/utils"
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

func abortUnauthenticated(ctx *gin.Context) {
	ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"error":     types.UserMessage(types.ErrUnauthenticated),
		"kind":      types.KIND_UNAUTHENTICATED,
		"retryable": false,
	})
}

// BearerToken returns the token of an "Authorization: Bearer <token>" header.
func BearerToken(header string) string {
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

// AuthMiddleware accepts API tokens issued by /auth/login and exposes the caller as "uid".
func AuthMiddleware(ctx *gin.Context) {
	reqToken := BearerToken(ctx.Request.Header.Get("Authorization"))
	if reqToken == "" {
		abortUnauthenticated(ctx)
		return
	}
	claims, err := utils.ParseJWT(reqToken)
	if err != nil {
		log.Printf("token error: %s\n", err.Error())
		abortUnauthenticated(ctx)
		return
	}
	ctx.Set("uid", claims.UID)
	ctx.Set("email", claims.Email)
	ctx.Set("name", claims.Name)
}
