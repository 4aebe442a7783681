package middlewares

import (
	"context"
	"crewcomms/src/lib"
	"fmt"
	"log"
	"net/http"
	"time"

	"firebase.google.com/go/v4/auth"
	"github.com/gin-gonic/gin"
)

type IDTokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*auth.Token, error)
}

var verifier IDTokenVerifier

// NewIDTokenVerifier replaces the Firebase verifier, e.g. in tests.
func NewIDTokenVerifier(v IDTokenVerifier) {
	verifier = v
}

func getVerifier() (IDTokenVerifier, error) {
	if verifier != nil {
		return verifier, nil
	}
	fauth, err := lib.GetFirebaseAuth()
	if err != nil {
		return nil, err
	}
	verifier = fauth
	return fauth, nil
}

// VerifyIdToken checks a Firebase ID token and exposes uid, email and name to the handler.
func VerifyIdToken(ctx *gin.Context) {
	idToken := BearerToken(ctx.GetHeader("Authorization"))
	if idToken == "" {
		log.Println("Check failed: missing authorization header")
		abortUnauthenticated(ctx)
		return
	}
	v, err := getVerifier()
	if err != nil {
		log.Printf("Error retrieving Firebase Auth instance: %s\n", err.Error())
		ctx.AbortWithStatus(http.StatusInternalServerError)
		return
	}
	token, err := v.VerifyIDToken(ctx, idToken)
	if err != nil {
		log.Printf("Failed to verify ID token: %v\n", err)
		abortUnauthenticated(ctx)
		return
	}
	if rd := lib.GetRedisClient(); rd != nil {
		if err := rd.Set(context.Background(), fmt.Sprintf("%s:token", token.UID), idToken, 24*time.Hour).Err(); err != nil {
			log.Printf("[redis] could not cache token for %s: %s\n", token.UID, err.Error())
		}
	}
	email, _ := token.Claims["email"].(string)
	name, _ := token.Claims["name"].(string)
	ctx.Set("uid", token.UID)
	ctx.Set("email", email)
	ctx.Set("name", name)
}
