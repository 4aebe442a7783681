package main

import (
	"context"
	"crewcomms/src/boot"
	"crewcomms/src/config"
	"crewcomms/src/controllers"
	"crewcomms/src/lib"
	"crewcomms/src/middlewares"
	"crewcomms/src/types"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path"
	"regexp"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

const (
	apiPrefix string = "/api/v1"
)

var crewRoleValidatorFunc validator.Func = func(fl validator.FieldLevel) bool {
	return types.Role(fl.Field().String()).Valid()
}

var crewVisibilityValidatorFunc validator.Func = func(fl validator.FieldLevel) bool {
	return types.Visibility(fl.Field().String()).Valid()
}

var crewPermissionValidatorFunc validator.Func = func(fl validator.FieldLevel) bool {
	return types.Permission(fl.Field().String()).Valid()
}

var messageTypeValidatorFunc validator.Func = func(fl validator.FieldLevel) bool {
	return types.MessageType(fl.Field().String()).Valid()
}

var presenceStatusValidatorFunc validator.Func = func(fl validator.FieldLevel) bool {
	return types.PresenceStatus(fl.Field().String()).Valid()
}

var futureDateValidatorFunc validator.Func = func(fl validator.FieldLevel) bool {
	date, ok := fl.Field().Interface().(time.Time)
	if !ok {
		return false
	}
	return date.After(time.Now())
}

func registerValidators() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		v.RegisterValidation("crewrole", crewRoleValidatorFunc)
		v.RegisterValidation("crewvisibility", crewVisibilityValidatorFunc)
		v.RegisterValidation("crewpermission", crewPermissionValidatorFunc)
		v.RegisterValidation("messagetype", messageTypeValidatorFunc)
		v.RegisterValidation("presencestatus", presenceStatusValidatorFunc)
		v.RegisterValidation("futuredate", futureDateValidatorFunc)
	}
}

func setupRouter() *gin.Engine {
	router := gin.Default()
	router.Use(middlewares.SecureHeaders)
	router.GET("/", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, "ok")
	})
	return router
}

func maintenanceModeMiddleware(g *gin.Engine, conf *config.Config) *gin.Engine {
	g.Use(func(ctx *gin.Context) {
		if conf.MaintenanceMode {
			err := errors.New("server is under maintenance")
			log.Println(err.Error())
			ctx.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
				"error":     err.Error(),
				"kind":      types.KIND_NETWORK_UNAVAILABLE,
				"retryable": true,
			})
			return
		}
	})
	return g
}

func apiv1Group(g *gin.Engine) *gin.RouterGroup {
	apiv1 := g.Group(apiPrefix)
	return apiv1
}

func corsMiddleware(conf *config.Config) gin.HandlerFunc {
	if conf.ApiEnv == "local" || conf.ApiEnv == "test" {
		return cors.Default()
	}
	appHost := os.Getenv("APP_HOST")
	cc := cors.DefaultConfig()
	cc.AllowMethods = append(cc.AllowMethods, "GET", "POST", "PATCH", "PUT", "DELETE", "HEAD")
	cc.AllowHeaders = append(cc.AllowHeaders, "Origin", "Authorization", "X-Platform")
	cc.AllowOriginFunc = func(origin string) bool {
		if appHost != "" {
			if match, _ := regexp.MatchString(appHost, origin); match {
				return true
			}
		}
		match, _ := regexp.MatchString("app:mobile", origin)
		return match
	}
	cc.AllowCredentials = true
	cc.AllowAllOrigins = false
	return cors.New(cc)
}

func guestAuthRoutes(g *gin.Engine) *gin.RouterGroup {
	apiv1 := apiv1Group(g)
	guest := apiv1.Group("/auth")
	guest.Use(middlewares.VerifyIdToken)
	guest.
		POST("/login", func(ctx *gin.Context) {
			token, status, err := controllers.AuthLogin(ctx)
			if err != nil {
				log.Printf("[AuthLogin] error: %s\n", err.Error())
				ctx.Status(status)
				return
			}

			ctx.JSON(http.StatusOK, gin.H{
				"token": token,
			})
		})
	return guest
}

// newRouter builds the HTTP surface over the wired services.
func newRouter(c *boot.Container) *gin.Engine {
	registerValidators()

	router := setupRouter()
	router.Use(corsMiddleware(c.Config))
	router = maintenanceModeMiddleware(router, c.Config)

	guestAuthRoutes(router)

	authorized := router.Group(apiPrefix)
	authorized.Use(middlewares.AuthMiddleware)
	{
		authorized.POST("/devices", func(ctx *gin.Context) {
			status, err := controllers.RegisterDevice(ctx, c.Devices)
			if err != nil {
				abortWithError(ctx, c, "RegisterDevice", err)
				return
			}
			ctx.Status(status)
		})

		crewHandlers(authorized, c)
		invitationHandlers(authorized, c)
		conversationHandlers(authorized, c)
		presenceHandlers(authorized, c)
		notificationHandlers(authorized, c)
		jobHandlers(authorized, c)
	}
	return router
}

// abortWithError answers with the error's kind. Unexpected failures are reported to Sentry.
func abortWithError(ctx *gin.Context, c *boot.Container, op string, err error) {
	status := types.HTTPStatus(err)
	kind := types.KindOf(err)
	if kind == types.KIND_INTERNAL {
		lib.LogError(c.Log, op, err, logrus.Fields{
			"path":    ctx.FullPath(),
			"user_id": ctx.GetString("uid"),
		})
	} else {
		log.Printf("[%s] %s: %s\n", op, kind, err.Error())
	}
	ctx.AbortWithStatusJSON(status, gin.H{
		"error":     types.UserMessage(err),
		"kind":      kind,
		"retryable": types.Retryable(err),
	})
}

// bindFailed turns a gin binding error into a ValidationFailed answer.
func bindFailed(ctx *gin.Context, c *boot.Container, op string, err error) {
	msg := "request is malformed"
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		msg = fmt.Sprintf("%s is invalid (%s)", fe.Field(), fe.Tag())
	}
	abortWithError(ctx, c, op, types.ValidationFailed(op, "%s", msg))
}

func main() {
	apiEnv := os.Getenv("API_ENV")
	if apiEnv == "" || apiEnv == "local" {
		cwd, _ := os.Getwd()
		if err := godotenv.Load(path.Join(cwd, ".env")); err != nil {
			log.Printf("No .env loaded: %s\n", err.Error())
		}
	}
	conf, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %s\n", err.Error())
	}

	logger := lib.NewLogger(conf.LogDir, !conf.IsProd())
	gin.DefaultWriter = lib.APILogWriter(conf.LogDir)
	if conf.IsProd() {
		gin.SetMode(gin.ReleaseMode)
	}
	lib.InitSentry(conf.SentryDSN, conf.ApiEnv)
	defer lib.FlushSentry()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := boot.NewContainer(ctx, conf, logger)
	if err != nil {
		logger.WithError(err).Fatal("could not wire services")
	}
	if err := c.Start(ctx); err != nil {
		logger.WithError(err).Fatal("could not start background jobs")
	}
	defer c.Close()

	router := newRouter(c)
	wss := setupSocketServer(router, c)
	if wss != nil {
		log.Println("WS server listening for connections...")
	}

	srv := &http.Server{Addr: ":" + conf.Port, Handler: router}
	go func() {
		logger.WithField("port", conf.Port).Info("API listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("server stopped")
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("graceful shutdown failed")
	}
}
