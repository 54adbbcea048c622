package router

import (
	"github.com/gin-gonic/gin"

	"github.com/ikkim/tabline-backend/config"
	"github.com/ikkim/tabline-backend/internal/app/controller"
	"github.com/ikkim/tabline-backend/internal/app/model"
	"github.com/ikkim/tabline-backend/internal/middleware"
)

// Per-IP request budgets (per minute, burst) for the unauthenticated and
// SMS-sending endpoints.
const (
	linkRatePerMinute   = 30
	linkRateBurst       = 10
	verifyRatePerMinute = 20
	verifyRateBurst     = 5
	enrollRatePerMinute = 10
	enrollRateBurst     = 3
)

type Router struct {
	authController   *controller.AuthController
	linkController   *controller.LinkController
	verifyController *controller.VerifyController
	tabController    *controller.TabController
	reviewController *controller.ReviewController
	staffController  *controller.StaffController
	memberController *controller.MemberController
	authMiddleware   *middleware.AuthMiddleware
	memberSession    *middleware.MemberSession
	config           *config.Config
}

func NewRouter(
	authController *controller.AuthController,
	linkController *controller.LinkController,
	verifyController *controller.VerifyController,
	tabController *controller.TabController,
	reviewController *controller.ReviewController,
	staffController *controller.StaffController,
	memberController *controller.MemberController,
	authMiddleware *middleware.AuthMiddleware,
	memberSession *middleware.MemberSession,
	cfg *config.Config,
) *Router {
	return &Router{
		authController:   authController,
		linkController:   linkController,
		verifyController: verifyController,
		tabController:    tabController,
		reviewController: reviewController,
		staffController:  staffController,
		memberController: memberController,
		authMiddleware:   authMiddleware,
		memberSession:    memberSession,
		config:           cfg,
	}
}

func (r *Router) Setup() *gin.Engine {
	gin.SetMode(r.config.Server.GinMode)

	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(middleware.LoggingMiddleware())
	router.Use(corsMiddleware(r.config.CORS.AllowedOrigins))

	router.SetHTMLTemplate(controller.Templates())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":  "healthy",
			"message": "Tabline API is running",
		})
	})

	linkLimit := middleware.NewRateLimiter(linkRatePerMinute, linkRateBurst).Middleware()
	verifyLimit := middleware.NewRateLimiter(verifyRatePerMinute, verifyRateBurst).Middleware()
	enrollLimit := middleware.NewRateLimiter(enrollRatePerMinute, enrollRateBurst).Middleware()

	requireStaff := r.authMiddleware.Authenticate()
	requireManager := r.authMiddleware.RequireRole(model.RoleOwner, model.RoleManager)

	// SMS link landing page
	verify := router.Group("/verify", verifyLimit)
	{
		verify.GET("/:member", r.verifyController.ShowPIN)
		verify.POST("/:member", r.verifyController.SubmitPIN)
	}

	router.GET("/profile/:member", r.memberSession.Require(), r.tabController.Profile)

	api := router.Group("/api")
	{
		api.POST("/link-member", linkLimit, requireStaff, r.linkController.LinkMember)

		member := api.Group("/member/:member", r.memberSession.Require())
		{
			member.GET("/receipt", r.tabController.LiveReceipt)
			member.GET("/receipts", r.tabController.History)
			member.GET("/receipts/:id", r.tabController.ClosedReceipt)
			member.POST("/close", r.tabController.Close)
			member.POST("/reviews", r.reviewController.Submit)
		}
	}

	v1 := router.Group("/api/v1")
	{
		auth := v1.Group("/auth")
		{
			auth.POST("/login", verifyLimit, r.authController.Login)
			auth.POST("/refresh", r.authController.Refresh)
			auth.POST("/logout", requireStaff, r.authController.Logout)
			auth.GET("/me", requireStaff, r.authController.GetMe)
		}

		v1.POST("/members", enrollLimit, r.memberController.Enroll)

		staff := v1.Group("/staff", requireStaff)
		{
			staff.GET("/links", r.linkController.ListLinks)
			staff.POST("/links/:id/resend", linkLimit, r.linkController.ResendLink)
			staff.DELETE("/links/:id", r.linkController.CancelLink)
			staff.GET("/ws", r.staffController.Stream)

			staff.GET("/analytics/ratings", requireManager, r.reviewController.Analytics)
			staff.GET("/exports/closed", requireManager, r.staffController.ExportClosed)
		}
	}

	return router
}

func corsMiddleware(allowedOrigins []string) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")

		allowed := false
		for _, allowedOrigin := range allowedOrigins {
			if origin == allowedOrigin || allowedOrigin == "*" {
				allowed = true
				break
			}
		}

		if allowed {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		}

		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With, X-Request-ID")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
