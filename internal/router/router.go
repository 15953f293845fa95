package router

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v4"
	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	echoSwagger "github.com/swaggo/echo-swagger"

	"momopay/internal/config"
	"momopay/internal/handler"
	"momopay/internal/ratelimit"
)

// Register wires routes and middleware.
func Register(
	e *echo.Echo,
	cfg *config.Config,
	paymentHandler *handler.PaymentHandler,
	webhookHandler *handler.WebhookHandler,
	webhookLimiter *ratelimit.Limiter,
) {
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	// Add validator
	e.Validator = &CustomValidator{validator: validator.New()}

	e.GET("/healthz", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	e.GET("/swagger/*", echoSwagger.WrapHandler)

	api := e.Group("/api")

	// Public routes: the gateway pushes notifications here and storefront
	// clients poll status without a session.
	api.POST("/payments/webhook", webhookHandler.Notify, webhookLimiter.Middleware())
	api.GET("/payments/status", paymentHandler.CheckStatus)

	// Secured routes (require a JWT minted by the main application)
	secured := api.Group("", echojwt.WithConfig(echojwt.Config{
		SigningKey:  []byte(cfg.JWTSecret),
		TokenLookup: "header:" + echo.HeaderAuthorization,
	}))

	secured.GET("/me", func(c echo.Context) error {
		token, ok := c.Get("user").(*jwt.Token)
		if !ok {
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
		}
		claims, _ := token.Claims.(jwt.MapClaims)
		return c.JSON(http.StatusOK, echo.Map{"token_claims": claims})
	})

	// Payment routes
	secured.POST("/payments/initiate", paymentHandler.InitiatePayment)
	secured.POST("/payments/retry", paymentHandler.RetryPayment)
	secured.POST("/payments/link", paymentHandler.LinkPayment)
	secured.POST("/payments/finalize", paymentHandler.Finalize)
}

// CustomValidator wraps validator for Echo.
type CustomValidator struct {
	validator *validator.Validate
}

// Validate implements echo.Validator interface.
func (cv *CustomValidator) Validate(i interface{}) error {
	return cv.validator.Struct(i)
}
