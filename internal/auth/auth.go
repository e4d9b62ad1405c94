package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/time/rate"

	"github.com/docbridge/docbridge/internal/logging"
)

var jwtSecret []byte
var (
	loginLimiters sync.Map
	loginRate     = rate.Every(time.Minute / 5) // 5 requests per minute
)

func getLoginLimiter(ip string) *rate.Limiter {
	val, ok := loginLimiters.Load(ip)
	if ok {
		return val.(*rate.Limiter)
	}
	limiter := rate.NewLimiter(loginRate, 5)
	loginLimiters.Store(ip, limiter)
	return limiter
}

func allowInsecure() bool {
	v := strings.ToLower(os.Getenv("ALLOW_INSECURE"))
	return v == "1" || v == "true" || v == "yes"
}

func init() {
	// Generate a random JWT secret if not provided. Sessions do not survive
	// a restart in that case.
	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		jwtSecret = []byte(secret)
	} else {
		jwtSecret = make([]byte, 32)
		rand.Read(jwtSecret)
		logging.Logf("[STARTUP] JWT_SECRET not set, using an ephemeral session secret")
	}
}

type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func LoginHandler(c *gin.Context) {
	// rate limit by client IP
	ip := c.ClientIP()
	if !getLoginLimiter(ip).Allow() {
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "Too many login attempts"})
		return
	}

	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	envUsername := os.Getenv("AUTH_USERNAME")
	envPassword := os.Getenv("AUTH_PASSWORD")

	if envUsername == "" || envPassword == "" {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Authentication not configured"})
		return
	}

	userOK := subtle.ConstantTimeCompare([]byte(req.Username), []byte(envUsername)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(req.Password), []byte(envPassword)) == 1
	if !userOK || !passOK {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		return
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"username": req.Username,
		"exp":      time.Now().Add(24 * time.Hour).Unix(),
		"iat":      time.Now().Unix(),
	})

	tokenString, err := token.SignedString(jwtSecret)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to issue session"})
		return
	}

	secure := !allowInsecure()
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie("auth_token", tokenString, 24*3600, "/", "", secure, true)

	c.JSON(http.StatusOK, gin.H{"success": true})
}

func LogoutHandler(c *gin.Context) {
	secure := !allowInsecure()
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie("auth_token", "", -1, "/", "", secure, true)
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// isValidApiKey checks if the request has a valid API key.
func isValidApiKey(c *gin.Context) bool {
	envApiKey := os.Getenv("API_KEY")
	if envApiKey == "" {
		return false
	}

	if authHeader := c.GetHeader("Authorization"); strings.HasPrefix(authHeader, "Bearer ") {
		apiKey := strings.TrimPrefix(authHeader, "Bearer ")
		if subtle.ConstantTimeCompare([]byte(apiKey), []byte(envApiKey)) == 1 {
			return true
		}
	}

	if apiKey := c.GetHeader("X-API-Key"); apiKey != "" {
		if subtle.ConstantTimeCompare([]byte(apiKey), []byte(envApiKey)) == 1 {
			return true
		}
	}

	return false
}

// sessionUser validates the JWT cookie and returns the logged-in username.
func sessionUser(c *gin.Context) (string, bool) {
	tokenString, err := c.Cookie("auth_token")
	if err != nil {
		return "", false
	}

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return jwtSecret, nil
	})
	if err != nil || !token.Valid {
		return "", false
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", false
	}
	username, _ := claims["username"].(string)
	return username, username != ""
}

// Middleware requires either a valid API key or a valid session cookie. The
// resolved username is stored in the context as "user".
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if isValidApiKey(c) {
			c.Set("user", os.Getenv("AUTH_USERNAME"))
			c.Next()
			return
		}

		username, ok := sessionUser(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
			c.Abort()
			return
		}

		c.Set("user", username)
		c.Next()
	}
}

// OptionalMiddleware resolves the session user when one exists but never
// rejects the request. Editor callback endpoints use it: the document server
// calls them without a session, the browser may call them with one.
func OptionalMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if isValidApiKey(c) {
			c.Set("user", os.Getenv("AUTH_USERNAME"))
		} else if username, ok := sessionUser(c); ok {
			c.Set("user", username)
		}
		c.Next()
	}
}

func CheckAuthHandler(c *gin.Context) {
	if isValidApiKey(c) {
		c.JSON(http.StatusOK, gin.H{"authenticated": true})
		return
	}
	_, ok := sessionUser(c)
	c.JSON(http.StatusOK, gin.H{"authenticated": ok})
}

// CurrentUser returns the username resolved by Middleware.
func CurrentUser(c *gin.Context) string {
	user, _ := c.Get("user")
	username, _ := user.(string)
	return username
}
