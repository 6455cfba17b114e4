package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-admissions-api/internal/middleware"
	"github.com/noah-isme/sma-admissions-api/internal/models"
	"github.com/noah-isme/sma-admissions-api/pkg/response"
)

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	return middleware.ClaimsFrom(c)
}

// actorFromContext describes the caller for audit purposes. Anonymous
// callers get an actor with only the network details filled in.
func actorFromContext(c *gin.Context) *models.Actor {
	actor := &models.Actor{
		IP:        c.ClientIP(),
		UserAgent: c.GetHeader("User-Agent"),
	}
	if claims := claimsFromContext(c); claims != nil {
		actor.UserID = claims.UserID
		actor.Role = claims.Role
	}
	return actor
}

// respond writes a success envelope carrying warnings and request meta.
func respond(c *gin.Context, status int, data interface{}, pagination *models.Pagination, warnings []string) {
	response.JSON(c, status, data, pagination, middleware.ExtractMeta(c), response.Warnings(warnings))
}
