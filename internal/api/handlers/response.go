package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/movesintl/moves-study-hub-sub001/internal/apperrors"
	"github.com/movesintl/moves-study-hub-sub001/internal/logger"
	"github.com/movesintl/moves-study-hub-sub001/internal/services"
	"github.com/movesintl/moves-study-hub-sub001/internal/utils"
)

// respondError writes err as {"error", "code", "fields"} with the status of
// its kind. Unclassified errors are logged and hidden from the client.
func respondError(c *gin.Context, err error) {
	_ = c.Error(err)
	status := apperrors.HTTPStatus(err)
	body := gin.H{"error": err.Error(), "code": apperrors.Code(err)}
	if status == http.StatusInternalServerError {
		logger.Error().Err(err).Str("route", c.FullPath()).Msg("request failed")
		body["error"] = "Internal server error"
	}
	if fields := apperrors.FieldsOf(err); len(fields) > 0 {
		body["fields"] = fields
	}
	c.AbortWithStatusJSON(status, body)
}

// bindJSON decodes the request body into dst, answering 400 on failure.
func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		respondError(c, apperrors.Validation("invalid request body: %v", err))
		return false
	}
	return true
}

// pathID parses the SixID path parameter name, answering 400 on failure.
func pathID(c *gin.Context, name string) (utils.SixID, bool) {
	id, err := utils.ParseSixID(c.Param(name))
	if err != nil {
		respondError(c, apperrors.ValidationFields(map[string]string{name: "is not a valid id"}))
		return utils.SixID{}, false
	}
	return id, true
}

// pageFrom reads ?limit=&offset=. The services clamp the values.
func pageFrom(c *gin.Context) services.Page {
	limit, _ := strconv.Atoi(c.Query("limit"))
	offset, _ := strconv.Atoi(c.Query("offset"))
	return services.Page{Limit: limit, Offset: offset}
}

func respondData(c *gin.Context, status int, data any) {
	c.JSON(status, gin.H{"data": data})
}
