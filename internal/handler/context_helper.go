package handler

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	appErrors "github.com/noah-isme/sma-gradebook-api/pkg/errors"
)

// positiveInt reads a required positive integer from a path parameter or query value.
func positiveInt(raw, name string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n < 1 {
		return 0, appErrors.Clone(appErrors.ErrValidation, name+" must be a positive integer")
	}
	return n, nil
}

func periodParam(c *gin.Context) (int, error) {
	return positiveInt(c.Param("period"), "period")
}

func periodQuery(c *gin.Context) (int, error) {
	return positiveInt(c.Query("period"), "period")
}

func invalidPayload(err error) error {
	return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
}
