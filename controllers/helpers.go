package controllers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

func ParamID(c *gin.Context, name string) (int, bool) {
	v := c.Param(name)
	if v == "" {
		RespondError(c, name+" is required", http.StatusBadRequest)
		return 0, false
	}
	id, err := strconv.Atoi(v)
	if err != nil || id <= 0 {
		RespondError(c, "invalid "+name, http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

func queryInt(c *gin.Context, name string) (*int, bool) {
	v := c.Query(name)
	if v == "" {
		return nil, true
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		RespondError(c, "invalid "+name, http.StatusBadRequest)
		return nil, false
	}
	return &n, true
}
