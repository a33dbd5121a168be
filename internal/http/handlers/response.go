package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"reflect"
	"strings"

	"taskify/internal/logger"
	"taskify/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

func init() {
	// report json field names in binding errors
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			if name == "" {
				name = strings.SplitN(f.Tag.Get("form"), ",", 2)[0]
			}
			if name == "" {
				return f.Name
			}
			return name
		})
	}
}

func respondData(c *gin.Context, status int, data any) {
	c.JSON(status, gin.H{"success": true, "data": data})
}

func respondMessage(c *gin.Context, status int, msg string) {
	c.JSON(status, gin.H{"success": status < 400, "message": msg})
}

func respondDeleted(c *gin.Context, msg string) {
	c.JSON(http.StatusOK, gin.H{"success": true, "deleted": true, "message": msg})
}

// respondError maps service errors onto status codes.
func respondError(c *gin.Context, err error) {
	var verr *service.ValidationError
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"success": false,
			"message": "validation failed",
			"errors":  verr.Problems,
		})
	case errors.Is(err, service.ErrNotFound):
		respondMessage(c, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrConflict):
		respondMessage(c, http.StatusConflict, "tasks were claimed by another invoice, retry the request")
	default:
		logger.WithContext(c.Request.Context()).Error("request failed",
			"error", err,
			"method", c.Request.Method,
			"route", c.FullPath(),
		)
		_ = c.Error(err)
		respondMessage(c, http.StatusInternalServerError, "internal error")
	}
}

// respondBindError answers malformed bodies with 400 and failed binding rules with 422.
func respondBindError(c *gin.Context, err error) {
	var (
		verrs   validator.ValidationErrors
		syntax  *json.SyntaxError
		typeErr *json.UnmarshalTypeError
	)
	switch {
	case errors.As(err, &verrs):
		problems := make([]service.Problem, 0, len(verrs))
		for _, fe := range verrs {
			problems = append(problems, service.Problem{
				Field:   fieldPath(fe),
				Code:    fe.Tag(),
				Message: fieldMessage(fe),
			})
		}
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"success": false,
			"message": "validation failed",
			"errors":  problems,
		})
	case errors.As(err, &typeErr):
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"success": false,
			"message": "validation failed",
			"errors": []service.Problem{{
				Field:   typeErr.Field,
				Code:    "type",
				Message: typeErr.Field + " must be " + typeErr.Type.String(),
			}},
		})
	case errors.As(err, &syntax):
		respondMessage(c, http.StatusBadRequest, "malformed JSON body")
	default:
		respondMessage(c, http.StatusBadRequest, err.Error())
	}
}

// fieldPath drops the request struct name from the namespace.
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return fe.Field()
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "oneof":
		return fe.Field() + " must be one of: " + fe.Param()
	case "email":
		return fe.Field() + " must be a valid email"
	case "max":
		return fe.Field() + " must be at most " + fe.Param()
	case "gt", "gte", "min":
		return fe.Field() + " is too small"
	}
	return fe.Field() + " is invalid"
}
