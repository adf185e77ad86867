package httptransport

import (
	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
)

// APIResponse is the uniform envelope for every JSON endpoint.
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data"`
	Message string      `json:"message"`
	Code    int         `json:"code"`
}

// RespondSuccess writes a success envelope.
func RespondSuccess(c *gin.Context, httpStatus int, data interface{}, message string) {
	if message == "" {
		message = "ok"
	}
	respond(c, httpStatus, APIResponse{
		Success: true,
		Message: message,
		Code:    httpStatus,
		Data:    data,
	})
}

// RespondError writes a failure envelope.
func RespondError(c *gin.Context, httpStatus int, message string, data interface{}) {
	respond(c, httpStatus, APIResponse{
		Success: false,
		Message: message,
		Code:    httpStatus,
		Data:    data,
	})
}

func respond(c *gin.Context, httpStatus int, resp APIResponse) {
	body, err := sonic.Marshal(resp)
	if err != nil {
		c.JSON(httpStatus, resp)
		return
	}
	c.Data(httpStatus, "application/json; charset=utf-8", body)
}
