package handler

type Response struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

func NewSuccessResponse(data interface{}) *Response {
	return &Response{
		Status: "success",
		Data:   data,
	}
}

func NewErrorResponse(message string) *Response {
	return &Response{
		Status:  "error",
		Message: message,
	}
}

// NewErrorResponseWithData carries details the caller can act on, such as
// the id of the session a duplicate upload points to.
func NewErrorResponseWithData(message string, data interface{}) *Response {
	return &Response{
		Status:  "error",
		Message: message,
		Data:    data,
	}
}
