package xhttp

import "github.com/valyala/fasthttp"

const (
	StatusOK                    = fasthttp.StatusOK
	StatusCreated               = fasthttp.StatusCreated
	StatusAccepted              = fasthttp.StatusAccepted
	StatusNoContent             = fasthttp.StatusNoContent
	StatusBadRequest            = fasthttp.StatusBadRequest
	StatusNotFound              = fasthttp.StatusNotFound
	StatusMethodNotAllowed      = fasthttp.StatusMethodNotAllowed
	StatusRequestTimeout        = fasthttp.StatusRequestTimeout
	StatusConflict              = fasthttp.StatusConflict
	StatusRequestEntityTooLarge = fasthttp.StatusRequestEntityTooLarge
	StatusInternalServerError   = fasthttp.StatusInternalServerError
	StatusBadGateway            = fasthttp.StatusBadGateway
	StatusServiceUnavailable    = fasthttp.StatusServiceUnavailable
	StatusGatewayTimeout        = fasthttp.StatusGatewayTimeout
)

func StatusText(code int) string {
	return fasthttp.StatusMessage(code)
}
