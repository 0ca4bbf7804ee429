package handler

import (
	"net/http"
	"os"

	"github.com/gin-gonic/gin"

	appErrors "github.com/noah-isme/qr-attendance-gateway/pkg/errors"
	"github.com/noah-isme/qr-attendance-gateway/pkg/response"
)

type imageResolver interface {
	Resolve(token string) (*os.File, error)
}

// QRImageHandler serves QR images kept on local disk behind signed tokens.
type QRImageHandler struct {
	images imageResolver
}

// NewQRImageHandler constructs the handler.
func NewQRImageHandler(images imageResolver) *QRImageHandler {
	return &QRImageHandler{images: images}
}

// Serve godoc
// @Summary QR code image
// @Tags QR Sessions
// @Produce png
// @Param token path string true "Signed image token"
// @Success 200 {file} file
// @Failure 404 {object} response.Envelope
// @Router /qr-images/{token} [get]
func (h *QRImageHandler) Serve(c *gin.Context) {
	file, err := h.images.Resolve(c.Param("token"))
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "QR image not found or link expired"))
		return
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		response.Error(c, appErrors.ErrInternal)
		return
	}
	c.Header("Cache-Control", "private, max-age=300")
	c.Header("Content-Type", "image/png")
	http.ServeContent(c.Writer, c.Request, info.Name(), info.ModTime(), file)
}
