// Upload HTTP handlers.
//
//   - POST   /upload/file    (multipart "file", optional form "path")
//   - POST   /upload/files   (multipart "files", optional form "path")
//   - DELETE /upload/{key}   (key may be URL-escaped)
package handlers

import (
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-social-backend/internal/http/middleware"
	"github.com/tbourn/go-social-backend/internal/services"
)

// UploadFile godoc
// @ID          uploadFile
// @Summary     Upload one file
// @Tags        Uploads
// @Accept      multipart/form-data
// @Produce     json
// @Security    BearerAuth
// @Param       file  formData  file    true   "File"
// @Param       path  formData  string  false  "Key prefix"  default(uploads)
// @Success     201   {object}  services.UploadedFile
// @Failure     400   {object}  handlers.ErrorResponse  "File is required"
// @Failure     413   {object}  handlers.ErrorResponse  "File is too large"
// @Failure     500   {object}  handlers.ErrorResponse  "Internal error"
// @Router      /upload/file [post]
func (h *Handlers) UploadFile(c *gin.Context) {
	if _, authed := caller(c); !authed {
		return
	}
	fh, err := c.FormFile("file")
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, services.ErrFileRequired.Error())
		return
	}
	out, err := h.store(c, c.PostForm("path"), fh)
	if err != nil {
		failErr(c, err, "Failed to upload file")
		return
	}
	ok(c, http.StatusCreated, out)
}

// UploadFiles godoc
// @ID          uploadFiles
// @Summary     Upload several files
// @Description Stores every part named "files". On failure the files already stored by this request are removed.
// @Tags        Uploads
// @Accept      multipart/form-data
// @Produce     json
// @Security    BearerAuth
// @Param       files  formData  file    true   "Files"
// @Param       path   formData  string  false  "Key prefix"  default(uploads)
// @Success     201    {array}   services.UploadedFile
// @Failure     400    {object}  handlers.ErrorResponse  "File is required"
// @Failure     413    {object}  handlers.ErrorResponse  "File is too large"
// @Failure     500    {object}  handlers.ErrorResponse  "Internal error"
// @Router      /upload/files [post]
func (h *Handlers) UploadFiles(c *gin.Context) {
	if _, authed := caller(c); !authed {
		return
	}
	form, err := c.MultipartForm()
	if err != nil || len(form.File["files"]) == 0 {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, services.ErrFileRequired.Error())
		return
	}
	dir := c.PostForm("path")

	out := make([]services.UploadedFile, 0, len(form.File["files"]))
	for _, fh := range form.File["files"] {
		f, err := h.store(c, dir, fh)
		if err != nil {
			h.rollback(c, out)
			failErr(c, err, "Failed to upload files")
			return
		}
		out = append(out, *f)
	}
	ok(c, http.StatusCreated, out)
}

// DeleteUpload godoc
// @ID          deleteUpload
// @Summary     Delete an uploaded file
// @Tags        Uploads
// @Security    BearerAuth
// @Param       key  path  string  true  "File key, URL-escaped"  example(uploads%2F3f1c.png)
// @Success     204  {string}  string  "No Content"
// @Failure     400  {object}  handlers.ErrorResponse  "Invalid file key"
// @Failure     404  {object}  handlers.ErrorResponse  "File not found"
// @Router      /upload/{key} [delete]
func (h *Handlers) DeleteUpload(c *gin.Context) {
	if _, authed := caller(c); !authed {
		return
	}
	key := strings.TrimPrefix(c.Param("key"), "/")
	if err := h.uploads.Delete(c.Request.Context(), key); err != nil {
		failErr(c, err, "Failed to delete file")
		return
	}
	noContent(c)
}

func (h *Handlers) store(c *gin.Context, dir string, fh *multipart.FileHeader) (*services.UploadedFile, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return h.uploads.Upload(c.Request.Context(), dir, fh.Filename, fh.Header.Get("Content-Type"), fh.Size, f)
}

// rollback removes files stored earlier in a failed batch.
func (h *Handlers) rollback(c *gin.Context, stored []services.UploadedFile) {
	for _, f := range stored {
		if err := h.uploads.Delete(c.Request.Context(), f.Key); err != nil {
			middleware.LoggerFrom(c).Warn().Err(err).Str("key", f.Key).Msg("upload rollback failed")
		}
	}
}
