package handler

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/sakif/leaseshield/internal/apperror"
	"github.com/sakif/leaseshield/internal/model"
)

// maxMultipartMemory is how much of a form ParseMultipartForm keeps in RAM;
// the rest spills to temp files.
const maxMultipartMemory = 32 << 20

// isMultipart reports whether r carries a multipart form.
func isMultipart(r *http.Request) bool {
	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return ct == "multipart/form-data"
}

// parseForm bounds the body at limit bytes and parses it.
func parseForm(w http.ResponseWriter, r *http.Request, limit int64) error {
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return apperror.ValidationFailed("files", fmt.Sprintf("Upload is larger than %d MB", limit>>20))
		}
		return apperror.ValidationFailed("files", "Invalid multipart form")
	}
	return nil
}

// formUploads reads every file sent under field, keeping the client's file
// name. A part without a usable Content-Type gets one from its extension.
func formUploads(r *http.Request, field string) ([]model.Upload, error) {
	if r.MultipartForm == nil {
		return nil, nil
	}
	headers := r.MultipartForm.File[field]
	out := make([]model.Upload, 0, len(headers))
	for _, fh := range headers {
		u, err := readUpload(fh)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, nil
}

func readUpload(fh *multipart.FileHeader) (model.Upload, error) {
	f, err := fh.Open()
	if err != nil {
		return model.Upload{}, fmt.Errorf("handler: opening upload %s: %w", fh.Filename, err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return model.Upload{}, fmt.Errorf("handler: reading upload %s: %w", fh.Filename, err)
	}

	return model.Upload{
		FileName:    filepath.Base(fh.Filename),
		ContentType: uploadContentType(fh.Header.Get("Content-Type"), fh.Filename, data),
		Data:        data,
	}, nil
}

func uploadContentType(declared, name string, data []byte) string {
	if declared != "" && !strings.HasPrefix(declared, "application/octet-stream") {
		return declared
	}
	if byExt := mime.TypeByExtension(strings.ToLower(filepath.Ext(name))); byExt != "" {
		return byExt
	}
	return http.DetectContentType(data)
}
