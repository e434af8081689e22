package static

import (
	"errors"
	"fmt"
	"html"
	"net/http"
	"os"
	"strings"

	"github.com/dnws-project/dnws-go/internal/exchange"
	"github.com/dnws-project/dnws-go/pkg/logger"
	"github.com/dnws-project/dnws-go/pkg/utils"
)

const defaultIndexFile = "index.html"

// FileServer serves files from beneath a document root.
type FileServer struct {
	Root string
}

// NewFileServer creates a FileServer for the given document root.
func NewFileServer(root string) *FileServer {
	return &FileServer{Root: root}
}

// Lookup resolves a request target to a response. An empty target maps to
// the index file. Missing files produce 404; any other read failure 500,
// with the error message in the body.
func (f *FileServer) Lookup(target string) *exchange.Response {
	if target == "" {
		target = defaultIndexFile
	}

	path, err := utils.ResolveWithin(target, f.Root)
	if err != nil {
		logger.Warnf("rejected file lookup: %v", err)
		return notFound(err)
	}

	body, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logger.Debugf("file not found: %s", path)
			return notFound(err)
		}
		logger.Errorf("failed to read file %s: %v", path, err)
		return exchange.NewHTMLResponse(http.StatusInternalServerError,
			"<h1>500 Internal Server Error</h1>"+html.EscapeString(err.Error()))
	}

	resp := exchange.NewResponse(http.StatusOK)
	resp.ContentType = ContentType(path)
	resp.Body = body
	return resp
}

func notFound(err error) *exchange.Response {
	return exchange.NewHTMLResponse(http.StatusNotFound,
		"<h1>404 Not found</h1>"+html.EscapeString(err.Error()))
}

// ContentType infers the MIME type from the file extension.
func ContentType(path string) string {
	lower := strings.ToLower(path)
	switch {
	case strings.HasSuffix(lower, "jpg"), strings.HasSuffix(lower, "jpeg"):
		return "image/jpeg"
	case strings.HasSuffix(lower, "png"):
		return "image/png"
	default:
		return "text/html"
	}
}

// String describes the file server for logs.
func (f *FileServer) String() string {
	return fmt.Sprintf("FileServer(%s)", f.Root)
}
