package web

import (
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
)

// MaxBodySize bounds request bodies; they only carry paths and settings.
const MaxBodySize = 1 << 20

var errBadBody = errors.New("invalid request body")

var validate = validator.New(validator.WithRequiredStructEnabled())

type detectRequest struct {
	Path string `json:"path" validate:"required"`
}

type previewRequest struct {
	Path string `json:"path" validate:"required"`
	Type string `json:"type" validate:"required"`
}

type runRequest struct {
	Paths []string `json:"paths" validate:"required,min=1,dive,required"`
}

// decode reads a JSON body into v and validates it.
func decode(w http.ResponseWriter, r *http.Request, v any) error {
	if err := decodeJSON(w, r, v); err != nil {
		return err
	}
	return validate.Struct(v)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, MaxBodySize)
	if err := render.DecodeJSON(r.Body, v); err != nil {
		return fmt.Errorf("%w: %v", errBadBody, err)
	}
	return nil
}

// pathPolicy restricts which local paths the API may read.
type pathPolicy struct {
	roots []string
}

func newPathPolicy(roots []string) pathPolicy {
	var p pathPolicy
	for _, root := range roots {
		if abs, err := filepath.Abs(root); err == nil {
			p.roots = append(p.roots, filepath.Clean(abs))
		}
	}
	return p
}

// check returns the cleaned absolute path, or errPathRefused when it lies
// outside every root.
func (p pathPolicy) check(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("%w: %v", errPathRefused, err)
	}
	if len(p.roots) == 0 {
		return abs, nil
	}
	for _, root := range p.roots {
		if abs == root || strings.HasPrefix(abs, root+string(filepath.Separator)) {
			return abs, nil
		}
	}
	return "", fmt.Errorf("%w: %s", errPathRefused, path)
}
