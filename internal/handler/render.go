package handler

import (
	"html/template"
	"io"

	"github.com/labstack/echo/v4"

	"github.com/bookshelf-service/bookshelf/web"
)

// Renderer serves the embedded template set as the echo renderer.
type Renderer struct {
	templates *template.Template
}

func NewRenderer() (*Renderer, error) {
	funcs := template.FuncMap{
		"hasInt": func(set []int, v int) bool {
			for _, s := range set {
				if s == v {
					return true
				}
			}
			return false
		},
	}
	t, err := template.New("").Funcs(funcs).ParseFS(web.Templates, "templates/*.html")
	if err != nil {
		return nil, err
	}
	return &Renderer{templates: t}, nil
}

func (r *Renderer) Render(w io.Writer, name string, data interface{}, _ echo.Context) error {
	return r.templates.ExecuteTemplate(w, name, data)
}

// render wraps c.Render attaching the principal and pending flash messages.
func (h *Handler) render(c echo.Context, code int, name string, data map[string]any) error {
	if data == nil {
		data = map[string]any{}
	}
	if u, ok := principal(c); ok {
		data["User"] = u
	}
	if _, ok := data["Title"]; !ok {
		data["Title"] = "Catalog"
	}
	data["Flashes"] = popFlashes(c)
	return c.Render(code, name, data)
}
