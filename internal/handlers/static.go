package handlers

import (
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/legionhq/legion/internal/assets"
)

// HasEmbeddedAssets returns true if frontend assets are embedded
func HasEmbeddedAssets() bool {
	return assets.HasEmbeddedAssets()
}

// ServeEmbeddedSPA serves the embedded frontend, falling back to index.html
// for client-side routes.
func ServeEmbeddedSPA(c *fiber.Ctx) error {
	embeddedFS := assets.GetEmbeddedAssets()
	if embeddedFS == nil {
		return c.Status(404).SendString("Frontend assets not embedded")
	}

	path := strings.TrimPrefix(c.Path(), "/")
	if path == "" {
		path = "index.html"
	}
	path = filepath.Clean(path)

	if data, err := fs.ReadFile(embeddedFS, path); err == nil {
		if ct := contentTypeFor(path); ct != "" {
			c.Set(fiber.HeaderContentType, ct)
		}
		return c.Send(data)
	}

	if data, err := fs.ReadFile(embeddedFS, "index.html"); err == nil {
		c.Set(fiber.HeaderContentType, fiber.MIMETextHTMLCharsetUTF8)
		return c.Send(data)
	}

	return c.Status(404).SendString("Asset not found")
}

func contentTypeFor(path string) string {
	switch filepath.Ext(path) {
	case ".html":
		return fiber.MIMETextHTMLCharsetUTF8
	case ".js":
		return "text/javascript; charset=utf-8"
	case ".css":
		return "text/css; charset=utf-8"
	case ".json":
		return fiber.MIMEApplicationJSONCharsetUTF8
	case ".svg":
		return "image/svg+xml"
	case ".png":
		return "image/png"
	case ".ico":
		return "image/x-icon"
	default:
		return ""
	}
}
