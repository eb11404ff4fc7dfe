// Package fiberhttp mounts the inbound router on a fiber application:
//
//	GET|POST <base>/:action   run the named action
//	GET|POST <base>?name=...  run the action named by the action parameter
//	GET      <base>/docs      OpenAPI description of the active actions
package fiberhttp

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-webhooks/core"
	"github.com/goliatone/go-webhooks/inbound"
)

const (
	defaultBasePath      = "/webhooks"
	HeaderIdempotencyKey = "Idempotency-Key"
)

type Handler struct {
	router   *inbound.Router
	basePath string
	title    string
}

type Option func(*Handler)

func WithBasePath(path string) Option {
	return func(h *Handler) {
		path = "/" + strings.Trim(strings.TrimSpace(path), "/")
		if path != "/" {
			h.basePath = path
		}
	}
}

func WithTitle(title string) Option {
	return func(h *Handler) {
		if trimmed := strings.TrimSpace(title); trimmed != "" {
			h.title = trimmed
		}
	}
}

func NewHandler(router *inbound.Router, opts ...Option) (*Handler, error) {
	if router == nil {
		return nil, fiber.NewError(http.StatusInternalServerError, "fiberhttp: inbound router is required")
	}
	h := &Handler{router: router, basePath: defaultBasePath, title: "webhooks"}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h, nil
}

// Register mounts the routes. The docs route is registered first so it is
// not taken for an action name. Methods other than GET and POST still reach
// the router, which answers 405.
func (h *Handler) Register(app fiber.Router) {
	group := app.Group(h.basePath)
	group.Get("/docs", h.Docs)
	group.All("/", h.Action)
	group.All("/:action", h.Action)
}

func (h *Handler) Action(c *fiber.Ctx) error {
	params, err := requestParams(c)
	if err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{
			"status": http.StatusBadRequest,
			"error": fiber.Map{
				"text_code": core.ErrorBadInput,
				"message":   "request body could not be parsed",
			},
		})
	}
	resp, _ := h.router.Handle(c.UserContext(), inbound.Request{
		Action:         c.Params("action"),
		Method:         c.Method(),
		Params:         params,
		Authorization:  c.Get(fiber.HeaderAuthorization),
		IdempotencyKey: c.Get(HeaderIdempotencyKey),
	})
	return c.Status(resp.Status).JSON(resp.Body)
}

func (h *Handler) Docs(c *fiber.Ctx) error {
	doc, err := h.router.Docs(c.UserContext(), h.title, h.basePath)
	if err != nil {
		return c.Status(inbound.StatusCode(err)).JSON(inbound.ErrorBody(err))
	}
	return c.JSON(doc)
}

// requestParams merges query string, form and JSON object body values. Body
// values override query values of the same name.
func requestParams(c *fiber.Ctx) (map[string]string, error) {
	params := map[string]string{}
	for key, value := range c.Queries() {
		params[key] = value
	}

	contentType := strings.ToLower(string(c.Request().Header.ContentType()))
	switch {
	case strings.HasPrefix(contentType, fiber.MIMEApplicationForm):
		c.Request().PostArgs().VisitAll(func(key, value []byte) {
			params[string(key)] = string(value)
		})
	case strings.HasPrefix(contentType, fiber.MIMEMultipartForm):
		form, err := c.MultipartForm()
		if err != nil {
			return nil, err
		}
		for key, values := range form.Value {
			if len(values) > 0 {
				params[key] = values[0]
			}
		}
	case strings.HasPrefix(contentType, fiber.MIMEApplicationJSON):
		if len(c.Body()) == 0 {
			break
		}
		body := map[string]any{}
		if err := c.BodyParser(&body); err != nil {
			return nil, err
		}
		for key, value := range body {
			params[key] = core.Stringify(value)
		}
	}
	return params, nil
}
