package httpapi

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"github.com/i474232898/treemap/internal/district"
	"github.com/i474232898/treemap/internal/geocoding"
	"github.com/i474232898/treemap/internal/overlay"
	"github.com/i474232898/treemap/internal/posts"
)

var validate = validator.New()

const upstreamTimeout = 15 * time.Second

// RegisterRoutes wires the HTTP handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, geocoder geocoding.Service, postsSvc *posts.Service, overlays *overlay.Set) {
	h := &handlers{
		geocoder: geocoder,
		posts:    postsSvc,
		overlays: overlays,
		log:      logrus.WithField("component", "http"),
	}

	v1 := app.Group("/api/v1")
	v1.Get("/district-by-point", h.districtByPoint)
	v1.Get("/district-by-code", h.districtByCode)
	v1.Post("/posts", h.createPost)
	v1.Get("/posts", h.listPosts)
	v1.Get("/posts/:id", h.getPost)
	v1.Get("/stats", h.stats)
	v1.Get("/markers", h.markers)
	v1.Get("/boundaries", h.boundaries)

	// Paths used by the original web client.
	app.Get("/api/sigungu/by-point", h.districtByPoint)
	app.Get("/api/sigungu", h.districtByCode)
}

// ErrorHandler renders errors as {"error": true, "message": ...}.
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var e *fiber.Error
	if errors.As(err, &e) {
		code = e.Code
	}
	return c.Status(code).JSON(fiber.Map{
		"error":   true,
		"message": err.Error(),
	})
}

type handlers struct {
	geocoder geocoding.Service
	posts    *posts.Service
	overlays *overlay.Set
	log      *logrus.Entry
}

// pointQuery holds query parameters for a point lookup.
type pointQuery struct {
	Lat   float64 `validate:"latitude"`
	Lng   float64 `validate:"longitude"`
	Level string  `validate:"oneof=sigungu sido"`
}

func parsePointQuery(c *fiber.Ctx) (pointQuery, error) {
	q := pointQuery{Level: c.Query("level", string(district.LevelSigungu))}

	latStr, lngStr := c.Query("lat"), c.Query("lng")
	if latStr == "" || lngStr == "" {
		return q, errors.New("lat and lng query parameters are required")
	}
	var err error
	if q.Lat, err = strconv.ParseFloat(latStr, 64); err != nil {
		return q, errors.New("invalid lat")
	}
	if q.Lng, err = strconv.ParseFloat(lngStr, 64); err != nil {
		return q, errors.New("invalid lng")
	}

	if err := validate.Struct(q); err != nil {
		return q, err
	}
	return q, nil
}

func (h *handlers) districtByPoint(c *fiber.Ctx) error {
	q, err := parsePointQuery(c)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), upstreamTimeout)
	defer cancel()

	body, err := h.geocoder.DistrictByPoint(ctx, q.Lat, q.Lng, district.Level(q.Level))
	if err != nil {
		return h.upstreamError(err)
	}
	return h.writeFeatureCollection(c, body)
}

func (h *handlers) districtByCode(c *fiber.Ctx) error {
	code := strings.TrimSpace(c.Query("code", c.Query("sig_cd")))
	if code == "" {
		return fiber.NewError(fiber.StatusBadRequest, "code query parameter is required")
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), upstreamTimeout)
	defer cancel()

	body, err := h.geocoder.DistrictByCode(ctx, code)
	if err != nil {
		return h.upstreamError(err)
	}
	return h.writeFeatureCollection(c, body)
}

// writeFeatureCollection answers with the normalized FeatureCollection, or 502 with the
// shape of the response when none could be found.
func (h *handlers) writeFeatureCollection(c *fiber.Ctx, body []byte) error {
	fc, err := district.Normalize(body)
	if err != nil {
		var se *district.ShapeError
		if errors.As(err, &se) {
			h.log.WithField("shape", se.Shape).Warn("upstream response has no FeatureCollection")
			return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
				"error":    true,
				"message":  district.ErrUnrecognizedShape.Error(),
				"rawShape": se.Shape,
			})
		}
		return fiber.NewError(fiber.StatusBadGateway, err.Error())
	}
	return c.JSON(fc)
}

func (h *handlers) upstreamError(err error) error {
	switch {
	case errors.Is(err, geocoding.ErrInvalidRequest):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, geocoding.ErrMissingKey):
		return fiber.NewError(fiber.StatusInternalServerError, "VWORLD_KEY is not configured")
	case errors.Is(err, geocoding.ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, "no boundary found for the requested location")
	case errors.Is(err, context.DeadlineExceeded):
		return fiber.NewError(fiber.StatusGatewayTimeout, "upstream timed out")
	default:
		h.log.WithError(err).Error("upstream request failed")
		return fiber.NewError(fiber.StatusBadGateway, err.Error())
	}
}

func (h *handlers) createPost(c *fiber.Ctx) error {
	var req posts.CreateRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), upstreamTimeout)
	defer cancel()

	p, err := h.posts.Create(ctx, req)
	if err != nil {
		switch {
		case errors.Is(err, posts.ErrInvalidPost):
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		case errors.Is(err, posts.ErrDistrictUnresolved) && posts.IsUpstream(err):
			return fiber.NewError(fiber.StatusBadGateway, err.Error())
		case errors.Is(err, posts.ErrDistrictUnresolved):
			return fiber.NewError(fiber.StatusUnprocessableEntity, err.Error())
		default:
			h.log.WithError(err).Error("create post failed")
			return fiber.NewError(fiber.StatusInternalServerError, "failed to create post")
		}
	}
	return c.Status(fiber.StatusCreated).JSON(p)
}

func (h *handlers) listPosts(c *fiber.Ctx) error {
	limit, err := queryInt(c, "limit", posts.DefaultLimit)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	list, err := h.posts.List(c.UserContext(), posts.Filter{DistrictCode: c.Query("sig_cd"), Limit: limit})
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "failed to list posts")
	}
	return c.JSON(list)
}

func (h *handlers) getPost(c *fiber.Ctx) error {
	p, err := h.posts.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		if errors.Is(err, posts.ErrNotFound) {
			return fiber.NewError(fiber.StatusNotFound, "post not found")
		}
		return fiber.NewError(fiber.StatusInternalServerError, "failed to fetch post")
	}
	return c.JSON(p)
}

func (h *handlers) stats(c *fiber.Ctx) error {
	stats, err := h.posts.Stats(c.UserContext())
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "failed to load stats")
	}
	return c.JSON(stats)
}

func (h *handlers) markers(c *fiber.Ctx) error {
	zoom, err := queryZoom(c)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	stats, err := h.posts.Stats(c.UserContext())
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "failed to load stats")
	}

	var list []posts.Post
	if overlay.ClusterLevelForZoom(zoom) == overlay.ClusterPost {
		list, err = h.posts.List(c.UserContext(), posts.Filter{Limit: posts.MaxLimit})
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "failed to list posts")
		}
	}

	return c.JSON(fiber.Map{
		"level":   overlay.ClusterLevelForZoom(zoom),
		"markers": overlay.Clusters(stats, list, zoom),
	})
}

func (h *handlers) boundaries(c *fiber.Ctx) error {
	zoom, err := queryZoom(c)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	stats, err := h.posts.Stats(c.UserContext())
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "failed to load stats")
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), upstreamTimeout)
	defer cancel()

	layer, err := h.overlays.Update(ctx, stats, zoom)
	if err != nil {
		return fiber.NewError(fiber.StatusGatewayTimeout, err.Error())
	}
	return c.JSON(layer)
}

// zoomQuery holds the map zoom parameter.
type zoomQuery struct {
	Zoom float64 `validate:"gte=0,lte=22"`
}

func queryZoom(c *fiber.Ctx) (float64, error) {
	s := c.Query("zoom")
	if s == "" {
		return 0, errors.New("zoom query parameter is required")
	}
	z, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, errors.New("invalid zoom")
	}
	if err := validate.Struct(zoomQuery{Zoom: z}); err != nil {
		return 0, err
	}
	return z, nil
}

func queryInt(c *fiber.Ctx, key string, def int) (int, error) {
	s := c.Query(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, errors.New("invalid " + key)
	}
	return n, nil
}
