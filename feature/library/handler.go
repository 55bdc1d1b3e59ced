package library

import (
	"errors"
	"net/url"
	"time"

	"photo-library/core/logger"
	"photo-library/core/record"
	"photo-library/core/stream"
	"photo-library/feature/library/models"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// Handler handles HTTP requests for the photo library.
type Handler struct {
	service *Service
}

// NewHandler creates a new HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// PhotoView is the JSON form of a library entry.
type PhotoView struct {
	models.Photo
	Source string `json:"source"`
}

// PageView is the JSON form of a library window.
type PageView struct {
	Epoch   stream.Epoch `json:"epoch"`
	Loading bool         `json:"loading"`
	Total   int          `json:"total"`
	Offset  int          `json:"offset"`
	Photos  []PhotoView  `json:"photos"`
}

// StashView is the JSON form of a recently removed photo.
type StashView struct {
	Photo     PhotoView `json:"photo"`
	RemovedAt time.Time `json:"removed_at"`
}

// MoveRequest is the body of POST /library/move.
type MoveRequest struct {
	From string `json:"from"`
	To   string `json:"to"`
}

func toPhotoView(rec record.Record) PhotoView {
	p, ok := models.FromRecord(rec)
	if !ok {
		p = models.Photo{Path: rec.Identity, TakenAt: rec.Timestamp}
	}
	return PhotoView{Photo: p, Source: rec.SourceTag}
}

// RegisterRoutes registers the library routes.
func (h *Handler) RegisterRoutes(app fiber.Router) {
	group := app.Group("/library")
	group.Get("/", h.HandleGetPage)
	group.Get("/status", h.HandleGetStatus)
	group.Get("/photo/*", h.HandleGetPhoto)
	group.Get("/stash", h.HandleGetStash)
	group.Get("/stash/*", h.HandleGetStashed)
	group.Post("/load", h.HandleLoad)
	group.Post("/refresh", h.HandleRefresh)
	group.Post("/move", h.HandleMove)
}

// HandleGetPage returns a window of the library.
// @Summary List Photos
// @Description List photos newest first. The window reflects the engine state at request time.
// @Tags library
// @Produce json
// @Param offset query int false "Offset"
// @Param limit query int false "Page size"
// @Success 200 {object} PageView "Photos"
// @Failure 503 {object} map[string]string "Library stopped"
// @Router /library [get]
func (h *Handler) HandleGetPage(c *fiber.Ctx) error {
	offset := c.QueryInt("offset", 0)
	limit := c.QueryInt("limit", 0)

	view, err := h.service.Page(c.Context(), offset, limit)
	if err != nil {
		return h.fail(c, err)
	}

	out := PageView{
		Epoch:   view.Epoch,
		Loading: view.Loading,
		Total:   view.Total,
		Offset:  offset,
		Photos:  make([]PhotoView, 0, len(view.Records)),
	}
	for _, rec := range view.Records {
		out.Photos = append(out.Photos, toPhotoView(rec))
	}
	return c.JSON(out)
}

// HandleGetStatus returns the library status.
// @Summary Library Status
// @Tags library
// @Produce json
// @Success 200 {object} Status "Status"
// @Router /library/status [get]
func (h *Handler) HandleGetStatus(c *fiber.Ctx) error {
	st, err := h.service.Status(c.Context())
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(st)
}

// HandleGetPhoto returns a single photo.
// @Summary Get Photo
// @Tags library
// @Produce json
// @Param path path string true "Photo path relative to the library root"
// @Success 200 {object} PhotoView "Photo"
// @Failure 404 {object} map[string]string "Not Found"
// @Router /library/photo/{path} [get]
func (h *Handler) HandleGetPhoto(c *fiber.Ctx) error {
	rec, err := h.service.Lookup(c.Context(), wildcard(c))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(toPhotoView(rec))
}

// HandleGetStash lists recently removed photos.
// @Summary List Removed Photos
// @Tags library
// @Produce json
// @Success 200 {array} StashView "Removed photos, oldest first"
// @Router /library/stash [get]
func (h *Handler) HandleGetStash(c *fiber.Ctx) error {
	entries := h.service.StashEntries()
	out := make([]StashView, 0, len(entries))
	for _, e := range entries {
		out = append(out, StashView{Photo: toPhotoView(e.Snapshot), RemovedAt: e.RemovedAt})
	}
	return c.JSON(out)
}

// HandleGetStashed returns the last known state of a removed photo.
// @Summary Get Removed Photo
// @Tags library
// @Produce json
// @Param path path string true "Photo path relative to the library root"
// @Success 200 {object} StashView "Removed photo"
// @Failure 404 {object} map[string]string "Not Found"
// @Router /library/stash/{path} [get]
func (h *Handler) HandleGetStashed(c *fiber.Ctx) error {
	e, err := h.service.Stashed(wildcard(c))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(StashView{Photo: toPhotoView(e.Snapshot), RemovedAt: e.RemovedAt})
}

// HandleLoad starts a full load.
// @Summary Load Library
// @Description Start a full load. A running load is superseded.
// @Tags library
// @Produce json
// @Success 202 {object} map[string]interface{} "Load started"
// @Router /library/load [post]
func (h *Handler) HandleLoad(c *fiber.Ctx) error {
	l := logger.WithRayID(h.service.logger, c)

	epoch, err := h.service.Load(c.Context())
	if err != nil {
		return h.fail(c, err)
	}
	l.Info("Library load requested", zap.Uint64("epoch", uint64(epoch)))
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"epoch": epoch})
}

// HandleRefresh requests an incremental refresh.
// @Summary Refresh Library
// @Description Diff the library against current storage and apply the changes.
// @Tags library
// @Produce json
// @Success 202 {object} map[string]string "Refresh requested"
// @Failure 409 {object} map[string]string "No snapshot source"
// @Router /library/refresh [post]
func (h *Handler) HandleRefresh(c *fiber.Ctx) error {
	l := logger.WithRayID(h.service.logger, c)

	if err := h.service.Refresh(c.Context()); err != nil {
		return h.fail(c, err)
	}
	l.Info("Library refresh requested")
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"status": "refresh requested"})
}

// HandleMove renames a photo.
// @Summary Move Photo
// @Tags library
// @Accept json
// @Produce json
// @Param body body MoveRequest true "Source and target paths"
// @Success 200 {object} map[string]string "Moved"
// @Failure 400 {object} map[string]string "Bad Request"
// @Failure 404 {object} map[string]string "Not Found"
// @Failure 409 {object} map[string]string "Target exists"
// @Router /library/move [post]
func (h *Handler) HandleMove(c *fiber.Ctx) error {
	l := logger.WithRayID(h.service.logger, c)

	var req MoveRequest
	if err := c.BodyParser(&req); err != nil || req.From == "" || req.To == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "from and to are required",
		})
	}

	if err := h.service.Move(c.Context(), req.From, req.To); err != nil {
		return h.fail(c, err)
	}
	l.Info("Photo moved", zap.String("from", req.From), zap.String("to", req.To))
	return c.JSON(fiber.Map{"status": "moved"})
}

// fail maps service errors to HTTP responses.
func (h *Handler) fail(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	switch {
	case errors.Is(err, ErrNotFound):
		status = fiber.StatusNotFound
	case errors.Is(err, ErrExists), errors.Is(err, stream.ErrNoSnapshots):
		status = fiber.StatusConflict
	case errors.Is(err, ErrNoStore), errors.Is(err, stream.ErrClosed):
		status = fiber.StatusServiceUnavailable
	}
	if status == fiber.StatusInternalServerError {
		logger.WithRayID(h.service.logger, c).Error("Library request failed", zap.Error(err))
	}
	return c.Status(status).JSON(fiber.Map{"error": err.Error()})
}

func wildcard(c *fiber.Ctx) string {
	p := c.Params("*")
	if unescaped, err := url.PathUnescape(p); err == nil {
		p = unescaped
	}
	return p
}
