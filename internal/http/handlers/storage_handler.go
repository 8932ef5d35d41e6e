package handlers

import (
	"errors"
	"net/url"

	"github.com/gofiber/fiber/v2"

	applog "chinasource/internal/log"
	"chinasource/internal/storage"
)

// StorageHandler serves bucket objects behind signed, expiring URLs.
type StorageHandler struct {
	Disk *storage.Disk
}

// GET /storage/:bucket/*
func (h *StorageHandler) Serve(c *fiber.Ctx) error {
	if c.Params("bucket") != h.Disk.Name() {
		return c.SendStatus(fiber.StatusNotFound)
	}
	raw := c.Params("*")
	objectPath, err := url.PathUnescape(raw)
	if err != nil {
		applog.Security(c, "storage.path.reject", map[string]any{"path": raw})
		return c.SendStatus(fiber.StatusNotFound)
	}

	file, err := h.Disk.Resolve(c.Query("token"), objectPath)
	switch {
	case errors.Is(err, storage.ErrInvalidPath):
		applog.Security(c, "storage.traversal.block", map[string]any{"path": raw})
		return c.SendStatus(fiber.StatusNotFound)
	case errors.Is(err, storage.ErrBadSignature):
		applog.Security(c, "storage.signature.reject", map[string]any{"path": objectPath})
		return c.SendStatus(fiber.StatusForbidden)
	case errors.Is(err, storage.ErrObjectNotFound):
		return c.SendStatus(fiber.StatusNotFound)
	case err != nil:
		return err
	}
	c.Set(fiber.HeaderCacheControl, "private, max-age=3600")
	return c.SendFile(file, false)
}
