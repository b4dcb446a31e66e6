package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rovelin/postpilot/internal/scheduler"
)

type SchedulerHandler struct {
	s *scheduler.Scheduler
}

func NewSchedulerHandler(s *scheduler.Scheduler) *SchedulerHandler {
	return &SchedulerHandler{s: s}
}

func (h *SchedulerHandler) Status(c *fiber.Ctx) error {
	status, err := h.s.Status(c.Context())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Unable to read scheduler status",
		})
	}

	return c.Status(fiber.StatusOK).JSON(status)
}
