package handler

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/ouldcheikh/labconsole/internal/batch"
	"github.com/ouldcheikh/labconsole/internal/domain"
	"github.com/ouldcheikh/labconsole/internal/i18n"
	"github.com/ouldcheikh/labconsole/internal/store"
)

type BatchHandler struct {
	registry  *batch.Registry
	selection *store.SelectionSet
	records   RecordStore
}

func NewBatchHandler(registry *batch.Registry, selection *store.SelectionSet, records RecordStore) (*BatchHandler, error) {
	if registry == nil {
		return nil, fmt.Errorf("dialog registry is required")
	}
	if selection == nil {
		return nil, fmt.Errorf("selection set is required")
	}
	if records == nil {
		return nil, fmt.Errorf("record store is required")
	}
	return &BatchHandler{
		registry:  registry,
		selection: selection,
		records:   records,
	}, nil
}

func RegisterBatchRoutes(router fiber.Router, registry *batch.Registry, selection *store.SelectionSet, records RecordStore) error {
	h, err := NewBatchHandler(registry, selection, records)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Get("/selection", h.GetSelection)
	v1.Post("/selection/toggle", h.ToggleSelection)
	v1.Post("/selection/toggle-all", h.ToggleAllEligible)
	v1.Delete("/selection", h.ClearSelection)

	v1.Post("/batch/dialogs", h.OpenDialog)
	v1.Get("/batch/dialogs/:dialogId", h.GetDialog)
	v1.Post("/batch/dialogs/:dialogId/recipients/:analysisId/toggle", h.ToggleRecipient)
	v1.Post("/batch/dialogs/:dialogId/toggle-all", h.ToggleAllRecipients)
	v1.Put("/batch/dialogs/:dialogId/message", h.SetMessage)
	v1.Post("/batch/dialogs/:dialogId/confirm", h.ConfirmDialog)
	v1.Delete("/batch/dialogs/:dialogId", h.CancelDialog)

	return nil
}

type toggleSelectionRequest struct {
	AnalysisID string `json:"analysisId"`
}

func (h *BatchHandler) GetSelection(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"ids":   h.selection.IDs(),
			"count": h.selection.Count(),
		},
	})
}

func (h *BatchHandler) ToggleSelection(c *fiber.Ctx) error {
	var req toggleSelectionRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	id := strings.TrimSpace(req.AnalysisID)
	if id == "" {
		return fmt.Errorf("%w: analysisId is required", domain.ErrValidation)
	}

	// Only records the console currently shows can be toggled, and only
	// while their status keeps them eligible.
	if !h.selection.Contains(id) {
		record, found := h.cachedRecord(id)
		if !found {
			return fmt.Errorf("%w: analysis %s is not on the current page", domain.ErrNotFound, id)
		}
		if !record.Status.Eligible() {
			return fmt.Errorf("%w: analysis %s is not pending or failed", domain.ErrValidation, id)
		}
	}

	h.selection.Toggle(id)
	return h.GetSelection(c)
}

func (h *BatchHandler) ToggleAllEligible(c *fiber.Ctx) error {
	h.selection.SelectAllEligible(h.records.Snapshot().Records)
	return h.GetSelection(c)
}

func (h *BatchHandler) ClearSelection(c *fiber.Ctx) error {
	h.selection.Clear()
	return h.GetSelection(c)
}

func (h *BatchHandler) OpenDialog(c *fiber.Ctx) error {
	id, view, err := h.registry.Open(c.Context())
	if err != nil {
		if errors.Is(err, domain.ErrValidation) && h.selection.Count() == 0 {
			return fiber.NewError(fiber.StatusBadRequest, i18n.T(requestLanguage(c), "batch.nothingChecked"))
		}
		return err
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"dialogId": id,
			"dialog":   view,
		},
	})
}

func (h *BatchHandler) GetDialog(c *fiber.Ctx) error {
	dialog, err := h.registry.Get(strings.TrimSpace(c.Params("dialogId")))
	if err != nil {
		return err
	}
	return respondDialog(c, dialog.View())
}

func (h *BatchHandler) ToggleRecipient(c *fiber.Ctx) error {
	dialog, err := h.registry.Get(strings.TrimSpace(c.Params("dialogId")))
	if err != nil {
		return err
	}
	if err := dialog.ToggleRecipient(strings.TrimSpace(c.Params("analysisId"))); err != nil {
		return err
	}
	return respondDialog(c, dialog.View())
}

func (h *BatchHandler) ToggleAllRecipients(c *fiber.Ctx) error {
	dialog, err := h.registry.Get(strings.TrimSpace(c.Params("dialogId")))
	if err != nil {
		return err
	}
	if err := dialog.ToggleAll(); err != nil {
		return err
	}
	return respondDialog(c, dialog.View())
}

type setMessageRequest struct {
	Message string `json:"message"`
}

func (h *BatchHandler) SetMessage(c *fiber.Ctx) error {
	dialog, err := h.registry.Get(strings.TrimSpace(c.Params("dialogId")))
	if err != nil {
		return err
	}

	var req setMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if err := dialog.SetMessage(req.Message); err != nil {
		return err
	}
	return respondDialog(c, dialog.View())
}

func (h *BatchHandler) ConfirmDialog(c *fiber.Ctx) error {
	dialogID := strings.TrimSpace(c.Params("dialogId"))
	dialog, err := h.registry.Get(dialogID)
	if err != nil {
		return err
	}

	outcome, err := dialog.Confirm(c.Context())
	if err != nil {
		if errors.Is(err, domain.ErrValidation) {
			return fiber.NewError(fiber.StatusBadRequest, i18n.T(requestLanguage(c), "batch.nothingChecked"))
		}
		return err
	}

	// The queued count is a one-shot notice; the dialog is finished.
	h.registry.Remove(dialogID)

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"queuedSuccessfully": outcome.QueuedSuccessfully,
		},
		"message": fmt.Sprintf(i18n.T(requestLanguage(c), "batch.queued"), outcome.QueuedSuccessfully),
	})
}

func (h *BatchHandler) CancelDialog(c *fiber.Ctx) error {
	h.registry.Cancel(strings.TrimSpace(c.Params("dialogId")))
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"success": true,
	})
}

func (h *BatchHandler) cachedRecord(id string) (domain.AnalysisRecord, bool) {
	for _, record := range h.records.Snapshot().Records {
		if record.ID == id {
			return record, true
		}
	}
	return domain.AnalysisRecord{}, false
}

func respondDialog(c *fiber.Ctx, view batch.View) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"success": true,
		"data":    fiber.Map{"dialog": view},
	})
}
