package handler

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/ethan-huo/automation-chatbot/internal/logger"
	"github.com/ethan-huo/automation-chatbot/internal/model"
	"github.com/ethan-huo/automation-chatbot/internal/service"
	"github.com/ethan-huo/automation-chatbot/pkg/response"
)

type AssetHandler struct {
	service   *service.AssetService
	validator *validator.Validate
	log       *logger.Logger
}

func NewAssetHandler(svc *service.AssetService, v *validator.Validate, log *logger.Logger) *AssetHandler {
	return &AssetHandler{
		service:   svc,
		validator: v,
		log:       log.With("handler", "AssetHandler"),
	}
}

// CreateAudio handles POST /api/assets/audio
// @Summary      Create narration task
// @Tags         Assets
// @Accept       json
// @Produce      json
// @Param        request body model.CreateAudioTaskRequest true "Audio task request"
// @Success      202 {object} model.TaskCreatedResponse
// @Failure      400 {object} response.ErrorResponse
// @Failure      503 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/assets/audio [post]
func (h *AssetHandler) CreateAudio(c *fiber.Ctx) error {
	var req model.CreateAudioTaskRequest
	if ok, err := h.bind(c, &req); !ok {
		return err
	}

	result, err := h.service.CreateAudioTask(c.UserContext(), &req)
	if err != nil {
		return h.fail(c, err)
	}
	return response.Accepted(c, result)
}

// CreateImage handles POST /api/assets/image
// @Summary      Create image task
// @Tags         Assets
// @Accept       json
// @Produce      json
// @Param        request body model.CreateImageTaskRequest true "Image task request"
// @Success      202 {object} model.TaskCreatedResponse
// @Failure      400 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/assets/image [post]
func (h *AssetHandler) CreateImage(c *fiber.Ctx) error {
	var req model.CreateImageTaskRequest
	if ok, err := h.bind(c, &req); !ok {
		return err
	}

	result, err := h.service.CreateImageTask(c.UserContext(), &req)
	if err != nil {
		return h.fail(c, err)
	}
	return response.Accepted(c, result)
}

// CreateAnimation handles POST /api/assets/animation
// @Summary      Create whiteboard animation task
// @Description  Requires a completed image task and completed narration for the scene.
// @Description  Returns the existing task with 200 when the scene already has one.
// @Tags         Assets
// @Accept       json
// @Produce      json
// @Param        request body model.CreateAnimationTaskRequest true "Animation task request"
// @Success      200 {object} model.TaskCreatedResponse
// @Success      202 {object} model.TaskCreatedResponse
// @Failure      400 {object} response.ErrorResponse
// @Failure      409 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/assets/animation [post]
func (h *AssetHandler) CreateAnimation(c *fiber.Ctx) error {
	var req model.CreateAnimationTaskRequest
	if ok, err := h.bind(c, &req); !ok {
		return err
	}

	result, err := h.service.CreateAnimationTask(c.UserContext(), &req)
	if err != nil {
		return h.fail(c, err)
	}
	if result.Existing {
		return response.OK(c, result)
	}
	return response.Accepted(c, result)
}

// GenerateStory handles POST /api/stories/:storyId/assets
// @Summary      Fan out audio and image tasks for every scene
// @Tags         Stories
// @Accept       json
// @Produce      json
// @Param        storyId path string true "Story ID"
// @Param        request body model.GenerateStoryAssetsRequest true "Scenes"
// @Success      202 {object} model.GenerateStoryAssetsResponse
// @Failure      400 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/stories/{storyId}/assets [post]
func (h *AssetHandler) GenerateStory(c *fiber.Ctx) error {
	var req model.GenerateStoryAssetsRequest
	if ok, err := h.bind(c, &req); !ok {
		return err
	}

	result, err := h.service.GenerateStoryAssets(c.UserContext(), c.Params("storyId"), &req)
	if err != nil {
		if result != nil {
			// some scenes were dispatched; their task ids must reach the caller
			h.log.Warn("story fan-out partially failed", "story_id", c.Params("storyId"), "error", err)
			return writePartialError(c, err, result)
		}
		return h.fail(c, err)
	}
	return response.Accepted(c, result)
}

// ComposeStory handles POST /api/stories/:storyId/composition
// @Summary      Compose finished scenes into a story video
// @Tags         Stories
// @Accept       json
// @Produce      json
// @Param        storyId path string true "Story ID"
// @Param        request body model.CreateCompositionRequest true "Scenes in playback order"
// @Success      202 {object} model.TaskCreatedResponse
// @Failure      400 {object} response.ErrorResponse
// @Failure      409 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/stories/{storyId}/composition [post]
func (h *AssetHandler) ComposeStory(c *fiber.Ctx) error {
	var req model.CreateCompositionRequest
	if ok, err := h.bind(c, &req); !ok {
		return err
	}

	result, err := h.service.CreateVideoComposition(c.UserContext(), c.Params("storyId"), &req)
	if err != nil {
		return h.fail(c, err)
	}
	return response.Accepted(c, result)
}

// StorySnapshot handles GET /api/stories/:storyId/assets
// @Summary      Get story asset snapshot
// @Tags         Stories
// @Produce      json
// @Param        storyId path string true "Story ID"
// @Success      200 {object} model.StoryAssetSnapshot
// @Security     BearerAuth
// @Router       /api/stories/{storyId}/assets [get]
func (h *AssetHandler) StorySnapshot(c *fiber.Ctx) error {
	snap, err := h.service.GetStoryAssetSnapshot(c.UserContext(), c.Params("storyId"))
	if err != nil {
		return h.fail(c, err)
	}
	return response.OK(c, snap)
}

// GetTask handles GET /api/assets/:taskId
// @Summary      Get a single asset task
// @Tags         Assets
// @Produce      json
// @Param        taskId path string true "Task ID"
// @Success      200 {object} model.AssetTask
// @Failure      404 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/assets/{taskId} [get]
func (h *AssetHandler) GetTask(c *fiber.Ctx) error {
	taskID := c.Params("taskId")
	if taskID == "" {
		return response.ValidationError(c, "Task ID is required", nil)
	}

	task, err := h.service.GetTask(c.UserContext(), taskID)
	if err != nil {
		return h.fail(c, err)
	}
	return response.OK(c, task)
}

// bind parses and validates the JSON body. When it reports false the error
// response has already been written.
func (h *AssetHandler) bind(c *fiber.Ctx, req interface{}) (bool, error) {
	if err := c.BodyParser(req); err != nil {
		return false, response.ValidationError(c, "Invalid request body", nil)
	}
	if err := h.validator.Struct(req); err != nil {
		return false, response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}
	return true, nil
}

func (h *AssetHandler) fail(c *fiber.Ctx, err error) error {
	h.log.Warn("request failed", "method", c.Method(), "path", c.Path(), "error", err)
	return writeError(c, err)
}
