package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"novel-client/internal/schemas"
)

// SessionHandler serves the play session REST API.
type SessionHandler struct {
	manager *SessionManager
	logger  *zap.Logger
	opts    SessionOptions
}

func NewSessionHandler(manager *SessionManager, opts SessionOptions, logger *zap.Logger) *SessionHandler {
	return &SessionHandler{
		manager: manager,
		logger:  logger.Named("SessionHandler"),
		opts:    opts,
	}
}

// RegisterRoutes registers the session API on the router.
func (h *SessionHandler) RegisterRoutes(r *gin.Engine) {
	api := r.Group("/api")
	{
		api.POST("/sessions", h.createSession)

		session := api.Group("/sessions/:id")
		{
			session.GET("/view", h.getView)
			session.DELETE("", h.closeSession)
			session.GET("/ws", h.streamState)

			session.POST("/advance", h.advance)
			session.POST("/choice", h.selectChoice)
			session.POST("/menu", h.setMenu)
			session.POST("/fast-forward", h.setFastForward)
			session.POST("/autoplay", h.setAutoplay)

			session.POST("/saves/:slot", h.save)
			session.GET("/saves/:slot", h.getSave)
			session.DELETE("/saves/:slot", h.deleteSave)
			session.POST("/saves/:slot/restore", h.restore)

			creatorGroup := session.Group("/creator")
			{
				creatorGroup.POST("/enter", h.enterCreatorMode)
				creatorGroup.POST("/exit", h.exitCreatorMode)
				creatorGroup.PUT("/scenes/:sceneKey/background", h.setBackground)
				creatorGroup.PUT("/scenes/:sceneKey/dialogues/:index", h.editDialogue)
				creatorGroup.POST("/scenes/:sceneKey/dialogues", h.insertNarration)
				creatorGroup.DELETE("/scenes/:sceneKey/dialogues/:index", h.deleteDialogue)
				creatorGroup.POST("/save-chapter", h.saveChapter)
				creatorGroup.POST("/chapters/:index/regenerate", h.regenerateChapter)
				creatorGroup.POST("/endings/:index/regenerate", h.regenerateEnding)
			}
		}
	}
}

// session resolves the :id parameter to a live session, writing the
// error response itself on failure.
func (h *SessionHandler) session(c *gin.Context) (*Session, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, APIError{Message: "Invalid session ID"})
		return nil, false
	}
	s, err := h.manager.GetSession(id)
	if err != nil {
		handleServiceError(c, err)
		return nil, false
	}
	return s, true
}

func (h *SessionHandler) slotParam(c *gin.Context) (int, bool) {
	slot, err := strconv.Atoi(c.Param("slot"))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, APIError{Message: "Invalid save slot"})
		return 0, false
	}
	return slot, true
}

func (h *SessionHandler) indexParam(c *gin.Context) (int, bool) {
	idx, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, APIError{Message: "Invalid index"})
		return 0, false
	}
	return idx, true
}

type createSessionRequest struct {
	WorkID      string `json:"work_id" binding:"required"`
	CreatorMode bool   `json:"creator_mode"`
}

type sessionResponse struct {
	SessionID string      `json:"session_id"`
	View      interface{} `json:"view"`
}

func (h *SessionHandler) createSession(c *gin.Context) {
	var req createSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, APIError{Message: "work_id is required"})
		return
	}
	opts := h.opts
	opts.CreatorMode = req.CreatorMode
	s, err := h.manager.CreateSession(c.Request.Context(), req.WorkID, opts)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, sessionResponse{
		SessionID: s.ID.String(),
		View:      s.projectedView(),
	})
}

func (h *SessionHandler) getView(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, s.projectedView())
}

func (h *SessionHandler) closeSession(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, APIError{Message: "Invalid session ID"})
		return
	}
	if err := h.manager.CloseSession(id); err != nil {
		handleServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *SessionHandler) advance(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	if err := s.Engine.Advance(c.Request.Context()); err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, s.projectedView())
}

type choiceRequest struct {
	ChoiceID string `json:"choice_id" binding:"required"`
}

func (h *SessionHandler) selectChoice(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	var req choiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, APIError{Message: "choice_id is required"})
		return
	}
	if err := s.Engine.SelectChoice(c.Request.Context(), req.ChoiceID); err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, s.projectedView())
}

type toggleRequest struct {
	On bool `json:"on"`
}

func (h *SessionHandler) setMenu(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	var req toggleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, APIError{Message: "Invalid request body"})
		return
	}
	s.Engine.SetMenuOpen(req.On)
	c.JSON(http.StatusOK, s.projectedView())
}

func (h *SessionHandler) setFastForward(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	var req toggleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, APIError{Message: "Invalid request body"})
		return
	}
	s.Engine.SetFastForward(req.On)
	c.JSON(http.StatusOK, s.projectedView())
}

func (h *SessionHandler) setAutoplay(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	var req toggleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, APIError{Message: "Invalid request body"})
		return
	}
	if req.On {
		// The session context, not the request context: the ticker must
		// keep running after this handler returns.
		s.Autoplay.Start(s.Context())
	} else {
		s.Autoplay.Stop()
	}
	c.JSON(http.StatusOK, gin.H{"autoplay": s.Autoplay.Running()})
}

func (h *SessionHandler) save(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	slot, ok := h.slotParam(c)
	if !ok {
		return
	}
	if err := h.manager.Saves().Save(c.Request.Context(), s.Engine, slot); err != nil {
		handleServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *SessionHandler) getSave(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	slot, ok := h.slotParam(c)
	if !ok {
		return
	}
	payload, err := h.manager.Saves().Load(c.Request.Context(), s.Engine.Work().ID, slot)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, payload)
}

func (h *SessionHandler) deleteSave(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	slot, ok := h.slotParam(c)
	if !ok {
		return
	}
	if err := h.manager.Saves().Delete(c.Request.Context(), s.Engine.Work().ID, slot); err != nil {
		handleServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *SessionHandler) restore(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	slot, ok := h.slotParam(c)
	if !ok {
		return
	}
	if err := h.manager.Saves().Restore(c.Request.Context(), s.Engine, slot); err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, s.projectedView())
}

func (h *SessionHandler) enterCreatorMode(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	s.Engine.EnterCreatorMode()
	c.JSON(http.StatusOK, s.projectedView())
}

func (h *SessionHandler) exitCreatorMode(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	s.Engine.ExitCreatorMode()
	c.JSON(http.StatusOK, s.projectedView())
}

type backgroundRequest struct {
	ImageURL string `json:"image_url" binding:"required"`
}

func (h *SessionHandler) setBackground(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	var req backgroundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, APIError{Message: "image_url is required"})
		return
	}
	if err := s.Creator.SetBackground(c.Param("sceneKey"), req.ImageURL); err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, s.projectedView())
}

type dialogueTextRequest struct {
	Text string `json:"text" binding:"required"`
}

func (h *SessionHandler) editDialogue(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	idx, ok := h.indexParam(c)
	if !ok {
		return
	}
	var req dialogueTextRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, APIError{Message: "text is required"})
		return
	}
	if err := s.Creator.EditDialogue(c.Param("sceneKey"), idx, req.Text); err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, s.projectedView())
}

type insertNarrationRequest struct {
	At   int    `json:"at"`
	Text string `json:"text" binding:"required"`
}

func (h *SessionHandler) insertNarration(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	var req insertNarrationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, APIError{Message: "text is required"})
		return
	}
	if err := s.Creator.InsertNarration(c.Param("sceneKey"), req.At, req.Text); err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, s.projectedView())
}

func (h *SessionHandler) deleteDialogue(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	idx, ok := h.indexParam(c)
	if !ok {
		return
	}
	if err := s.Creator.DeleteDialogue(c.Param("sceneKey"), idx); err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, s.projectedView())
}

func (h *SessionHandler) saveChapter(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	if err := s.Creator.SaveCurrentChapter(c.Request.Context()); err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, s.projectedView())
}

type regenerateRequest struct {
	Outlines   []string `json:"outlines,omitempty"`
	Title      string   `json:"title,omitempty"`
	Outline    string   `json:"outline,omitempty"`
	UserPrompt string   `json:"user_prompt,omitempty"`
}

func (h *SessionHandler) regenerateChapter(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	idx, ok := h.indexParam(c)
	if !ok {
		return
	}
	var req regenerateRequest
	_ = c.ShouldBindJSON(&req)
	err := s.Creator.RegenerateChapter(c.Request.Context(), idx, schemas.GenerateChapterRequest{
		Outlines:   req.Outlines,
		UserPrompt: req.UserPrompt,
	})
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "generation_requested"})
}

func (h *SessionHandler) regenerateEnding(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	idx, ok := h.indexParam(c)
	if !ok {
		return
	}
	var req regenerateRequest
	_ = c.ShouldBindJSON(&req)
	err := s.Creator.RegenerateEnding(c.Request.Context(), idx, schemas.GenerateEndingRequest{
		Title:      req.Title,
		Outline:    req.Outline,
		UserPrompt: req.UserPrompt,
	})
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "generation_requested"})
}
