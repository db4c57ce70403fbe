package http

import (
	"net/http"

	"post-planner/domain/dto"
	"post-planner/domain/model"
	"post-planner/infrastructure/realtime"
	"post-planner/usecase"

	"github.com/gin-gonic/gin"
)

type IPostHandler interface {
	Create(ctx *gin.Context)
	List(ctx *gin.Context)
	OnThisDay(ctx *gin.Context)
	Update(ctx *gin.Context)
	Delete(ctx *gin.Context)
	Stream(ctx *gin.Context)
}

type PostHandler struct {
	postUsecase  usecase.IPostUsecase
	oauthUsecase usecase.IOAuthUsecase
	hub          *realtime.Hub
}

func NewPostHandler(postUsecase usecase.IPostUsecase, oauthUsecase usecase.IOAuthUsecase, hub *realtime.Hub) IPostHandler {
	return &PostHandler{postUsecase: postUsecase, oauthUsecase: oauthUsecase, hub: hub}
}

func (h *PostHandler) Create(ctx *gin.Context) {
	var req dto.PostCreateRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		respondBindError(ctx, err)
		return
	}
	post, err := h.postUsecase.Create(ctx.Request.Context(), &req)
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"ok": true, "post": post})
}

func (h *PostHandler) List(ctx *gin.Context) {
	var q dto.PostListQuery
	if err := ctx.ShouldBindQuery(&q); err != nil {
		respondBindError(ctx, err)
		return
	}
	posts, err := h.postUsecase.List(ctx.Request.Context(), &q)
	if err != nil {
		respondError(ctx, err)
		return
	}
	if posts == nil {
		posts = []*model.PlannedPost{}
	}
	ctx.JSON(http.StatusOK, gin.H{"ok": true, "posts": posts})
}

func (h *PostHandler) OnThisDay(ctx *gin.Context) {
	var q dto.OnThisDayQuery
	if err := ctx.ShouldBindQuery(&q); err != nil {
		respondBindError(ctx, err)
		return
	}
	posts, err := h.postUsecase.OnThisDay(ctx.Request.Context(), &q)
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"ok": true, "posts": posts})
}

func (h *PostHandler) Update(ctx *gin.Context) {
	var req dto.PostUpdateRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		respondBindError(ctx, err)
		return
	}
	if req.Instance == "" {
		req.Instance = ctx.Query("instance")
	}
	post, err := h.postUsecase.Update(ctx.Request.Context(), ctx.Param("id"), &req)
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"ok": true, "post": post})
}

func (h *PostHandler) Delete(ctx *gin.Context) {
	instance := ctx.Query("instance")
	if instance == "" {
		var body dto.InstanceRequest
		if err := ctx.ShouldBindJSON(&body); err == nil {
			instance = body.Instance
		}
	}
	if err := h.postUsecase.Delete(ctx.Request.Context(), ctx.Param("id"), instance); err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"ok": true})
}

// Stream opens an SSE stream of post events for the logged-in account.
func (h *PostHandler) Stream(ctx *gin.Context) {
	origin, err := usecase.NormalizeOrigin(ctx.Query("instance"))
	if err != nil {
		respondError(ctx, err)
		return
	}
	identity, err := h.oauthUsecase.Me(ctx.Request.Context(), origin)
	if err != nil {
		respondError(ctx, err)
		return
	}
	h.hub.Serve(ctx, realtime.SubscriberKey(origin, identity.ID))
}
