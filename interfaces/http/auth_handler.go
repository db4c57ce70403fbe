package http

import (
	"bytes"
	"html/template"
	"net/http"
	"net/url"

	"post-planner/domain/dto"
	"post-planner/infrastructure/logger"
	"post-planner/usecase"

	"github.com/gin-gonic/gin"
)

type IAuthHandler interface {
	RegisterApp(ctx *gin.Context)
	Authorize(ctx *gin.Context)
	Callback(ctx *gin.Context)
	Me(ctx *gin.Context)
	Logout(ctx *gin.Context)
}

type AuthHandler struct {
	oauthUsecase usecase.IOAuthUsecase
}

func NewAuthHandler(oauthUsecase usecase.IOAuthUsecase) IAuthHandler {
	return &AuthHandler{oauthUsecase: oauthUsecase}
}

// handoffPage tells the opener window about the outcome and then navigates
// to the redirect chosen at authorize time.
var handoffPage = template.Must(template.New("handoff").Parse(`<!DOCTYPE html>
<html><head><meta charset="utf-8"><title>{{.Title}}</title></head>
<body>
<p>{{.Title}}</p>
<script>
(function () {
  var payload = {{.Payload}};
  var target = {{.Redirect}};
  var origin = {{.TargetOrigin}} || window.location.origin;
  if (window.opener) {
    try { window.opener.postMessage(payload, origin); } catch (e) {}
  }
  window.location.replace(target);
})();
</script>
</body></html>
`))

type handoffData struct {
	Title        string
	Payload      gin.H
	Redirect     string
	TargetOrigin string
}

func (h *AuthHandler) RegisterApp(ctx *gin.Context) {
	var req dto.InstanceRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		respondBindError(ctx, err)
		return
	}
	reg, err := h.oauthUsecase.RegisterApp(ctx.Request.Context(), &req)
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"ok":          true,
		"instance":    reg.Origin,
		"clientId":    reg.ClientID,
		"redirectUri": reg.RedirectURI,
		"scopes":      reg.Scopes,
	})
}

func (h *AuthHandler) Authorize(ctx *gin.Context) {
	var q dto.AuthorizeQuery
	if err := ctx.ShouldBindQuery(&q); err != nil {
		respondBindError(ctx, err)
		return
	}
	res, err := h.oauthUsecase.Authorize(ctx.Request.Context(), &q)
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"ok": true, "authorizeUrl": res.AuthorizeURL, "state": res.State})
}

func (h *AuthHandler) Callback(ctx *gin.Context) {
	var q dto.CallbackQuery
	if err := ctx.ShouldBindQuery(&q); err != nil {
		respondBindError(ctx, err)
		return
	}
	res, err := h.oauthUsecase.Callback(ctx.Request.Context(), &q)

	var status int
	var body gin.H
	if err != nil {
		status, body = errorBody(ctx, err)
	} else {
		status, body = http.StatusOK, gin.H{"ok": true, "instance": res.Origin, "account": res.Identity}
	}
	if res != nil {
		body["source"] = "post-planner-oauth"
		if res.Origin != "" {
			body["instance"] = res.Origin
		}
	}
	if res == nil || res.Redirect == nil {
		ctx.JSON(status, body)
		return
	}

	title := "Signed in"
	if err != nil {
		title = "Sign-in failed"
	}
	data := handoffData{Title: title, Payload: body, Redirect: *res.Redirect}
	if u, perr := url.Parse(*res.Redirect); perr == nil && u.Host != "" {
		data.TargetOrigin = u.Scheme + "://" + u.Host
	}
	var buf bytes.Buffer
	if terr := handoffPage.Execute(&buf, data); terr != nil {
		logger.GetLogger().WithField("error", terr).Error("rendering oauth hand-off page failed")
		ctx.JSON(status, body)
		return
	}
	ctx.Data(status, "text/html; charset=utf-8", buf.Bytes())
}

func (h *AuthHandler) Me(ctx *gin.Context) {
	identity, err := h.oauthUsecase.Me(ctx.Request.Context(), ctx.Query("instance"))
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"ok": true, "account": identity})
}

func (h *AuthHandler) Logout(ctx *gin.Context) {
	var req dto.InstanceRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		respondBindError(ctx, err)
		return
	}
	if err := h.oauthUsecase.Logout(ctx.Request.Context(), req.Instance); err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"ok": true})
}
