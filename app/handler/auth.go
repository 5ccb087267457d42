package handler

import (
	"net/http"
	"time"

	"live-butler/app/auth"
	"live-butler/app/config"
	"live-butler/app/errs"
	"live-butler/app/utils"

	"github.com/gin-gonic/gin"
)

// AuthHandler 管理接口的认证处理器，凭证来自配置而非数据库
type AuthHandler struct {
	config     *config.Config
	jwtService *auth.JWTService
}

// NewAuthHandler 创建认证处理器
func NewAuthHandler(cfg *config.Config) *AuthHandler {
	return &AuthHandler{
		config:     cfg,
		jwtService: auth.NewJWTService(cfg),
	}
}

// LoginRequest 登录请求结构
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// LoginResponse 登录响应结构
type LoginResponse struct {
	Token    string `json:"token"`
	Username string `json:"username"`
	ExpireAt int64  `json:"expire_at"`
}

// Login 管理员登录
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, errs.Validation("请求参数错误: "+err.Error()))
		return
	}

	if req.Username != h.config.Server.Username ||
		!utils.VerifyPassword(req.Password, h.config.Server.Password) {
		c.JSON(http.StatusUnauthorized, ApiResponse{
			Code:    401,
			Message: "用户名或密码错误",
		})
		return
	}

	token, err := h.jwtService.GenerateToken(req.Username)
	if err != nil {
		respondError(c, errs.E(errs.KindInternal, "生成令牌失败", err))
		return
	}

	respondOK(c, LoginResponse{
		Token:    token,
		Username: req.Username,
		ExpireAt: time.Now().Add(time.Duration(h.config.JWT.ExpireTime) * time.Hour).Unix(),
	}, "登录成功")
}

// RefreshRequest 刷新令牌请求
type RefreshRequest struct {
	Token string `json:"token" binding:"required"`
}

// RefreshToken 刷新即将过期的令牌
func (h *AuthHandler) RefreshToken(c *gin.Context) {
	var req RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, errs.Validation("请求参数错误: "+err.Error()))
		return
	}

	token, err := h.jwtService.RefreshToken(req.Token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, ApiResponse{
			Code:    401,
			Message: err.Error(),
		})
		return
	}

	respondOK(c, gin.H{"token": token}, "令牌已刷新")
}

// Me 返回当前登录用户
func (h *AuthHandler) Me(c *gin.Context) {
	respondOK(c, gin.H{"username": c.GetString("username")}, "ok")
}
