// Package router 提供 HTTP 路由配置
package router

import (
	"github.com/gin-gonic/gin"
)

// RegisterV1Routes 注册 v1 版本需要认证的路由
func RegisterV1Routes(v1 *gin.RouterGroup, h Handlers) {
	// 当前用户
	users := v1.Group("/users")
	{
		users.GET("/me", h.Auth.GetMe)
	}

	// 脚本与版本管理
	scripts := v1.Group("/scripts")
	{
		scripts.GET("", h.Script.ListScripts)
		scripts.POST("", h.Script.CreateScript)
		scripts.GET("/:sid", h.Script.GetScript)
		scripts.PATCH("/:sid", h.Script.RenameScript)
		scripts.DELETE("/:sid", h.Script.DeleteScript)

		scripts.GET("/:sid/versions", h.Script.ListVersions)
		scripts.POST("/:sid/versions", h.Script.CommitVersion)
		scripts.GET("/:sid/versions/:vno", h.Script.GetVersion)
	}

	// 生成任务
	jobs := v1.Group("/jobs")
	{
		jobs.GET("", h.Job.ListJobs)
		jobs.POST("", h.Job.CreateJob)
		jobs.GET("/:jid", h.Job.GetJob)
	}

	// 配额与计费
	quota := v1.Group("/quota")
	{
		quota.GET("/balance", h.Quota.GetBalance)
		quota.POST("/topup", h.Quota.TopUp)
		quota.PUT("/plan", h.Quota.SetPlan)
		quota.GET("/ledger", h.Quota.ListLedger)
	}
}
