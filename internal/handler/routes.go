package handler

import "github.com/gin-gonic/gin"

// RegisterRoutes mounts the greeting and health check on public and the
// ledger operations on protected. Both may be the same router.
func (h *LedgerHandler) RegisterRoutes(public, protected gin.IRoutes) {
	public.GET("/", h.Home)
	public.GET("/health", h.Health)

	protected.POST("/createAccount", h.CreateAccount)
	protected.POST("/addChild", h.AddChild)
	protected.POST("/transfer", h.Transfer)
	protected.POST("/deposit", h.Deposit)
	protected.GET("/getBalance", h.GetBalance)
	protected.GET("/children", h.ListChildren)
}
