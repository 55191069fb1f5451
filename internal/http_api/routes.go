package http_api

// routes sets up the routes for the HTTP server.
func (s *HTTPServer) routes() {
	api := s.router.Group("/api/v1")
	api.Use(s.limiter.Middleware())

	api.GET("/health", s.health)
	api.GET("/plans", s.plans)
	api.POST("/auth/wallet", s.authWallet)
	api.POST("/wallet/callbacks/:ref", s.walletCallback)

	auth := api.Group("")
	auth.Use(s.authRequired())

	auth.POST("/auth/logout", s.logout)
	auth.GET("/me", s.me)
	auth.GET("/balance", s.balance)
	auth.GET("/wallet/payments/:ref", s.pendingPayment)

	auth.POST("/purchases", s.purchase)
	auth.GET("/transactions", s.transactions)
	auth.GET("/subscriptions", s.subscriptions)
	auth.PUT("/subscriptions/:id/auto-renew", s.setAutoRenew)

	auth.GET("/operators", s.operators)
	auth.GET("/operators/:id", s.operator)
	auth.GET("/topups/:id/status", s.topupStatus)
	auth.POST("/topups/:id/watch", s.watchTopup)
	auth.GET("/topups/watch", s.watchedTopup)
}
