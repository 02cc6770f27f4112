package server

// registerRoutes binds every endpoint. The stream module mounts its own
// routes at the root; everything else lives under /api.
func (s *Server) registerRoutes() {
	s.stream.RegisterRoutes(s.router)

	api := s.router.Group("/api")
	{
		api.GET("/health", s.handleHealth)
		api.GET("/search", s.handleSearch)
		api.GET("/devices", s.handleDevices)
		api.GET("/history", s.handleHistory)

		queue := api.Group("/queue")
		{
			queue.POST("/play", s.handleQueuePlay)
			queue.POST("/stop", s.handleQueueStop)
			queue.GET("/:target", s.handleQueueGet)
		}
	}
}
