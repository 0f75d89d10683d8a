package server

import (
	"github.com/danielgtaylor/huma/v2"
	"github.com/go-chi/chi/v5"

	v1 "github.com/sundayhq/boardsync/internal/api/v1"
	"github.com/sundayhq/boardsync/internal/api/ws"
	"github.com/sundayhq/boardsync/internal/collab"
)

func registerAPIRoutes(api huma.API, engine *collab.Engine) {
	v1.RegisterBoardRoutes(api, engine)
}

func registerWSRoutes(r chi.Router, hub *ws.Hub) {
	r.Get("/board/{boardID}", hub.ServeBoard)
}
