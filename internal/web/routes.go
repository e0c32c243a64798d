package web

import (
	"net/http"
	"os"

	"github.com/Hofman2HQ/LookALike/internal/web/handlers"
	"github.com/Hofman2HQ/LookALike/internal/web/static"
)

// staticPrefix is where dataset photos are served; it matches the default
// photo base URL written into the metadata by the index builder.
const staticPrefix = "/static"

func (s *Server) setupRoutes() {
	matchHandler := handlers.NewMatchHandler(s.matcher, s.config.Search.TopK, s.config.Search.ScoreThreshold)
	configHandler := handlers.NewConfigHandler(s.config)

	s.router.Get("/health", matchHandler.Health)
	s.router.Post("/match", matchHandler.Match)
	s.router.Get("/config", configHandler.Get)

	s.router.Handle(staticPrefix+"/*", s.datasetHandler())
	s.router.Handle("/*", static.Handler())
}

// datasetHandler serves reference photos from the dataset directory.
func (s *Server) datasetHandler() http.Handler {
	dir := s.config.Data.DatasetDir
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return http.NotFoundHandler()
	}
	return http.StripPrefix(staticPrefix, http.FileServer(noDirListing{http.Dir(dir)}))
}

// noDirListing hides directory indexes of the dataset.
type noDirListing struct {
	fs http.FileSystem
}

func (n noDirListing) Open(name string) (http.File, error) {
	f, err := n.fs.Open(name)
	if err != nil {
		return nil, err
	}
	stat, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if stat.IsDir() {
		f.Close()
		return nil, os.ErrNotExist
	}
	return f, nil
}
