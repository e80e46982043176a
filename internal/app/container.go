package app

import (
	"github.com/sirupsen/logrus"

	"github.com/eslsoft/chordnet/internal/infrastructure/config"
	"github.com/eslsoft/chordnet/internal/infrastructure/server"
	"github.com/eslsoft/chordnet/internal/usecase"
	"github.com/eslsoft/chordnet/internal/usecase/backup"
	"github.com/eslsoft/chordnet/internal/usecase/catalog"
	"github.com/eslsoft/chordnet/internal/usecase/chord"
	"github.com/eslsoft/chordnet/internal/usecase/report"
)

// Container aggregates the application dependencies produced by Wire.
type Container struct {
	Config   *config.Config
	Logger   *logrus.Logger
	Progress usecase.ProgressUsecase
	Matcher  *chord.Matcher
	Catalog  *catalog.Catalog
	Backup   *backup.Service
	Report   *report.Writer
	Server   *server.Server
}
