package app

import (
	"database/sql"

	"github.com/go-chi/oauth"
	"github.com/mkoval/formgate/cleanup"
	"github.com/mkoval/formgate/config"
	"github.com/mkoval/formgate/gate"
	"github.com/mkoval/formgate/ratelimit"
)

type App struct {
	*sql.DB
	*oauth.BearerServer
	config.Config
	Gate    *gate.Gate
	Store   *ratelimit.Store
	Cleanup *cleanup.Engine
}
