package app

import (
	"time"

	"github.com/paydohq/reconciler/internal/app/api/server"
	"github.com/paydohq/reconciler/internal/app/service/checkout"
	"github.com/paydohq/reconciler/internal/app/service/ipnlog"
	"github.com/paydohq/reconciler/internal/app/service/order"
	"github.com/paydohq/reconciler/internal/app/service/reconcile"
	"github.com/paydohq/reconciler/internal/app/service/stats"
	"github.com/paydohq/reconciler/internal/platform/db"
	"github.com/paydohq/reconciler/internal/platform/paydo"
	"github.com/paydohq/reconciler/pkg/config"
	"github.com/paydohq/reconciler/pkg/logger"

	"go.uber.org/fx"
)

const (
	DefaultStartTimeout = 15 * time.Second
	DefaultStopTimeout  = 10 * time.Second
)

var Module = fx.Options(
	logger.Module,
	config.Module,
	db.Module,
	server.Module,
	paydo.Module,
	order.Module,
	ipnlog.Module,
	reconcile.Module,
	checkout.Module,
	stats.Module,
)
