package migration

import (
	"strings"

	accountdomain "github.com/turioshq/gateway/internal/account/domain"
	"github.com/turioshq/gateway/internal/config"
	contactdomain "github.com/turioshq/gateway/internal/contact/domain"
	messagedomain "github.com/turioshq/gateway/internal/message/domain"
	paymentdomain "github.com/turioshq/gateway/internal/payment/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		if !cfg.DBAutoMigrate {
			return nil
		}

		if strings.EqualFold(cfg.DBType, "postgres") {
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			return RunMigrations(sqlDB)
		}

		// sqlite and mysql are development targets, gorm keeps them in shape
		return conn.AutoMigrate(
			&accountdomain.Account{},
			&accountdomain.ChannelBinding{},
			&contactdomain.Contact{},
			&messagedomain.Message{},
			&paymentdomain.EventRecord{},
		)
	}),
)
