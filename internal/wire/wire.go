package wire

import (
	"Mentora/internal/api"
	"Mentora/internal/api/config"
	"Mentora/internal/api/handler"
	"Mentora/internal/job"
	"Mentora/internal/pkg/cron"
	"Mentora/internal/pkg/kafka"
	"Mentora/internal/pkg/mongo"
	"Mentora/internal/pkg/realtime"
	"Mentora/internal/pkg/redis"
	"Mentora/internal/repository"
	"Mentora/internal/service"

	"github.com/gin-gonic/gin"
	mongoDB "go.mongodb.org/mongo-driver/mongo"
	"gorm.io/gorm"
)

// ApplicationContainer 封装了应用运行所需的所有顶级组件
type ApplicationContainer struct {
	Router   *gin.Engine
	DB       *gorm.DB
	Hub      *realtime.Hub
	Producer kafka.EventProducer
	CronMgr  *cron.Manager
}

func BuildApplication(db *gorm.DB, mongoConn *mongoDB.Database, cfg *config.Config) (*ApplicationContainer, error) {
	convRepo := repository.NewConversationRepo(db)
	msgRepo := repository.NewMessageRepo(db)
	userRepo := repository.NewUserRepo(db)
	sysBoxRepo := mongo.NewSysBoxRepo(mongoConn)

	// 多实例部署时通过 Redis 总线跨实例转发房间广播
	hub := realtime.NewHub(redis.GetRdbClient())

	// Kafka 未配置 broker 时关闭域事件投递
	var producer kafka.EventProducer
	if len(cfg.Kafka.Brokers) > 0 {
		p, err := kafka.NewEventProducer(cfg.Kafka)
		if err != nil {
			return nil, err
		}
		producer = p
	}

	chatService := service.NewChatService(convRepo, msgRepo, userRepo, hub, sysBoxRepo, producer)
	sysBoxService := service.NewSysBoxService(sysBoxRepo, userRepo)

	handlers := &api.HandlersGroup{
		ChatHandler:   handler.NewChatHandler(chatService),
		WsHandler:     handler.NewWsHandler(hub, chatService),
		SysBoxHandler: handler.NewSysBoxHandler(sysBoxService),
	}

	router := api.SetupRouter(handlers)

	cronMgr := cron.NewCronManager(job.NewSysBoxCleanJob(sysBoxRepo))

	return &ApplicationContainer{
		Router:   router,
		DB:       db,
		Hub:      hub,
		Producer: producer,
		CronMgr:  cronMgr,
	}, nil
}
