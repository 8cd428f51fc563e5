package job

import (
	"Mentora/internal/pkg/mongo"
	"context"
	log "log/slog"
	"time"
)

// 已读通知的保留窗口
const sysBoxRetention = 30 * 24 * time.Hour

// SysBoxCleanJob 定期清理过期的已读系统通知
type SysBoxCleanJob struct {
	sysBoxRepo mongo.SysBoxRepo
}

func NewSysBoxCleanJob(sysBoxRepo mongo.SysBoxRepo) *SysBoxCleanJob {
	return &SysBoxCleanJob{sysBoxRepo: sysBoxRepo}
}

func (s *SysBoxCleanJob) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	log.Info("start sys box cleanup job")

	before := time.Now().Add(-sysBoxRetention)
	deleted, err := s.sysBoxRepo.DeleteReadBefore(ctx, before)
	if err != nil {
		log.Error("failed to clean read notifications", "err", err)
		return
	}

	if deleted > 0 {
		log.Info("sys box cleanup job finished", "deleted_count", deleted)
	}
}
