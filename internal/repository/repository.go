package repository

import (
	"errors"
	"time"

	"github.com/ArtemShamro/roadmap-generator/internal/model"
)

// ErrNotFound 记录不存在错误
var ErrNotFound = errors.New("record not found")

type SessionRepository interface {
	Get(id string) (*model.Session, error)
	Save(session *model.Session) error
	Delete(id string) error
	// DeleteIdleBefore 删除最后更新时间早于 cutoff 的会话
	DeleteIdleBefore(cutoff time.Time) (int64, error)
}
