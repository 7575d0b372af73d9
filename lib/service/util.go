package service

import (
	"time"

	"github.com/uptrace/bun"
)

func bunNullTime(t time.Time) bun.NullTime {
	return bun.NullTime{Time: t}
}
