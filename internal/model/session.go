package model

import (
	"time"
)

// Session 持久化的浏览器会话
type Session struct {
	ID        string    `json:"id" gorm:"primaryKey;size:64"`
	RoadmapID string    `json:"roadmap_id" gorm:"size:128;index"`
	Title     string    `json:"title" gorm:"size:500"`
	TreeJSON  string    `json:"tree_json" gorm:"type:text"`
	Input     string    `json:"input" gorm:"type:text"`
	PanelJSON string    `json:"panel_json" gorm:"type:text"`
	LastError string    `json:"last_error" gorm:"size:1000"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at" gorm:"index"`
}
