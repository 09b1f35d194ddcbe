package models

import (
	"time"

	"gorm.io/gorm"
)

const DefaultCategoryColor = "#3B82F6"

type Category struct {
	ID          uint    `json:"id" gorm:"primaryKey"`
	Name        string  `json:"name" gorm:"not null;size:150;index" validate:"required,min=1,max=150"`
	Description *string `json:"description" gorm:"type:text" validate:"omitempty,max=1000"`
	Color       string  `json:"color" gorm:"size:20;default:#3B82F6" validate:"omitempty,hexcolor"`
	Icon        *string `json:"icon" gorm:"size:100"`
	IsActive    bool    `json:"is_active" gorm:"default:true"`

	CreatedBy string         `json:"created_by" gorm:"not null;size:255;index"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`

	// Computed fields (not stored)
	QuestionsCount int `json:"questions_count" gorm:"-"`
}

func (Category) TableName() string {
	return "categories"
}
