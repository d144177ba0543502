package model

import "time"

// DocumentVersion 对应数据库中的 document_versions 表。
// 每次成功替换文档的分块都会追加一行，仅用于审计与展示，不参与变更检测。
type DocumentVersion struct {
	ID           uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	DocumentID   string    `gorm:"type:varchar(512);not null;index:idx_document_version,priority:1" json:"documentId"`
	Version      int       `gorm:"not null;index:idx_document_version,priority:2" json:"version"`
	DocHash      string    `gorm:"type:varchar(64)" json:"docHash"`
	LastModified string    `gorm:"type:varchar(40)" json:"lastModified"`
	ChunkCount   int       `gorm:"not null" json:"chunkCount"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"createdAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (DocumentVersion) TableName() string {
	return "document_versions"
}
