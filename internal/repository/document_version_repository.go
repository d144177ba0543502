// Package repository 定义了与数据库进行数据交换的接口和实现。
package repository

import (
	"gorm.io/gorm"

	"kb-rag-go/internal/model"
)

// DocumentVersionRepository 定义了对 document_versions 表的数据操作接口。
type DocumentVersionRepository interface {
	Create(version *model.DocumentVersion) error
	FindByDocumentID(documentID string) ([]model.DocumentVersion, error)
	FindLatest(documentID string) (*model.DocumentVersion, error)
}

type documentVersionRepository struct {
	db *gorm.DB
}

// NewDocumentVersionRepository 创建一个新的 DocumentVersionRepository 实例。
func NewDocumentVersionRepository(db *gorm.DB) DocumentVersionRepository {
	return &documentVersionRepository{db: db}
}

// AutoMigrate 创建或更新 document_versions 表结构。
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&model.DocumentVersion{})
}

// Create 追加一条版本记录。
func (r *documentVersionRepository) Create(version *model.DocumentVersion) error {
	return r.db.Create(version).Error
}

// FindByDocumentID 按版本号升序返回文档的全部版本记录。
func (r *documentVersionRepository) FindByDocumentID(documentID string) ([]model.DocumentVersion, error) {
	var versions []model.DocumentVersion
	err := r.db.Where("document_id = ?", documentID).Order("version asc").Find(&versions).Error
	return versions, err
}

// FindLatest 返回最新的一条版本记录，不存在时返回 gorm.ErrRecordNotFound。
func (r *documentVersionRepository) FindLatest(documentID string) (*model.DocumentVersion, error) {
	var version model.DocumentVersion
	err := r.db.Where("document_id = ?", documentID).Order("version desc").First(&version).Error
	if err != nil {
		return nil, err
	}
	return &version, nil
}
