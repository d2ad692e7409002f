package unitofwork

import (
	"context"
	"errors"

	"mediquery-be/internal/repository/contract"
	"mediquery-be/internal/repository/implementation"

	"gorm.io/gorm"
)

var (
	errTxActive = errors.New("transaction already started")
	errNoTx     = errors.New("no active transaction")
)

// UnitOfWorkImpl hands out repositories bound to one shared handle. Between
// Begin and Commit/Rollback that handle is a transaction, so repository
// calls made inside the window commit or roll back together.
type UnitOfWorkImpl struct {
	db *gorm.DB
	tx *gorm.DB
}

func NewUnitOfWork(db *gorm.DB) UnitOfWork {
	return &UnitOfWorkImpl{db: db}
}

func (u *UnitOfWorkImpl) getDB() *gorm.DB {
	if u.tx != nil {
		return u.tx
	}
	return u.db
}

func (u *UnitOfWorkImpl) Begin(ctx context.Context) error {
	if u.tx != nil {
		return errTxActive
	}
	u.tx = u.db.WithContext(ctx).Begin()
	return u.tx.Error
}

func (u *UnitOfWorkImpl) Commit() error {
	if u.tx == nil {
		return errNoTx
	}
	err := u.tx.Commit().Error
	u.tx = nil
	return err
}

func (u *UnitOfWorkImpl) Rollback() error {
	if u.tx == nil {
		return errNoTx
	}
	err := u.tx.Rollback().Error
	u.tx = nil
	return err
}

func (u *UnitOfWorkImpl) DocumentRepository() contract.DocumentRepository {
	return implementation.NewDocumentRepository(u.getDB())
}

func (u *UnitOfWorkImpl) DocumentEmbeddingRepository() contract.DocumentEmbeddingRepository {
	return implementation.NewDocumentEmbeddingRepository(u.getDB())
}

func (u *UnitOfWorkImpl) PromptPresetRepository() contract.PromptPresetRepository {
	return implementation.NewPromptPresetRepository(u.getDB())
}
