package store

import (
	"gorm.io/gorm"

	"github.com/fioncat/csync/pkg/models"
)

// applyMetadataFilter translates a MetadataQuery into WHERE clauses.
func applyMetadataFilter(db *gorm.DB, q models.MetadataQuery) *gorm.DB {
	if q.ID != 0 {
		db = db.Where("id = ?", q.ID)
	}
	if q.Owner != "" {
		db = db.Where("owner = ?", q.Owner)
	}
	if q.Sha256 != "" {
		db = db.Where("sha256 = ?", q.Sha256)
	}
	if q.RecycleBefore > 0 {
		// Pinned rows have recycle_time = 0 and never qualify.
		db = db.Where("recycle_time > 0 AND recycle_time < ?", q.RecycleBefore)
	}
	if q.Search != "" {
		db = db.Where("summary LIKE ?", "%"+q.Search+"%")
	}
	return applyTimeBounds(db, q.Query)
}

// applyUserFilter translates a UserQuery into WHERE clauses.
func applyUserFilter(db *gorm.DB, q models.UserQuery) *gorm.DB {
	if q.Name != "" {
		db = db.Where("name = ?", q.Name)
	}
	if q.Search != "" {
		db = db.Where("name LIKE ?", "%"+q.Search+"%")
	}
	return applyTimeBounds(db, q.Query)
}

func applyTimeBounds(db *gorm.DB, q models.Query) *gorm.DB {
	if q.UpdateAfter > 0 {
		db = db.Where("update_time > ?", q.UpdateAfter)
	}
	if q.UpdateBefore > 0 {
		db = db.Where("update_time < ?", q.UpdateBefore)
	}
	return db
}

// applyPage adds offset/limit. Limit 0 means unlimited.
func applyPage(db *gorm.DB, q models.Query) *gorm.DB {
	if q.Offset > 0 {
		db = db.Offset(int(q.Offset))
	}
	if q.Limit > 0 {
		db = db.Limit(int(q.Limit))
	}
	return db
}
