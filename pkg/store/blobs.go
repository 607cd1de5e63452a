package store

import (
	"time"

	"github.com/fioncat/csync/pkg/models"
)

// CreateBlobParams carries the caller-supplied fields of a new blob.
// The id, size, summary and timestamps are assigned by CreateBlob.
type CreateBlobParams struct {
	Data     []byte
	BlobType models.BlobType
	Sha256   string
	FileName string
	FileMode int64
	Owner    string
}

// BlobPatch describes a partial blob update. A nil Pin leaves the flag
// unchanged.
type BlobPatch struct {
	ID  int64
	Pin *bool
}

// CreateBlob inserts a new blob owned by params.Owner. New blobs start
// unpinned, so recycle_time is now+ttl. The returned blob carries the
// assigned id.
func (tx *Tx) CreateBlob(params CreateBlobParams, now time.Time, ttl time.Duration) (*models.Blob, error) {
	blob := &models.Blob{
		Data:        params.Data,
		BlobType:    params.BlobType,
		Sha256:      params.Sha256,
		Size:        int64(len(params.Data)),
		FileName:    params.FileName,
		FileMode:    params.FileMode,
		Owner:       params.Owner,
		Summary:     models.BuildSummary(params.BlobType, params.Data, params.FileName),
		UpdateTime:  now.Unix(),
		RecycleTime: now.Add(ttl).Unix(),
	}
	if err := tx.db.Create(blob).Error; err != nil {
		return nil, err
	}
	return blob, nil
}

// UpdateBlob applies a patch and refreshes update_time. The recycle
// deadline follows the resulting pin state: pinned rows get
// recycle_time=0, unpinned rows are re-armed to now+ttl.
func (tx *Tx) UpdateBlob(patch BlobPatch, now time.Time, ttl time.Duration) (*models.Blob, error) {
	var blob models.Blob
	if err := tx.db.Where("id = ?", patch.ID).First(&blob).Error; err != nil {
		return nil, convertNotFoundError(err, models.ErrBlobNotFound)
	}

	if patch.Pin != nil {
		blob.Pin = *patch.Pin
	}
	blob.UpdateTime = now.Unix()
	if blob.Pin {
		blob.RecycleTime = 0
	} else {
		blob.RecycleTime = now.Add(ttl).Unix()
	}

	if err := tx.db.Save(&blob).Error; err != nil {
		return nil, err
	}
	return &blob, nil
}

// DeleteBlob removes a single blob.
func (tx *Tx) DeleteBlob(id int64) error {
	result := tx.db.Where("id = ?", id).Delete(&models.Blob{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return models.ErrBlobNotFound
	}
	return nil
}

// DeleteBlobs removes blobs by id and returns how many rows went away.
// Missing ids are not an error.
func (tx *Tx) DeleteBlobs(ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	result := tx.db.Where("id IN ?", ids).Delete(&models.Blob{})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

// GetBlob loads a full blob row including its payload.
func (tx *Tx) GetBlob(id int64) (*models.Blob, error) {
	var blob models.Blob
	if err := tx.db.Where("id = ?", id).First(&blob).Error; err != nil {
		return nil, convertNotFoundError(err, models.ErrBlobNotFound)
	}
	return &blob, nil
}

// HasBlob reports whether a blob with the given id exists.
func (tx *Tx) HasBlob(id int64) (bool, error) {
	var count int64
	err := tx.db.Model(&models.Blob{}).Where("id = ?", id).Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// GetMetadata loads a single blob's metadata without its payload.
func (tx *Tx) GetMetadata(id int64) (*models.Metadata, error) {
	var meta models.Metadata
	err := tx.db.Model(&models.Blob{}).Where("id = ?", id).First(&meta).Error
	if err != nil {
		return nil, convertNotFoundError(err, models.ErrBlobNotFound)
	}
	return &meta, nil
}

// CountMetadatas counts blobs matching the query, ignoring pagination.
func (tx *Tx) CountMetadatas(q models.MetadataQuery) (int64, error) {
	var count int64
	err := applyMetadataFilter(tx.db.Model(&models.Blob{}), q).Count(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}

// GetMetadatas lists blob metadata matching the query, pinned rows
// first, most recently updated first.
func (tx *Tx) GetMetadatas(q models.MetadataQuery) ([]models.Metadata, error) {
	var metas []models.Metadata
	db := applyMetadataFilter(tx.db.Model(&models.Blob{}), q)
	db = applyPage(db, q.Query).Order("pin DESC, update_time DESC")
	if err := db.Find(&metas).Error; err != nil {
		return nil, err
	}
	return metas, nil
}
