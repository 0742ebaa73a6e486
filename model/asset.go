package model

import "time"

// AudioAsset represents an uploaded audio clip in the asset library.
// 元数据存 MySQL，原始音频字节存 MinIO（ObjectKey 指向对象）
type AudioAsset struct {
	ID          int64     `json:"id" gorm:"primaryKey;autoIncrement"`
	DisplayName string    `json:"displayName" gorm:"column:display_name;size:255"`
	MimeType    string    `json:"mimeType" gorm:"column:mime_type;size:64"`
	ObjectKey   string    `json:"-" gorm:"column:object_key;size:512"`
	SizeBytes   int64     `json:"sizeBytes" gorm:"column:size_bytes"`
	State       int8      `json:"state" gorm:"column:state;default:1"` // 0=soft deleted, 1=normal
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// TableName GORM 表名
func (AudioAsset) TableName() string {
	return "audio_assets"
}

// AssetData 是存储协作方返回的完整素材：元数据加原始字节
type AssetData struct {
	ID          int64
	RawBytes    []byte
	DisplayName string
	MimeType    string
}
