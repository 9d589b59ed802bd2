package model

// Department owns users and devices. Its ID is the 4-bit department field of
// generated addresses.
type Department struct {
	ID    int64  `gorm:"primaryKey" json:"id"`
	Title string `gorm:"size:32;not null" json:"title"`
}
