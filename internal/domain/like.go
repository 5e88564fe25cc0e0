package domain

import "time"

// Like is a (userId, productId) unique fact; its creation/deletion is what
// drives LikeAdded/LikeRemoved events, not a mutation of Product.LikeCount
// directly.
type Like struct {
	UserID    int64
	ProductID int64
	CreatedAt time.Time
}
