package model

// Post is a document in the "posts" collection.
//
// Likes mirrors len(LikedBy); a uid appears in LikedBy at most once.
// Comments are embedded and append-only.
type Post struct {
	ID          string    `json:"id,omitempty"`
	Content     string    `json:"content"`
	AuthorID    string    `json:"authorId"`
	AuthorEmail string    `json:"authorEmail"`
	CreatedAt   Timestamp `json:"createdAt"`
	Likes       int       `json:"likes"`
	LikedBy     []string  `json:"likedBy"`
	Comments    []Comment `json:"comments"`
	ImageURL    string    `json:"imageUrl,omitempty"`
	ImagePath   string    `json:"imagePath,omitempty"`
}

// Comment is embedded in a Post. It is never edited or deleted on its own.
type Comment struct {
	Content     string    `json:"content"`
	AuthorID    string    `json:"authorId"`
	AuthorEmail string    `json:"authorEmail"`
	CreatedAt   Timestamp `json:"createdAt"`
}

// LikedByUser reports whether uid has liked the post in this snapshot.
func (p *Post) LikedByUser(uid string) bool {
	for _, id := range p.LikedBy {
		if id == uid {
			return true
		}
	}
	return false
}
